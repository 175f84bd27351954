// Package server holds the HTTP server configuration.
//
// While the main application entry point handles the server startup, this package
// defines the configuration structure for server settings such as the listen port,
// the API key, and the acting owner username.
//
// # Usage
//
// This package is primarily used by the core/config package to embed server settings
// and by feature services that need to know the acting owner.
package server
