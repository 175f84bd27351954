// Package config provides configuration management for the Contact Manager.
//
// It utilizes Viper for loading configuration from environment variables and
// an optional .env file, with defaults bound from struct tags.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Server: HTTP server settings (port, API key, acting owner)
//   - Database: MySQL connection details for the private record store
//   - Storage: S3/MinIO credentials and bucket for per-recipient share copies
//   - Log: Logging level and format
//   - Sync: external directory profiles, protection window, sweep interval
//   - Sharing: fan-out concurrency and distribution list definitions
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
