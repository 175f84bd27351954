// Package directory talks to external CardDAV-style directory servers: PUT
// pushes guarded by If-Match etags, DELETE removals, and addressbook-query
// REPORTs for reconciliation pulls.
package directory
