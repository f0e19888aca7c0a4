// Package database provides SQLite persistence for Tilt Logic Core.
//
// It wraps database/sql with WAL-mode configuration, a single-writer
// connection pool (SQLite's model), health checks, and embedded schema
// migrations. The show package's execution audit repository is the
// primary consumer.
package database
