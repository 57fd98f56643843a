// Package config provides PostgreSQL database configuration for placement store testing.
//
// This package contains factory functions for creating database connections
// using the store's supported PostgreSQL adapters (pgx.Pool, sql.DB, sqlx.DB).
// The DSN is read from the TIMELAPSE_TEST_DSN environment variable; tests skip when it is unset.
package config
