// Package adapters provide database adapter implementations for the PostgreSQL placement store.
//
// This package implements the adapter pattern to support multiple PostgreSQL database libraries:
// pgx.Pool, sql.DB, and sqlx.DB. All adapters provide queries, statements and transactions through
// a common DBAdapter interface. Only the pgx adapter implements Copier for COPY based bulk loads.
package adapters
