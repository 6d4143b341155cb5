// Package postgres provides a store.Backend that keeps the queue snapshot
// and content cache in a PostgreSQL table, accessed through database/sql
// with the pgx driver. The schema is managed by embedded goose migrations.
package postgres
