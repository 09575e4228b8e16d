// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: SKIP LOCKED claim, embedded SQL migrations, pooled
// connections via pgxpool.
package postgres
