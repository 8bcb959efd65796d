// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Schema creates the dedupe table. It is valid for both PostgreSQL and SQLite.
const Schema = `
CREATE TABLE IF NOT EXISTS seen_campaigns (
    campaign_id TEXT PRIMARY KEY,
    inserted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Open connects to the store, verifies the connection and creates the schema.
// driver is "postgres" or "sqlite".
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// one writer; also keeps :memory: databases on a single connection
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := EnsureSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// EnsureSchema creates the dedupe table if it does not exist.
func EnsureSchema(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create seen_campaigns: %w", err)
	}
	return nil
}
