package repository

import (
	"context"
	"fmt"
	"time"
)

type migration struct {
	name string
	up   string
}

// Statements stay within the SQL subset shared by PostgreSQL and SQLite.
var migrations = []migration{
	{
		name: "001_create_users",
		up: `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				email         TEXT NOT NULL UNIQUE,
				role          TEXT NOT NULL DEFAULT 'USER',
				password_hash TEXT NOT NULL DEFAULT '',
				created_at    TIMESTAMP NOT NULL,
				updated_at    TIMESTAMP NOT NULL
			)`,
	},
	{
		name: "002_create_sessions",
		up: `
			CREATE TABLE IF NOT EXISTS sessions (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				token_id   TEXT NOT NULL UNIQUE,
				expires_at TIMESTAMP NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`,
	},
	{
		name: "003_create_login_attempts",
		up: `
			CREATE TABLE IF NOT EXISTS login_attempts (
				id         TEXT PRIMARY KEY,
				email      TEXT NOT NULL,
				success    BOOLEAN NOT NULL,
				ip_address TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL
			)`,
	},
	{
		name: "004_index_login_attempts_email",
		up:   `CREATE INDEX IF NOT EXISTS idx_login_attempts_email_created ON login_attempts (email, created_at)`,
	},
}

// Migrate applies pending schema migrations in order.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	_, err := r.exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		if err := r.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
	}
	return nil
}

func (r *SQLRepository) runMigration(ctx context.Context, m migration) error {
	var count int
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, m.name).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.up); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`), m.name, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}
