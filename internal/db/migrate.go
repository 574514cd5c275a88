package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const sessionMigration = `
CREATE TABLE IF NOT EXISTS sessions (
    id text PRIMARY KEY,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    last_access_at timestamptz NOT NULL DEFAULT NOW(),
    expires_at timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS sessions_expires_at_idx
ON sessions (expires_at);

CREATE TABLE IF NOT EXISTS session_values (
    session_id text NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    key text NOT NULL,
    value text NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    PRIMARY KEY (session_id, key)
);
`

// RunMigrations creates the session tables if they do not exist.
func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, sessionMigration)
	return err
}
