package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore keeps sessions in the sessions/session_values tables.
// Expiry is checked on read and swept by DeleteExpired.
type PostgresStore struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time
}

// NewPostgresStore creates a Postgres-backed session store. The schema is
// created by db.RunMigrations.
func NewPostgresStore(db *sqlx.DB, ttl time.Duration) *PostgresStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PostgresStore{db: db, ttl: ttl, now: time.Now}
}

func (p *PostgresStore) Create(ctx context.Context) (string, error) {
	id, err := GenerateID()
	if err != nil {
		return "", err
	}

	now := p.now().UTC()
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, last_access_at, expires_at)
		VALUES ($1, $2, $2, $3)
	`, id, now, now.Add(p.ttl))
	if err != nil {
		return "", unavailable(err)
	}
	return id, nil
}

func (p *PostgresStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	if !ValidID(sessionID) {
		return nil, ErrNotFound
	}

	now := p.now().UTC()
	s := &Session{
		ID:           sessionID,
		Values:       make(map[string]string),
		LastAccessAt: now,
		ExpiresAt:    now.Add(p.ttl),
	}

	err := p.db.QueryRowxContext(ctx, `
		UPDATE sessions
		SET last_access_at = $2, expires_at = $3
		WHERE id = $1 AND expires_at > $2
		RETURNING created_at
	`, sessionID, now, s.ExpiresAt).Scan(&s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}

	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := p.db.SelectContext(ctx, &rows, `
		SELECT key, value FROM session_values WHERE session_id = $1
	`, sessionID); err != nil {
		return nil, unavailable(err)
	}
	for _, row := range rows {
		s.Values[row.Key] = row.Value
	}
	return s, nil
}

func (p *PostgresStore) Set(ctx context.Context, sessionID, key, value string) error {
	if !ValidID(sessionID) {
		return ErrNotFound
	}

	res, err := p.db.ExecContext(ctx, `
		INSERT INTO session_values (session_id, key, value, updated_at)
		SELECT $1, $2, $3, $4
		WHERE EXISTS (SELECT 1 FROM sessions WHERE id = $1 AND expires_at > $4)
		ON CONFLICT (session_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, sessionID, key, value, p.now().UTC())
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, sessionID, key string) error {
	if !ValidID(sessionID) {
		return nil
	}
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM session_values WHERE session_id = $1 AND key = $2
	`, sessionID, key)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (p *PostgresStore) Destroy(ctx context.Context, sessionID string) error {
	if !ValidID(sessionID) {
		return nil
	}
	// session_values rows go with it (ON DELETE CASCADE)
	_, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteExpired removes sessions past their expiry and reports how many.
func (p *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, p.now().UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	return res.RowsAffected()
}
