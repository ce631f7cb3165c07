package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tasklist/internal/domain"
	"tasklist/internal/sqlitedb"
)

const createCredentialTable = `
CREATE TABLE IF NOT EXISTS credential (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	token TEXT NOT NULL,
	issued_at DATETIME,
	expires_at DATETIME,
	stored_at DATETIME NOT NULL
);
`

// SQLite persists the credential in a single-row table so it survives
// process restarts. The row is cached in memory after Open.
type SQLite struct {
	db     *sql.DB
	logger logrus.FieldLogger

	mu   sync.RWMutex
	cred domain.Credential
}

// OpenSQLite opens (or creates) the credential database at path and loads
// any stored credential.
func OpenSQLite(ctx context.Context, path string, logger logrus.FieldLogger) (*SQLite, error) {
	if logger == nil {
		logger = logrus.New()
	}
	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, err
	}

	s := &SQLite{db: db, logger: logger.WithField("component", "tokenstore")}
	if _, err := db.ExecContext(ctx, createCredentialTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create credential table: %w", err)
	}
	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) load(ctx context.Context) error {
	var (
		token     string
		issuedAt  sql.NullTime
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `SELECT token, issued_at, expires_at FROM credential WHERE id = 1`).
		Scan(&token, &issuedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}

	cred := domain.Credential{Token: token}
	if issuedAt.Valid {
		cred.IssuedAt = issuedAt.Time.UTC()
	}
	if expiresAt.Valid {
		cred.ExpiresAt = expiresAt.Time.UTC()
	}
	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()
	return nil
}

func (s *SQLite) Get(_ context.Context) (domain.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, !s.cred.IsZero()
}

func (s *SQLite) Set(ctx context.Context, cred domain.Credential) error {
	if cred.IsZero() {
		return s.Clear(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO credential (id, token, issued_at, expires_at, stored_at)
VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
	token = excluded.token,
	issued_at = excluded.issued_at,
	expires_at = excluded.expires_at,
	stored_at = excluded.stored_at`,
		cred.Token,
		nullTime(cred.IssuedAt),
		nullTime(cred.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	s.cred = cred
	return nil
}

// Clear removes the credential. The in-memory copy is dropped even when the
// delete fails so the process never keeps using a credential it was told to forget.
func (s *SQLite) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = domain.Credential{}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credential WHERE id = 1`); err != nil {
		s.logger.Warnf("clear stored credential: %v", err)
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
