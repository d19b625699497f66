package loginsession

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-firm-dashboard/internal/errors"
	_ "modernc.org/sqlite"
)

var _ Repo = (*SQLiteLoginSessionRepo)(nil)

// SQLiteLoginSessionRepo keeps login sessions across restarts
type SQLiteLoginSessionRepo struct {
	db *sql.DB
}

// NewSQLiteLoginSessionRepo opens (or creates) the database at dbPath
func NewSQLiteLoginSessionRepo(dbPath string) (*SQLiteLoginSessionRepo, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode so the sweeper does not block request reads
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteLoginSessionRepo{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return repo, nil
}

func (r *SQLiteLoginSessionRepo) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS login_sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		access_token TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		id_token TEXT NOT NULL DEFAULT '',
		token_id TEXT NOT NULL DEFAULT '',
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_login_sessions_expires ON login_sessions(expires_at);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (r *SQLiteLoginSessionRepo) Upsert(ctx context.Context, session Session) error {
	if session.ID == "" {
		return fmt.Errorf("sessionID is required")
	}

	query := `
		INSERT INTO login_sessions (
			session_id, user_id, email, name, role,
			access_token, refresh_token, id_token, token_id,
			expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id = excluded.user_id,
			email = excluded.email,
			name = excluded.name,
			role = excluded.role,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			id_token = excluded.id_token,
			token_id = excluded.token_id,
			expires_at = excluded.expires_at`

	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.Email, session.Name, session.Role,
		session.AccessToken, session.RefreshToken, session.IDToken, session.TokenID,
		toMillis(session.ExpiresAt), toMillis(session.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert login session: %w", err)
	}
	return nil
}

func (r *SQLiteLoginSessionRepo) Get(ctx context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, fmt.Errorf("sessionID is required")
	}

	query := `
		SELECT session_id, user_id, email, name, role,
		       access_token, refresh_token, id_token, token_id,
		       expires_at, created_at
		FROM login_sessions WHERE session_id = ?`

	var s Session
	var expiresAt, createdAt int64
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&s.ID, &s.UserID, &s.Email, &s.Name, &s.Role,
		&s.AccessToken, &s.RefreshToken, &s.IDToken, &s.TokenID,
		&expiresAt, &createdAt,
	)
	if err == sql.ErrNoRows {
		return Session{}, errors.ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("scan login session row: %w", err)
	}

	s.ExpiresAt = fromMillis(expiresAt)
	s.CreatedAt = fromMillis(createdAt)
	return s, nil
}

func (r *SQLiteLoginSessionRepo) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete login session: %w", err)
	}
	return nil
}

func (r *SQLiteLoginSessionRepo) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sweep: %w", err)
	}
	defer tx.Rollback()

	cutoff := toMillis(now)
	rows, err := tx.QueryContext(ctx,
		`SELECT session_id FROM login_sessions WHERE expires_at > 0 AND expires_at <= ? ORDER BY session_id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", err)
	}

	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan expired session: %w", err)
		}
		expired = append(expired, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired sessions: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM login_sessions WHERE expires_at > 0 AND expires_at <= ?`, cutoff); err != nil {
		return nil, fmt.Errorf("delete expired sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit sweep: %w", err)
	}
	return expired, nil
}

func (r *SQLiteLoginSessionRepo) Close() error {
	return r.db.Close()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
