// Package userstore persists the user directory: which Telegram user
// belongs to which department. The department value is raw storage; the
// search layer normalizes it and treats the empty value as unassigned,
// which grants full visibility.
package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	cderrors "github.com/uqsoft/crossdock/internal/errors"
)

// User is one directory entry.
type User struct {
	TelegramID int64
	FullName   string
	Department string // "" means unassigned
	UpdatedAt  time.Time
}

// Store is a SQLite-backed user directory. Safe for concurrent use;
// the pool is pinned to a single connection, so writers serialize in
// the driver rather than racing on the WAL.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the user directory database. The
// parent directory is created for file-backed paths; ":memory:" works
// for tests because the single pinned connection keeps the database
// alive.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, cderrors.StorageError(cderrors.ErrCodeUserStoreFailed,
				"failed to create user store directory", err).
				WithDetail("path", path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cderrors.StorageError(cderrors.ErrCodeUserStoreFailed,
			"failed to open user store", err).
			WithDetail("path", path)
	}

	// Single connection: modernc/sqlite handles one writer well, and the
	// directory is tiny. WAL keeps concurrent readers cheap anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, cderrors.StorageError(cderrors.ErrCodeUserStoreFailed,
				fmt.Sprintf("failed to apply %s", pragma), err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	telegram_id INTEGER PRIMARY KEY,
	full_name   TEXT NOT NULL DEFAULT '',
	department  TEXT,
	updated_at  TEXT NOT NULL
);`
	if _, err := s.db.Exec(schema); err != nil {
		return cderrors.StorageError(cderrors.ErrCodeUserStoreFailed,
			"failed to create users table", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database still answers. Startup checks use it to
// catch a file that vanished or lost permissions after Open.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return cderrors.StorageError(cderrors.ErrCodeUserStoreFailed,
			"user store is not answering", err).
			WithDetail("path", s.path)
	}
	return nil
}

// GetDepartment returns the user's raw department value. Absent users
// and NULL assignments both return "", which the search layer resolves
// to full visibility.
func (s *Store) GetDepartment(ctx context.Context, userID int64) (string, error) {
	var dept sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT department FROM users WHERE telegram_id = ?`, userID).Scan(&dept)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", cderrors.StorageError(cderrors.ErrCodeUserStoreFailed,
			"failed to read user department", err).
			WithDetail("user_id", fmt.Sprintf("%d", userID))
	}
	if !dept.Valid {
		return "", nil
	}
	return dept.String, nil
}

// SetDepartment assigns a user to a department, creating the entry when
// needed and keeping any stored name. Slug validity is the caller's
// concern; the store records what it is given.
func (s *Store) SetDepartment(ctx context.Context, userID int64, slug string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (telegram_id, department, updated_at) VALUES (?, ?, ?)
ON CONFLICT(telegram_id) DO UPDATE SET
	department = excluded.department,
	updated_at = excluded.updated_at`,
		userID, slug, now())
	if err != nil {
		return cderrors.StorageError(cderrors.ErrCodeUserStoreFailed,
			"failed to set user department", err).
			WithDetail("user_id", fmt.Sprintf("%d", userID)).
			WithDetail("department", slug)
	}
	return nil
}

// ClearDepartment removes a user's assignment, returning them to full
// visibility. Clearing an absent user is a no-op.
func (s *Store) ClearDepartment(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET department = NULL, updated_at = ? WHERE telegram_id = ?`,
		now(), userID)
	if err != nil {
		return cderrors.StorageError(cderrors.ErrCodeUserStoreFailed,
			"failed to clear user department", err).
			WithDetail("user_id", fmt.Sprintf("%d", userID))
	}
	return nil
}

// SetFullName records a user's display name, creating the entry when
// needed and keeping any stored department.
func (s *Store) SetFullName(ctx context.Context, userID int64, name string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (telegram_id, full_name, updated_at) VALUES (?, ?, ?)
ON CONFLICT(telegram_id) DO UPDATE SET
	full_name  = excluded.full_name,
	updated_at = excluded.updated_at`,
		userID, name, now())
	if err != nil {
		return cderrors.StorageError(cderrors.ErrCodeUserStoreFailed,
			"failed to set user name", err).
			WithDetail("user_id", fmt.Sprintf("%d", userID))
	}
	return nil
}

// Get returns one directory entry, or nil when the user is unknown.
func (s *Store) Get(ctx context.Context, userID int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT telegram_id, full_name, department, updated_at FROM users WHERE telegram_id = ?`,
		userID)
	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, cderrors.StorageError(cderrors.ErrCodeUserStoreFailed,
			"failed to read user", err).
			WithDetail("user_id", fmt.Sprintf("%d", userID))
	}
	return u, nil
}

// List returns every directory entry ordered by Telegram ID.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT telegram_id, full_name, department, updated_at FROM users ORDER BY telegram_id`)
	if err != nil {
		return nil, cderrors.StorageError(cderrors.ErrCodeUserStoreFailed,
			"failed to list users", err)
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		u, scanErr := scanUser(rows.Scan)
		if scanErr != nil {
			return nil, cderrors.StorageError(cderrors.ErrCodeUserStoreFailed,
				"failed to scan user row", scanErr)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, cderrors.StorageError(cderrors.ErrCodeUserStoreFailed,
			"failed to iterate users", err)
	}
	return users, nil
}

func scanUser(scan func(dest ...any) error) (*User, error) {
	var (
		u       User
		dept    sql.NullString
		updated string
	)
	if err := scan(&u.TelegramID, &u.FullName, &dept, &updated); err != nil {
		return nil, err
	}
	if dept.Valid {
		u.Department = dept.String
	}
	if ts, err := time.Parse(time.RFC3339, updated); err == nil {
		u.UpdatedAt = ts
	}
	return &u, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
