package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/acmchapter/gatepass/internal/utils"
)

const themeKey = "theme"

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme accepts "light" or "dark". Anything else is light.
func ParseTheme(s string) Theme {
	if strings.EqualFold(strings.TrimSpace(s), string(ThemeDark)) {
		return ThemeDark
	}
	return ThemeLight
}

func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Store is a small key-value preference table. A nil *Store is usable: reads
// return defaults and writes are dropped.
type Store struct {
	db   *sql.DB
	lock *utils.FileLock
	Log  logrus.FieldLogger
}

// Open opens (creating if needed) the preference database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating prefs dir: %w", err)
		}
	}
	lock, err := utils.NewFileLock(path)
	if err != nil {
		return nil, err
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS prefs (
  key        TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating prefs schema: %w", err)
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return &Store{db: db, lock: lock, Log: discard}, nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the stored value and whether it was present.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil {
		return "", false, nil
	}
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set upserts key under the cross-process write lock.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if s == nil {
		return nil
	}
	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer s.lock.Unlock()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, key, value)
	return err
}

// Theme returns the saved theme, light when unset, unreadable or unknown.
func (s *Store) Theme(ctx context.Context) Theme {
	v, ok, err := s.Get(ctx, themeKey)
	if err != nil {
		s.Log.Debugf("reading theme: %v", err)
		return ThemeLight
	}
	if !ok {
		return ThemeLight
	}
	return ParseTheme(v)
}

// SetTheme saves t. Failures are logged and ignored.
func (s *Store) SetTheme(ctx context.Context, t Theme) {
	if err := s.Set(ctx, themeKey, string(t)); err != nil {
		s.Log.Warnf("saving theme: %v", err)
	}
}
