//go:build sqlite
// +build sqlite

package settings

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"maunium.net/go/mautrix/id"
	_ "modernc.org/sqlite"

	"mxnotify/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &sqliteStore{db: db, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) migrate() error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) IsLevelSupported(level Level) bool {
	return level == LevelDevice || level == LevelAccount
}

func (s *sqliteStore) GetValue(key string) bool {
	for _, level := range []Level{LevelDevice, LevelAccount} {
		var v int
		err := s.db.QueryRow(
			`SELECT value FROM settings WHERE key = ? AND scope = '' AND level = ?`,
			key, string(level),
		).Scan(&v)
		if err == nil {
			return v != 0
		}
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("settings read failed", logx.Err(err), logx.String("key", key))
			return false
		}
	}
	return false
}

func (s *sqliteStore) SetValue(key string, roomID id.RoomID, level Level, value bool) error {
	if !s.IsLevelSupported(level) {
		return ErrUnsupportedLevel
	}
	v := 0
	if value {
		v = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO settings(key, scope, level, value) VALUES(?,?,?,?)
		 ON CONFLICT(key, scope, level) DO UPDATE SET value = excluded.value`,
		key, string(roomID), string(level), v,
	)
	return err
}

func (s *sqliteStore) PromptDismissed() bool {
	var v int
	err := s.db.QueryRow(`SELECT value FROM device_flags WHERE key = 'prompt_dismissed'`).Scan(&v)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("device flag read failed", logx.Err(err))
		}
		return false
	}
	return v != 0
}

func (s *sqliteStore) SetPromptDismissed(dismissed bool) error {
	v := 0
	if dismissed {
		v = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO device_flags(key, value) VALUES('prompt_dismissed', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, v)
	return err
}
