package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens the SQLite database at dbPath, creating the parent
// directory when needed. One handle serves both reads and writes: the
// scheduler's state traffic is a trickle, so the WAL + busy_timeout
// pragmas are plenty.
//
//   - _journal=WAL: write-ahead logging so reads don't block saves
//   - _busy_timeout=5000: wait up to 5 seconds for locks
//   - mode=rwc: read-write-create
func Open(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	connStr := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&mode=rwc", dbPath)
	handle, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	handle.SetMaxOpenConns(1)
	handle.SetMaxIdleConns(1)
	handle.SetConnMaxLifetime(time.Hour)

	if _, err := handle.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	if _, err := handle.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("set foreign_keys: %w", err)
	}

	return handle, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
