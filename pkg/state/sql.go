package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/taskmill/taskmill/pkg/sched"
)

const (
	createAppsTable = `
CREATE TABLE IF NOT EXISTS apps (
	app_id          TEXT PRIMARY KEY,
	app_unique_info TEXT,
	restart_dt      TIMESTAMP
)`
	createStateTable = `
CREATE TABLE IF NOT EXISTS state (
	app_id    TEXT NOT NULL,
	signature TEXT NOT NULL,
	readable  TEXT,
	log       TEXT,
	err       TEXT,
	start_dt  TIMESTAMP NULL,
	end_dt    TIMESTAMP NULL,
	disabled  BOOLEAN NOT NULL DEFAULT 0,
	PRIMARY KEY (app_id, signature)
)`
)

// SQLStore keeps job records in two tables: apps, one row per
// application identity, and state, one row per (app, signature) pair.
// The *sql.DB is owned by the caller; the store creates its tables
// lazily on first use and never closes the handle.
type SQLStore struct {
	db     *sql.DB
	id     appIdentity
	logger *log.Logger

	mu    sync.Mutex
	ready bool
}

// NewSQLStore wraps an open database handle. A nil logger falls back
// to log.Default().
func NewSQLStore(db *sql.DB, logger *log.Logger) *SQLStore {
	if logger == nil {
		logger = log.Default()
	}
	return &SQLStore{db: db, id: currentIdentity(), logger: logger}
}

func (s *SQLStore) ensureReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	for _, stmt := range []string{createAppsTable, createStateTable} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create state tables: %w", err)
		}
	}
	if err := s.registerApp(); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// registerApp records this application in the apps table and stamps
// the restart time. A row holding the same id with different identity
// info means two distinct applications hash alike; state would bleed
// between them, so it is worth a loud log line.
func (s *SQLStore) registerApp() error {
	info := strings.Join(s.id.Info(), "\n")
	now := time.Now().UTC().Format(time.RFC3339)
	var stored string
	err := s.db.QueryRow(`SELECT app_unique_info FROM apps WHERE app_id = ?`, s.id.Hash()).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(
			`INSERT INTO apps (app_id, app_unique_info, restart_dt) VALUES (?, ?, ?)`,
			s.id.Hash(), info, now,
		); err != nil {
			return fmt.Errorf("failed to register app: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up app registration: %w", err)
	}
	if stored != info {
		s.logger.Printf("WARNING: hash collision on app id %s; stored identity info does not match this process", s.id.Hash())
	}
	if _, err := s.db.Exec(`UPDATE apps SET restart_dt = ? WHERE app_id = ?`, now, s.id.Hash()); err != nil {
		return fmt.Errorf("failed to stamp app restart: %w", err)
	}
	return nil
}

// SaveJobLogs upserts the job's record row.
func (s *SQLStore) SaveJobLogs(j *sched.Job) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	st := capture(j)
	_, err := s.db.Exec(`
INSERT INTO state (app_id, signature, readable, log, err, start_dt, end_dt, disabled)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(app_id, signature) DO UPDATE SET
	readable = excluded.readable,
	log      = excluded.log,
	err      = excluded.err,
	start_dt = excluded.start_dt,
	end_dt   = excluded.end_dt,
	disabled = excluded.disabled`,
		s.id.Hash(), j.SignatureHash(), j.FunctionSignature(),
		st.Logs.Log, st.Logs.Err, timeText(st.Logs.Start), timeText(st.Logs.End), st.Disabled,
	)
	if err != nil {
		return fmt.Errorf("failed to save state for job %d: %w", j.ID(), err)
	}
	return nil
}

// RestoreAllJobLogs loads every row for this application into the
// matching job and deletes rows whose signature no longer matches any
// registered job.
func (s *SQLStore) RestoreAllJobLogs(jobs []*sched.Job) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	rows, err := s.db.Query(
		`SELECT signature, log, err, start_dt, end_dt, disabled FROM state WHERE app_id = ?`,
		s.id.Hash(),
	)
	if err != nil {
		return fmt.Errorf("failed to load states: %w", err)
	}
	defer rows.Close()

	bySig := make(map[string]*sched.Job, len(jobs))
	for _, j := range jobs {
		bySig[j.SignatureHash()] = j
	}

	var stale []string
	for rows.Next() {
		var (
			sig                string
			logText, errText   sql.NullString
			startText, endText sql.NullString
			disabled           bool
		)
		if err := rows.Scan(&sig, &logText, &errText, &startText, &endText, &disabled); err != nil {
			return fmt.Errorf("failed to scan state row: %w", err)
		}
		j, ok := bySig[sig]
		if !ok {
			stale = append(stale, sig)
			continue
		}
		apply(j, jobState{
			Logs: sched.RecordView{
				Log:   logText.String,
				Err:   errText.String,
				Start: parseTimeText(startText),
				End:   parseTimeText(endText),
			},
			Disabled: disabled,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read states: %w", err)
	}
	rows.Close()

	for _, sig := range stale {
		if _, err := s.db.Exec(`DELETE FROM state WHERE app_id = ? AND signature = ?`, s.id.Hash(), sig); err != nil {
			return fmt.Errorf("failed to prune state %s: %w", sig, err)
		}
	}
	return nil
}

func timeText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseTimeText(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

