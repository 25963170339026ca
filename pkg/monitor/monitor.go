// Package monitor serves a JSON view of a scheduler over HTTP: job
// listings, a per-application state summary and token-gated rerun /
// enable / disable actions. It mounts on any chi router; rendering a
// UI on top of the JSON is left to the embedding application.
package monitor

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskmill/taskmill/internal/webapi"
	"github.com/taskmill/taskmill/pkg/sched"
)

// DefaultPrefix is where the monitor mounts when Options.Prefix is
// empty.
const DefaultPrefix = "@taskmonitor"

// Job state labels derived for the summary surface.
const (
	StateDisabled = "DISABLED"
	StateRunning  = "RUNNING"
	StateError    = "ERROR"
	StateSuccess  = "SUCCESS"
	StateReady    = "READY"
)

// Options configures a Monitor.
type Options struct {
	// Name labels the application in the summary payload. Defaults to
	// the executable name.
	Name string

	// Prefix is the mount path under the router root. Defaults to
	// DefaultPrefix.
	Prefix string

	// ReadOnly leaves the mutating routes (rerun, enable_disable)
	// unregistered.
	ReadOnly bool

	// Logger receives mount messages. Defaults to log.Default().
	Logger *log.Logger
}

// Monitor exposes one scheduler. Every response is HTTP 200 with a
// {"success": ...} or {"error": ...} envelope; the envelope, not the
// status code, carries the outcome.
type Monitor struct {
	s        *sched.Scheduler
	name     string
	prefix   string
	readOnly bool
	logger   *log.Logger
	token    string
}

// New builds a Monitor for the given scheduler.
func New(s *sched.Scheduler, opts Options) *Monitor {
	name := opts.Name
	if name == "" {
		if exe, err := os.Executable(); err == nil {
			name = filepath.Base(exe)
		} else {
			name = "taskmill"
		}
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{
		s:        s,
		name:     name,
		prefix:   prefix,
		readOnly: opts.ReadOnly,
		logger:   logger,
		token:    newToken(),
	}
}

// Token returns the API token mutating requests must carry.
func (m *Monitor) Token() string { return m.token }

// RegisterRoutes mounts the monitor endpoints under the prefix.
func (m *Monitor) RegisterRoutes(router chi.Router) {
	prefix := "/" + strings.Trim(m.prefix, "/")
	router.Route(prefix, func(r chi.Router) {
		r.Method(http.MethodGet, "/json/all", webapi.Handler(m.listJobs))
		r.Method(http.MethodGet, "/json/summary", webapi.Handler(m.summary))
		r.Method(http.MethodGet, "/json/{jobid}", webapi.Handler(m.getJob))
		if m.readOnly {
			return
		}
		r.Method(http.MethodPost, "/rerun", webapi.Handler(m.rerun))
		r.Method(http.MethodPost, "/enable_disable", webapi.Handler(m.enableDisable))
	})
	m.logger.Printf("Task monitor mounted at %s (read-only: %v)", prefix, m.readOnly)
}

// ==========================================================================
// Envelopes
// ==========================================================================

type successEnvelope struct {
	Success any `json:"success"`
}

func writeSuccess(w http.ResponseWriter, payload any) error {
	return webapi.WriteJSON(w, http.StatusOK, successEnvelope{Success: payload})
}

func writeFailure(w http.ResponseWriter, message string) error {
	return webapi.WriteJSON(w, http.StatusOK, webapi.ErrorResponse{Error: message})
}

// ==========================================================================
// Read Handlers
// ==========================================================================

func (m *Monitor) listJobs(w http.ResponseWriter, r *http.Request) error {
	jobs := m.s.Jobs()
	if len(jobs) == 0 {
		return writeFailure(w, "Nothing here")
	}
	views := make([]sched.JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, j.View())
	}
	return writeSuccess(w, views)
}

func (m *Monitor) getJob(w http.ResponseWriter, r *http.Request) error {
	id, err := strconv.Atoi(chi.URLParam(r, "jobid"))
	if err != nil {
		return writeFailure(w, "Invalid job id")
	}
	j, err := m.s.GetByID(id)
	if err != nil {
		return writeFailure(w, "Invalid job id")
	}
	return writeSuccess(w, j.View())
}

type summaryCounts struct {
	Count   int `json:"count"`
	Running int `json:"running"`
	Errors  int `json:"errors"`
}

type jobSummary struct {
	ID        int        `json:"id"`
	State     string     `json:"state"`
	Signature string     `json:"signature"`
	PrevRun   *time.Time `json:"prev_run"`
	NextRun   *time.Time `json:"next_run"`
}

type appSummary struct {
	Name    string        `json:"name"`
	Summary summaryCounts `json:"summary"`
	Details []jobSummary  `json:"details"`
}

func (m *Monitor) summary(w http.ResponseWriter, r *http.Request) error {
	jobs := m.s.Jobs()
	if len(jobs) == 0 {
		return writeFailure(w, "Nothing here")
	}
	counts := summaryCounts{Count: len(jobs)}
	details := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		view := j.View()
		state := StateOf(view)
		switch state {
		case StateRunning:
			counts.Running++
		case StateError:
			counts.Errors++
		}
		details = append(details, jobSummary{
			ID:        view.JobID,
			State:     state,
			Signature: view.Signature,
			PrevRun:   view.Logs.Start,
			NextRun:   view.NextRun,
		})
	}
	return writeSuccess(w, appSummary{Name: m.name, Summary: counts, Details: details})
}

// StateOf derives the display state of a job view: disabled and
// running win over everything, a recorded error beats a success, and a
// job that has never produced output stays READY.
func StateOf(view sched.JobView) string {
	switch {
	case view.IsDisabled:
		return StateDisabled
	case view.IsRunning:
		return StateRunning
	case view.Logs.Err != "":
		return StateError
	case view.Logs.End != nil && strings.TrimSpace(view.Logs.Log) != "":
		return StateSuccess
	default:
		return StateReady
	}
}

// ==========================================================================
// Mutating Handlers
// ==========================================================================

type actionRequest struct {
	JobID    *int    `json:"jobid"`
	APIToken *string `json:"api_token"`
	Disable  *bool   `json:"disable"`
}

func (m *Monitor) rerun(w http.ResponseWriter, r *http.Request) error {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return writeFailure(w, "Invalid input")
	}
	if req.APIToken == nil || *req.APIToken != m.token {
		return writeFailure(w, "Invalid token. Rerun blocked. Please reload the page and try again")
	}
	if req.JobID == nil {
		return writeFailure(w, "Invalid input")
	}
	if err := m.s.Rerun(*req.JobID, nil); err != nil {
		return writeFailure(w, rerunError(err))
	}
	return writeSuccess(w, true)
}

func rerunError(err error) string {
	var invalid *sched.InvalidJobIDError
	if errors.As(err, &invalid) {
		return "Invalid job id"
	}
	var busy *sched.JobBusyError
	if errors.As(err, &busy) {
		return "Cannot rerun a running job"
	}
	return err.Error()
}

func (m *Monitor) enableDisable(w http.ResponseWriter, r *http.Request) error {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return writeFailure(w, "Invalid input")
	}
	if req.APIToken == nil || *req.APIToken != m.token {
		return writeFailure(w, "Action blocked")
	}
	if req.JobID == nil || req.Disable == nil {
		return writeFailure(w, "Invalid input")
	}
	j, err := m.s.GetByID(*req.JobID)
	if err != nil {
		return writeFailure(w, "Invalid job id")
	}
	if *req.Disable {
		j.Disable()
	} else {
		j.Enable()
	}
	return writeSuccess(w, true)
}

// ==========================================================================
// API token
// ==========================================================================

const (
	tokenLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	tokenLength  = 20
)

func newToken() string {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	out := make([]byte, tokenLength)
	for i, b := range buf {
		out[i] = tokenLetters[int(b)%len(tokenLetters)]
	}
	return string(out)
}
