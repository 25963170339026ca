package sched

import (
	"strings"
	"sync"
	"time"
)

// RunRecord holds the captured output, error text and wall-clock bounds of
// a job's current or most recent run. All fields sit behind one mutex so
// the loop, parallel workers and the monitor can read it concurrently.
type RunRecord struct {
	mu    sync.Mutex
	log   strings.Builder
	err   string
	start time.Time
	end   time.Time
}

// RecordView is the JSON-friendly snapshot of a RunRecord. It doubles as
// the persistence format used by the state stores.
type RecordView struct {
	Log   string     `json:"log"`
	Err   string     `json:"err"`
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// StartCapture clears the record for a fresh run and stamps its start in
// the given timezone. The returned func stamps the end; the caller must
// invoke it on every exit path of the run.
func (r *RunRecord) StartCapture(loc *time.Location) func() {
	r.mu.Lock()
	r.log.Reset()
	r.err = ""
	r.start = time.Now().In(loc)
	r.end = time.Time{}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		r.end = time.Now().In(loc)
		r.mu.Unlock()
	}
}

// SetError stores the formatted traceback text of a failed run.
func (r *RunRecord) SetError(trace string) {
	r.mu.Lock()
	r.err = trace
	r.mu.Unlock()
}

func (r *RunRecord) append(s string) {
	r.mu.Lock()
	r.log.WriteString(s)
	r.mu.Unlock()
}

// Error returns the stored traceback text, empty for a clean run.
func (r *RunRecord) Error() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Snapshot returns a consistent copy of the record.
func (r *RunRecord) Snapshot() RecordView {
	r.mu.Lock()
	defer r.mu.Unlock()
	view := RecordView{
		Log: r.log.String(),
		Err: r.err,
	}
	if !r.start.IsZero() {
		start := r.start
		view.Start = &start
	}
	if !r.end.IsZero() {
		end := r.end
		view.End = &end
	}
	return view
}

// RestoreView loads a previously persisted snapshot. Views without a start
// stamp are ignored, matching the behavior of fresh records that never ran.
func (r *RunRecord) RestoreView(view RecordView) {
	if view.Start == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Reset()
	r.log.WriteString(view.Log)
	r.err = view.Err
	r.start = *view.Start
	r.end = time.Time{}
	if view.End != nil {
		r.end = *view.End
	}
}
