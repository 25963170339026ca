package sched

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"reflect"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Args are the keyword arguments bound to a job's callable.
type Args map[string]any

// TaskFunc is the callable contract. The context carries the run's capture
// writer (see Printf, Println and RunWriter); a returned error marks the run
// failed, as does a panic.
type TaskFunc func(ctx context.Context, args Args) error

const timeLayout = "2006-01-02 15:04:05"

// Job binds a callable to a Schedule, owns the run record of its current or
// most recent run, and enforces at-most-one-run-in-flight.
type Job struct {
	id       int
	fn       TaskFunc
	fnName   string
	src      string
	doc      string
	args     Args
	schedule Schedule
	slots    []ClockTime
	tzname   string
	loc      *time.Location
	calendar HolidayCalendar
	parallel bool
	grace    time.Duration
	sigHash  string

	record  *RunRecord
	logger  *log.Logger
	fileLog *log.Logger

	errHandler        func(trace string)
	genericErrHandler func(trace string)

	mu         sync.Mutex
	nextFire   time.Time
	running    bool
	disabled   bool
	silent     bool
	onComplete []func(*Job)
	onEnable   []func(*Job)
	onDisable  []func(*Job)
}

// JobView is the stable JSON shape of a job, served by the monitor and
// reused by displays.
type JobView struct {
	JobID      int        `json:"jobid"`
	Func       string     `json:"func"`
	Signature  string     `json:"signature"`
	Src        *string    `json:"src"`
	Doc        *string    `json:"doc"`
	Type       string     `json:"type"`
	Every      any        `json:"every"`
	At         any        `json:"at"`
	TZName     *string    `json:"tzname"`
	IsRunning  bool       `json:"is_running"`
	IsDisabled bool       `json:"is_disabled"`
	NextRun    *time.Time `json:"next_run"`
	Logs       RecordView `json:"logs"`
}

// ID returns the process-local job id.
func (j *Job) ID() int { return j.id }

// Schedule returns the job's schedule variant.
func (j *Job) Schedule() Schedule { return j.schedule }

// NextRun returns the next firing instant, zero when the job will never
// self-fire.
func (j *Job) NextRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextFire
}

// IsRunning reports whether a run is currently in flight.
func (j *Job) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// IsDisabled reports whether the job is disabled.
func (j *Job) IsDisabled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.disabled
}

// IsDue reports whether the job should fire now. Pure query: due means the
// target instant has arrived, the job can still self-fire, and it is
// neither running nor disabled.
func (j *Job) IsDue() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running || j.disabled || j.nextFire.IsZero() {
		return false
	}
	return !time.Now().Before(j.nextFire)
}

// Silently suppresses the start/end banner lines around runs. Task output
// itself is still captured. Chainable.
func (j *Job) Silently() *Job {
	j.mu.Lock()
	j.silent = true
	j.mu.Unlock()
	return j
}

// Catch installs a job-specific error handler that overrides the
// scheduler-wide one. The handler receives the formatted traceback text.
// Chainable.
func (j *Job) Catch(handler func(trace string)) *Job {
	j.errHandler = handler
	return j
}

// Describe attaches a human-readable description shown on the monitor.
// Chainable.
func (j *Job) Describe(doc string) *Job {
	j.doc = doc
	return j
}

// OnComplete registers a listener invoked after every run, successful or
// not. Listener panics are recovered and logged.
func (j *Job) OnComplete(fn func(*Job)) {
	j.mu.Lock()
	j.onComplete = append(j.onComplete, fn)
	j.mu.Unlock()
}

// OnEnable registers a listener invoked whenever the job is enabled.
func (j *Job) OnEnable(fn func(*Job)) {
	j.mu.Lock()
	j.onEnable = append(j.onEnable, fn)
	j.mu.Unlock()
}

// OnDisable registers a listener invoked whenever the job is disabled.
func (j *Job) OnDisable(fn func(*Job)) {
	j.mu.Lock()
	j.onDisable = append(j.onDisable, fn)
	j.mu.Unlock()
}

// Enable clears the disabled flag, recomputes the next firing instant and
// fires the on-enable listeners.
func (j *Job) Enable() {
	j.mu.Lock()
	j.disabled = false
	listeners := append(([]func(*Job))(nil), j.onEnable...)
	j.mu.Unlock()

	j.scheduleNext(false)
	for _, fn := range listeners {
		j.safeListener("on_enable", fn)
	}
}

// Disable sets the disabled flag and fires the on-disable listeners. A run
// already in flight finishes normally; the job just stops being due.
func (j *Job) Disable() {
	j.mu.Lock()
	j.disabled = true
	listeners := append(([]func(*Job))(nil), j.onDisable...)
	j.mu.Unlock()

	for _, fn := range listeners {
		j.safeListener("on_disable", fn)
	}
}

// Run executes the callable once. It is a no-op while another run is in
// flight. Reruns merge override arguments over the bound ones and do not
// shift the next firing instant.
func (j *Job) Run(isRerun bool, override Args) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	silent := j.silent
	j.mu.Unlock()

	finish := j.record.StartCapture(j.loc)
	w := &captureWriter{record: j.record, echo: os.Stderr, file: j.fileLog}
	ctx := withRunWriter(context.Background(), w)
	started := time.Now()

	if !silent {
		fmt.Fprintf(w, "========== [%03d] - Job Start [%s] ==========\n", j.id, started.In(j.loc).Format(timeLayout))
		fmt.Fprintf(w, "Executing %s\n", j)
		fmt.Fprintln(w, "*")
	}

	j.invoke(ctx, w, mergeArgs(j.args, override))

	if !silent {
		fmt.Fprintln(w, "*")
		fmt.Fprintf(w, "Finished in %.2f minutes\n", time.Since(started).Minutes())
		fmt.Fprintf(w, "========== [%03d] - Job End [%s] ==========\n", j.id, time.Now().In(j.loc).Format(timeLayout))
	}
	finish()

	if !isRerun {
		j.scheduleNext(true)
	}

	j.mu.Lock()
	j.running = false
	listeners := append(([]func(*Job))(nil), j.onComplete...)
	j.mu.Unlock()

	for _, fn := range listeners {
		j.safeListener("on_complete", fn)
	}
}

// invoke runs the callable, turning panics and returned errors into a
// recorded traceback routed through the error handlers.
func (j *Job) invoke(ctx context.Context, w io.Writer, args Args) {
	defer func() {
		if rec := recover(); rec != nil {
			j.fail(w, fmt.Sprintf("panic: %v\n\n%s", rec, debug.Stack()))
		}
	}()
	if err := j.fn(ctx, args); err != nil {
		j.fail(w, err.Error())
	}
}

// fail records the formatted failure text and routes it to the job's
// handler, falling back to the scheduler-wide one. The header names the
// failing callable so file logs from many jobs stay attributable.
func (j *Job) fail(w io.Writer, trace string) {
	msg := fmt.Sprintf("Error in %s\n\n%s", j.FunctionSignature(), trace)
	fmt.Fprintln(w, msg)
	j.record.SetError(msg)

	handler := j.errHandler
	if handler == nil {
		handler = j.genericErrHandler
	}
	if handler == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			j.logger.Printf("error handler for job [%03d] panicked: %v", j.id, rec)
		}
	}()
	handler(msg)
}

func (j *Job) safeListener(kind string, fn func(*Job)) {
	defer func() {
		if rec := recover(); rec != nil {
			j.logger.Printf("%s listener for job [%03d] panicked: %v", kind, j.id, rec)
		}
	}()
	fn(j)
}

// scheduleNext recomputes the next firing instant from the wall clock.
func (j *Job) scheduleNext(justRan bool) {
	j.mu.Lock()
	prev := j.nextFire
	j.mu.Unlock()

	next := j.schedule.Next(NextInput{
		Now:      time.Now(),
		Loc:      j.loc,
		Calendar: j.calendar,
		Slots:    j.slots,
		JustRan:  justRan,
		PrevNext: prev,
		Grace:    j.grace,
	})

	j.mu.Lock()
	j.nextFire = next
	j.mu.Unlock()
}

// expired reports whether this is a OneShot that can never fire again and
// should be dropped from the registry.
func (j *Job) expired() bool {
	if _, ok := j.schedule.(OneShot); !ok {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextFire.IsZero() && !j.disabled
}

// SignatureHash is the stable SHA-1 hex identifier of the job, derived from
// its variant, slots, callable identity and argument values. State stores
// key their entries by it.
func (j *Job) SignatureHash() string { return j.sigHash }

// FunctionSignature renders the callable invocation in a compact
// human-readable form: package path, function name and trimmed arguments.
func (j *Job) FunctionSignature() string {
	return fmt.Sprintf("%s(%s)", j.fnName, renderArgs(j.args))
}

// Record returns a snapshot of the current run record.
func (j *Job) Record() RecordView {
	return j.record.Snapshot()
}

// RestoreSnapshot loads persisted state into the job without firing any
// listeners. State stores call this while restoring.
func (j *Job) RestoreSnapshot(view RecordView, disabled bool) {
	j.record.RestoreView(view)
	j.mu.Lock()
	j.disabled = disabled
	j.mu.Unlock()
}

// View builds the JSON-friendly snapshot served by the monitor.
func (j *Job) View() JobView {
	j.mu.Lock()
	running := j.running
	disabled := j.disabled
	next := j.nextFire
	j.mu.Unlock()

	view := JobView{
		JobID:      j.id,
		Func:       j.fnName,
		Signature:  j.FunctionSignature(),
		Type:       j.schedule.Kind(),
		Every:      j.schedule.Interval(),
		At:         slotsView(j.slots),
		IsRunning:  running,
		IsDisabled: disabled,
		Logs:       j.record.Snapshot(),
	}
	if j.src != "" {
		src := j.src
		view.Src = &src
	}
	if j.doc != "" {
		doc := j.doc
		view.Doc = &doc
	}
	if j.tzname != "" {
		tz := j.tzname
		view.TZName = &tz
	}
	if !next.IsZero() && !disabled {
		n := next
		view.NextRun = &n
	}
	return view
}

// String renders the one-line form used in registration logs and run
// banners.
func (j *Job) String() string {
	next := "never"
	if t := j.NextRun(); !t.IsZero() {
		next = t.In(j.loc).Format(timeLayout)
	}
	return fmt.Sprintf("%-10s [%03d] | Next run = %s | %s", j.schedule.Kind(), j.id, next, j.FunctionSignature())
}

// signatureSeed is the canonical string hashed into the signature. Two jobs
// with the same variant, slots, callable and argument values always produce
// the same seed.
func (j *Job) signatureSeed() string {
	slotParts := make([]string, len(j.slots))
	for i, slot := range j.slots {
		slotParts[i] = slot.String()
	}
	return strings.Join([]string{
		j.schedule.Kind(),
		fmt.Sprintf("%v", j.schedule.Interval()),
		strings.Join(slotParts, ","),
		j.fnName,
		renderArgs(j.args),
	}, "|")
}

func (j *Job) computeSignatureHash() {
	sum := sha1.Sum([]byte(j.signatureSeed()))
	j.sigHash = hex.EncodeToString(sum[:])
}

func slotsView(slots []ClockTime) any {
	switch len(slots) {
	case 0:
		return nil
	case 1:
		return slots[0].String()
	default:
		out := make([]string, len(slots))
		for i, slot := range slots {
			out[i] = slot.String()
		}
		return out
	}
}

func mergeArgs(bound, override Args) Args {
	if len(override) == 0 {
		return bound
	}
	merged := make(Args, len(bound)+len(override))
	for k, v := range bound {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// functionName resolves the callable's runtime name, e.g.
// "github.com/acme/reports.SendDigest". Method values lose their "-fm"
// suffix so signatures stay stable.
func functionName(fn TaskFunc) string {
	if fn == nil {
		return "<nil>"
	}
	pc := reflect.ValueOf(fn).Pointer()
	f := runtime.FuncForPC(pc)
	if f == nil {
		return "func"
	}
	return strings.TrimSuffix(f.Name(), "-fm")
}

// functionSource resolves the callable's defining file and line.
func functionSource(fn TaskFunc) string {
	if fn == nil {
		return ""
	}
	pc := reflect.ValueOf(fn).Pointer()
	f := runtime.FuncForPC(pc)
	if f == nil {
		return ""
	}
	file, line := f.FileLine(pc)
	return fmt.Sprintf("%s:%d", file, line)
}
