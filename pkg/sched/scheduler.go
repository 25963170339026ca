package sched

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// StateStore persists run records and disabled flags across process
// restarts. Implementations live in pkg/state; the scheduler only
// needs save and restore.
type StateStore interface {
	// SaveJobLogs persists the job's latest run record and disabled flag.
	SaveJobLogs(j *Job) error
	// RestoreAllJobLogs loads persisted records into matching jobs and
	// prunes records that no longer correspond to a registered job.
	RestoreAllJobLogs(jobs []*Job) error
}

// ExternalScheduleFunc resolves a raw schedule spec into a Schedule.
// Resolvers registered with RegisterExternalSchedule are offered the
// spec before the built-in rules; returning ok claims it.
type ExternalScheduleFunc func(every any) (Schedule, bool)

// Config controls scheduler construction. The zero value is usable:
// local timezone, five second check interval, no holiday calendar and
// no persistence.
type Config struct {
	// CheckInterval is how often the registry is polled for due jobs.
	// Defaults to five seconds.
	CheckInterval time.Duration

	// Timezone is the IANA zone name schedules resolve in. Defaults to
	// the process-local zone.
	Timezone string

	// Calendar marks holidays for the holiday-aware day classes. Nil
	// means no dates are holidays.
	Calendar HolidayCalendar

	// OnJobError receives the formatted failure text of any job that
	// does not carry its own Catch handler.
	OnJobError func(trace string)

	// StartupGraceMins widens the due window by whole minutes so slots
	// missed while the process was down still fire on the next check.
	StartupGraceMins int

	// Store, when set, persists run records across restarts. Saves
	// happen after every run and on enable/disable; restore happens
	// once in Start (or explicitly via RestoreState).
	Store StateStore

	// Logger receives scheduler lifecycle messages. Defaults to
	// log.Default().
	Logger *log.Logger

	// LogPath, when set, appends every captured job print to a
	// rotating file: LogMaxSizeMB megabytes per file, LogBackups
	// rotated copies kept.
	LogPath      string
	LogMaxSizeMB int
	LogBackups   int
}

const (
	defaultCheckInterval = 5 * time.Second
	defaultLogMaxSizeMB  = 5
	defaultLogBackups    = 1
)

// Scheduler owns the job registry and the dispatch loop. Declare jobs
// with Every/EveryCal/On, then call Start to poll for due work.
type Scheduler struct {
	interval   time.Duration
	loc        *time.Location
	tzname     string
	calendar   HolidayCalendar
	grace      time.Duration
	onJobError func(trace string)
	store      StateStore
	logger     *log.Logger
	fileLogger *log.Logger
	externals  []ExternalScheduleFunc

	mu     sync.RWMutex
	jobs   []*Job
	lastID int

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New builds a Scheduler from cfg.
func New(cfg Config) (*Scheduler, error) {
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	loc, tzname := time.Local, time.Local.String()
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", cfg.Timezone, err)
		}
		loc, tzname = l, cfg.Timezone
	}
	if cfg.StartupGraceMins < 0 {
		return nil, fmt.Errorf("startup grace must not be negative, got %d", cfg.StartupGraceMins)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Scheduler{
		interval:   interval,
		loc:        loc,
		tzname:     tzname,
		calendar:   cfg.Calendar,
		grace:      time.Duration(cfg.StartupGraceMins) * time.Minute,
		onJobError: cfg.OnJobError,
		store:      cfg.Store,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
	if cfg.LogPath != "" {
		maxSize := cfg.LogMaxSizeMB
		if maxSize <= 0 {
			maxSize = defaultLogMaxSizeMB
		}
		backups := cfg.LogBackups
		if backups <= 0 {
			backups = defaultLogBackups
		}
		s.fileLogger = log.New(&lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    maxSize,
			MaxBackups: backups,
		}, "", 0)
	}
	return s, nil
}

// RegisterExternalSchedule adds a resolver that is offered every raw
// schedule spec before the built-in rules. Register resolvers before
// declaring the jobs that need them.
func (s *Scheduler) RegisterExternalSchedule(fn ExternalScheduleFunc) {
	s.externals = append(s.externals, fn)
}

// Jobs returns a snapshot of the registered jobs in registration order.
func (s *Scheduler) Jobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// GetByID returns the job with the given id.
func (s *Scheduler) GetByID(id int) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if j.id == id {
			return j, nil
		}
	}
	return nil, &InvalidJobIDError{ID: id}
}

// Check runs every due job once, then drops one-shot jobs that have
// fired. Serial jobs run inline in the calling goroutine; parallel
// jobs run on their own goroutine tracked by Join.
func (s *Scheduler) Check() {
	for _, j := range s.Jobs() {
		if !j.IsDue() {
			continue
		}
		if j.parallel {
			s.spawn(j, false, nil)
		} else {
			j.Run(false, nil)
		}
	}
	s.sweepExpired()
}

// Rerun runs the given job immediately on its own goroutine without
// touching its regular next run time. Override args are merged over
// the registered args for this run only.
func (s *Scheduler) Rerun(jobID int, override Args) error {
	j, err := s.GetByID(jobID)
	if err != nil {
		return err
	}
	if j.IsRunning() {
		return &JobBusyError{ID: jobID}
	}
	s.spawn(j, true, override)
	return nil
}

// EnableAll enables every registered job.
func (s *Scheduler) EnableAll() {
	for _, j := range s.Jobs() {
		j.Enable()
	}
}

// DisableAll disables every registered job.
func (s *Scheduler) DisableAll() {
	for _, j := range s.Jobs() {
		j.Disable()
	}
}

// RestoreState loads persisted run records into the registered jobs.
func (s *Scheduler) RestoreState() error {
	if s.store == nil {
		return nil
	}
	return s.store.RestoreAllJobLogs(s.Jobs())
}

// Start restores persisted state, then runs the dispatch loop in the
// calling goroutine until Stop is called or the process receives
// SIGINT or SIGTERM. In-flight parallel jobs are joined before Start
// returns.
func (s *Scheduler) Start() {
	// Stale or unreadable state must never block startup.
	if err := s.RestoreState(); err != nil {
		s.logger.Printf("unable to restore states: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	s.logger.Printf("Scheduler started (check interval %s, timezone %s)", s.interval, s.tzname)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Check()
	for {
		select {
		case <-ticker.C:
			s.Check()
		case sig := <-sigCh:
			s.logger.Printf("Received %s, stopping scheduler", sig)
			s.Stop()
		case <-s.stopCh:
			s.Join()
			s.logger.Printf("Scheduler stopped")
			return
		}
	}
}

// Stop signals the dispatch loop to exit. Safe to call more than once
// and from any goroutine.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Join blocks until all parallel and rerun goroutines have finished.
func (s *Scheduler) Join() {
	s.wg.Wait()
}

func (s *Scheduler) spawn(j *Job, isRerun bool, override Args) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		j.Run(isRerun, override)
	}()
}

func (s *Scheduler) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !j.expired() {
			kept = append(kept, j)
		}
	}
	s.jobs = kept
}

func (s *Scheduler) nextJobID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.lastID
	s.lastID++
	return id
}

// register wires persistence listeners and adds the job to the
// registry. Job ids are never reused, so a one-shot dropping out of
// the registry cannot alias a later registration.
func (s *Scheduler) register(j *Job) {
	if s.store != nil {
		j.OnComplete(s.persist)
		j.OnEnable(s.persist)
		j.OnDisable(s.persist)
	}
	s.mu.Lock()
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()
	s.logger.Printf("Registered %s", j)
}

func (s *Scheduler) persist(j *Job) {
	if err := s.store.SaveJobLogs(j); err != nil {
		s.logger.Printf("unable to save state of job %d: %v", j.ID(), err)
	}
}
