package commands

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/taskmill/taskmill/internal/config"
	"github.com/taskmill/taskmill/internal/db"
	"github.com/taskmill/taskmill/internal/server"
	"github.com/taskmill/taskmill/pkg/calendars"
	"github.com/taskmill/taskmill/pkg/cronsched"
	"github.com/taskmill/taskmill/pkg/monitor"
	"github.com/taskmill/taskmill/pkg/sched"
	"github.com/taskmill/taskmill/pkg/state"
)

// newServeCmd creates the `taskmill serve` command that runs the
// scheduler and the monitor API.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler with sample jobs and the monitor API",
		Long: `Run a scheduler loaded with sample jobs and serve the task monitor
JSON API over HTTP.

Examples:
  taskmill serve
  taskmill serve --config ./taskmill.yaml`,
		RunE: runServe,
	}
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	// godotenv.Load does NOT overwrite existing env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if path, _ := cmd.Root().PersistentFlags().GetString("config"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return err
		}
	}

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}

	calendar := calendars.NewUSTrading(calendars.TradingOptions{GoodFriday: cfg.GoodFriday})

	s, err := sched.New(sched.Config{
		CheckInterval:    time.Duration(cfg.CheckIntervalSecs) * time.Second,
		Timezone:         cfg.Timezone,
		Calendar:         calendar,
		StartupGraceMins: cfg.StartupGraceMins,
		Store:            store,
		LogPath:          cfg.JobLogPath,
		LogMaxSizeMB:     cfg.JobLogMaxSizeMB,
		LogBackups:       cfg.JobLogBackups,
	})
	if err != nil {
		return err
	}
	s.RegisterExternalSchedule(cronsched.Matcher)

	if err := registerSampleJobs(s); err != nil {
		return err
	}

	mon := monitor.New(s, monitor.Options{
		Name:     cfg.MonitorName,
		Prefix:   cfg.MonitorPrefix,
		ReadOnly: cfg.MonitorReadOnly,
	})
	log.Printf("Monitor API token: %s", mon.Token())

	addr := cfg.Host + ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.NewHandler(mon),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.Start()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownCh
		s.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	log.Printf("taskmill listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	// Parallel jobs may still be running after the listener closes.
	s.Join()
	if closeStore != nil {
		if err := closeStore(); err != nil {
			log.Printf("close store error: %v", err)
		}
	}
	return nil
}

// buildStore constructs the configured persistence backend. The close
// function is nil for backends without one.
func buildStore(cfg config.Config) (sched.StateStore, func() error, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		log.Printf("Using state database: %s", cfg.SQLitePath)
		handle, err := db.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return state.NewSQLStore(handle, nil), handle.Close, nil
	case config.StoreBolt:
		log.Printf("Using state database: %s", cfg.BoltPath)
		bs, err := state.NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return bs, bs.Close, nil
	default:
		var (
			fs  *state.FilesystemStore
			err error
		)
		if cfg.DataDir != "" {
			fs, err = state.NewFilesystemStoreAt(cfg.DataDir)
		} else {
			fs, err = state.NewFilesystemStore()
		}
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Using state directory: %s", fs.Dir())
		return fs, nil, nil
	}
}

// registerSampleJobs declares a few jobs so the monitor has something
// to show out of the box.
func registerSampleJobs(s *sched.Scheduler) error {
	if _, err := s.Every(30 * time.Second).DoParallel(heartbeat, nil); err != nil {
		return err
	}
	if _, err := s.Every("businessday").At("17:30").Do(dailyDigest, sched.Args{"recipient": "ops"}); err != nil {
		return err
	}
	if _, err := s.Every("1st").StrictDate(false).At("08:00").Do(monthlyRollup, nil); err != nil {
		return err
	}
	if _, err := s.Every("*/15 * * * *").DoParallel(cacheSweep, nil); err != nil {
		return err
	}
	if _, err := s.Every("on-demand").Do(rebuildIndex, nil); err != nil {
		return err
	}
	return nil
}

func heartbeat(ctx context.Context, args sched.Args) error {
	sched.Println(ctx, "heartbeat ok")
	return nil
}

func dailyDigest(ctx context.Context, args sched.Args) error {
	sched.Printf(ctx, "sending daily digest to %v\n", args["recipient"])
	return nil
}

func monthlyRollup(ctx context.Context, args sched.Args) error {
	sched.Println(ctx, "rolling up last month")
	return nil
}

func cacheSweep(ctx context.Context, args sched.Args) error {
	sched.Println(ctx, "swept expired cache entries")
	return nil
}

func rebuildIndex(ctx context.Context, args sched.Args) error {
	sched.Println(ctx, "index rebuilt")
	return nil
}
