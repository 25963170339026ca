package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// State store kinds accepted by the demo server.
const (
	StoreFS     = "fs"
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
)

// Config holds the demo server configuration.
type Config struct {
	Host string
	Port string

	// Scheduler knobs.
	CheckIntervalSecs int
	Timezone          string
	StartupGraceMins  int

	// State persistence: which store to build and where it lives.
	Store      string
	DataDir    string
	SQLitePath string
	BoltPath   string

	// Rotating file log for captured job output. Empty path disables it.
	JobLogPath      string
	JobLogMaxSizeMB int
	JobLogBackups   int

	// Monitor surface.
	MonitorName     string
	MonitorPrefix   string
	MonitorReadOnly bool

	// GoodFriday adds Good Friday to the trading calendar.
	GoodFriday bool
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	cfg := Config{
		Host:              envString("HOST", "0.0.0.0"),
		Port:              envString("PORT", "9000"),
		CheckIntervalSecs: envInt("CHECK_INTERVAL_SECONDS", 5),
		Timezone:          envString("TIMEZONE", ""),
		StartupGraceMins:  envInt("STARTUP_GRACE_MINS", 0),
		Store:             envString("STATE_STORE", StoreFS),
		DataDir:           envString("DATA_DIR", ""),
		SQLitePath:        envString("SQLITE_DB_PATH", "./data/taskmill.db"),
		BoltPath:          envString("BOLT_DB_PATH", "./data/taskmill.bolt.db"),
		JobLogPath:        envString("JOB_LOG_PATH", ""),
		JobLogMaxSizeMB:   envInt("JOB_LOG_MAX_SIZE_MB", 5),
		JobLogBackups:     envInt("JOB_LOG_BACKUPS", 1),
		MonitorName:       envString("MONITOR_NAME", ""),
		MonitorPrefix:     envString("MONITOR_PREFIX", "@taskmonitor"),
		MonitorReadOnly:   envBool("MONITOR_READ_ONLY", false),
		GoodFriday:        envBool("GOOD_FRIDAY_HOLIDAY", true),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig mirrors Config with optional fields; only keys present in
// the YAML file override the loaded values.
type fileConfig struct {
	Host *string `yaml:"host"`
	Port *string `yaml:"port"`

	CheckIntervalSecs *int    `yaml:"check_interval_seconds"`
	Timezone          *string `yaml:"timezone"`
	StartupGraceMins  *int    `yaml:"startup_grace_mins"`

	Store      *string `yaml:"state_store"`
	DataDir    *string `yaml:"data_dir"`
	SQLitePath *string `yaml:"sqlite_db_path"`
	BoltPath   *string `yaml:"bolt_db_path"`

	JobLogPath      *string `yaml:"job_log_path"`
	JobLogMaxSizeMB *int    `yaml:"job_log_max_size_mb"`
	JobLogBackups   *int    `yaml:"job_log_backups"`

	MonitorName     *string `yaml:"monitor_name"`
	MonitorPrefix   *string `yaml:"monitor_prefix"`
	MonitorReadOnly *bool   `yaml:"monitor_read_only"`

	GoodFriday *bool `yaml:"good_friday_holiday"`
}

// ApplyFile overlays YAML values from path onto c. Keys absent from
// the file keep their current values.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	setString(&c.Host, f.Host)
	setString(&c.Port, f.Port)
	setInt(&c.CheckIntervalSecs, f.CheckIntervalSecs)
	setString(&c.Timezone, f.Timezone)
	setInt(&c.StartupGraceMins, f.StartupGraceMins)
	setString(&c.Store, f.Store)
	setString(&c.DataDir, f.DataDir)
	setString(&c.SQLitePath, f.SQLitePath)
	setString(&c.BoltPath, f.BoltPath)
	setString(&c.JobLogPath, f.JobLogPath)
	setInt(&c.JobLogMaxSizeMB, f.JobLogMaxSizeMB)
	setInt(&c.JobLogBackups, f.JobLogBackups)
	setString(&c.MonitorName, f.MonitorName)
	setString(&c.MonitorPrefix, f.MonitorPrefix)
	setBool(&c.MonitorReadOnly, f.MonitorReadOnly)
	setBool(&c.GoodFriday, f.GoodFriday)

	return c.validate()
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreFS, StoreSQLite, StoreBolt:
	default:
		return fmt.Errorf("STATE_STORE must be one of %q, %q, %q; got %q", StoreFS, StoreSQLite, StoreBolt, c.Store)
	}
	if c.CheckIntervalSecs <= 0 {
		return fmt.Errorf("CHECK_INTERVAL_SECONDS must be positive, got %d", c.CheckIntervalSecs)
	}
	if c.StartupGraceMins < 0 {
		return fmt.Errorf("STARTUP_GRACE_MINS must not be negative, got %d", c.StartupGraceMins)
	}
	return nil
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
