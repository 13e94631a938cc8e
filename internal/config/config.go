package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	ServerPort   int
	DatabasePath string
	LogLevel     string
	LogPretty    bool

	SSHPrivateKeyPath    string
	SSHKnownHostsPath    string
	SSHConnectTimeout    time.Duration
	RemoteCommandTimeout time.Duration

	// SSHLane is the execution lane for every job that talks to a server.
	SSHLane                string
	SSHLaneConcurrency     int
	SSHLanePerServer       int
	DefaultLaneConcurrency int

	JobMaxAttempts    int
	JobBackoffBase    time.Duration
	JobBackoffMax     time.Duration
	QueuePollInterval time.Duration
	JobLease          time.Duration

	SweepInterval     time.Duration
	SchedulerInterval time.Duration

	LocalStoragePath string
	RemoteBackupDir  string

	AllowedOrigins []string
}

// DefaultLane carries work that does not open SSH sessions.
const DefaultLane = "default"

// Load loads configuration from environment variables or sets defaults.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath:      getEnv("DATABASE_PATH", "./vito.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		SSHPrivateKeyPath: getEnv("SSH_PRIVATE_KEY_PATH", "./storage/ssh/id_ed25519"),
		SSHKnownHostsPath: getEnv("SSH_KNOWN_HOSTS_PATH", ""),
		SSHLane:           getEnv("SSH_LANE_NAME", "ssh"),
		LocalStoragePath:  getEnv("LOCAL_STORAGE_PATH", "./storage/backups"),
		RemoteBackupDir:   getEnv("REMOTE_BACKUP_DIR", "/tmp/vito-backups"),
	}

	var err error
	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"PORT", 8080, &cfg.ServerPort},
		{"SSH_LANE_CONCURRENCY", 5, &cfg.SSHLaneConcurrency},
		{"SSH_LANE_PER_SERVER", 2, &cfg.SSHLanePerServer},
		{"DEFAULT_LANE_CONCURRENCY", 2, &cfg.DefaultLaneConcurrency},
		{"JOB_MAX_ATTEMPTS", 3, &cfg.JobMaxAttempts},
	}
	for _, i := range ints {
		if *i.dst, err = getEnvInt(i.key, i.fallback); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"SSH_CONNECT_TIMEOUT", 10 * time.Second, &cfg.SSHConnectTimeout},
		{"REMOTE_COMMAND_TIMEOUT", 10 * time.Minute, &cfg.RemoteCommandTimeout},
		{"JOB_BACKOFF_BASE", 10 * time.Second, &cfg.JobBackoffBase},
		{"JOB_BACKOFF_MAX", 10 * time.Minute, &cfg.JobBackoffMax},
		{"QUEUE_POLL_INTERVAL", 5 * time.Second, &cfg.QueuePollInterval},
		{"JOB_LEASE", 30 * time.Minute, &cfg.JobLease},
		{"SWEEP_INTERVAL", time.Minute, &cfg.SweepInterval},
		{"SCHEDULER_INTERVAL", time.Minute, &cfg.SchedulerInterval},
	}
	for _, d := range durations {
		if *d.dst, err = getEnvDuration(d.key, d.fallback); err != nil {
			return nil, err
		}
	}

	cfg.AllowedOrigins = strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ",")

	if cfg.LogPretty, err = strconv.ParseBool(getEnv("LOG_PRETTY", "true")); err != nil {
		return nil, fmt.Errorf("invalid LOG_PRETTY: %w", err)
	}

	if cfg.JobMaxAttempts < 1 {
		return nil, fmt.Errorf("JOB_MAX_ATTEMPTS must be at least 1, got %d", cfg.JobMaxAttempts)
	}
	if cfg.SSHLaneConcurrency < 1 || cfg.DefaultLaneConcurrency < 1 {
		return nil, fmt.Errorf("lane concurrency must be at least 1")
	}
	if cfg.JobLease <= cfg.RemoteCommandTimeout {
		return nil, fmt.Errorf("JOB_LEASE (%s) must exceed REMOTE_COMMAND_TIMEOUT (%s)", cfg.JobLease, cfg.RemoteCommandTimeout)
	}

	return cfg, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
