// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Defaults for optional settings.
const (
	DefaultPoolSize     = 5
	DefaultHTTPPort     = "8080"
	DefaultWorkerCount  = 2
	DefaultPollInterval = 3 * time.Second
	DefaultPollJitter   = 500 * time.Millisecond
	DefaultTaskTimeout  = 30 * time.Minute
)

// Config holds everything the process reads from the environment. Tenant
// settings (default model, limits, concurrency) live in the database, not
// here.
type Config struct {
	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string
	// PoolSize bounds the pgx connection pool.
	PoolSize int
	// WorkdirRoot is where sandbox working directories are created.
	WorkdirRoot string
	// HTTPPort is the API listen port.
	HTTPPort string
	// UserAgent is sent on outgoing LLM requests.
	UserAgent string
	// WorkerCount is the number of queue workers claiming root tasks.
	WorkerCount int
	// PollInterval is how often an idle worker checks the queue; each poll
	// is jittered by up to PollJitter to spread workers out.
	PollInterval time.Duration
	PollJitter   time.Duration
	// TaskTimeout bounds one root task execution.
	TaskTimeout time.Duration
}

// Load reads configuration from the environment. Missing DATABASE_URL is a
// startup-fatal error.
func Load() (Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	poolSize := DefaultPoolSize
	if raw := os.Getenv("DATABASE_POOL_SIZE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid DATABASE_POOL_SIZE %q", raw)
		}
		poolSize = n
	}

	workdirRoot := os.Getenv("WORKDIR_ROOT")
	if workdirRoot == "" {
		workdirRoot = filepath.Join(os.TempDir(), "bridge")
	}

	workerCount := DefaultWorkerCount
	if raw := os.Getenv("WORKER_COUNT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid WORKER_COUNT %q", raw)
		}
		workerCount = n
	}

	pollInterval, err := getEnvDuration("QUEUE_POLL_INTERVAL", DefaultPollInterval)
	if err != nil {
		return Config{}, err
	}
	pollJitter, err := getEnvDuration("QUEUE_POLL_JITTER", DefaultPollJitter)
	if err != nil {
		return Config{}, err
	}
	taskTimeout, err := getEnvDuration("TASK_TIMEOUT", DefaultTaskTimeout)
	if err != nil {
		return Config{}, err
	}

	return Config{
		DatabaseURL:  databaseURL,
		PoolSize:     poolSize,
		WorkdirRoot:  workdirRoot,
		HTTPPort:     getEnvOrDefault("HTTP_PORT", DefaultHTTPPort),
		UserAgent:    getEnvOrDefault("BRIDGE_USER_AGENT", "bridge"),
		WorkerCount:  workerCount,
		PollInterval: pollInterval,
		PollJitter:   pollJitter,
		TaskTimeout:  taskTimeout,
	}, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}
