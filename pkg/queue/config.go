package queue

import "time"

// Config holds the worker tunables loaded from the environment.
type Config struct {
	Queues             []string      `env:"QUEUE_NAMES" envDefault:"default" envSeparator:","`
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout    time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"10"`
	MaxRetries         int8          `env:"QUEUE_MAX_RETRIES" envDefault:"3"`
	// RetryBackoff is the base delay between retries; the n-th retry waits n*RetryBackoff.
	RetryBackoff time.Duration `env:"QUEUE_RETRY_BACKOFF" envDefault:"30s"`
}
