package redis

import "time"

type Config struct {
	ConnectionURL  string        `env:"REDIS_URL,required" envDefault:"redis://localhost:6379/0"` // ConnectionURL has the form "redis://:password@localhost:6379/0".
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`                      // RetryAttempts is the number of connection attempts.
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`                     // RetryInterval is the pause between attempts.
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`                   // ConnectTimeout bounds all attempts together.
}

// LockConfig tunes the distributed entity lock.
type LockConfig struct {
	// Prefix namespaces lock keys.
	Prefix string `env:"REDIS_LOCK_PREFIX" envDefault:"statekit:lock:"`
	// TTL is the lock lease; it is renewed while the holder runs.
	TTL time.Duration `env:"REDIS_LOCK_TTL" envDefault:"30s"`
	// RetryInterval is the polling interval while the lock is taken.
	RetryInterval time.Duration `env:"REDIS_LOCK_RETRY_INTERVAL" envDefault:"50ms"`
	// WaitTimeout bounds the wait for the lock; zero waits until ctx is done.
	WaitTimeout time.Duration `env:"REDIS_LOCK_WAIT_TIMEOUT" envDefault:"30s"`
}
