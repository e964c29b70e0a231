package main

import (
	"time"

	"github.com/dmitrymomot/statekit/pkg/httpserver"
	"github.com/dmitrymomot/statekit/pkg/logger"
	"github.com/dmitrymomot/statekit/pkg/pg"
	"github.com/dmitrymomot/statekit/pkg/queue"
	"github.com/dmitrymomot/statekit/pkg/redis"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

// Lock backends selectable with LOCK_BACKEND.
const (
	lockBackendPostgres = "postgres"
	lockBackendRedis    = "redis"
)

type appConfig struct {
	Logger  logger.Config
	PG      pg.Config
	Queue   queue.Config
	Machine statemachine.Config
	Ops     httpserver.Config
	Review  reviewPolicy
	Worker  workerConfig
}

type workerConfig struct {
	LockBackend   string        `env:"LOCK_BACKEND" envDefault:"postgres"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`
	SweepBatch    int           `env:"SWEEP_BATCH" envDefault:"50"`
	EventBuffer   int           `env:"EVENT_BUFFER" envDefault:"256"`
}

// redisConfig is loaded only for the redis lock backend.
type redisConfig struct {
	Conn redis.Config
	Lock redis.LockConfig
}
