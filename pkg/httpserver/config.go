package httpserver

import "time"

type Config struct {
	Addr            string        `env:"OPS_ADDR" envDefault:":9090"`           // Addr is the address the ops endpoint listens on.
	ReadTimeout     time.Duration `env:"OPS_READ_TIMEOUT" envDefault:"5s"`      // ReadTimeout bounds reading a request.
	WriteTimeout    time.Duration `env:"OPS_WRITE_TIMEOUT" envDefault:"10s"`    // WriteTimeout bounds writing a response, including readiness checks.
	ShutdownTimeout time.Duration `env:"OPS_SHUTDOWN_TIMEOUT" envDefault:"5s"`  // ShutdownTimeout is the time allowed for graceful shutdown.
	CheckTimeout    time.Duration `env:"OPS_READINESS_TIMEOUT" envDefault:"2s"` // CheckTimeout bounds each readiness check.
}

// NewFromConfig creates a Server from cfg. Zero values keep the defaults.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	configOpts := make([]Option, 0, 4+len(opts))

	if cfg.Addr != "" {
		configOpts = append(configOpts, WithAddr(cfg.Addr))
	}
	if cfg.ReadTimeout > 0 {
		configOpts = append(configOpts, WithReadTimeout(cfg.ReadTimeout))
	}
	if cfg.WriteTimeout > 0 {
		configOpts = append(configOpts, WithWriteTimeout(cfg.WriteTimeout))
	}
	if cfg.ShutdownTimeout > 0 {
		configOpts = append(configOpts, WithShutdownTimeout(cfg.ShutdownTimeout))
	}

	return New(append(configOpts, opts...)...)
}
