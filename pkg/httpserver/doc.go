// Package httpserver runs the operational HTTP endpoint of a worker process.
//
// Server serves a handler until its context is cancelled and then shuts down
// gracefully, which makes Run a natural errgroup member. OpsHandler mounts
// liveness, readiness and Prometheus metrics:
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	h := httpserver.OpsHandler(log, nil, cfg.CheckTimeout,
//		httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
//	)
//	g.Go(func() error { return srv.Run(ctx, h) })
//
// Listen errors are wrapped with ErrStart and shutdown errors with
// ErrShutdown.
package httpserver
