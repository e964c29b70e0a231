package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/statekit/pkg/logger"
)

// Check is a named readiness check, e.g. pg.Healthcheck or redis.Healthcheck.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

// OpsHandler serves the operational endpoints of a worker process:
//
//   - /healthz answers 200 "ALIVE" while the process runs.
//   - /readyz runs every check and answers 200 "READY" or 503 "NOT_READY".
//   - /metrics exposes the Prometheus registry.
//
// Each check is bounded by timeout; zero means the request deadline only.
func OpsHandler(log *slog.Logger, gatherer prometheus.Gatherer, timeout time.Duration, checks ...Check) http.Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ALIVE")
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		for _, c := range checks {
			if err := runCheck(r.Context(), c, timeout); err != nil {
				log.ErrorContext(r.Context(), "readiness check failed",
					slog.String("check", c.Name),
					logger.Error(err))
				writeStatus(w, http.StatusServiceUnavailable, "NOT_READY")
				return
			}
		}
		writeStatus(w, http.StatusOK, "READY")
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}

func runCheck(ctx context.Context, c Check, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.Fn(ctx)
}

func writeStatus(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
