package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/statekit/pkg/logger"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

// sweeper picks up submitted documents and moves them into review. The
// transition itself schedules the rest of the workflow.
type sweeper struct {
	docs     *pgDocuments
	machine  *reviewMachine
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// Run sweeps every interval until ctx is done.
func (s *sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := s.sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sweep failed", logger.Error(err))
			} else if n > 0 {
				s.logger.InfoContext(ctx, "documents moved to review", slog.Int("count", n))
			}
		}
	}
}

func (s *sweeper) sweep(ctx context.Context) (int, error) {
	ids, err := s.docs.pending(ctx, Submitted, s.batch)
	if err != nil {
		return 0, err
	}

	var moved int
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if err := s.advance(ctx, id); err != nil {
			level := slog.LevelWarn
			// another process got there first
			if statemachine.IsNoSuchTransitionError(err) {
				level = slog.LevelDebug
			}
			s.logger.Log(ctx, level, "document not moved to review",
				logger.EntityID(id.String()),
				logger.Error(err))
			continue
		}
		moved++
	}
	return moved, nil
}

func (s *sweeper) advance(ctx context.Context, id uuid.UUID) error {
	doc, err := s.docs.get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.machine.TransitionTo(ctx, doc, Checking, nil)
	return err
}
