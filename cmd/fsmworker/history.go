package main

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/statekit/pkg/broadcast"
	"github.com/dmitrymomot/statekit/pkg/logger"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

// recordHistory appends every document state change received from events
// to the history table until ctx is done.
func recordHistory(ctx context.Context, events broadcast.Broadcaster[statemachine.StateChanged], docs *pgDocuments, log *slog.Logger) error {
	sub := events.Subscribe(ctx)
	defer sub.Close()

	for msg := range sub.Receive(ctx) {
		evt := msg.Data
		if evt.EntityType != documentsTable || evt.Field != statusField {
			continue
		}
		if err := docs.appendHistory(context.WithoutCancel(ctx), evt); err != nil {
			log.ErrorContext(ctx, "failed to record document history",
				logger.EntityID(evt.EntityID),
				logger.State(evt.State),
				logger.Error(err))
		}
	}
	return nil
}
