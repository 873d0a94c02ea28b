package feed

import (
	"context"
	"log/slog"
)

// Worker drains the feed channel and hands events to the publisher. Delivery
// failures are logged and skipped; the feed never blocks ledger appends.
type Worker struct {
	publisher Publisher
	inbox     <-chan Event
	logger    *slog.Logger
}

func NewWorker(publisher Publisher, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{publisher: publisher, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.publisher.Publish(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "feed publish failed",
					"state", event.State,
					"block_index", event.BlockIndex,
					"error", err,
				)
			}
		}
	}
}
