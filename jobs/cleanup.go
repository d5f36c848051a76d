package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// IdempotencyCleaner prunes processed idempotency keys past their retention.
type IdempotencyCleaner struct {
	store     *shared.IdempotencyStore
	retention time.Duration
	logger    *slog.Logger
}

// NewIdempotencyCleaner constructs an IdempotencyCleaner.
func NewIdempotencyCleaner(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) *IdempotencyCleaner {
	return &IdempotencyCleaner{store: store, retention: retention, logger: logger}
}

// HandleTask processes TaskIdempotencyCleanup tasks.
func (c *IdempotencyCleaner) HandleTask(ctx context.Context, _ *asynq.Task) error {
	if err := c.store.Cleanup(ctx, c.retention); err != nil {
		return err
	}
	c.logger.Info("idempotency keys pruned", slog.Duration("retention", c.retention))
	return nil
}
