package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/bakeops/bakeops/api/pkg/types"
)

const (
	mirrorTimeout    = 10 * time.Second
	mirrorRetryDelay = 250 * time.Millisecond
)

// Batch mutations made during a simulation are copied to the stored
// schedule so a reload shows the day as it actually ran. The copy is best
// effort: it happens off the lock in the background, and a write that
// still fails after retrying becomes an event plus a counter bump, never
// an error to the operator.

func (e *Engine) mirrorBatchUpsert(batch types.Batch, errEvent types.EventType) {
	e.mirrorWrite(batch.ID, errEvent, func(ctx context.Context) error {
		return e.store.UpsertScheduleBatch(ctx, e.scheduleID, &batch)
	})
}

func (e *Engine) mirrorBatchDelete(batchID string) {
	e.mirrorWrite(batchID, types.EventBatchDeleteError, func(ctx context.Context) error {
		return e.store.DeleteScheduleBatch(ctx, e.scheduleID, batchID)
	})
}

func (e *Engine) mirrorWrite(batchID string, errEvent types.EventType, write func(ctx context.Context) error) {
	if e.store == nil || e.scheduleID == "" {
		return
	}
	attempts := e.cfg.Simulation.MirrorAttempts
	if attempts < 1 {
		attempts = 1
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		err := retry.Do(
			func() error { return write(ctx) },
			retry.Attempts(uint(attempts)),
			retry.Delay(mirrorRetryDelay),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
		)
		if err == nil {
			return
		}
		log.Warn().
			Err(err).
			Str("batch_id", batchID).
			Str("schedule_id", e.scheduleID).
			Msg("failed to mirror batch to schedule")
		e.mu.Lock()
		e.state.Stats.StoreErrors++
		e.recordEventLocked(&types.Event{
			Type:      errEvent,
			Timestamp: e.state.CurrentTime,
			BatchID:   batchID,
			Message:   fmt.Sprintf("failed to mirror batch to the schedule: %v", err),
		})
		e.mu.Unlock()
	}()
}
