// Package projector drives read-model builders over the event journal. A
// Runner reads events after the projector's checkpoint, hands each one to the
// handler, and advances the checkpoint only after the handler succeeds, so a
// crash between event and checkpoint re-delivers that event on the next run.
// Handlers are therefore expected to apply events idempotently.
package projector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/brightbook/eventcore/internal/eventstore/domain/event"
	"github.com/brightbook/eventcore/internal/eventstore/storage"
)

const defaultBatchSize = 100

// Handler applies events to a read model. Name scopes the checkpoint row, so
// two handlers with the same name share a cursor.
type Handler interface {
	Name() string
	Apply(ctx context.Context, evt event.Event) error
}

// EventSource is the journal read surface a runner needs.
type EventSource interface {
	ReadEventsAfter(ctx context.Context, tenantID, afterEventID string, limit int) ([]event.Event, error)
}

// Runner feeds one handler from one tenant's journal.
type Runner struct {
	Events      EventSource
	Checkpoints storage.CheckpointStore
	Handler     Handler
	// BatchSize caps how many events one read fetches; <= 0 uses the default.
	BatchSize int
	// PollInterval is the idle delay between drains in Run; <= 0 disables
	// polling so Run returns once caught up.
	PollInterval time.Duration
}

// RunOnce drains the journal from the handler's checkpoint to the current
// head and returns how many events were applied. An unknown checkpoint cursor
// resets the projector to replay from the start rather than silently skipping
// events.
func (r *Runner) RunOnce(ctx context.Context, tenantID string) (int, error) {
	if err := r.validate(); err != nil {
		return 0, err
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return 0, event.ErrTenantRequired
	}

	tracer := otel.Tracer("eventcore/projector")
	ctx, span := tracer.Start(ctx, "projector.drain", trace.WithAttributes(
		attribute.String("projector.name", r.Handler.Name()),
		attribute.String("tenant.id", tenantID),
	))
	defer span.End()

	batchSize := r.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	applied := 0
	for {
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		cursor, err := r.Checkpoints.GetLastProcessedEventID(ctx, tenantID, r.Handler.Name())
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return applied, fmt.Errorf("read checkpoint: %w", err)
		}

		events, err := r.Events.ReadEventsAfter(ctx, tenantID, cursor, batchSize)
		if errors.Is(err, storage.ErrNotFound) && cursor != "" {
			if resetErr := r.Checkpoints.ResetState(ctx, tenantID, r.Handler.Name()); resetErr != nil {
				return applied, fmt.Errorf("reset stale checkpoint: %w", resetErr)
			}
			continue
		}
		if err != nil {
			return applied, fmt.Errorf("read events: %w", err)
		}
		if len(events) == 0 {
			span.SetAttributes(attribute.Int("projector.applied", applied))
			return applied, nil
		}

		for _, evt := range events {
			if err := ctx.Err(); err != nil {
				return applied, err
			}
			if err := r.Handler.Apply(ctx, evt); err != nil {
				return applied, fmt.Errorf("apply %s %s: %w", evt.Type, evt.EventID, err)
			}
			if err := r.Checkpoints.SaveState(ctx, tenantID, r.Handler.Name(), evt.EventID, time.Now()); err != nil {
				return applied, fmt.Errorf("save checkpoint: %w", err)
			}
			applied++
		}
	}
}

// Run drains the journal, then keeps polling at PollInterval until the
// context is cancelled. With no poll interval it returns after the first
// drain. Cancellation is a clean stop, not an error.
func (r *Runner) Run(ctx context.Context, tenantID string) error {
	if err := r.validate(); err != nil {
		return err
	}

	for {
		if _, err := r.RunOnce(ctx, tenantID); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if r.PollInterval <= 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.PollInterval):
		}
	}
}

func (r *Runner) validate() error {
	if r == nil || r.Events == nil || r.Checkpoints == nil || r.Handler == nil {
		return fmt.Errorf("projector runner requires events, checkpoints, and a handler")
	}
	if strings.TrimSpace(r.Handler.Name()) == "" {
		return fmt.Errorf("projector handler name is required")
	}
	return nil
}
