package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brightbook/eventcore/internal/eventstore/storage"
)

func TestSaveStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	processedAt := time.UnixMilli(1700000000000).UTC()
	if err := store.SaveState(ctx, "tenant-a", "order-totals", "evt-1", processedAt); err != nil {
		t.Fatalf("save state: %v", err)
	}

	eventID, err := store.GetLastProcessedEventID(ctx, "tenant-a", "order-totals")
	if err != nil {
		t.Fatalf("get event id: %v", err)
	}
	if eventID != "evt-1" {
		t.Fatalf("event id = %q, want evt-1", eventID)
	}

	at, err := store.GetLastProcessedAt(ctx, "tenant-a", "order-totals")
	if err != nil {
		t.Fatalf("get processed at: %v", err)
	}
	if !at.Equal(processedAt) {
		t.Fatalf("processed at = %v, want %v", at, processedAt)
	}
}

func TestSaveStateUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveState(ctx, "tenant-a", "order-totals", "evt-1", time.Now()); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.SaveState(ctx, "tenant-a", "order-totals", "evt-2", time.Now()); err != nil {
		t.Fatalf("second save: %v", err)
	}

	eventID, err := store.GetLastProcessedEventID(ctx, "tenant-a", "order-totals")
	if err != nil {
		t.Fatalf("get event id: %v", err)
	}
	if eventID != "evt-2" {
		t.Fatalf("event id = %q, want evt-2", eventID)
	}
}

func TestCheckpointsAreScopedByProjectorAndTenant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveState(ctx, "tenant-a", "order-totals", "evt-a", time.Now()); err != nil {
		t.Fatalf("save tenant-a: %v", err)
	}
	if err := store.SaveState(ctx, "tenant-b", "order-totals", "evt-b", time.Now()); err != nil {
		t.Fatalf("save tenant-b: %v", err)
	}
	if err := store.SaveState(ctx, "tenant-a", "customer-index", "evt-c", time.Now()); err != nil {
		t.Fatalf("save other projector: %v", err)
	}

	eventID, err := store.GetLastProcessedEventID(ctx, "tenant-a", "order-totals")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if eventID != "evt-a" {
		t.Fatalf("tenant-a cursor = %q, want evt-a", eventID)
	}
}

func TestResetState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveState(ctx, "tenant-a", "order-totals", "evt-1", time.Now()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.ResetState(ctx, "tenant-a", "order-totals"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	has, err := store.HasState(ctx, "tenant-a", "order-totals")
	if err != nil {
		t.Fatalf("has state: %v", err)
	}
	if has {
		t.Fatal("checkpoint survived reset")
	}
	if _, err := store.GetLastProcessedEventID(ctx, "tenant-a", "order-totals"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("after reset: got %v, want not found", err)
	}

	// Resetting a missing checkpoint is a no-op.
	if err := store.ResetState(ctx, "tenant-a", "order-totals"); err != nil {
		t.Fatalf("second reset: %v", err)
	}
}

func TestConcurrentSaveStateConverges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const writers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			eventID := fmt.Sprintf("evt-%d", i)
			if err := store.SaveState(ctx, "tenant-a", "order-totals", eventID, time.Now()); err != nil {
				t.Errorf("writer %d: %v", i, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	// Exactly one writer's value survives; the row is never a merge.
	eventID, err := store.GetLastProcessedEventID(ctx, "tenant-a", "order-totals")
	if err != nil {
		t.Fatalf("get event id: %v", err)
	}
	var matched bool
	for i := 0; i < writers; i++ {
		if eventID == fmt.Sprintf("evt-%d", i) {
			matched = true
		}
	}
	if !matched {
		t.Fatalf("cursor %q does not match any writer's event id", eventID)
	}
}
