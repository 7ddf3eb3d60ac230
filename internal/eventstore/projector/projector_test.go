package projector

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/brightbook/eventcore/internal/eventstore/domain/checkpoint"
	"github.com/brightbook/eventcore/internal/eventstore/domain/event"
	"github.com/brightbook/eventcore/internal/eventstore/storage"
)

// sliceSource serves a fixed journal from memory, mirroring the cursor
// semantics of the SQLite reader.
type sliceSource struct {
	events []event.Event
}

func (s *sliceSource) ReadEventsAfter(_ context.Context, tenantID, afterEventID string, limit int) ([]event.Event, error) {
	start := 0
	if afterEventID != "" {
		start = -1
		for i, evt := range s.events {
			if evt.TenantID == tenantID && evt.EventID == afterEventID {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, storage.ErrNotFound
		}
	}

	var out []event.Event
	for _, evt := range s.events[start:] {
		if evt.TenantID != tenantID {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type recordingHandler struct {
	name    string
	applied []string
	failOn  string
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) Apply(_ context.Context, evt event.Event) error {
	if evt.EventID == h.failOn {
		return fmt.Errorf("transient failure on %s", evt.EventID)
	}
	h.applied = append(h.applied, evt.EventID)
	return nil
}

func journalOf(tenantID string, n int) []event.Event {
	events := make([]event.Event, 0, n)
	for i := 1; i <= n; i++ {
		events = append(events, event.Event{
			EventID:     fmt.Sprintf("%s-evt-%d", tenantID, i),
			TenantID:    tenantID,
			AggregateID: "order-1",
			Version:     uint64(i),
			Type:        "order.updated",
			OccurredAt:  time.UnixMilli(1700000000000 + int64(i)*1000).UTC(),
		})
	}
	return events
}

func newRunner(events []event.Event, handler Handler) *Runner {
	return &Runner{
		Events:      &sliceSource{events: events},
		Checkpoints: checkpoint.NewMemory(),
		Handler:     handler,
		BatchSize:   2,
	}
}

func TestRunOnceDrainsJournal(t *testing.T) {
	handler := &recordingHandler{name: "order-totals"}
	runner := newRunner(journalOf("tenant-a", 5), handler)

	applied, err := runner.RunOnce(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if applied != 5 || len(handler.applied) != 5 {
		t.Fatalf("applied %d events, handler saw %d, want 5", applied, len(handler.applied))
	}

	cursor, err := runner.Checkpoints.GetLastProcessedEventID(context.Background(), "tenant-a", "order-totals")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if cursor != "tenant-a-evt-5" {
		t.Fatalf("cursor = %q, want tenant-a-evt-5", cursor)
	}
}

func TestRunOnceResumesAfterFailure(t *testing.T) {
	handler := &recordingHandler{name: "order-totals", failOn: "tenant-a-evt-3"}
	runner := newRunner(journalOf("tenant-a", 5), handler)

	applied, err := runner.RunOnce(context.Background(), "tenant-a")
	if err == nil {
		t.Fatal("expected failure on third event")
	}
	if applied != 2 {
		t.Fatalf("applied %d events before failure, want 2", applied)
	}

	// The failure clears; the next run picks up exactly where the
	// checkpoint left off, without redelivering the first two events.
	handler.failOn = ""
	applied, err = runner.RunOnce(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if applied != 3 {
		t.Fatalf("applied %d events on resume, want 3", applied)
	}
	want := []string{"tenant-a-evt-1", "tenant-a-evt-2", "tenant-a-evt-3", "tenant-a-evt-4", "tenant-a-evt-5"}
	if strings.Join(handler.applied, ",") != strings.Join(want, ",") {
		t.Fatalf("handler saw %v, want %v", handler.applied, want)
	}
}

func TestRunOnceIsTenantScoped(t *testing.T) {
	journal := append(journalOf("tenant-a", 2), journalOf("tenant-b", 3)...)
	handler := &recordingHandler{name: "order-totals"}
	runner := newRunner(journal, handler)

	applied, err := runner.RunOnce(context.Background(), "tenant-b")
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if applied != 3 {
		t.Fatalf("applied %d events, want 3", applied)
	}
	for _, eventID := range handler.applied {
		if !strings.HasPrefix(eventID, "tenant-b-") {
			t.Fatalf("handler saw foreign tenant event %s", eventID)
		}
	}
}

func TestRunOnceResetsUnknownCursor(t *testing.T) {
	handler := &recordingHandler{name: "order-totals"}
	runner := newRunner(journalOf("tenant-a", 3), handler)

	// A cursor pointing at an event the journal no longer knows forces a
	// reset and a replay from the start.
	if err := runner.Checkpoints.SaveState(context.Background(), "tenant-a", "order-totals", "vanished-event", time.Now()); err != nil {
		t.Fatalf("seed stale checkpoint: %v", err)
	}

	applied, err := runner.RunOnce(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if applied != 3 {
		t.Fatalf("applied %d events after reset, want 3", applied)
	}
}

func TestRunOnceNoNewEvents(t *testing.T) {
	handler := &recordingHandler{name: "order-totals"}
	runner := newRunner(journalOf("tenant-a", 2), handler)

	if _, err := runner.RunOnce(context.Background(), "tenant-a"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	applied, err := runner.RunOnce(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if applied != 0 {
		t.Fatalf("applied %d events with nothing new, want 0", applied)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	handler := &recordingHandler{name: "order-totals"}
	runner := newRunner(journalOf("tenant-a", 2), handler)
	runner.PollInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx, "tenant-a") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v on cancel, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancel")
	}
	if len(handler.applied) != 2 {
		t.Fatalf("handler saw %d events, want 2", len(handler.applied))
	}
}

func TestRunnerValidation(t *testing.T) {
	runner := &Runner{}
	if _, err := runner.RunOnce(context.Background(), "tenant-a"); err == nil {
		t.Fatal("unwired runner ran")
	}

	handler := &recordingHandler{name: " "}
	runner = newRunner(nil, handler)
	if _, err := runner.RunOnce(context.Background(), "tenant-a"); err == nil {
		t.Fatal("blank handler name accepted")
	}
}
