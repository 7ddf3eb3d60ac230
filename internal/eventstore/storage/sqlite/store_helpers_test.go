package sqlite

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/brightbook/eventcore/internal/eventstore/domain/event"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// testEvent builds a valid event for the given stream slot. The event id is
// derived from the aggregate and version so tests can reference it later.
func testEvent(aggregateID string, version uint64, eventType event.Type) event.Event {
	return event.Event{
		EventID:    fmt.Sprintf("%s-v%d", aggregateID, version),
		Version:    version,
		Type:       eventType,
		Payload:    []byte(fmt.Sprintf(`{"version":%d}`, version)),
		OccurredAt: time.UnixMilli(1700000000000 + int64(version)*1000).UTC(),
	}
}

// dropImmutabilityTriggers removes the guard triggers so corruption tests can
// tamper with stored rows directly.
func dropImmutabilityTriggers(t *testing.T, store *Store) {
	t.Helper()

	for _, name := range []string{"events_immutable_update", "events_immutable_delete"} {
		if _, err := store.DB().Exec("DROP TRIGGER " + name + ";"); err != nil {
			t.Fatalf("drop trigger %s: %v", name, err)
		}
	}
}
