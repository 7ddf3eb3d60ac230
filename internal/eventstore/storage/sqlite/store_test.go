package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brightbook/eventcore/internal/eventstore/domain/event"
)

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("blank path accepted")
	}
}

func TestOpenConfiguresConnection(t *testing.T) {
	store := newTestStore(t)

	var journalMode string
	if err := store.DB().QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		t.Fatalf("journal_mode = %q, want wal", journalMode)
	}

	var busyTimeout int
	if err := store.DB().QueryRow("PRAGMA busy_timeout;").Scan(&busyTimeout); err != nil {
		t.Fatalf("read busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Fatalf("busy_timeout = %d, want 5000", busyTimeout)
	}

	var foreignKeys int
	if err := store.DB().QueryRow("PRAGMA foreign_keys;").Scan(&foreignKeys); err != nil {
		t.Fatalf("read foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Fatalf("foreign_keys = %d, want 1", foreignKeys)
	}
}

func TestAppendEventWithoutBuffers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Events built by the envelope constructor carry nil payload buffers;
	// the journal must store them, not reject them.
	evt, err := event.New("order.placed", "order-9", 1, nil)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := store.Append(ctx, "tenant-a", "order-9", evt, event.NoStream()); err != nil {
		t.Fatalf("append without buffers: %v", err)
	}

	version, err := store.GetCurrentVersion(ctx, "tenant-a", "order-9")
	if err != nil {
		t.Fatalf("get current version: %v", err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1", version)
	}

	events, err := store.ReadStream(ctx, "tenant-a", "order-9")
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Payload == nil || events[0].Metadata == nil {
		t.Fatal("stored event read back with nil buffers")
	}
}

func TestCloseIsNilSafe(t *testing.T) {
	var store *Store
	if err := store.Close(); err != nil {
		t.Fatalf("nil store close: %v", err)
	}

	opened, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := opened.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
