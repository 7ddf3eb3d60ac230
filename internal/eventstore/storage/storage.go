// Package storage defines persistence contracts for the tenant event journal:
// the append-only event log, its read-side queries, snapshots, and projection
// checkpoints. Implementations must keep identical semantics so collaborators
// can swap backends without behavioral drift.
package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/brightbook/eventcore/internal/eventstore/domain/event"
	apperrors "github.com/brightbook/eventcore/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such record"
// states and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrConcurrencyConflict indicates an append lost the optimistic concurrency
// race: the stream's actual version no longer matches the writer's
// expectation. This is the expected, retryable failure of the journal; the
// caller re-reads current state and resubmits with a corrected version.
var ErrConcurrencyConflict = apperrors.New(apperrors.CodeConcurrencyConflict, "stream version conflict")

// ErrStoreUnavailable indicates a transient infrastructure failure
// (connectivity, serialization). It is never treated as an idempotent no-op;
// the caller decides whether to retry.
var ErrStoreUnavailable = apperrors.New(apperrors.CodeStoreUnavailable, "event store unavailable")

// ErrSnapshotCorrupt indicates a stored snapshot failed its checksum check.
var ErrSnapshotCorrupt = apperrors.New(apperrors.CodeSnapshotCorrupt, "snapshot checksum mismatch")

// NewConcurrencyConflict builds a conflict error carrying the aggregate id
// and both version values so callers can log and retry with fresh data.
func NewConcurrencyConflict(aggregateID string, expected event.ExpectedVersion, actual uint64) error {
	return apperrors.WithMetadata(apperrors.CodeConcurrencyConflict, "stream version conflict", map[string]string{
		"aggregate_id":     aggregateID,
		"expected_version": expected.String(),
		"actual_version":   strconv.FormatUint(actual, 10),
	})
}

// Unavailable wraps a transient infrastructure failure so callers can match
// it with errors.Is(err, ErrStoreUnavailable) while keeping the cause chain.
func Unavailable(op string, cause error) error {
	return apperrors.Wrap(apperrors.CodeStoreUnavailable, op, cause)
}

// Snapshot captures an aggregate's folded state as of a given event version.
// Snapshots are never mutated; multiple snapshots per aggregate coexist.
type Snapshot struct {
	TenantID      string
	AggregateID   string
	AggregateType string
	// Version is the last event version folded into State.
	Version uint64
	// State is the opaque serialized aggregate state.
	State []byte
	// Checksum is the content hash of State, verified before any reuse.
	Checksum  string
	CreatedAt time.Time
}

// Checkpoint is the single mutable row per (projector, tenant): the last
// event a projector has durably processed.
type Checkpoint struct {
	ProjectorName        string
	TenantID             string
	LastProcessedEventID string
	LastProcessedAt      time.Time
	UpdatedAt            time.Time
}

// EventStore owns the append path of the journal.
type EventStore interface {
	// Append writes one event inside a single transaction. The optimistic
	// concurrency check against expected happens in that same transaction.
	// A duplicate EventID succeeds as a no-op; a lost version race returns
	// ErrConcurrencyConflict.
	Append(ctx context.Context, tenantID, aggregateID string, evt event.Event, expected event.ExpectedVersion) error
	// AppendBatch writes events all-or-nothing in one transaction, checking
	// expected once against the version before the first event. Every event
	// must take the next free version slot; an off-slot version that is not
	// a redelivery fails the batch with ErrConcurrencyConflict.
	AppendBatch(ctx context.Context, tenantID, aggregateID string, events []event.Event, expected event.ExpectedVersion) error
	// GetCurrentVersion returns the stream's max version, 0 for an empty stream.
	GetCurrentVersion(ctx context.Context, tenantID, aggregateID string) (uint64, error)
	// StreamExists reports whether the stream has at least one event.
	StreamExists(ctx context.Context, tenantID, aggregateID string) (bool, error)
}

// StreamReader is the read-only, tenant-scoped query surface over the journal.
// Stream queries return events ordered by version ascending; type queries
// order by occurred-at ascending with insertion order as the tie-break.
type StreamReader interface {
	// ReadStream returns the full stream for an aggregate.
	ReadStream(ctx context.Context, tenantID, aggregateID string) ([]event.Event, error)
	// ReadStreamFromVersion returns the inclusive version range; toVersion 0
	// means "to the end".
	ReadStreamFromVersion(ctx context.Context, tenantID, aggregateID string, fromVersion, toVersion uint64) ([]event.Event, error)
	// ReadStreamUntil returns all events with OccurredAt <= until.
	ReadStreamUntil(ctx context.Context, tenantID, aggregateID string, until time.Time) ([]event.Event, error)
	// ReadEventsByType reads across aggregates; limit <= 0 means no limit.
	ReadEventsByType(ctx context.Context, tenantID string, eventType event.Type, limit int) ([]event.Event, error)
	// ReadEventsByTypeAndDateRange bounds the type query by OccurredAt (inclusive).
	ReadEventsByTypeAndDateRange(ctx context.Context, tenantID string, eventType event.Type, from, to time.Time) ([]event.Event, error)
	// ReadEventsAfter returns events recorded after the one identified by
	// afterEventID, in insertion order; empty afterEventID reads from the
	// beginning. This is the projector resume cursor.
	ReadEventsAfter(ctx context.Context, tenantID, afterEventID string, limit int) ([]event.Event, error)
}

// SnapshotStore persists periodic compactions of aggregate state.
type SnapshotStore interface {
	// SaveSnapshot computes the checksum and inserts a new snapshot row.
	// Re-saving an existing (aggregate, version) is a no-op; rows are never
	// overwritten.
	SaveSnapshot(ctx context.Context, tenantID, aggregateID string, version uint64, state []byte) error
	// GetLatestSnapshot returns the highest-version snapshot, or ErrNotFound.
	GetLatestSnapshot(ctx context.Context, tenantID, aggregateID string) (Snapshot, error)
	// GetSnapshotAtVersion returns the highest snapshot with version <=
	// the given version, or ErrNotFound.
	GetSnapshotAtVersion(ctx context.Context, tenantID, aggregateID string, version uint64) (Snapshot, error)
	// DeleteSnapshotsOlderThan prunes by creation time, tenant-scoped, and
	// returns the number of rows removed.
	DeleteSnapshotsOlderThan(ctx context.Context, tenantID string, cutoff time.Time) (int, error)
	// SnapshotExists reports whether any snapshot exists for the aggregate.
	SnapshotExists(ctx context.Context, tenantID, aggregateID string) (bool, error)
}

// CheckpointStore tracks each projector's resume position. SaveState must be
// a single atomic upsert keyed (projector, tenant): two racing projector
// instances may interleave, but the row always reflects exactly one of their
// writes, never a merge.
type CheckpointStore interface {
	// GetLastProcessedEventID returns the resume cursor, or ErrNotFound.
	GetLastProcessedEventID(ctx context.Context, tenantID, projectorName string) (string, error)
	// GetLastProcessedAt returns when the cursor was last advanced, or ErrNotFound.
	GetLastProcessedAt(ctx context.Context, tenantID, projectorName string) (time.Time, error)
	// SaveState atomically upserts the checkpoint row.
	SaveState(ctx context.Context, tenantID, projectorName, eventID string, processedAt time.Time) error
	// ResetState deletes the checkpoint row, signalling replay from the start.
	ResetState(ctx context.Context, tenantID, projectorName string) error
	// HasState reports whether the projector has a recorded position.
	HasState(ctx context.Context, tenantID, projectorName string) (bool, error)
}
