package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brightbook/eventcore/internal/eventstore/domain/event"
	"github.com/brightbook/eventcore/internal/eventstore/storage"
	"github.com/brightbook/eventcore/internal/platform/requestctx"
)

const eventColumns = `
    event_id, tenant_id, aggregate_id, aggregate_type, version, event_type,
    payload, metadata, causation_id, correlation_id, user_id,
    occurred_at, recorded_at, prev_hash, chain_hash
`

// ReadStream returns the aggregate's full event stream ordered by version.
// An unknown aggregate yields an empty slice, not an error.
func (s *Store) ReadStream(ctx context.Context, tenantID, aggregateID string) ([]event.Event, error) {
	return s.ReadStreamFromVersion(ctx, tenantID, aggregateID, 1, 0)
}

// ReadStreamFromVersion returns the inclusive version range [fromVersion,
// toVersion]; toVersion 0 reads to the end of the stream.
func (s *Store) ReadStreamFromVersion(ctx context.Context, tenantID, aggregateID string, fromVersion, toVersion uint64) ([]event.Event, error) {
	if err := s.readerGuard(ctx, &tenantID); err != nil {
		return nil, err
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return nil, event.ErrAggregateRequired
	}

	query := `SELECT ` + eventColumns + `
FROM events
WHERE tenant_id = ? AND aggregate_id = ? AND version >= ?`
	args := []any{tenantID, aggregateID, int64(fromVersion)}
	if toVersion > 0 {
		query += ` AND version <= ?`
		args = append(args, int64(toVersion))
	}
	query += ` ORDER BY version ASC;`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ReadStreamUntil returns the aggregate's events with OccurredAt at or before
// until, ordered by version. This backs point-in-time reconstruction.
func (s *Store) ReadStreamUntil(ctx context.Context, tenantID, aggregateID string, until time.Time) ([]event.Event, error) {
	if err := s.readerGuard(ctx, &tenantID); err != nil {
		return nil, err
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return nil, event.ErrAggregateRequired
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+eventColumns+`
FROM events
WHERE tenant_id = ? AND aggregate_id = ? AND occurred_at <= ?
ORDER BY version ASC;`,
		tenantID, aggregateID, toMillis(until),
	)
	if err != nil {
		return nil, fmt.Errorf("read stream until: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ReadEventsByType reads events of one type across all aggregates of the
// tenant, ordered by occurred-at with insertion order as the tie-break.
// A limit <= 0 means no limit.
func (s *Store) ReadEventsByType(ctx context.Context, tenantID string, eventType event.Type, limit int) ([]event.Event, error) {
	if err := s.readerGuard(ctx, &tenantID); err != nil {
		return nil, err
	}
	if !eventType.IsValid() {
		return nil, event.ErrTypeRequired
	}

	query := `SELECT ` + eventColumns + `
FROM events
WHERE tenant_id = ? AND event_type = ?
ORDER BY occurred_at ASC, global_seq ASC`
	args := []any{tenantID, string(eventType)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, int64(limit))
	}
	query += `;`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read events by type: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ReadEventsByTypeAndDateRange bounds the type query by OccurredAt, both ends
// inclusive.
func (s *Store) ReadEventsByTypeAndDateRange(ctx context.Context, tenantID string, eventType event.Type, from, to time.Time) ([]event.Event, error) {
	if err := s.readerGuard(ctx, &tenantID); err != nil {
		return nil, err
	}
	if !eventType.IsValid() {
		return nil, event.ErrTypeRequired
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+eventColumns+`
FROM events
WHERE tenant_id = ? AND event_type = ? AND occurred_at >= ? AND occurred_at <= ?
ORDER BY occurred_at ASC, global_seq ASC;`,
		tenantID, string(eventType), toMillis(from), toMillis(to),
	)
	if err != nil {
		return nil, fmt.Errorf("read events by type and range: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ReadEventsAfter returns the tenant's events recorded after the event
// identified by afterEventID, in insertion order. An empty afterEventID reads
// from the beginning of the journal. Projectors use this as their resume
// cursor; an unknown cursor returns storage.ErrNotFound so the caller can
// reset rather than silently reprocess.
func (s *Store) ReadEventsAfter(ctx context.Context, tenantID, afterEventID string, limit int) ([]event.Event, error) {
	if err := s.readerGuard(ctx, &tenantID); err != nil {
		return nil, err
	}

	var afterSeq int64
	afterEventID = strings.TrimSpace(afterEventID)
	if afterEventID != "" {
		err := s.sqlDB.QueryRowContext(ctx,
			`SELECT global_seq FROM events WHERE tenant_id = ? AND event_id = ?;`,
			tenantID, afterEventID,
		).Scan(&afterSeq)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("resolve cursor event: %w", err)
		}
	}

	query := `SELECT ` + eventColumns + `
FROM events
WHERE tenant_id = ? AND global_seq > ?
ORDER BY global_seq ASC`
	args := []any{tenantID, afterSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, int64(limit))
	}
	query += `;`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read events after: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// readerGuard applies the shared receiver, context, and tenant checks for
// read queries, trimming the tenant id in place. An empty tenant id falls
// back to the request context before being rejected.
func (s *Store) readerGuard(ctx context.Context, tenantID *string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("sqlite store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	*tenantID = strings.TrimSpace(*tenantID)
	if *tenantID == "" {
		*tenantID = requestctx.TenantIDFromContext(ctx)
	}
	if *tenantID == "" {
		return event.ErrTenantRequired
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	var events []event.Event
	for rows.Next() {
		var (
			evt                    event.Event
			version                int64
			eventType              string
			occurredAt, recordedAt int64
		)
		if err := rows.Scan(
			&evt.EventID, &evt.TenantID, &evt.AggregateID, &evt.AggregateType,
			&version, &eventType, &evt.Payload, &evt.Metadata,
			&evt.CausationID, &evt.CorrelationID, &evt.UserID,
			&occurredAt, &recordedAt, &evt.PrevHash, &evt.ChainHash,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Version = uint64(version)
		evt.Type = event.Type(eventType)
		evt.OccurredAt = fromMillis(occurredAt)
		evt.RecordedAt = fromMillis(recordedAt)
		// The driver scans a zero-length BLOB as a nil slice; restore the
		// non-nil buffers ValidateForAppend guarantees on the write path.
		if evt.Payload == nil {
			evt.Payload = []byte{}
		}
		if evt.Metadata == nil {
			evt.Metadata = []byte{}
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
