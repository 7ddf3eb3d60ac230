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
	"github.com/brightbook/eventcore/internal/eventstore/storage/integrity"
	"github.com/brightbook/eventcore/internal/platform/requestctx"
)

const appendEventQuery = `
INSERT INTO events (
    event_id, tenant_id, aggregate_id, aggregate_type, version, event_type,
    payload, metadata, causation_id, correlation_id, user_id,
    occurred_at, recorded_at, prev_hash, chain_hash
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`

// Append writes a single event. The optimistic concurrency check, chain hash
// computation, and insert all happen inside one transaction; a duplicate event
// id makes the whole call an idempotent no-op.
func (s *Store) Append(ctx context.Context, tenantID, aggregateID string, evt event.Event, expected event.ExpectedVersion) error {
	return s.AppendBatch(ctx, tenantID, aggregateID, []event.Event{evt}, expected)
}

// AppendBatch writes events all-or-nothing. The expected version is checked
// once against the stream state before the first event, and every event must
// land on the next free version slot so streams stay gap-free. Events whose
// ids already exist are skipped; any other off-slot version fails the entire
// batch with a concurrency conflict.
func (s *Store) AppendBatch(ctx context.Context, tenantID, aggregateID string, events []event.Event, expected event.ExpectedVersion) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("sqlite store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		tenantID = requestctx.TenantIDFromContext(ctx)
	}
	if tenantID == "" {
		return event.ErrTenantRequired
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return event.ErrAggregateRequired
	}
	if len(events) == 0 {
		return nil
	}

	validated := make([]event.Event, 0, len(events))
	for _, evt := range events {
		evt.TenantID = tenantID
		evt.AggregateID = aggregateID
		if evt.UserID == "" {
			evt.UserID = requestctx.UserIDFromContext(ctx)
		}
		v, err := event.ValidateForAppend(evt)
		if err != nil {
			return err
		}
		validated = append(validated, v)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Unavailable("begin append tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := currentVersionTx(ctx, tx, tenantID, aggregateID)
	if err != nil {
		return storage.Unavailable("read current version", err)
	}
	if !expected.IsAny() && expected.Value() != current {
		return storage.NewConcurrencyConflict(aggregateID, expected, current)
	}

	recordedAt := time.Now().UTC()
	next := current + 1
	for _, evt := range validated {
		if evt.Version != next {
			exists, lookupErr := eventIDExistsTx(ctx, tx, evt.EventID)
			if lookupErr != nil {
				return storage.Unavailable("check event id", lookupErr)
			}
			if exists {
				// Same event delivered twice: skip it, keep the batch going.
				continue
			}
			// Off-slot version would leave a gap in the stream.
			return storage.NewConcurrencyConflict(aggregateID, expected, next-1)
		}

		prevHash, err := chainHashAtVersionTx(ctx, tx, tenantID, aggregateID, evt.Version-1)
		if err != nil {
			return storage.Unavailable("read chain predecessor", err)
		}

		evt.RecordedAt = recordedAt
		evt.PrevHash = prevHash
		evt.ChainHash = integrity.ChainHash(evt, prevHash)

		if _, err := tx.ExecContext(ctx, appendEventQuery,
			evt.EventID, evt.TenantID, evt.AggregateID, evt.AggregateType,
			int64(evt.Version), string(evt.Type), evt.Payload, evt.Metadata,
			evt.CausationID, evt.CorrelationID, evt.UserID,
			toMillis(evt.OccurredAt), toMillis(evt.RecordedAt),
			evt.PrevHash, evt.ChainHash,
		); err != nil {
			if isConstraintError(err) {
				exists, lookupErr := eventIDExistsTx(ctx, tx, evt.EventID)
				if lookupErr == nil && exists {
					// Same event delivered twice: skip it, keep the batch going.
					continue
				}
				actual, _ := currentVersionTx(ctx, tx, tenantID, aggregateID)
				return storage.NewConcurrencyConflict(aggregateID, expected, actual)
			}
			return storage.Unavailable("append event", err)
		}
		next++
	}

	if err := tx.Commit(); err != nil {
		return storage.Unavailable("commit append tx", err)
	}
	return nil
}

// GetCurrentVersion returns the stream's highest event version, 0 when the
// stream has no events.
func (s *Store) GetCurrentVersion(ctx context.Context, tenantID, aggregateID string) (uint64, error) {
	if err := s.readerGuard(ctx, &tenantID); err != nil {
		return 0, err
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return 0, event.ErrAggregateRequired
	}

	var version int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE tenant_id = ? AND aggregate_id = ?;`,
		tenantID, aggregateID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return uint64(version), nil
}

// StreamExists reports whether the aggregate has at least one event.
func (s *Store) StreamExists(ctx context.Context, tenantID, aggregateID string) (bool, error) {
	if err := s.readerGuard(ctx, &tenantID); err != nil {
		return false, err
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return false, event.ErrAggregateRequired
	}

	var exists int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM events WHERE tenant_id = ? AND aggregate_id = ?);`,
		tenantID, aggregateID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check stream exists: %w", err)
	}
	return exists == 1, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func currentVersionTx(ctx context.Context, q queryRower, tenantID, aggregateID string) (uint64, error) {
	var version int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE tenant_id = ? AND aggregate_id = ?;`,
		tenantID, aggregateID,
	).Scan(&version)
	if err != nil {
		return 0, err
	}
	return uint64(version), nil
}

// chainHashAtVersionTx returns the chain hash of the given stream version,
// or the empty string when that version does not exist (stream start).
func chainHashAtVersionTx(ctx context.Context, q queryRower, tenantID, aggregateID string, version uint64) (string, error) {
	if version == 0 {
		return "", nil
	}
	var hash string
	err := q.QueryRowContext(ctx,
		`SELECT chain_hash FROM events WHERE tenant_id = ? AND aggregate_id = ? AND version = ?;`,
		tenantID, aggregateID, int64(version),
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

func eventIDExistsTx(ctx context.Context, q queryRower, eventID string) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM events WHERE event_id = ?);`,
		eventID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}
