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
	apperrors "github.com/brightbook/eventcore/internal/platform/errors"
)

// SaveState records the last event a projector has durably processed. The
// write is a single atomic upsert keyed (projector, tenant): concurrent
// writers interleave but the row always holds exactly one writer's values.
func (s *Store) SaveState(ctx context.Context, tenantID, projectorName, eventID string, processedAt time.Time) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("sqlite store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return event.ErrTenantRequired
	}
	projectorName = strings.TrimSpace(projectorName)
	if projectorName == "" {
		return apperrors.New(apperrors.CodeProjectorNameMissing, "projector name is required")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return event.ErrEventIDRequired
	}
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO projection_checkpoints (projector_name, tenant_id, last_processed_event_id, last_processed_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(projector_name, tenant_id) DO UPDATE SET
    last_processed_event_id = excluded.last_processed_event_id,
    last_processed_at = excluded.last_processed_at,
    updated_at = excluded.updated_at;`,
		projectorName, tenantID, eventID, toMillis(processedAt), toMillis(time.Now()),
	)
	if err != nil {
		return storage.Unavailable("save checkpoint", err)
	}
	return nil
}

// GetLastProcessedEventID returns the projector's resume cursor, or
// storage.ErrNotFound when the projector has never checkpointed.
func (s *Store) GetLastProcessedEventID(ctx context.Context, tenantID, projectorName string) (string, error) {
	cp, err := s.getCheckpoint(ctx, tenantID, projectorName)
	if err != nil {
		return "", err
	}
	return cp.LastProcessedEventID, nil
}

// GetLastProcessedAt returns when the projector's cursor last advanced, or
// storage.ErrNotFound.
func (s *Store) GetLastProcessedAt(ctx context.Context, tenantID, projectorName string) (time.Time, error) {
	cp, err := s.getCheckpoint(ctx, tenantID, projectorName)
	if err != nil {
		return time.Time{}, err
	}
	return cp.LastProcessedAt, nil
}

// ResetState deletes the projector's checkpoint so its next run replays from
// the start of the journal. Resetting a missing checkpoint is a no-op.
func (s *Store) ResetState(ctx context.Context, tenantID, projectorName string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("sqlite store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return event.ErrTenantRequired
	}
	projectorName = strings.TrimSpace(projectorName)
	if projectorName == "" {
		return apperrors.New(apperrors.CodeProjectorNameMissing, "projector name is required")
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM projection_checkpoints WHERE projector_name = ? AND tenant_id = ?;`,
		projectorName, tenantID,
	)
	if err != nil {
		return storage.Unavailable("reset checkpoint", err)
	}
	return nil
}

// HasState reports whether the projector has a recorded position.
func (s *Store) HasState(ctx context.Context, tenantID, projectorName string) (bool, error) {
	_, err := s.getCheckpoint(ctx, tenantID, projectorName)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) getCheckpoint(ctx context.Context, tenantID, projectorName string) (storage.Checkpoint, error) {
	if s == nil || s.sqlDB == nil {
		return storage.Checkpoint{}, fmt.Errorf("sqlite store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return storage.Checkpoint{}, err
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return storage.Checkpoint{}, event.ErrTenantRequired
	}
	projectorName = strings.TrimSpace(projectorName)
	if projectorName == "" {
		return storage.Checkpoint{}, apperrors.New(apperrors.CodeProjectorNameMissing, "projector name is required")
	}

	var (
		cp                     storage.Checkpoint
		processedAt, updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT projector_name, tenant_id, last_processed_event_id, last_processed_at, updated_at
FROM projection_checkpoints
WHERE projector_name = ? AND tenant_id = ?;`,
		projectorName, tenantID,
	).Scan(&cp.ProjectorName, &cp.TenantID, &cp.LastProcessedEventID, &processedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Checkpoint{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Checkpoint{}, fmt.Errorf("get checkpoint: %w", err)
	}
	cp.LastProcessedAt = fromMillis(processedAt)
	cp.UpdatedAt = fromMillis(updatedAt)
	return cp, nil
}
