// Package checkpoint provides an in-memory projection checkpoint store with
// the same contract as the SQLite-backed one. It suits tests and short-lived
// projectors whose read models are rebuilt from scratch on startup.
package checkpoint

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/brightbook/eventcore/internal/eventstore/domain/event"
	"github.com/brightbook/eventcore/internal/eventstore/storage"
	apperrors "github.com/brightbook/eventcore/internal/platform/errors"
)

type key struct {
	projectorName string
	tenantID      string
}

// Memory is a mutex-guarded checkpoint store. The zero value is not usable;
// construct with NewMemory.
type Memory struct {
	mu          sync.Mutex
	checkpoints map[key]storage.Checkpoint
}

// NewMemory returns an empty in-memory checkpoint store.
func NewMemory() *Memory {
	return &Memory{checkpoints: make(map[key]storage.Checkpoint)}
}

// SaveState upserts the checkpoint row under the store lock, mirroring the
// single-statement atomicity of the SQLite implementation.
func (m *Memory) SaveState(ctx context.Context, tenantID, projectorName, eventID string, processedAt time.Time) error {
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

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[key{projectorName, tenantID}] = storage.Checkpoint{
		ProjectorName:        projectorName,
		TenantID:             tenantID,
		LastProcessedEventID: eventID,
		LastProcessedAt:      processedAt.UTC(),
		UpdatedAt:            time.Now().UTC(),
	}
	return nil
}

// GetLastProcessedEventID returns the resume cursor, or storage.ErrNotFound.
func (m *Memory) GetLastProcessedEventID(ctx context.Context, tenantID, projectorName string) (string, error) {
	cp, err := m.get(ctx, tenantID, projectorName)
	if err != nil {
		return "", err
	}
	return cp.LastProcessedEventID, nil
}

// GetLastProcessedAt returns when the cursor last advanced, or storage.ErrNotFound.
func (m *Memory) GetLastProcessedAt(ctx context.Context, tenantID, projectorName string) (time.Time, error) {
	cp, err := m.get(ctx, tenantID, projectorName)
	if err != nil {
		return time.Time{}, err
	}
	return cp.LastProcessedAt, nil
}

// ResetState removes the checkpoint; resetting a missing one is a no-op.
func (m *Memory) ResetState(ctx context.Context, tenantID, projectorName string) error {
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

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, key{projectorName, tenantID})
	return nil
}

// HasState reports whether the projector has a recorded position.
func (m *Memory) HasState(ctx context.Context, tenantID, projectorName string) (bool, error) {
	_, err := m.get(ctx, tenantID, projectorName)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (m *Memory) get(ctx context.Context, tenantID, projectorName string) (storage.Checkpoint, error) {
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

	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[key{projectorName, tenantID}]
	if !ok {
		return storage.Checkpoint{}, storage.ErrNotFound
	}
	return cp, nil
}

var _ storage.CheckpointStore = (*Memory)(nil)
