package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/brightbook/eventcore/internal/eventstore/domain/event"
	"github.com/brightbook/eventcore/internal/eventstore/storage/integrity"
	apperrors "github.com/brightbook/eventcore/internal/platform/errors"
)

const integrityPageSize = 500

// VerifyStreamIntegrity walks one aggregate's stream and checks that versions
// are contiguous from 1 and that every chain hash links to its predecessor.
// The first violation aborts the walk with a stream integrity error.
func (s *Store) VerifyStreamIntegrity(ctx context.Context, tenantID, aggregateID string) error {
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
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return event.ErrAggregateRequired
	}

	var (
		nextVersion   uint64 = 1
		prevChainHash string
	)
	for {
		events, err := s.ReadStreamFromVersion(ctx, tenantID, aggregateID, nextVersion, nextVersion+integrityPageSize-1)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		for _, evt := range events {
			if evt.Version != nextVersion {
				return integrityViolation(aggregateID, nextVersion, "version gap")
			}
			if evt.PrevHash != prevChainHash {
				return integrityViolation(aggregateID, evt.Version, "predecessor hash mismatch")
			}
			if integrity.ChainHash(evt, prevChainHash) != evt.ChainHash {
				return integrityViolation(aggregateID, evt.Version, "chain hash mismatch")
			}
			prevChainHash = evt.ChainHash
			nextVersion++
		}
	}
}

// VerifyTenantIntegrity verifies every stream of one tenant.
func (s *Store) VerifyTenantIntegrity(ctx context.Context, tenantID string) error {
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

	aggregateIDs, err := s.listAggregateIDs(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, aggregateID := range aggregateIDs {
		if err := s.VerifyStreamIntegrity(ctx, tenantID, aggregateID); err != nil {
			return err
		}
	}
	return nil
}

// VerifyIntegrity verifies every stream of every tenant in the journal.
func (s *Store) VerifyIntegrity(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("sqlite store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tenantIDs, err := s.ListTenants(ctx)
	if err != nil {
		return err
	}
	for _, tenantID := range tenantIDs {
		if err := s.VerifyTenantIntegrity(ctx, tenantID); err != nil {
			return err
		}
	}
	return nil
}

// ListTenants returns the distinct tenant ids present in the journal.
func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("sqlite store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM events ORDER BY tenant_id;`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenantIDs []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		tenantIDs = append(tenantIDs, tenantID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenantIDs, nil
}

func (s *Store) listAggregateIDs(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT DISTINCT aggregate_id FROM events WHERE tenant_id = ? ORDER BY aggregate_id;`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	defer rows.Close()

	var aggregateIDs []string
	for rows.Next() {
		var aggregateID string
		if err := rows.Scan(&aggregateID); err != nil {
			return nil, fmt.Errorf("scan aggregate id: %w", err)
		}
		aggregateIDs = append(aggregateIDs, aggregateID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}
	return aggregateIDs, nil
}

func integrityViolation(aggregateID string, version uint64, reason string) error {
	return apperrors.WithMetadata(apperrors.CodeStreamIntegrity, reason, map[string]string{
		"aggregate_id": aggregateID,
		"version":      fmt.Sprintf("%d", version),
	})
}
