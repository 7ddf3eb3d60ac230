// Package event defines the immutable journal event and its append contract.
package event

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/brightbook/eventcore/internal/platform/errors"
	"github.com/brightbook/eventcore/internal/platform/id"
)

// Type identifies the kind of a domain event, e.g. "invoice.approved".
// Payload schemas behind a type are owned by the producing module; the
// journal never interprets them.
type Type string

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g., "invoice", "budget").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}

// Validation errors surfaced by ValidateForAppend.
var (
	// ErrTenantRequired indicates a missing tenant id.
	ErrTenantRequired = apperrors.New(apperrors.CodeEventTenantMissing, "tenant id is required")
	// ErrAggregateRequired indicates a missing aggregate id.
	ErrAggregateRequired = apperrors.New(apperrors.CodeEventAggregateMissing, "aggregate id is required")
	// ErrEventIDRequired indicates a missing event id.
	ErrEventIDRequired = apperrors.New(apperrors.CodeEventIDMissing, "event id is required")
	// ErrTypeRequired indicates a missing event type.
	ErrTypeRequired = apperrors.New(apperrors.CodeEventTypeMissing, "event type is required")
	// ErrVersionInvalid indicates a non-positive event version.
	ErrVersionInvalid = apperrors.New(apperrors.CodeEventVersionInvalid, "event version must be positive")
	// ErrOccurredAtRequired indicates a zero business timestamp.
	ErrOccurredAtRequired = apperrors.New(apperrors.CodeEventTimestampMissing, "occurred at timestamp is required")
)

// Event represents an immutable event in the tenant event journal.
//
// An event is a value until appended; the store assigns RecordedAt, PrevHash,
// and ChainHash on append and never touches the row again.
type Event struct {
	// EventID is the globally unique identity and idempotency key.
	EventID string
	// TenantID scopes the event to one tenant's journal.
	TenantID string
	// AggregateID identifies the aggregate whose stream this event extends.
	AggregateID string
	// AggregateType is derived from the AggregateID prefix when empty.
	AggregateType string
	// Version is the caller's intended next version within the stream
	// (starts at 1, strictly increasing, no gaps on success).
	Version uint64
	// Type identifies the kind of event.
	Type Type
	// Payload holds event-specific data; opaque to the journal.
	Payload []byte
	// Metadata holds producer context (origin, schema hints); opaque to the journal.
	Metadata []byte
	// CausationID references the event or command that caused this event (optional).
	CausationID string
	// CorrelationID links related events across aggregates (optional).
	CorrelationID string
	// UserID is the acting user, when one exists (optional).
	UserID string
	// OccurredAt is the caller-supplied business timestamp.
	OccurredAt time.Time
	// RecordedAt is assigned by the store on append.
	RecordedAt time.Time
	// PrevHash is the chain hash of the preceding event in the stream.
	// Assigned by storage on append; empty for the first event.
	PrevHash string
	// ChainHash links this event to its predecessor for tamper evidence.
	// Assigned by storage on append.
	ChainHash string
}

// New builds an event envelope with a generated event id and the current
// time as the business timestamp. Producers replaying history set EventID and
// OccurredAt themselves instead.
func New(eventType Type, aggregateID string, version uint64, payload []byte) (Event, error) {
	eventID, err := id.NewID()
	if err != nil {
		return Event{}, fmt.Errorf("generate event id: %w", err)
	}
	return Event{
		EventID:     eventID,
		AggregateID: strings.TrimSpace(aggregateID),
		Version:     version,
		Type:        eventType,
		Payload:     payload,
		OccurredAt:  time.Now().UTC().Truncate(time.Millisecond),
	}, nil
}

// AggregateTypeFromID derives the aggregate type from the id's prefix before
// the first "-", e.g. "order-42" yields "order". Ids without a "-" map to
// themselves. Producers that need a different type can set AggregateType
// explicitly; derivation only fills the blank.
func AggregateTypeFromID(aggregateID string) string {
	aggregateID = strings.TrimSpace(aggregateID)
	for i, c := range aggregateID {
		if c == '-' {
			return aggregateID[:i]
		}
	}
	return aggregateID
}

// ValidateForAppend normalizes an event and rejects ones the journal must not
// accept. It returns the event with whitespace trimmed and AggregateType
// filled from the id prefix when the producer left it empty.
func ValidateForAppend(evt Event) (Event, error) {
	evt.EventID = strings.TrimSpace(evt.EventID)
	evt.TenantID = strings.TrimSpace(evt.TenantID)
	evt.AggregateID = strings.TrimSpace(evt.AggregateID)
	evt.AggregateType = strings.TrimSpace(evt.AggregateType)

	if evt.TenantID == "" {
		return Event{}, ErrTenantRequired
	}
	if evt.AggregateID == "" {
		return Event{}, ErrAggregateRequired
	}
	if evt.EventID == "" {
		return Event{}, ErrEventIDRequired
	}
	if !evt.Type.IsValid() {
		return Event{}, ErrTypeRequired
	}
	if evt.Version < 1 {
		return Event{}, ErrVersionInvalid
	}
	if evt.OccurredAt.IsZero() {
		return Event{}, ErrOccurredAtRequired
	}

	if evt.AggregateType == "" {
		evt.AggregateType = AggregateTypeFromID(evt.AggregateID)
	}
	evt.OccurredAt = evt.OccurredAt.UTC().Truncate(time.Millisecond)

	// Nil buffers become empty ones so storage bindings never see NULL.
	if evt.Payload == nil {
		evt.Payload = []byte{}
	}
	if evt.Metadata == nil {
		evt.Metadata = []byte{}
	}

	return evt, nil
}
