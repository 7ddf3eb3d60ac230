package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Event journal errors
	CodeEventTenantMissing    Code = "EVENT_TENANT_MISSING"
	CodeEventAggregateMissing Code = "EVENT_AGGREGATE_MISSING"
	CodeEventIDMissing        Code = "EVENT_ID_MISSING"
	CodeEventTypeMissing      Code = "EVENT_TYPE_MISSING"
	CodeEventVersionInvalid   Code = "EVENT_VERSION_INVALID"
	CodeEventTimestampMissing Code = "EVENT_TIMESTAMP_MISSING"
	CodeEventImmutable        Code = "EVENT_IMMUTABLE"
	CodeStreamIntegrity       Code = "STREAM_INTEGRITY_VIOLATION"

	// Concurrency errors
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"

	// Snapshot errors
	CodeSnapshotCorrupt Code = "SNAPSHOT_CORRUPT"

	// Checkpoint errors
	CodeProjectorNameMissing Code = "PROJECTOR_NAME_MISSING"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeEventTenantMissing,
		CodeEventAggregateMissing,
		CodeEventIDMissing,
		CodeEventTypeMissing,
		CodeEventVersionInvalid,
		CodeEventTimestampMissing,
		CodeProjectorNameMissing:
		return codes.InvalidArgument

	// Aborted - retryable write conflicts
	case CodeConcurrencyConflict:
		return codes.Aborted

	// FailedPrecondition - operations an invariant forbids outright
	case CodeEventImmutable:
		return codes.FailedPrecondition

	// DataLoss - corruption detected in stored data
	case CodeSnapshotCorrupt, CodeStreamIntegrity:
		return codes.DataLoss

	// NotFound
	case CodeNotFound:
		return codes.NotFound

	// Unavailable - transient infrastructure failures
	case CodeStoreUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
