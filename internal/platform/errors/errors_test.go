package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	base := New(CodeConcurrencyConflict, "version mismatch")
	other := WithMetadata(CodeConcurrencyConflict, "another message", map[string]string{"aggregate_id": "order-1"})

	if !stderrors.Is(other, base) {
		t.Fatal("expected errors with the same code to match")
	}
	if stderrors.Is(New(CodeNotFound, "missing"), base) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestErrorIsMatchesThroughWrapping(t *testing.T) {
	base := New(CodeStoreUnavailable, "store unavailable")
	wrapped := fmt.Errorf("append event: %w", Wrap(CodeStoreUnavailable, "exec insert", stderrors.New("disk I/O error")))

	if !stderrors.Is(wrapped, base) {
		t.Fatal("expected wrapped error to match by code")
	}
}

func TestErrorUnwrapReturnsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(CodeStoreUnavailable, "ping db", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected error chain to reach the cause")
	}
}

func TestToGRPCStatusCarriesCodeAndMetadata(t *testing.T) {
	err := WithMetadata(CodeConcurrencyConflict, "version mismatch", map[string]string{
		"aggregate_id":     "order-42",
		"expected_version": "3",
		"actual_version":   "5",
	}).ToGRPCStatus()

	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("expected a gRPC status error")
	}
	if st.Code() != codes.Aborted {
		t.Fatalf("expected aborted code, got %v", st.Code())
	}
	if len(st.Details()) != 1 {
		t.Fatalf("expected one status detail, got %d", len(st.Details()))
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	if CodeNotFound.GRPCCode() != codes.NotFound {
		t.Fatal("expected not found mapping")
	}
	if CodeStoreUnavailable.GRPCCode() != codes.Unavailable {
		t.Fatal("expected unavailable mapping")
	}
	if CodeSnapshotCorrupt.GRPCCode() != codes.DataLoss {
		t.Fatal("expected data loss mapping")
	}
	if CodeEventImmutable.GRPCCode() != codes.FailedPrecondition {
		t.Fatal("expected failed precondition mapping")
	}
	if CodeEventVersionInvalid.GRPCCode() != codes.InvalidArgument {
		t.Fatal("expected invalid argument mapping")
	}
	if CodeUnknown.GRPCCode() != codes.Internal {
		t.Fatal("expected internal fallback")
	}
}
