package event

import "fmt"

// ExpectedVersion declares the writer's expectation about a stream's current
// version at append time, for optimistic concurrency control.
type ExpectedVersion struct {
	value int64
}

const (
	// expectedAny skips the version check entirely.
	expectedAny = -1
	// expectedNoStream requires that the stream does not exist yet.
	expectedNoStream = -2
)

// Any returns an ExpectedVersion that skips the concurrency check.
func Any() ExpectedVersion {
	return ExpectedVersion{value: expectedAny}
}

// NoStream returns an ExpectedVersion requiring an empty stream. Use when
// creating a new aggregate to guarantee it does not already exist.
func NoStream() ExpectedVersion {
	return ExpectedVersion{value: expectedNoStream}
}

// Exact returns an ExpectedVersion requiring the stream to be at exactly
// version. Exact(0) is equivalent to NoStream.
func Exact(version uint64) ExpectedVersion {
	return ExpectedVersion{value: int64(version)}
}

// IsAny reports whether the version check is skipped.
func (ev ExpectedVersion) IsAny() bool {
	return ev.value == expectedAny
}

// Value returns the required current version. It is 0 for NoStream; callers
// must check IsAny before using it.
func (ev ExpectedVersion) Value() uint64 {
	if ev.value > 0 {
		return uint64(ev.value)
	}
	return 0
}

// String renders the expectation for logs and conflict metadata.
func (ev ExpectedVersion) String() string {
	switch {
	case ev.value == expectedAny:
		return "Any"
	case ev.value == expectedNoStream, ev.value == 0:
		return "NoStream"
	default:
		return fmt.Sprintf("Exact(%d)", ev.value)
	}
}
