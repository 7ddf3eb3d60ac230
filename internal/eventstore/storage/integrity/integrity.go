// Package integrity provides content hashing for the event journal: a
// per-event hash chained to its predecessor, and checksums for snapshot
// payloads. All hashes are hex-encoded SHA-256.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"strconv"

	"github.com/brightbook/eventcore/internal/eventstore/domain/event"
)

// EventHash computes the content hash of a single event envelope. The hash
// covers every caller-supplied field; store-assigned bookkeeping (recorded-at,
// chain linkage) is excluded so the hash is stable from validation onward.
func EventHash(evt event.Event) string {
	h := sha256.New()
	writeField(h, evt.TenantID)
	writeField(h, evt.AggregateID)
	writeField(h, evt.AggregateType)
	writeField(h, strconv.FormatUint(evt.Version, 10))
	writeField(h, evt.EventID)
	writeField(h, string(evt.Type))
	writeField(h, strconv.FormatInt(evt.OccurredAt.UnixMilli(), 10))
	writeBytes(h, evt.Payload)
	writeBytes(h, evt.Metadata)
	writeField(h, evt.CausationID)
	writeField(h, evt.CorrelationID)
	writeField(h, evt.UserID)
	return hex.EncodeToString(h.Sum(nil))
}

// ChainHash links an event to its predecessor in the stream. The first event
// of a stream chains from the empty string.
func ChainHash(evt event.Event, prevHash string) string {
	h := sha256.New()
	writeField(h, prevHash)
	writeField(h, EventHash(evt))
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotChecksum computes the checksum stored alongside snapshot state.
func SnapshotChecksum(state []byte) string {
	sum := sha256.Sum256(state)
	return hex.EncodeToString(sum[:])
}

// VerifySnapshotChecksum reports whether state still matches its recorded
// checksum.
func VerifySnapshotChecksum(state []byte, checksum string) bool {
	return SnapshotChecksum(state) == checksum
}

// writeField length-prefixes each field so adjacent values cannot collide
// under concatenation.
func writeField(w io.Writer, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	w.Write(n[:])
	io.WriteString(w, s)
}

func writeBytes(w io.Writer, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	w.Write(n[:])
	w.Write(b)
}
