// Package id generates compact, crypto-random identifiers.
//
// Identifiers are UUIDv4 bytes encoded as unpadded lowercase base32, yielding
// a 26-character string safe for URLs, file names, and SQL keys. Event ids
// produced here serve as idempotency keys for the event journal.
package id

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a new 26-character random identifier.
func NewID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	// Set UUIDv4 version and RFC 4122 variant bits so the decoded bytes
	// remain a valid UUID.
	raw[6] = (raw[6] & 0x0f) | 0x40
	raw[8] = (raw[8] & 0x3f) | 0x80

	return strings.ToLower(encoding.EncodeToString(raw[:])), nil
}
