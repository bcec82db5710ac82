// Package cryptox holds the hashing primitives used by the sync protocol:
// deterministic digests for idempotency keys and at-rest hashing of refresh
// tokens on the server.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// fieldSep joins digest inputs. It cannot appear in entity types, actions or
// decimal timestamps, so distinct tuples never collide on concatenation.
const fieldSep = "|"

// Digest returns the hex-encoded BLAKE2b-256 hash of parts joined by "|".
// The output is stable across processes and platforms.
func Digest(parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, fieldSep)))
	return hex.EncodeToString(sum[:])
}

// HashToken returns the hex SHA-256 of an opaque bearer token, which is what
// gets persisted instead of the token itself.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
