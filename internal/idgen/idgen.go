// Package idgen generates the opaque identifiers used for peers and
// transfers. The source system derived its peer id from a bit
// expression of questionable precedence (see spec §9, Open Question 3);
// this rewrite sidesteps the ambiguity entirely by delegating to
// google/uuid, which already produces a correctly-set UUIDv4 variant
// nibble.
package idgen

import "github.com/google/uuid"

// PeerID returns a 36-character UUIDv4 string, stable for the lifetime
// of the calling process (the caller generates it once at startup).
func PeerID() string {
	return uuid.NewString()
}

// TransferID returns a locally-unique identifier for a new transfer.
func TransferID() string {
	return uuid.NewString()
}
