// Package hashing provides the content digests and opaque identifiers used
// across the ledger: transaction ids, block hashes, and share tokens.
package hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// TxIDPrefix tags every transaction id.
	TxIDPrefix = "0x"

	// txIDHexLen is the truncated digest length of a transaction id.
	txIDHexLen = 40

	// ShareTokenPrefix tags every share token.
	ShareTokenPrefix = "VIC_"

	// shareTokenEntropyBytes is the random suffix size of a share token.
	shareTokenEntropyBytes = 32
)

// TransactionID derives a transaction id from the canonical (sorted-key) JSON
// serialization of payload plus the wall-clock timestamp. The timestamp
// component makes ids practically unique across calls even for identical
// payloads; it is not a collision-proof guarantee, so storage still enforces
// a unique constraint on the column.
func TransactionID(payload any, now time.Time) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(append(canonical, []byte(timestampString(now))...))
	return TxIDPrefix + hex.EncodeToString(sum[:])[:txIDHexLen], nil
}

// BlockHash derives a block's content hash from its header fields.
func BlockHash(sequenceIndex uint64, blockTime time.Time, previousHash string, nonce uint64) string {
	header := fmt.Sprintf("%d%s%s%d", sequenceIndex, timestampString(blockTime), previousHash, nonce)
	sum := sha256.Sum256([]byte(header))
	return hex.EncodeToString(sum[:])
}

// NewShareToken generates an unguessable bearer token: a fixed prefix plus a
// URL-safe encoding of 32 bytes from the system CSPRNG. The token itself is
// the capability, so a weak fallback source is never acceptable.
func NewShareToken() (string, error) {
	b := make([]byte, shareTokenEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return ShareTokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// canonicalJSON re-marshals payload through a generic value so that object
// keys serialize in sorted order regardless of struct field order.
func canonicalJSON(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// timestampString renders a wall-clock instant as fractional epoch seconds.
func timestampString(t time.Time) string {
	return fmt.Sprintf("%.6f", float64(t.UnixMicro())/1e6)
}
