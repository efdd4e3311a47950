// Package idhash derives deterministic identifiers for simulated trades.
package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(run_id|seq|kind|timestamp_ms)
// Returns the base58-encoded hash (43 or 44 characters).
func ComputeTradeID(
	runID string,
	seq int,
	kind string,
	timestampMs int64,
) string {
	data := fmt.Sprintf("%s|%d|%s|%d",
		runID,
		seq,
		kind,
		timestampMs,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}

// DecodeTradeID returns the raw 32-byte hash behind a trade ID.
func DecodeTradeID(id string) ([]byte, error) {
	raw, err := base58.Decode(id)
	if err != nil {
		return nil, fmt.Errorf("decode trade id: %w", err)
	}
	if len(raw) != sha256.Size {
		return nil, fmt.Errorf("decode trade id: got %d bytes, want %d", len(raw), sha256.Size)
	}
	return raw, nil
}
