package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(sale_id|participant|side|timestamp|sequence)
// The per-sale sequence number disambiguates trades by the same participant
// within one second. Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	saleID string,
	participant string,
	side string,
	timestamp int64,
	sequence uint64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d",
		saleID,
		participant,
		side,
		timestamp,
		sequence,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
