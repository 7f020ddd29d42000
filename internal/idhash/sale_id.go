package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSaleID computes a deterministic sale_id using SHA256.
// Formula: SHA256(token_symbol|creator|start_time|end_time)
// Returns hex-encoded hash (64 characters).
func ComputeSaleID(
	tokenSymbol string,
	creator string,
	startTime int64,
	endTime int64,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d",
		tokenSymbol,
		creator,
		startTime,
		endTime,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
