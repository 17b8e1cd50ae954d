package models

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the hex SHA-256 of the document bytes. The same hash
// is recorded on the job, used for idempotent filename synthesis, and
// returned by the blob store.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
