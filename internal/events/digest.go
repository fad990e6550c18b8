package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// volatileKeys are top-level transport metadata the provider varies between
// redeliveries of the same event. They must not change the digest, or retry
// deliveries would defeat deduplication.
var volatileKeys = map[string]struct{}{
	"retry_count":  {},
	"delivered_at": {},
	"delivery_id":  {},
}

// Digest computes a stable content hash over a provider payload: the JSON is
// decoded, volatile top-level keys are dropped, and the result is re-encoded
// (object keys sorted by encoding/json) before hashing.
//
// Non-JSON payloads are hashed as raw bytes; dedup still works, it just
// becomes sensitive to formatting.
func Digest(payload []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		sum := sha256.Sum256(payload)
		return hex.EncodeToString(sum[:])
	}
	for k := range volatileKeys {
		delete(doc, k)
	}
	normalized, err := json.Marshal(doc)
	if err != nil {
		sum := sha256.Sum256(payload)
		return hex.EncodeToString(sum[:])
	}
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:])
}
