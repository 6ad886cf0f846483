// Package idempotency computes the stable hash that backs the
// idempotency_keys unique index: identical
// (action, source, source_idempk[, update_idempk]) tuples always hash to
// the same key, so a unique-index violation on insert is the duplicate
// signal the core relies on.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Key hashes the fields that define a command's identity within an
// instance: H(action, source, source_idempk, update_idempk?). updateIdempK
// is empty for create_* actions. The instance itself is not part of the
// hash — it is the other half of the idempotency_keys composite primary
// key (instance_id, key_hash).
func Key(action, source, sourceIdempK, updateIdempK string) string {
	data := fmt.Sprintf("%s:%s:%s:%s", action, source, sourceIdempK, updateIdempK)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
