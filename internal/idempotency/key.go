// Package idempotency deduplicates logical operations and arbitrates
// concurrent duplicate submissions.
package idempotency

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint computes the idempotency key for an operation. Parameter names
// are sorted before hashing so identical logical operations yield the same
// key regardless of field submission order.
func Fingerprint(operationName string, params map[string]json.RawMessage) string {
	h := sha256.New()
	h.Write([]byte("op:"))
	h.Write([]byte(operationName))

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		h.Write([]byte("\x00"))
		h.Write([]byte(name))
		h.Write([]byte(":"))
		h.Write(params[name])
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
