package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key builds a namespaced cache key of the form
// "<prefix>:<userID>:<resource>:<16-hex-digest>" where the digest is a
// stable hash over params, so the same logical request always hashes
// identically regardless of the order its fields were set in.
func Key(prefix, userID, resource string, params map[string]any) string {
	return fmt.Sprintf("%s:%s:%s:%s", prefix, userID, resource, digest(params))
}

// digest returns a stable 16-hex-character SHA-256 digest of params.
// encoding/json sorts map keys on marshal, so {a:1,b:2} and {b:2,a:1}
// always serialise — and therefore hash — identically.
func digest(params map[string]any) string {
	return Digest(params)
}

// Digest returns a stable 16-hex-character SHA-256 digest of v, suitable
// for any component that needs the same "sorted-key content hash" scheme
// spec.md's cache key format describes — not just this package's own keys.
func Digest(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}
