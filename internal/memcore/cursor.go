package memcore

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/memnexus/memcore/internal/memerr"
)

// cursor is the opaque pagination token spec.md §6 defines:
// base64(<iso8601_timestamp>|<memory_id>). It is never interpreted by
// clients, only round-tripped through encodeCursor/decodeCursor.
type cursor struct {
	LastAccessed time.Time
	MemoryID     string
}

func encodeCursor(c cursor) string {
	raw := c.LastAccessed.UTC().Format(time.RFC3339Nano) + "|" + c.MemoryID
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor reverses encodeCursor. Any malformed input is a client error
// (memerr.CursorDecode), per spec.md §7.
func decodeCursor(s string) (cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return cursor{}, memerr.CursorDecode("cursor is not valid base64", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return cursor{}, memerr.CursorDecode("cursor did not contain a timestamp and memory id", nil)
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return cursor{}, memerr.CursorDecode("cursor timestamp is not valid RFC3339", err)
	}
	return cursor{LastAccessed: ts, MemoryID: parts[1]}, nil
}
