package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/DeafMist/topstories/backend/internal/models"
)

const curlMarker = "curl"

// IsCurl reports whether a User-Agent identifies a curl client. The match is
// a case-sensitive substring test.
func IsCurl(userAgent string) bool {
	return strings.Contains(userAgent, curlMarker)
}

// SectionFromPath maps a request path to the section it addresses. The root
// path addresses "home".
func SectionFromPath(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "home"
	}
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return trimmed
}

// BuildRecordID hashes the most stable request fields to form deterministic IDs.
func BuildRecordID(rec models.Record) string {
	key := strings.Join([]string{
		rec.Date.UTC().Format(time.RFC3339Nano),
		rec.IP,
		rec.Method,
		rec.URL,
		rec.UserAgent,
	}, "|")
	s := sha1.Sum([]byte(key))
	return hex.EncodeToString(s[:])
}

// ParseDate accepts RFC3339 timestamps and the legacy "2006-01-02 15:04:05"
// layout. Unparseable input yields the zero time.
func ParseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		time.RFC1123,
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
