package normalize

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"
)

// maxEpochMillis bounds epoch-millisecond dates to ±100,000,000 days.
const maxEpochMillis = 8.64e15

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// timestampObject is the {seconds, nanoseconds} shape some backends emit.
type timestampObject struct {
	Seconds      *int64 `json:"seconds"`
	Nanos        int64  `json:"nanoseconds"`
	USeconds     *int64 `json:"_seconds"`
	UNanoseconds int64  `json:"_nanoseconds"`
}

// ParseTime converts a date-like JSON value to a time.
// Accepts date strings, epoch milliseconds, and timestamp objects.
// Returns false for null, empty or unparseable values.
func ParseTime(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false
		}
		return parseTimeString(s)
	case '{':
		var ts timestampObject
		if err := json.Unmarshal(raw, &ts); err != nil {
			return time.Time{}, false
		}
		switch {
		case ts.Seconds != nil:
			return time.Unix(*ts.Seconds, ts.Nanos).UTC(), true
		case ts.USeconds != nil:
			return time.Unix(*ts.USeconds, ts.UNanoseconds).UTC(), true
		}
		return time.Time{}, false
	default:
		var ms float64
		if err := json.Unmarshal(raw, &ms); err != nil {
			return time.Time{}, false
		}
		if math.Abs(ms) > maxEpochMillis {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)).UTC(), true
	}
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
