package alerts

import (
	"fmt"
	"time"
)

// TimestampFormats are the accepted alert timestamp layouts, tried in order.
// The first is a UTC wall-clock time with microseconds and no offset; the
// second is RFC 3339 with optional fractional seconds.
var TimestampFormats = []string{
	"2006-01-02T15:04:05.000000",
	time.RFC3339Nano,
}

// ParseTimestamp parses s with the first matching layout in TimestampFormats.
// Layouts without an offset are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range TimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", ErrDecode, s)
}

// FormatTimestamp renders t in the primary wire format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormats[0])
}
