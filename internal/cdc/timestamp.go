package cdc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Timestamp accepts the encodings Debezium uses for timestamp columns:
// epoch milliseconds or microseconds as numbers, and ISO-8601 strings with or
// without a zone offset (zone-less values are read as UTC).
type Timestamp time.Time

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// epochMicrosThreshold separates epoch millis from epoch micros (year ~5138 in millis)
const epochMicrosThreshold = 100_000_000_000_000

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*t = Timestamp{}
			return nil
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				*t = Timestamp(parsed.UTC())
				return nil
			}
		}
		return fmt.Errorf("parse timestamp %q", s)
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parse epoch timestamp %s: %w", data, err)
	}
	if n >= epochMicrosThreshold || n <= -epochMicrosThreshold {
		*t = Timestamp(time.UnixMicro(n).UTC())
	} else {
		*t = Timestamp(time.UnixMilli(n).UTC())
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Time().IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time().Format(time.RFC3339Nano))
}

// Time returns the value as time.Time
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}
