package model

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"
)

// Timestamp is a nullable instant that never fails to decode. Values that
// are not well-formed instants are kept in Raw with Valid set to false so
// callers can treat them as unknown.
type Timestamp struct {
	Time  time.Time
	Valid bool
	Raw   string
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// At returns a valid Timestamp for t.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t, Valid: true}
}

// ParseTimestamp never returns an error; unparseable input yields an
// invalid Timestamp that remembers the original text.
func ParseTimestamp(v string) Timestamp {
	v = strings.TrimSpace(v)
	if v == "" {
		return Timestamp{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return Timestamp{Time: t, Valid: true}
		}
	}
	return Timestamp{Raw: v}
}

// Ptr returns the instant or nil.
func (t Timestamp) Ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = Timestamp{}
	case time.Time:
		*t = At(v)
	case []byte:
		*t = ParseTimestamp(string(v))
	case string:
		*t = ParseTimestamp(v)
	default:
		*t = Timestamp{}
	}
	return nil
}

func (t Timestamp) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.Time, nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// null, numbers and objects all decode as unknown
		*t = Timestamp{}
		if string(data) != "null" {
			t.Raw = string(data)
		}
		return nil
	}
	*t = ParseTimestamp(s)
	return nil
}
