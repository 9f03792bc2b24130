package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// TimeOfDay is a wall-clock time as seconds since midnight.
type TimeOfDay int

// NewTimeOfDay returns h:m:s as a TimeOfDay.
func NewTimeOfDay(h, m, s int) TimeOfDay {
	return TimeOfDay(h*3600 + m*60 + s)
}

// ParseTimeOfDay accepts "15:04" or "15:04:05".
func ParseTimeOfDay(v string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, v); err == nil {
			return NewTimeOfDay(t.Hour(), t.Minute(), t.Second()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", v)
}

// TimeOfDayOf returns the wall-clock part of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second())
}

func (t TimeOfDay) String() string {
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*t = TimeOfDayOf(v)
		return nil
	case []byte:
		return t.scanString(string(v))
	case string:
		return t.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}

func (t *TimeOfDay) scanString(v string) error {
	if len(v) > 8 {
		// postgres may append fractional seconds
		v = v[:8]
	}
	parsed, err := ParseTimeOfDay(v)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Weekdays is a set of days using time.Weekday numbering (0 = Sunday).
type Weekdays []int

// AllWeekdays is every day of the week.
var AllWeekdays = Weekdays{0, 1, 2, 3, 4, 5, 6}

func (w Weekdays) Contains(d time.Weekday) bool {
	for _, v := range w {
		if v == int(d) {
			return true
		}
	}
	return false
}

func (w *Weekdays) Scan(src any) error {
	var arr pq.Int64Array
	if err := arr.Scan(src); err != nil {
		return err
	}
	out := make(Weekdays, 0, len(arr))
	for _, v := range arr {
		out = append(out, int(v))
	}
	*w = out
	return nil
}

func (w Weekdays) Value() (driver.Value, error) {
	arr := make(pq.Int64Array, 0, len(w))
	for _, v := range w {
		arr = append(arr, int64(v))
	}
	return arr.Value()
}
