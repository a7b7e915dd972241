package transport

import (
	"errors"
	"time"
)

var ErrInvalidDate = errors.New("invalid date")

const dayLayout = "2006-01-02"

// ParseDate accepts RFC3339 timestamps or plain YYYY-MM-DD days, which mean
// midnight UTC of that day.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(dayLayout, s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, ErrInvalidDate
}
