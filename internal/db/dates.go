package db

import (
	"time"

	"gorm.io/datatypes"
)

// DateLayout is the wire format of every date column
const DateLayout = "2006-01-02"

// NewDate builds a calendar date in UTC
func NewDate(year int, month time.Month, day int) *datatypes.Date {
	d := datatypes.Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
	return &d
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (*datatypes.Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, err
	}
	d := datatypes.Date(t)
	return &d, nil
}

// FormatDate renders d as YYYY-MM-DD, or "" for nil
func FormatDate(d *datatypes.Date) string {
	if d == nil {
		return ""
	}
	return time.Time(*d).Format(DateLayout)
}

// dateOnly drops the time of day so that drivers returning timestamps in
// different zones still compare as calendar dates.
func dateOnly(d datatypes.Date) time.Time {
	y, m, day := time.Time(d).Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}
