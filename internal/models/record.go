package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Collection names used by the record store.
const (
	CollectionSavings     = "savings"
	CollectionCarSavings  = "carSavings"
	CollectionFuel        = "fuel"
	CollectionMaintenance = "maintenance"
	CollectionParts       = "parts"
	CollectionSuppliers   = "suppliers"
	CollectionExpenses    = "expenses"
)

// Document collections hold keyed singletons rather than numbered records.
const (
	DocumentsProfile  = "profile"
	DocumentsSettings = "settings"
	DocumentsTotals   = "totals"
)

// Record is implemented by every entity stored in a numbered collection.
type Record interface {
	GetID() int64
	SetID(id int64)
}

// DateLayout is the calendar-day format used on the wire.
const DateLayout = "2006-01-02"

// Date is a calendar day. It marshals as YYYY-MM-DD and accepts RFC 3339
// timestamps on input, which older exports used.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in t's location.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD or RFC 3339.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return NewDate(t), nil
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
