package models

import "time"

// TotalKind names a tracked running total. Each kind is backed by the
// collection of the same name.
type TotalKind string

const (
	TotalSavings    TotalKind = "savings"
	TotalCarSavings TotalKind = "carSavings"
)

// TotalKinds lists every kind maintained by the aggregate maintainer.
var TotalKinds = []TotalKind{TotalSavings, TotalCarSavings}

// Collection returns the source collection for the kind.
func (k TotalKind) Collection() string {
	return string(k)
}

// IsValid reports whether k is a known kind.
func (k TotalKind) IsValid() bool {
	switch k {
	case TotalSavings, TotalCarSavings:
		return true
	default:
		return false
	}
}

// SavingsEntry is one deposit (or withdrawal, when negative) into a savings log.
// Description doubles as the source bucket for breakdown reporting.
type SavingsEntry struct {
	ID          int64     `json:"id" bson:"id"`
	Date        Date      `json:"date" bson:"date"`
	Amount      float64   `json:"amount" bson:"amount" validate:"finite"`
	Description string    `json:"description" bson:"description"`
	Notes       string    `json:"notes" bson:"notes"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

func (e *SavingsEntry) GetID() int64   { return e.ID }
func (e *SavingsEntry) SetID(id int64) { e.ID = id }

// RunningTotal is the cached sum of a savings collection.
type RunningTotal struct {
	ID          TotalKind `json:"id" bson:"id"`
	Total       float64   `json:"total" bson:"total"`
	LastUpdated time.Time `json:"lastUpdated" bson:"lastUpdated"`
	RecordCount int       `json:"recordCount" bson:"recordCount"`
}
