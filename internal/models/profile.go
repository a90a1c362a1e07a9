package models

import "time"

// ProfileID is the fixed key of the vehicle profile singleton.
const ProfileID = "profile"

// Profile holds the current known state of the vehicle.
type Profile struct {
	ID             string    `json:"id" bson:"id"`
	Odometer       float64   `json:"odometer" bson:"odometer" validate:"finite,gte=0"`
	IntervalKm     float64   `json:"intervalKm" bson:"intervalKm" validate:"finite,gte=0"`
	IntervalMonths int       `json:"intervalMonths" bson:"intervalMonths" validate:"gte=0"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
}

// NewProfile returns the first-run profile with a zero odometer.
func NewProfile(now time.Time) Profile {
	return Profile{
		ID:             ProfileID,
		IntervalKm:     10000,
		IntervalMonths: 12,
		UpdatedAt:      now,
	}
}
