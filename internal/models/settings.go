package models

import (
	"encoding/json"
	"time"
)

// Well-known setting keys.
const (
	SettingUI            = "ui"
	SettingCarGoal       = "carGoal"
	SettingLastFuelPrice = "lastFuelPrice"
	SettingOwner         = "owner"
)

// Setting is an arbitrary keyed document. Value is stored verbatim.
type Setting struct {
	Key       string          `json:"key" bson:"key"`
	Value     json.RawMessage `json:"value" bson:"value"`
	UpdatedAt time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// CarGoal is the savings target used for progress reporting.
type CarGoal struct {
	Amount float64 `json:"amount" validate:"finite,gte=0"`
	Name   string  `json:"name,omitempty"`
}

// FuelPrice remembers the last price paid so the UI can prefill forms.
type FuelPrice struct {
	PricePerLiter float64 `json:"pricePerLiter" validate:"finite,gte=0"`
	Date          Date    `json:"date"`
}
