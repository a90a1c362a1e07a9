package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// TriggerType is the kind of threshold a service becomes due at.
type TriggerType string

const (
	TriggerDate     TriggerType = "date"
	TriggerOdometer TriggerType = "odometer"
)

// NextService arms a reminder for a service line. Value is a YYYY-MM-DD
// string for date triggers and a kilometre reading for odometer triggers.
type NextService struct {
	Type  TriggerType     `json:"type" bson:"type" validate:"oneof=date odometer"`
	Value json.RawMessage `json:"value" bson:"value"`
}

// DateTrigger builds a date-based NextService.
func DateTrigger(d Date) *NextService {
	raw, _ := json.Marshal(d.String())
	return &NextService{Type: TriggerDate, Value: raw}
}

// OdometerTrigger builds an odometer-based NextService.
func OdometerTrigger(km float64) *NextService {
	raw, _ := json.Marshal(km)
	return &NextService{Type: TriggerOdometer, Value: raw}
}

// DueDate returns the trigger date for date triggers.
func (n *NextService) DueDate() (Date, error) {
	if n.Type != TriggerDate {
		return Date{}, fmt.Errorf("trigger type %q has no due date", n.Type)
	}
	var d Date
	if err := json.Unmarshal(n.Value, &d); err != nil {
		return Date{}, err
	}
	if d.IsZero() {
		return Date{}, fmt.Errorf("empty due date")
	}
	return d, nil
}

// DueKm returns the trigger odometer reading for odometer triggers. Both
// numbers and numeric strings are accepted since older exports stored either.
func (n *NextService) DueKm() (float64, error) {
	if n.Type != TriggerOdometer {
		return 0, fmt.Errorf("trigger type %q has no due odometer", n.Type)
	}
	var km float64
	if err := json.Unmarshal(n.Value, &km); err == nil {
		return km, nil
	}
	var s string
	if err := json.Unmarshal(n.Value, &s); err != nil {
		return 0, fmt.Errorf("invalid odometer value %s", string(n.Value))
	}
	if _, err := fmt.Sscanf(s, "%g", &km); err != nil || math.IsNaN(km) || math.IsInf(km, 0) {
		return 0, fmt.Errorf("invalid odometer value %q", s)
	}
	return km, nil
}

// Check reports whether the trigger value can be read for its type.
func (n *NextService) Check() error {
	switch n.Type {
	case TriggerDate:
		_, err := n.DueDate()
		return err
	case TriggerOdometer:
		_, err := n.DueKm()
		return err
	}
	return fmt.Errorf("unknown trigger type %q", n.Type)
}

// Completion records when a service was last carried out.
type Completion struct {
	Date     Date    `json:"date" bson:"date"`
	Odometer float64 `json:"odometer" bson:"odometer" validate:"finite,gte=0"`
}

// Service is one line item of a maintenance visit.
type Service struct {
	Name          string       `json:"name" bson:"name"`
	Cost          float64      `json:"cost" bson:"cost" validate:"finite"`
	Notes         string       `json:"notes" bson:"notes"`
	NextService   *NextService `json:"nextService,omitempty" bson:"nextService,omitempty" validate:"omitempty"`
	LastCompleted *Completion  `json:"lastCompleted,omitempty" bson:"lastCompleted,omitempty" validate:"omitempty"`
}

// MaintenanceRecord is a workshop visit made of one or more services.
type MaintenanceRecord struct {
	ID              int64       `json:"id" bson:"id"`
	Date            Date        `json:"date" bson:"date"`
	Odometer        float64     `json:"odometer" bson:"odometer" validate:"finite,gte=0"`
	Supplier        string      `json:"supplier" bson:"supplier"`
	Services        []Service   `json:"services" bson:"services" validate:"dive"`
	TotalCost       float64     `json:"totalCost" bson:"totalCost" validate:"finite"`
	NextServiceDate *Date       `json:"nextServiceDate,omitempty" bson:"nextServiceDate,omitempty"`
	NextServiceKm   *float64    `json:"nextServiceKm,omitempty" bson:"nextServiceKm,omitempty" validate:"omitempty,finite,gte=0"`
	LastCompleted   *Completion `json:"lastCompleted,omitempty" bson:"lastCompleted,omitempty" validate:"omitempty"`
	// CreateExpense asks the ledger to add a linked expense line on insert.
	CreateExpense bool `json:"createExpense,omitempty" bson:"createExpense,omitempty"`
}

func (m *MaintenanceRecord) GetID() int64   { return m.ID }
func (m *MaintenanceRecord) SetID(id int64) { m.ID = id }

// ServicesTotal sums the cost of every service line.
func (m *MaintenanceRecord) ServicesTotal() float64 {
	var total float64
	for _, s := range m.Services {
		total += s.Cost
	}
	return total
}

// Title describes the visit for the linked expense line.
func (m *MaintenanceRecord) Title() string {
	switch len(m.Services) {
	case 0:
		return "Maintenance"
	case 1:
		return "Maintenance: " + m.Services[0].Name
	default:
		return fmt.Sprintf("Maintenance: %s +%d", m.Services[0].Name, len(m.Services)-1)
	}
}
