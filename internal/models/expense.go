package models

// Expense is a generic cost ledger line. LinkedMaintenanceID is a weak
// reference back to the maintenance record that generated it.
type Expense struct {
	ID                  int64   `json:"id" bson:"id"`
	Date                Date    `json:"date" bson:"date"`
	Description         string  `json:"description" bson:"description"`
	Category            string  `json:"category,omitempty" bson:"category,omitempty"` // "maintenance", "insurance", "tax", "parking", "other"
	Amount              float64 `json:"amount" bson:"amount" validate:"finite"`
	LinkedMaintenanceID *int64  `json:"linkedMaintenanceId,omitempty" bson:"linkedMaintenanceId,omitempty"`
}

func (e *Expense) GetID() int64   { return e.ID }
func (e *Expense) SetID(id int64) { e.ID = id }
