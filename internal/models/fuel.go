package models

// FuelLog records a single fill-up.
type FuelLog struct {
	ID            int64   `json:"id" bson:"id"`
	Date          Date    `json:"date" bson:"date"`
	Odometer      float64 `json:"odometer" bson:"odometer" validate:"finite,gte=0"`
	Liters        float64 `json:"liters" bson:"liters" validate:"finite,gte=0"`
	PricePerLiter float64 `json:"pricePerLiter" bson:"pricePerLiter" validate:"finite,gte=0"`
	TotalCost     float64 `json:"totalCost" bson:"totalCost" validate:"finite,gte=0"`
	Notes         string  `json:"notes" bson:"notes"`
}

func (f *FuelLog) GetID() int64   { return f.ID }
func (f *FuelLog) SetID(id int64) { f.ID = id }
