package models

// Part is a catalog entry for a replacement part.
type Part struct {
	ID        int64   `json:"id" bson:"id"`
	SKU       string  `json:"sku" bson:"sku"`
	Name      string  `json:"name" bson:"name"`
	UnitPrice float64 `json:"unitPrice" bson:"unitPrice" validate:"finite,gte=0"`
	Supplier  string  `json:"supplier" bson:"supplier"`
	Warranty  string  `json:"warranty" bson:"warranty"`
}

func (p *Part) GetID() int64   { return p.ID }
func (p *Part) SetID(id int64) { p.ID = id }

// Supplier is a workshop or parts vendor.
type Supplier struct {
	ID     int64  `json:"id" bson:"id"`
	Name   string `json:"name" bson:"name"`
	Phone  string `json:"phone" bson:"phone"`
	Rating int    `json:"rating" bson:"rating" validate:"omitempty,min=1,max=5"`
}

func (s *Supplier) GetID() int64   { return s.ID }
func (s *Supplier) SetID(id int64) { s.ID = id }
