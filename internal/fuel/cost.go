package fuel

import (
	"github.com/shopspring/decimal"
	"github.com/ukydev/vehicle-ledger/internal/models"
)

// FillCost derives whichever of liters, price per liter and total cost is
// missing from the other two. Entries with two or more missing values, or
// with all three present, are left as they are.
func FillCost(entry *models.FuelLog) {
	liters := decimal.NewFromFloat(entry.Liters)
	price := decimal.NewFromFloat(entry.PricePerLiter)
	total := decimal.NewFromFloat(entry.TotalCost)

	switch {
	case entry.TotalCost == 0 && entry.Liters > 0 && entry.PricePerLiter > 0:
		entry.TotalCost = liters.Mul(price).Round(2).InexactFloat64()
	case entry.PricePerLiter == 0 && entry.Liters > 0 && entry.TotalCost > 0:
		entry.PricePerLiter = total.Div(liters).Round(3).InexactFloat64()
	case entry.Liters == 0 && entry.PricePerLiter > 0 && entry.TotalCost > 0:
		entry.Liters = total.Div(price).Round(2).InexactFloat64()
	}
}
