// Package fuel derives consumption figures from fill-up logs.
package fuel

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/ukydev/vehicle-ledger/internal/models"
)

// Interval is the consumption between two consecutive fill-ups, keyed by the
// later fill-up's date.
type Interval struct {
	Date           models.Date `json:"date"`
	Odometer       float64     `json:"odometer"`
	Distance       float64     `json:"distance"`
	Liters         float64     `json:"liters"`
	KmPerLiter     float64     `json:"kmPerLiter"`
	LitersPer100Km float64     `json:"litersPer100Km"`
}

// Summary aggregates every valid interval for dashboard display.
type Summary struct {
	Intervals         []Interval `json:"intervals"`
	AvgKmPerLiter     float64    `json:"avgKmPerLiter"`
	AvgLitersPer100Km float64    `json:"avgLitersPer100Km"`
	TotalDistance     float64    `json:"totalDistance"`
	TotalLiters       float64    `json:"totalLiters"`
	TotalCost         float64    `json:"totalCost"`
	CostPerKm         float64    `json:"costPerKm"`
}

// Intervals sorts a copy of entries by odometer and computes one interval per
// consecutive pair. Pairs with no forward distance or no fuel are skipped.
func Intervals(entries []models.FuelLog) []Interval {
	if len(entries) < 2 {
		return nil
	}
	sorted := make([]models.FuelLog, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Odometer < sorted[j].Odometer
	})

	var out []Interval
	for i := 1; i < len(sorted); i++ {
		prev, curr := sorted[i-1], sorted[i]
		distance := curr.Odometer - prev.Odometer
		if distance <= 0 || curr.Liters <= 0 {
			continue
		}
		kmPerLiter := distance / curr.Liters
		out = append(out, Interval{
			Date:           curr.Date,
			Odometer:       curr.Odometer,
			Distance:       distance,
			Liters:         curr.Liters,
			KmPerLiter:     round2(kmPerLiter),
			LitersPer100Km: round2(100 / kmPerLiter),
		})
	}
	return out
}

// Summarize averages km/L across every valid interval. It returns nil when
// there are fewer than two entries or no valid interval; that is not an error.
func Summarize(entries []models.FuelLog) *Summary {
	intervals := Intervals(entries)
	if len(intervals) == 0 {
		return nil
	}

	var sumKmPerLiter, distance, liters float64
	for _, iv := range intervals {
		sumKmPerLiter += iv.Distance / iv.Liters
		distance += iv.Distance
		liters += iv.Liters
	}
	avg := sumKmPerLiter / float64(len(intervals))

	cost := totalCost(entries)
	return &Summary{
		Intervals:         intervals,
		AvgKmPerLiter:     round2(avg),
		AvgLitersPer100Km: round2(100 / avg),
		TotalDistance:     distance,
		TotalLiters:       liters,
		TotalCost:         cost,
		CostPerKm:         CostPerKm(entries),
	}
}

// CostPerKm spreads the spend of every fill-up after the first over the
// distance between the lowest and highest odometer. The first fill-up only
// establishes the baseline reading, so its cost is not counted.
func CostPerKm(entries []models.FuelLog) float64 {
	if len(entries) < 2 {
		return 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	first := 0
	for i, e := range entries {
		if e.Odometer < lo {
			lo, first = e.Odometer, i
		}
		hi = math.Max(hi, e.Odometer)
	}
	if hi <= lo {
		return 0
	}
	spend := decimal.Zero
	for i, e := range entries {
		if i != first {
			spend = spend.Add(decimal.NewFromFloat(e.TotalCost))
		}
	}
	return spend.Div(decimal.NewFromFloat(hi - lo)).Round(4).InexactFloat64()
}

func totalCost(entries []models.FuelLog) float64 {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(decimal.NewFromFloat(e.TotalCost))
	}
	return sum.InexactFloat64()
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
