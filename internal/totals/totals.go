// Package totals maintains cached running totals over the savings logs.
//
// A RunningTotal row is a cache: it is recomputed synchronously after every
// write to its source collection and can be rebuilt from the raw entries at
// any time. Sums are accumulated with decimal arithmetic so the cached total
// equals the sum of the entries exactly.
package totals

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-ledger/internal/db"
	"github.com/ukydev/vehicle-ledger/internal/models"
)

// Bucket is one description group of a breakdown.
type Bucket struct {
	Source  string  `json:"source"`
	Amount  float64 `json:"amount"`
	Percent float64 `json:"percent"`
	Count   int     `json:"count"`
}

// Breakdown groups a savings log by description.
type Breakdown struct {
	Kind     models.TotalKind `json:"kind"`
	Total    float64          `json:"total"`
	Buckets  []Bucket         `json:"buckets"`
	Goal     float64          `json:"goal"`
	Progress float64          `json:"progress"`
}

// Maintainer recomputes and serves running totals.
type Maintainer struct {
	store  *db.Store
	now    func() time.Time
	logger *log.Entry
}

// NewMaintainer creates a maintainer over store.
func NewMaintainer(store *db.Store) *Maintainer {
	return &Maintainer{
		store:  store,
		now:    time.Now,
		logger: log.WithField("component", "totals"),
	}
}

// WithClock overrides the wall clock, for tests.
func (m *Maintainer) WithClock(now func() time.Time) *Maintainer {
	m.now = now
	return m
}

func checkKind(kind models.TotalKind) error {
	if !kind.IsValid() {
		return &db.NotFoundError{Collection: string(kind)}
	}
	return nil
}

// Sum computes a running total from entries without touching the store.
// LastUpdated is the newest CreatedAt; with no entries it is now.
func Sum(kind models.TotalKind, entries []models.SavingsEntry, now time.Time) models.RunningTotal {
	total := decimal.Zero
	var last time.Time
	for _, e := range entries {
		total = total.Add(decimal.NewFromFloat(e.Amount))
		if e.CreatedAt.After(last) {
			last = e.CreatedAt
		}
	}
	if last.IsZero() {
		last = now
	}
	return models.RunningTotal{
		ID:          kind,
		Total:       total.InexactFloat64(),
		LastUpdated: last,
		RecordCount: len(entries),
	}
}

// Recompute reads every entry of kind's collection and writes the cached total.
func (m *Maintainer) Recompute(ctx context.Context, kind models.TotalKind) (models.RunningTotal, error) {
	if err := checkKind(kind); err != nil {
		return models.RunningTotal{}, err
	}
	entries, err := db.List[models.SavingsEntry](ctx, m.store, kind.Collection(), "")
	if err != nil {
		return models.RunningTotal{}, err
	}
	rt := Sum(kind, entries, m.now())
	if err := m.store.PutDocument(ctx, models.DocumentsTotals, string(kind), rt); err != nil {
		return models.RunningTotal{}, err
	}
	m.logger.WithFields(log.Fields{
		"kind":    kind,
		"total":   rt.Total,
		"records": rt.RecordCount,
	}).Debug("Running total recomputed")
	return rt, nil
}

// Rebuild recomputes every tracked kind.
func (m *Maintainer) Rebuild(ctx context.Context) error {
	for _, kind := range models.TotalKinds {
		if _, err := m.Recompute(ctx, kind); err != nil {
			return fmt.Errorf("rebuilding %s total: %w", kind, err)
		}
	}
	return nil
}

// Current returns the cached total, or a zero total stamped now when nothing
// has been cached yet.
func (m *Maintainer) Current(ctx context.Context, kind models.TotalKind) (models.RunningTotal, error) {
	if err := checkKind(kind); err != nil {
		return models.RunningTotal{}, err
	}
	var rt models.RunningTotal
	found, err := m.store.GetDocument(ctx, models.DocumentsTotals, string(kind), &rt)
	if err != nil {
		return models.RunningTotal{}, err
	}
	if !found {
		return models.RunningTotal{ID: kind, LastUpdated: m.now()}, nil
	}
	return rt, nil
}

// Goal returns the saved car goal amount, 0 when unset.
func (m *Maintainer) Goal(ctx context.Context) (float64, error) {
	var setting models.Setting
	found, err := m.store.GetDocument(ctx, models.DocumentsSettings, models.SettingCarGoal, &setting)
	if err != nil || !found {
		return 0, err
	}
	var goal models.CarGoal
	if err := decodeGoal(setting.Value, &goal); err != nil {
		m.logger.WithError(err).Warn("Ignoring malformed car goal setting")
		return 0, nil
	}
	return goal.Amount, nil
}

// Breakdown groups kind's entries by description.
func (m *Maintainer) Breakdown(ctx context.Context, kind models.TotalKind) (Breakdown, error) {
	if err := checkKind(kind); err != nil {
		return Breakdown{}, err
	}
	entries, err := db.List[models.SavingsEntry](ctx, m.store, kind.Collection(), "")
	if err != nil {
		return Breakdown{}, err
	}
	goal, err := m.Goal(ctx)
	if err != nil {
		return Breakdown{}, err
	}
	return BreakdownBySource(kind, entries, goal), nil
}

// BreakdownBySource computes per-source sums and percentages. Percentages
// are 0 when the grand total is 0; progress is capped at 100.
func BreakdownBySource(kind models.TotalKind, entries []models.SavingsEntry, goal float64) Breakdown {
	sums := map[string]decimal.Decimal{}
	counts := map[string]int{}
	order := []string{}
	total := decimal.Zero
	for _, e := range entries {
		amount := decimal.NewFromFloat(e.Amount)
		if _, seen := sums[e.Description]; !seen {
			order = append(order, e.Description)
			sums[e.Description] = decimal.Zero
		}
		sums[e.Description] = sums[e.Description].Add(amount)
		counts[e.Description]++
		total = total.Add(amount)
	}

	hundred := decimal.NewFromInt(100)
	buckets := make([]Bucket, 0, len(order))
	for _, source := range order {
		pct := decimal.Zero
		if !total.IsZero() {
			pct = sums[source].Div(total).Mul(hundred)
		}
		buckets = append(buckets, Bucket{
			Source:  source,
			Amount:  sums[source].InexactFloat64(),
			Percent: pct.Round(2).InexactFloat64(),
			Count:   counts[source],
		})
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Amount > buckets[j].Amount
	})

	progress := decimal.Zero
	if goal > 0 {
		progress = total.Div(decimal.NewFromFloat(goal)).Mul(hundred)
		if progress.GreaterThan(hundred) {
			progress = hundred
		}
		if progress.IsNegative() {
			progress = decimal.Zero
		}
	}

	return Breakdown{
		Kind:     kind,
		Total:    total.InexactFloat64(),
		Buckets:  buckets,
		Goal:     goal,
		Progress: progress.Round(2).InexactFloat64(),
	}
}

// decodeGoal accepts either a bare number or a CarGoal object.
func decodeGoal(raw []byte, goal *models.CarGoal) error {
	var amount float64
	if err := json.Unmarshal(raw, &amount); err == nil {
		goal.Amount = amount
		return nil
	}
	return json.Unmarshal(raw, goal)
}
