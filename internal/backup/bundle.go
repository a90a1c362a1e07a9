// Package backup exports the whole ledger as a single bundle and restores it.
package backup

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ukydev/vehicle-ledger/internal/models"
)

// FormatVersion is written into every bundle's meta block.
const FormatVersion = "2.0"

// Meta describes when and by which build a bundle was produced.
type Meta struct {
	ExportedAt time.Time `json:"exportedAt"`
	Version    string    `json:"version"`
	ExportID   string    `json:"exportId,omitempty"`
}

// Bundle is the persisted export format.
type Bundle struct {
	Meta        Meta                       `json:"meta"`
	Profile     *models.Profile            `json:"profile,omitempty"`
	Settings    []models.Setting           `json:"settings"`
	Savings     []models.SavingsEntry      `json:"savings"`
	CarSavings  []models.SavingsEntry      `json:"carSavings"`
	Maintenance []models.MaintenanceRecord `json:"maintenance"`
	Fuel        []models.FuelLog           `json:"fuel"`
	Parts       []models.Part              `json:"parts"`
	Suppliers   []models.Supplier          `json:"suppliers"`
	Expenses    []models.Expense           `json:"expenses"`
}

// bundle keys that map onto a store collection, in restore order. Maintenance
// goes before expenses so link checks see the restored visits.
var collectionKeys = []string{
	models.CollectionSavings,
	models.CollectionCarSavings,
	models.CollectionMaintenance,
	models.CollectionFuel,
	models.CollectionParts,
	models.CollectionSuppliers,
	models.CollectionExpenses,
}

// aliases lists alternative bundle keys accepted on import.
var aliases = map[string][]string{
	models.CollectionFuel: {"fuelLogs"},
}

// records returns the bundle's slice for a collection as generic values.
func (b *Bundle) records(collection string) []any {
	var out []any
	appendAll := func(n int, at func(int) any) {
		for i := 0; i < n; i++ {
			out = append(out, at(i))
		}
	}
	switch collection {
	case models.CollectionSavings:
		appendAll(len(b.Savings), func(i int) any { return b.Savings[i] })
	case models.CollectionCarSavings:
		appendAll(len(b.CarSavings), func(i int) any { return b.CarSavings[i] })
	case models.CollectionMaintenance:
		appendAll(len(b.Maintenance), func(i int) any { return b.Maintenance[i] })
	case models.CollectionFuel:
		appendAll(len(b.Fuel), func(i int) any { return b.Fuel[i] })
	case models.CollectionParts:
		appendAll(len(b.Parts), func(i int) any { return b.Parts[i] })
	case models.CollectionSuppliers:
		appendAll(len(b.Suppliers), func(i int) any { return b.Suppliers[i] })
	case models.CollectionExpenses:
		appendAll(len(b.Expenses), func(i int) any { return b.Expenses[i] })
	}
	return out
}

// FileName returns the conventional download name for an export.
func FileName(now time.Time, ext string) string {
	return fmt.Sprintf("vehicle-ledger-%s.%s", now.Format(models.DateLayout), strings.TrimPrefix(ext, "."))
}

// Report says exactly which parts of an import were applied.
type Report struct {
	Succeeded map[string]int   `json:"succeeded"`
	Failed    map[string]error `json:"-"`
	Skipped   []string         `json:"skipped"`
	// DanglingLinks lists expense ids whose linkedMaintenanceId does not
	// resolve after the import.
	DanglingLinks []int64 `json:"danglingLinks"`
	// Err is set when a step after the collections were written failed.
	Err error `json:"-"`
}

func newReport() *Report {
	return &Report{
		Succeeded: map[string]int{},
		Failed:    map[string]error{},
		Skipped:   []string{},
	}
}

// OK reports whether every present collection was restored and the
// follow-up steps succeeded.
func (r *Report) OK() bool {
	return len(r.Failed) == 0 && r.Err == nil
}

// FailedCollections returns the names of failed collections, sorted.
func (r *Report) FailedCollections() []string {
	names := make([]string, 0, len(r.Failed))
	for name := range r.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON renders failures as messages.
func (r *Report) MarshalJSON() ([]byte, error) {
	failed := make(map[string]string, len(r.Failed))
	for name, err := range r.Failed {
		failed[name] = err.Error()
	}
	var msg string
	if r.Err != nil {
		msg = r.Err.Error()
	}
	type plain Report
	return json.Marshal(struct {
		*plain
		Failed map[string]string `json:"failed"`
		Error  string            `json:"error,omitempty"`
	}{plain: (*plain)(r), Failed: failed, Error: msg})
}
