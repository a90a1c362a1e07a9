package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-ledger/internal/db"
	"github.com/ukydev/vehicle-ledger/internal/models"
	"github.com/ukydev/vehicle-ledger/internal/totals"
)

// Adapter moves whole-ledger bundles in and out of a store.
type Adapter struct {
	store    *db.Store
	totals   *totals.Maintainer
	validate func(any) error
	now      func() time.Time
	logger   *log.Entry
}

// NewAdapter creates an adapter. validate, when non-nil, is applied to every
// imported record before anything is written.
func NewAdapter(store *db.Store, maintainer *totals.Maintainer, validate func(any) error) *Adapter {
	return &Adapter{
		store:    store,
		totals:   maintainer,
		validate: validate,
		now:      time.Now,
		logger:   log.WithField("component", "backup"),
	}
}

// WithClock overrides the wall clock, for tests.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	a.now = now
	return a
}

// Export snapshots every collection, the profile and the settings. The owner
// credential is not part of a bundle.
func (a *Adapter) Export(ctx context.Context) (*Bundle, error) {
	now := a.now()
	b := &Bundle{
		Meta: Meta{ExportedAt: now.UTC(), Version: FormatVersion, ExportID: uuid.NewString()},
	}

	profile, err := a.store.Profile(ctx, now)
	if err != nil {
		return nil, err
	}
	b.Profile = &profile

	docs, err := a.store.Documents(ctx, models.DocumentsSettings)
	if err != nil {
		return nil, err
	}
	b.Settings = make([]models.Setting, 0, len(docs))
	for _, d := range docs {
		if d.Key == models.SettingOwner {
			continue
		}
		var s models.Setting
		if err := json.Unmarshal(d.Body, &s); err != nil {
			return nil, fmt.Errorf("decoding setting %s: %w", d.Key, err)
		}
		s.Key = d.Key
		b.Settings = append(b.Settings, s)
	}

	if b.Savings, err = db.List[models.SavingsEntry](ctx, a.store, models.CollectionSavings, ""); err != nil {
		return nil, err
	}
	if b.CarSavings, err = db.List[models.SavingsEntry](ctx, a.store, models.CollectionCarSavings, ""); err != nil {
		return nil, err
	}
	if b.Maintenance, err = db.List[models.MaintenanceRecord](ctx, a.store, models.CollectionMaintenance, ""); err != nil {
		return nil, err
	}
	if b.Fuel, err = db.List[models.FuelLog](ctx, a.store, models.CollectionFuel, ""); err != nil {
		return nil, err
	}
	if b.Parts, err = db.List[models.Part](ctx, a.store, models.CollectionParts, ""); err != nil {
		return nil, err
	}
	if b.Suppliers, err = db.List[models.Supplier](ctx, a.store, models.CollectionSuppliers, ""); err != nil {
		return nil, err
	}
	if b.Expenses, err = db.List[models.Expense](ctx, a.store, models.CollectionExpenses, ""); err != nil {
		return nil, err
	}

	a.logger.WithFields(log.Fields{
		"export_id":   b.Meta.ExportID,
		"maintenance": len(b.Maintenance),
		"fuel":        len(b.Fuel),
		"expenses":    len(b.Expenses),
	}).Info("Ledger exported")
	return b, nil
}

// Import restores a bundle. Each collection present in raw is replaced in one
// unit of work; a failure in one collection does not stop the others. Keys
// missing from the bundle are skipped and leave the store untouched. Record
// ids are preserved; records without an id are numbered after the highest id
// in their collection. Running totals are rebuilt afterwards. When that or
// the link check fails the report is returned together with the error.
func (a *Adapter) Import(ctx context.Context, raw []byte) (*Report, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, db.NewValidationError("bundle", fmt.Sprintf("not a JSON object: %v", err))
	}
	if top == nil {
		return nil, db.NewValidationError("bundle", "not a JSON object")
	}

	report := newReport()

	if body, ok := top["profile"]; ok && !isNull(body) {
		if err := a.importProfile(ctx, body); err != nil {
			report.Failed["profile"] = err
		} else {
			report.Succeeded["profile"] = 1
		}
	} else {
		report.Skipped = append(report.Skipped, "profile")
	}

	if body, ok := top["settings"]; ok {
		n, err := a.importSettings(ctx, body)
		if err != nil {
			report.Failed["settings"] = err
		} else {
			report.Succeeded["settings"] = n
		}
	} else {
		report.Skipped = append(report.Skipped, "settings")
	}

	for _, name := range collectionKeys {
		body, ok := lookup(top, name)
		if !ok {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		n, err := a.importCollection(ctx, name, body)
		if err != nil {
			report.Failed[name] = err
			a.logger.WithError(err).WithField("collection", name).Warn("Collection import failed")
			continue
		}
		report.Succeeded[name] = n
	}

	if a.totals != nil {
		if err := a.totals.Rebuild(ctx); err != nil {
			return a.abort(report, fmt.Errorf("rebuilding totals: %w", err))
		}
	}

	dangling, err := a.danglingLinks(ctx)
	if err != nil {
		return a.abort(report, fmt.Errorf("checking expense links: %w", err))
	}
	report.DanglingLinks = dangling

	a.logger.WithFields(log.Fields{
		"succeeded": len(report.Succeeded),
		"failed":    len(report.Failed),
		"skipped":   len(report.Skipped),
		"dangling":  len(dangling),
	}).Info("Ledger imported")
	return report, nil
}

// abort records a failure that happened after collections were written. The
// report is still returned so callers can say what was restored.
func (a *Adapter) abort(report *Report, err error) (*Report, error) {
	report.Err = err
	a.logger.WithError(err).WithFields(log.Fields{
		"succeeded": len(report.Succeeded),
		"failed":    len(report.Failed),
	}).Error("Ledger import incomplete")
	return report, err
}

func lookup(top map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	if body, ok := top[name]; ok {
		return body, true
	}
	for _, alias := range aliases[name] {
		if body, ok := top[alias]; ok {
			return body, true
		}
	}
	return nil, false
}

func isNull(body json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(body), []byte("null"))
}

func asArray(name string, body json.RawMessage) ([]json.RawMessage, error) {
	var items []json.RawMessage
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, db.NewValidationError(name, "expected an array")
	}
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, db.NewValidationError(name, err.Error())
	}
	return items, nil
}

func (a *Adapter) check(v any) error {
	if a.validate == nil {
		return nil
	}
	return a.validate(v)
}

func (a *Adapter) importCollection(ctx context.Context, name string, body json.RawMessage) (int, error) {
	items, err := asArray(name, body)
	if err != nil {
		return 0, err
	}

	records := make([]models.Record, 0, len(items))
	var maxID int64
	for i, item := range items {
		rec, err := a.store.Decode(name, db.Row{Body: item})
		if err != nil {
			return 0, db.NewValidationError(name, fmt.Sprintf("record %d: %v", i, err))
		}
		var probe struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(item, &probe); err != nil {
			return 0, db.NewValidationError(name, fmt.Sprintf("record %d: %v", i, err))
		}
		rec.SetID(probe.ID)
		if err := a.check(rec); err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
		maxID = max(maxID, probe.ID)
	}

	rows := make([]db.Row, 0, len(records))
	for _, rec := range records {
		if rec.GetID() <= 0 {
			maxID++
			rec.SetID(maxID)
		}
		encoded, err := json.Marshal(rec)
		if err != nil {
			return 0, err
		}
		rows = append(rows, db.Row{ID: rec.GetID(), Body: encoded})
	}

	if err := a.store.Replace(ctx, name, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (a *Adapter) importProfile(ctx context.Context, body json.RawMessage) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return db.NewValidationError("profile", "expected an object")
	}
	profile := models.NewProfile(a.now())
	if err := json.Unmarshal(trimmed, &profile); err != nil {
		return db.NewValidationError("profile", err.Error())
	}
	if err := a.check(&profile); err != nil {
		return err
	}
	return a.store.SaveProfile(ctx, profile)
}

func (a *Adapter) importSettings(ctx context.Context, body json.RawMessage) (int, error) {
	items, err := asArray("settings", body)
	if err != nil {
		return 0, err
	}
	settings := make([]models.Setting, 0, len(items))
	for i, item := range items {
		var s models.Setting
		if err := json.Unmarshal(item, &s); err != nil {
			return 0, db.NewValidationError("settings", fmt.Sprintf("setting %d: %v", i, err))
		}
		if s.Key == "" {
			return 0, db.NewValidationError("settings", fmt.Sprintf("setting %d has no key", i))
		}
		if s.Key == models.SettingOwner {
			continue
		}
		settings = append(settings, s)
	}
	for _, s := range settings {
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = a.now()
		}
		if err := a.store.PutDocument(ctx, models.DocumentsSettings, s.Key, s); err != nil {
			return 0, err
		}
	}
	return len(settings), nil
}

// danglingLinks finds expenses pointing at maintenance records that do not
// exist in the store.
func (a *Adapter) danglingLinks(ctx context.Context) ([]int64, error) {
	expenses, err := db.List[models.Expense](ctx, a.store, models.CollectionExpenses, "")
	if err != nil {
		return nil, err
	}
	visits, err := db.List[models.MaintenanceRecord](ctx, a.store, models.CollectionMaintenance, "")
	if err != nil {
		return nil, err
	}
	known := make(map[int64]bool, len(visits))
	for _, v := range visits {
		known[v.ID] = true
	}
	dangling := []int64{}
	for _, e := range expenses {
		if e.LinkedMaintenanceID != nil && !known[*e.LinkedMaintenanceID] {
			dangling = append(dangling, e.ID)
		}
	}
	return dangling, nil
}
