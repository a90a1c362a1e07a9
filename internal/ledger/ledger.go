// Package ledger is the single entry point the API and CLI use. It wraps the
// record store with validation and keeps derived state current: running
// totals, the profile odometer, linked expenses and the last fuel price.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-ledger/internal/backup"
	"github.com/ukydev/vehicle-ledger/internal/db"
	"github.com/ukydev/vehicle-ledger/internal/fuel"
	"github.com/ukydev/vehicle-ledger/internal/models"
	"github.com/ukydev/vehicle-ledger/internal/reminders"
	"github.com/ukydev/vehicle-ledger/internal/totals"
)

// ExpenseCategoryMaintenance tags expenses generated from maintenance visits.
const ExpenseCategoryMaintenance = "maintenance"

// Ledger coordinates the store and the derived-state components.
type Ledger struct {
	store     *db.Store
	totals    *totals.Maintainer
	reminders *reminders.Engine
	backup    *backup.Adapter
	validate  *validator.Validate
	now       func() time.Time
	logger    *log.Entry
}

// New wires a ledger over store.
func New(store *db.Store, th reminders.Thresholds) *Ledger {
	l := &Ledger{
		store:     store,
		totals:    totals.NewMaintainer(store),
		reminders: reminders.NewEngine(store, th),
		validate:  newValidator(),
		now:       time.Now,
		logger:    log.WithField("component", "ledger"),
	}
	l.backup = backup.NewAdapter(store, l.totals, l.Validate)
	return l
}

// WithClock overrides the wall clock of the ledger and its components.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	l.totals.WithClock(now)
	l.reminders.WithClock(now)
	l.backup.WithClock(now)
	return l
}

// Store exposes the underlying record store.
func (l *Ledger) Store() *db.Store { return l.store }

// Reminders exposes the reminder engine, for the scheduler.
func (l *Ledger) Reminders() *reminders.Engine { return l.reminders }

// NewRecord returns an empty record of the collection's type.
func (l *Ledger) NewRecord(collection string) (models.Record, error) {
	c, err := l.store.Collection(collection)
	if err != nil {
		return nil, err
	}
	return c.New(), nil
}

// ListRecords returns every record of a collection, ordered by orderBy when
// it names an indexed field.
func (l *Ledger) ListRecords(ctx context.Context, collection, orderBy string) ([]models.Record, error) {
	rows, err := l.store.Rows(ctx, collection, orderBy)
	if err != nil {
		return nil, err
	}
	out := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := l.store.Decode(collection, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetRecord returns one record or a NotFoundError.
func (l *Ledger) GetRecord(ctx context.Context, collection string, id int64) (models.Record, error) {
	rec, err := l.NewRecord(collection)
	if err != nil {
		return nil, err
	}
	found, err := l.store.Read(ctx, collection, id, rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &db.NotFoundError{Collection: collection, ID: id}
	}
	return rec, nil
}

// AddRecord validates and stores a new record, then refreshes derived state.
func (l *Ledger) AddRecord(ctx context.Context, collection string, rec models.Record) (int64, error) {
	if err := l.prepare(rec); err != nil {
		return 0, err
	}
	id, err := l.store.Create(ctx, collection, rec)
	if err != nil {
		return 0, err
	}
	if m, ok := rec.(*models.MaintenanceRecord); ok && m.CreateExpense {
		if err := l.addLinkedExpense(ctx, m); err != nil {
			return id, err
		}
	}
	return id, l.afterWrite(ctx, collection, rec)
}

// UpdateRecord replaces a record in full. A zero id adds it instead.
func (l *Ledger) UpdateRecord(ctx context.Context, collection string, rec models.Record) error {
	if rec.GetID() == 0 {
		_, err := l.AddRecord(ctx, collection, rec)
		return err
	}
	if err := l.prepare(rec); err != nil {
		return err
	}
	if err := l.store.Update(ctx, collection, rec); err != nil {
		return err
	}
	return l.afterWrite(ctx, collection, rec)
}

// DeleteRecord removes a record; maintenance deletes cascade to linked
// expenses. Deleting an absent record is a no-op.
func (l *Ledger) DeleteRecord(ctx context.Context, collection string, id int64) error {
	if err := l.store.Delete(ctx, collection, id); err != nil {
		return err
	}
	return l.recomputeIfTracked(ctx, collection)
}

// ClearCollection removes every record of a collection without cascades.
func (l *Ledger) ClearCollection(ctx context.Context, collection string) error {
	if err := l.store.Clear(ctx, collection); err != nil {
		return err
	}
	return l.recomputeIfTracked(ctx, collection)
}

// prepare fills derived fields and validates.
func (l *Ledger) prepare(rec models.Record) error {
	switch r := rec.(type) {
	case *models.FuelLog:
		fuel.FillCost(r)
	case *models.MaintenanceRecord:
		if r.TotalCost == 0 {
			r.TotalCost = r.ServicesTotal()
		}
	case *models.SavingsEntry:
		if r.CreatedAt.IsZero() {
			r.CreatedAt = l.now().UTC()
		}
	}
	return l.Validate(rec)
}

func (l *Ledger) afterWrite(ctx context.Context, collection string, rec models.Record) error {
	switch r := rec.(type) {
	case *models.FuelLog:
		if err := l.raiseOdometer(ctx, r.Odometer); err != nil {
			return err
		}
		if r.PricePerLiter > 0 {
			return l.rememberFuelPrice(ctx, r)
		}
	case *models.MaintenanceRecord:
		return l.raiseOdometer(ctx, r.Odometer)
	}
	return l.recomputeIfTracked(ctx, collection)
}

func (l *Ledger) recomputeIfTracked(ctx context.Context, collection string) error {
	kind := models.TotalKind(collection)
	if !kind.IsValid() {
		return nil
	}
	_, err := l.totals.Recompute(ctx, kind)
	return err
}

func (l *Ledger) raiseOdometer(ctx context.Context, km float64) error {
	_, err := l.store.RaiseOdometer(ctx, km, l.now())
	return err
}

func (l *Ledger) rememberFuelPrice(ctx context.Context, f *models.FuelLog) error {
	date := f.Date
	if date.IsZero() {
		date = models.NewDate(l.now())
	}
	_, err := l.putSetting(ctx, models.SettingLastFuelPrice, models.FuelPrice{PricePerLiter: f.PricePerLiter, Date: date})
	return err
}

// addLinkedExpense records the visit's cost in the expenses log. It runs
// after the maintenance record is committed; a failure here leaves the
// record in place and is returned to the caller.
func (l *Ledger) addLinkedExpense(ctx context.Context, m *models.MaintenanceRecord) error {
	id := m.ID
	expense := &models.Expense{
		Date:                m.Date,
		Description:         m.Title(),
		Category:            ExpenseCategoryMaintenance,
		Amount:              m.TotalCost,
		LinkedMaintenanceID: &id,
	}
	if _, err := l.store.Create(ctx, models.CollectionExpenses, expense); err != nil {
		return fmt.Errorf("maintenance %d saved but linked expense failed: %w", m.ID, err)
	}
	l.logger.WithFields(log.Fields{
		"maintenance_id": m.ID,
		"expense_id":     expense.ID,
		"amount":         expense.Amount,
	}).Info("Linked expense created")
	return nil
}

// GetRunningTotal returns the cached total for kind.
func (l *Ledger) GetRunningTotal(ctx context.Context, kind models.TotalKind) (models.RunningTotal, error) {
	return l.totals.Current(ctx, kind)
}

// GetBreakdown groups kind's entries by source.
func (l *Ledger) GetBreakdown(ctx context.Context, kind models.TotalKind) (totals.Breakdown, error) {
	return l.totals.Breakdown(ctx, kind)
}

// RebuildTotals recomputes every running total from the raw entries.
func (l *Ledger) RebuildTotals(ctx context.Context) error {
	return l.totals.Rebuild(ctx)
}

// GetFuelEfficiency summarizes the fuel log, or returns nil with fewer than
// two usable fill-ups.
func (l *Ledger) GetFuelEfficiency(ctx context.Context) (*fuel.Summary, error) {
	entries, err := db.List[models.FuelLog](ctx, l.store, models.CollectionFuel, "")
	if err != nil {
		return nil, err
	}
	return fuel.Summarize(entries), nil
}

// GetUpcomingServices classifies every armed maintenance trigger.
func (l *Ledger) GetUpcomingServices(ctx context.Context) ([]reminders.Reminder, error) {
	return l.reminders.Upcoming(ctx)
}

// MarkServiceComplete records a completed service; see reminders.Engine.
func (l *Ledger) MarkServiceComplete(ctx context.Context, maintenanceID int64, serviceIndex int, c reminders.Completion) (*models.MaintenanceRecord, error) {
	if err := l.Validate(&c.Completion); err != nil {
		return nil, err
	}
	return l.reminders.MarkComplete(ctx, maintenanceID, serviceIndex, c)
}

// GetProfile returns the vehicle profile.
func (l *Ledger) GetProfile(ctx context.Context) (models.Profile, error) {
	return l.store.Profile(ctx, l.now())
}

// SetOdometer is the manual correction path and may lower the reading.
func (l *Ledger) SetOdometer(ctx context.Context, km float64) (models.Profile, error) {
	p, err := l.store.Profile(ctx, l.now())
	if err != nil {
		return models.Profile{}, err
	}
	p.Odometer = km
	return l.UpdateProfile(ctx, p)
}

// UpdateProfile overwrites the profile, including service intervals.
func (l *Ledger) UpdateProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	p.ID = models.ProfileID
	p.UpdatedAt = l.now()
	if err := l.Validate(&p); err != nil {
		return models.Profile{}, err
	}
	if err := l.store.SaveProfile(ctx, p); err != nil {
		return models.Profile{}, err
	}
	l.logger.WithField("odometer", p.Odometer).Info("Profile updated")
	return p, nil
}

// GetSetting returns a setting; found is false when it was never written.
// The owner credential is not reachable through settings.
func (l *Ledger) GetSetting(ctx context.Context, key string) (models.Setting, bool, error) {
	if key == models.SettingOwner {
		return models.Setting{}, false, db.NewValidationError("key", "reserved setting")
	}
	var s models.Setting
	found, err := l.store.GetDocument(ctx, models.DocumentsSettings, key, &s)
	if err != nil {
		return models.Setting{}, false, err
	}
	return s, found, nil
}

// PutSetting creates or overwrites a setting with an arbitrary JSON value.
// A carGoal value must be a non-negative number or {amount, name}.
func (l *Ledger) PutSetting(ctx context.Context, key string, value json.RawMessage) (models.Setting, error) {
	if key == "" || key == models.SettingOwner {
		return models.Setting{}, db.NewValidationError("key", "reserved or empty setting key")
	}
	if !json.Valid(value) {
		return models.Setting{}, db.NewValidationError("value", "not valid JSON")
	}
	if key == models.SettingCarGoal {
		if err := l.checkGoal(value); err != nil {
			return models.Setting{}, err
		}
	}
	return l.putSetting(ctx, key, value)
}

func (l *Ledger) checkGoal(value json.RawMessage) error {
	var amount float64
	if err := json.Unmarshal(value, &amount); err == nil {
		return l.Validate(&models.CarGoal{Amount: amount})
	}
	var goal models.CarGoal
	if err := json.Unmarshal(value, &goal); err != nil {
		return db.NewValidationError("value", "car goal must be a number or {amount, name}")
	}
	return l.Validate(&goal)
}

func (l *Ledger) putSetting(ctx context.Context, key string, value any) (models.Setting, error) {
	raw, ok := value.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(value); err != nil {
			return models.Setting{}, db.NewValidationError("value", err.Error())
		}
	}
	s := models.Setting{Key: key, Value: raw, UpdatedAt: l.now()}
	if err := l.store.PutDocument(ctx, models.DocumentsSettings, key, s); err != nil {
		return models.Setting{}, err
	}
	return s, nil
}

// ExportAll snapshots the whole ledger.
func (l *Ledger) ExportAll(ctx context.Context) (*backup.Bundle, error) {
	return l.backup.Export(ctx)
}

// ImportAll restores a bundle and reports per collection.
func (l *Ledger) ImportAll(ctx context.Context, raw []byte) (*backup.Report, error) {
	return l.backup.Import(ctx, raw)
}
