package ledger

import (
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/vehicle-ledger/internal/db"
	"github.com/ukydev/vehicle-ledger/internal/models"
	"github.com/ukydev/vehicle-ledger/internal/reminders"
)

var fixedNow = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	backend, err := db.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), db.DefaultCollections())
	require.NoError(t, err)
	store := db.NewStore(backend)
	t.Cleanup(func() { store.Close() })
	return New(store, reminders.DefaultThresholds()).WithClock(func() time.Time { return fixedNow })
}

func mustDate(t *testing.T, s string) models.Date {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestAddRecord_Validation(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	tests := []struct {
		name       string
		collection string
		rec        models.Record
		field      string
	}{
		{"nan amount", models.CollectionSavings, &models.SavingsEntry{Amount: math.NaN()}, "amount"},
		{"infinite amount", models.CollectionExpenses, &models.Expense{Amount: math.Inf(1)}, "amount"},
		{"negative liters", models.CollectionFuel, &models.FuelLog{Liters: -1}, "liters"},
		{"rating out of range", models.CollectionSuppliers, &models.Supplier{Name: "x", Rating: 6}, "rating"},
		{"bad service cost", models.CollectionMaintenance, &models.MaintenanceRecord{
			Services: []models.Service{{Name: "Oil", Cost: math.Inf(-1)}},
		}, "services[0].cost"},
		{"bad trigger type", models.CollectionMaintenance, &models.MaintenanceRecord{
			Services: []models.Service{{Name: "Oil", NextService: &models.NextService{Type: "weekly"}}},
		}, "services[0].nextService.type"},
		{"unreadable date trigger", models.CollectionMaintenance, &models.MaintenanceRecord{
			Services: []models.Service{{Name: "Oil", NextService: &models.NextService{Type: models.TriggerDate, Value: json.RawMessage(`"not-a-date"`)}}},
		}, "services[0].nextService.value"},
		{"unreadable odometer trigger", models.CollectionMaintenance, &models.MaintenanceRecord{
			Services: []models.Service{
				{Name: "Filter", NextService: models.OdometerTrigger(20000)},
				{Name: "Oil", NextService: &models.NextService{Type: models.TriggerOdometer, Value: json.RawMessage(`"abc"`)}},
			},
		}, "services[1].nextService.value"},
		{"empty trigger value", models.CollectionMaintenance, &models.MaintenanceRecord{
			Services: []models.Service{{Name: "Oil", NextService: &models.NextService{Type: models.TriggerOdometer}}},
		}, "services[0].nextService.value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.AddRecord(ctx, tt.collection, tt.rec)
			require.Error(t, err)
			var verr *db.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	rows, err := l.Store().Rows(ctx, models.CollectionSavings, "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAddRecord_UnknownCollection(t *testing.T) {
	_, err := newTestLedger(t).AddRecord(context.Background(), "trips", &models.Part{})
	assert.True(t, db.IsNotFound(err))
}

func TestSavings_TotalsFollowMutations(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	rt, err := l.GetRunningTotal(ctx, models.TotalCarSavings)
	require.NoError(t, err)
	assert.Zero(t, rt.Total)
	assert.Equal(t, fixedNow, rt.LastUpdated)

	a := &models.SavingsEntry{Amount: 100.1, Description: "salary"}
	b := &models.SavingsEntry{Amount: 0.2, Description: "gift"}
	_, err = l.AddRecord(ctx, models.CollectionCarSavings, a)
	require.NoError(t, err)
	_, err = l.AddRecord(ctx, models.CollectionCarSavings, b)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, a.CreatedAt)

	rt, err = l.GetRunningTotal(ctx, models.TotalCarSavings)
	require.NoError(t, err)
	assert.Equal(t, 100.3, rt.Total)
	assert.Equal(t, 2, rt.RecordCount)

	b.Amount = 50
	require.NoError(t, l.UpdateRecord(ctx, models.CollectionCarSavings, b))
	rt, err = l.GetRunningTotal(ctx, models.TotalCarSavings)
	require.NoError(t, err)
	assert.Equal(t, 150.1, rt.Total)

	require.NoError(t, l.DeleteRecord(ctx, models.CollectionCarSavings, a.ID))
	rt, err = l.GetRunningTotal(ctx, models.TotalCarSavings)
	require.NoError(t, err)
	assert.Equal(t, 50.0, rt.Total)
	assert.Equal(t, 1, rt.RecordCount)

	require.NoError(t, l.ClearCollection(ctx, models.CollectionCarSavings))
	rt, err = l.GetRunningTotal(ctx, models.TotalCarSavings)
	require.NoError(t, err)
	assert.Zero(t, rt.Total)

	other, err := l.GetRunningTotal(ctx, models.TotalSavings)
	require.NoError(t, err)
	assert.Zero(t, other.RecordCount)
}

func TestFuel_DerivesCostAndRaisesOdometer(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	first := &models.FuelLog{Date: mustDate(t, "2025-06-01"), Odometer: 1000, Liters: 10, PricePerLiter: 1.8}
	_, err := l.AddRecord(ctx, models.CollectionFuel, first)
	require.NoError(t, err)
	assert.Equal(t, 18.0, first.TotalCost)

	second := &models.FuelLog{Date: mustDate(t, "2025-06-20"), Odometer: 1400, Liters: 30, TotalCost: 57}
	_, err = l.AddRecord(ctx, models.CollectionFuel, second)
	require.NoError(t, err)
	assert.Equal(t, 1.9, second.PricePerLiter)

	p, err := l.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1400.0, p.Odometer)

	// an older fill-up logged late does not wind the odometer back
	_, err = l.AddRecord(ctx, models.CollectionFuel, &models.FuelLog{Odometer: 600, Liters: 20, PricePerLiter: 1.7})
	require.NoError(t, err)
	p, err = l.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1400.0, p.Odometer)

	setting, found, err := l.GetSetting(ctx, models.SettingLastFuelPrice)
	require.NoError(t, err)
	require.True(t, found)
	var price models.FuelPrice
	require.NoError(t, json.Unmarshal(setting.Value, &price))
	assert.Equal(t, 1.7, price.PricePerLiter)
	assert.Equal(t, "2025-07-01", price.Date.String())

	summary, err := l.GetFuelEfficiency(ctx)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Len(t, summary.Intervals, 2)
}

func TestFuelEfficiency_Empty(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	summary, err := l.GetFuelEfficiency(ctx)
	require.NoError(t, err)
	assert.Nil(t, summary)

	_, err = l.AddRecord(ctx, models.CollectionFuel, &models.FuelLog{Odometer: 100, Liters: 10})
	require.NoError(t, err)
	summary, err = l.GetFuelEfficiency(ctx)
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestMaintenance_LinkedExpenseAndCascade(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	visit := &models.MaintenanceRecord{
		Date:     mustDate(t, "2025-06-15"),
		Odometer: 52000,
		Supplier: "Garage A",
		Services: []models.Service{
			{Name: "Oil", Cost: 75.5},
			{Name: "Filter", Cost: 14.5},
		},
		CreateExpense: true,
	}
	_, err := l.AddRecord(ctx, models.CollectionMaintenance, visit)
	require.NoError(t, err)
	assert.Equal(t, 90.0, visit.TotalCost)

	plain := &models.MaintenanceRecord{Odometer: 51000, Services: []models.Service{{Name: "Wash", Cost: 10}}}
	_, err = l.AddRecord(ctx, models.CollectionMaintenance, plain)
	require.NoError(t, err)

	_, err = l.AddRecord(ctx, models.CollectionExpenses, &models.Expense{Description: "Parking", Amount: 4})
	require.NoError(t, err)

	expenses, err := l.ListRecords(ctx, models.CollectionExpenses, "")
	require.NoError(t, err)
	require.Len(t, expenses, 2)
	linked := expenses[0].(*models.Expense)
	assert.Equal(t, "Maintenance: Oil +1", linked.Description)
	assert.Equal(t, ExpenseCategoryMaintenance, linked.Category)
	assert.Equal(t, 90.0, linked.Amount)
	require.NotNil(t, linked.LinkedMaintenanceID)
	assert.Equal(t, visit.ID, *linked.LinkedMaintenanceID)

	p, err := l.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 52000.0, p.Odometer)

	require.NoError(t, l.DeleteRecord(ctx, models.CollectionMaintenance, plain.ID))
	expenses, err = l.ListRecords(ctx, models.CollectionExpenses, "")
	require.NoError(t, err)
	assert.Len(t, expenses, 2)

	require.NoError(t, l.DeleteRecord(ctx, models.CollectionMaintenance, visit.ID))
	expenses, err = l.ListRecords(ctx, models.CollectionExpenses, "")
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, "Parking", expenses[0].(*models.Expense).Description)

	_, err = l.GetRecord(ctx, models.CollectionMaintenance, visit.ID)
	assert.True(t, db.IsNotFound(err))
}

func TestUpdateRecord(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	part := &models.Part{SKU: "BP-1", Name: "Brake pads", UnitPrice: 45}
	require.NoError(t, l.UpdateRecord(ctx, models.CollectionParts, part), "zero id adds")
	require.NotZero(t, part.ID)

	part.UnitPrice = 49
	require.NoError(t, l.UpdateRecord(ctx, models.CollectionParts, part))
	got, err := l.GetRecord(ctx, models.CollectionParts, part.ID)
	require.NoError(t, err)
	assert.Equal(t, 49.0, got.(*models.Part).UnitPrice)

	err = l.UpdateRecord(ctx, models.CollectionParts, &models.Part{ID: 404})
	assert.True(t, db.IsNotFound(err))
}

func TestUpcomingAndMarkComplete(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	due := models.NewDate(fixedNow.AddDate(0, 0, 3))
	visit := &models.MaintenanceRecord{
		Odometer:        30000,
		NextServiceDate: &due,
		Services:        []models.Service{{Name: "Oil", Cost: 60, NextService: models.OdometerTrigger(39000)}},
	}
	_, err := l.AddRecord(ctx, models.CollectionMaintenance, visit)
	require.NoError(t, err)

	rs, err := l.GetUpcomingServices(ctx)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, reminders.StatusUrgent, rs[0].Status)
	assert.Equal(t, reminders.StatusUpcoming, rs[1].Status)

	_, err = l.MarkServiceComplete(ctx, visit.ID, 0, reminders.Completion{
		Completion: models.Completion{Odometer: math.Inf(1)},
	})
	assert.True(t, db.IsValidation(err))

	_, err = l.MarkServiceComplete(ctx, visit.ID, 0, reminders.Completion{
		Completion: models.Completion{Odometer: 38900},
		Next:       models.OdometerTrigger(48900),
	})
	require.NoError(t, err)

	p, err := l.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 38900.0, p.Odometer)
}

func TestSetOdometer_ManualCorrection(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.AddRecord(ctx, models.CollectionFuel, &models.FuelLog{Odometer: 99999, Liters: 30})
	require.NoError(t, err)

	p, err := l.SetOdometer(ctx, 9999)
	require.NoError(t, err)
	assert.Equal(t, 9999.0, p.Odometer)
	assert.Equal(t, fixedNow, p.UpdatedAt)

	_, err = l.SetOdometer(ctx, -5)
	assert.True(t, db.IsValidation(err))
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, found, err := l.GetSetting(ctx, models.SettingUI)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = l.PutSetting(ctx, models.SettingUI, json.RawMessage(`{"theme":"dark"}`))
	require.NoError(t, err)
	_, err = l.PutSetting(ctx, models.SettingUI, json.RawMessage(`{"theme":"light"}`))
	require.NoError(t, err)
	s, found, err := l.GetSetting(ctx, models.SettingUI)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"theme":"light"}`, string(s.Value))

	_, err = l.PutSetting(ctx, models.SettingCarGoal, json.RawMessage(`-10`))
	assert.True(t, db.IsValidation(err))
	_, err = l.PutSetting(ctx, models.SettingCarGoal, json.RawMessage(`"a lot"`))
	assert.True(t, db.IsValidation(err))
	_, err = l.PutSetting(ctx, models.SettingCarGoal, json.RawMessage(`{"amount":8000,"name":"Estate"}`))
	require.NoError(t, err)

	_, err = l.PutSetting(ctx, models.SettingOwner, json.RawMessage(`{}`))
	assert.True(t, db.IsValidation(err))
	_, _, err = l.GetSetting(ctx, models.SettingOwner)
	assert.True(t, db.IsValidation(err))
	_, err = l.PutSetting(ctx, "ui", json.RawMessage(`{`))
	assert.True(t, db.IsValidation(err))

	_, err = l.AddRecord(ctx, models.CollectionCarSavings, &models.SavingsEntry{Amount: 2000, Description: "salary"})
	require.NoError(t, err)
	b, err := l.GetBreakdown(ctx, models.TotalCarSavings)
	require.NoError(t, err)
	assert.Equal(t, 25.0, b.Progress)
}

func TestExportImportAll(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.AddRecord(ctx, models.CollectionSavings, &models.SavingsEntry{Amount: 12, Description: "gift"})
	require.NoError(t, err)
	bundle, err := l.ExportAll(ctx)
	require.NoError(t, err)
	raw, err := json.Marshal(bundle)
	require.NoError(t, err)

	require.NoError(t, l.ClearCollection(ctx, models.CollectionSavings))
	report, err := l.ImportAll(ctx, raw)
	require.NoError(t, err)
	assert.True(t, report.OK())

	rt, err := l.GetRunningTotal(ctx, models.TotalSavings)
	require.NoError(t, err)
	assert.Equal(t, 12.0, rt.Total)

	report, err = l.ImportAll(ctx, []byte(`{"fuel":[{"id":1,"liters":-4}]}`))
	require.NoError(t, err)
	assert.True(t, db.IsValidation(report.Failed[models.CollectionFuel]))
}

func TestTriggerValues_CheckedOnUpdateAndImport(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	visit := &models.MaintenanceRecord{
		Date:     mustDate(t, "2025-06-01"),
		Services: []models.Service{{Name: "Oil", NextService: models.OdometerTrigger(20000)}},
	}
	_, err := l.AddRecord(ctx, models.CollectionMaintenance, visit)
	require.NoError(t, err)

	visit.Services[0].NextService = &models.NextService{Type: models.TriggerDate, Value: json.RawMessage(`"2025-13-45"`)}
	err = l.UpdateRecord(ctx, models.CollectionMaintenance, visit)
	var verr *db.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "services[0].nextService.value", verr.Field)

	stored, err := l.GetRecord(ctx, models.CollectionMaintenance, visit.ID)
	require.NoError(t, err)
	km, err := stored.(*models.MaintenanceRecord).Services[0].NextService.DueKm()
	require.NoError(t, err)
	assert.Equal(t, 20000.0, km)

	report, err := l.ImportAll(ctx, []byte(`{"maintenance": [
		{"id": 7, "date": "2025-06-01", "services": [{"name": "Oil", "nextService": {"type": "odometer", "value": "abc"}}]}
	]}`))
	require.NoError(t, err)
	require.Contains(t, report.Failed, models.CollectionMaintenance)
	require.ErrorAs(t, report.Failed[models.CollectionMaintenance], &verr)
	assert.Equal(t, "services[0].nextService.value", verr.Field)

	// the failed collection is left as it was
	rs, err := l.GetUpcomingServices(ctx)
	require.NoError(t, err)
	assert.Len(t, rs, 1)

	// numeric strings from older exports are still accepted
	report, err = l.ImportAll(ctx, []byte(`{"maintenance": [
		{"id": 7, "date": "2025-06-01", "services": [{"name": "Oil", "nextService": {"type": "odometer", "value": "25000"}}]}
	]}`))
	require.NoError(t, err)
	assert.True(t, report.OK())
}
