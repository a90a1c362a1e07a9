package reminders

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-ledger/internal/db"
	"github.com/ukydev/vehicle-ledger/internal/models"
)

// Engine reads maintenance records and the profile odometer from a store.
type Engine struct {
	store      *db.Store
	thresholds Thresholds
	now        func() time.Time
	logger     *log.Entry
}

// NewEngine creates an engine with the given thresholds.
func NewEngine(store *db.Store, th Thresholds) *Engine {
	return &Engine{
		store:      store,
		thresholds: th,
		now:        time.Now,
		logger:     log.WithField("component", "reminders"),
	}
}

// WithClock overrides the wall clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Thresholds returns the configured cut-offs.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Upcoming scans every maintenance record against the current odometer.
func (e *Engine) Upcoming(ctx context.Context) ([]Reminder, error) {
	now := e.now()
	records, err := db.List[models.MaintenanceRecord](ctx, e.store, models.CollectionMaintenance, "")
	if err != nil {
		return nil, err
	}
	profile, err := e.store.Profile(ctx, now)
	if err != nil {
		return nil, err
	}
	return Upcoming(records, profile.Odometer, now, e.thresholds), nil
}

// Completion describes a finished service and, optionally, the trigger to
// arm for the next one.
type Completion struct {
	models.Completion
	Next *models.NextService `json:"nextService,omitempty"`
}

// MarkComplete records a completion on a service line, or on the visit when
// serviceIndex is RecordLevel. On a service line the trigger is replaced by
// c.Next, or cleared when c.Next is nil. On the visit c.Next replaces only
// the trigger of its own type; a nil c.Next clears both. A completion odometer above the profile's
// is propagated to it afterwards as a separate write.
func (e *Engine) MarkComplete(ctx context.Context, maintenanceID int64, serviceIndex int, c Completion) (*models.MaintenanceRecord, error) {
	rec, err := db.Get[models.MaintenanceRecord](ctx, e.store, models.CollectionMaintenance, maintenanceID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &db.NotFoundError{Collection: models.CollectionMaintenance, ID: maintenanceID}
	}
	if c.Date.IsZero() {
		c.Date = models.NewDate(e.now())
	}
	done := c.Completion

	switch {
	case serviceIndex == RecordLevel:
		if c.Next != nil {
			if err := armRecord(rec, c.Next); err != nil {
				return nil, err
			}
		} else {
			rec.NextServiceDate, rec.NextServiceKm = nil, nil
		}
		rec.LastCompleted = &done
	case serviceIndex >= 0 && serviceIndex < len(rec.Services):
		if c.Next != nil {
			if err := checkTrigger(c.Next); err != nil {
				return nil, err
			}
		}
		svc := &rec.Services[serviceIndex]
		svc.LastCompleted = &done
		svc.NextService = c.Next
	default:
		return nil, db.NewValidationError("serviceIndex",
			fmt.Sprintf("maintenance %d has no service %d", maintenanceID, serviceIndex))
	}

	if err := e.store.Update(ctx, models.CollectionMaintenance, rec); err != nil {
		return nil, err
	}
	e.logger.WithFields(log.Fields{
		"maintenance_id": maintenanceID,
		"service_index":  serviceIndex,
		"odometer":       done.Odometer,
	}).Info("Service marked complete")

	if _, err := e.store.RaiseOdometer(ctx, done.Odometer, e.now()); err != nil {
		return rec, err
	}
	return rec, nil
}

func checkTrigger(n *models.NextService) error {
	if n.Type != models.TriggerDate && n.Type != models.TriggerOdometer {
		return db.NewValidationError("nextService.type", fmt.Sprintf("unknown trigger type %q", n.Type))
	}
	if err := n.Check(); err != nil {
		return db.NewValidationError("nextService.value", err.Error())
	}
	return nil
}

func armRecord(rec *models.MaintenanceRecord, n *models.NextService) error {
	if err := checkTrigger(n); err != nil {
		return err
	}
	if n.Type == models.TriggerDate {
		d, _ := n.DueDate()
		rec.NextServiceDate = &d
		return nil
	}
	km, _ := n.DueKm()
	rec.NextServiceKm = &km
	return nil
}
