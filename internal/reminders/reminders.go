// Package reminders classifies upcoming maintenance by how close each
// next-due trigger is, by calendar days or by kilometres.
package reminders

import (
	"math"
	"sort"
	"time"

	"github.com/ukydev/vehicle-ledger/internal/models"
)

// Status is the urgency tier of a reminder.
type Status string

const (
	StatusOverdue  Status = "overdue"
	StatusUrgent   Status = "urgent"
	StatusWarning  Status = "warning"
	StatusUpcoming Status = "upcoming"
)

func (s Status) priority() int {
	switch s {
	case StatusOverdue:
		return 0
	case StatusUrgent:
		return 1
	case StatusWarning:
		return 2
	default:
		return 3
	}
}

// Unit is what Remaining is measured in.
type Unit string

const (
	UnitDays Unit = "days"
	UnitKm   Unit = "km"
)

// RecordLevel is the ServiceIndex of reminders armed on the visit itself
// rather than on one of its service lines.
const RecordLevel = -1

// Thresholds are the urgent and warning cut-offs for each trigger type.
type Thresholds struct {
	UrgentDays  float64 `json:"urgentDays" yaml:"urgentDays"`
	WarningDays float64 `json:"warningDays" yaml:"warningDays"`
	UrgentKm    float64 `json:"urgentKm" yaml:"urgentKm"`
	WarningKm   float64 `json:"warningKm" yaml:"warningKm"`
}

// DefaultThresholds returns 7/14 days and 500/1000 km.
func DefaultThresholds() Thresholds {
	return Thresholds{UrgentDays: 7, WarningDays: 14, UrgentKm: 500, WarningKm: 1000}
}

// Reminder is one armed trigger and its classification. It is computed
// fresh on every scan and never stored.
type Reminder struct {
	MaintenanceID int64              `json:"maintenanceId"`
	ServiceIndex  int                `json:"serviceIndex"`
	Service       string             `json:"service"`
	Supplier      string             `json:"supplier"`
	Trigger       models.TriggerType `json:"trigger"`
	DueDate       *models.Date       `json:"dueDate,omitempty"`
	DueKm         *float64           `json:"dueKm,omitempty"`
	Remaining     float64            `json:"remaining"`
	Unit          Unit               `json:"unit"`
	Status        Status             `json:"status"`
}

// Classify maps a remaining distance or day count to a tier.
func Classify(remaining, urgent, warning float64) Status {
	switch {
	case remaining <= 0:
		return StatusOverdue
	case remaining <= urgent:
		return StatusUrgent
	case remaining <= warning:
		return StatusWarning
	default:
		return StatusUpcoming
	}
}

// DaysUntil counts whole calendar days from now's date, taken in now's own
// location as NewDate does, to due.
func DaysUntil(due models.Date, now time.Time) float64 {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	return math.Round(day.Sub(today).Hours() / 24)
}

// Upcoming builds one reminder per armed trigger across records, sorted by
// status priority and then by ascending remaining. Triggers whose value
// cannot be read are skipped.
func Upcoming(records []models.MaintenanceRecord, odometer float64, now time.Time, th Thresholds) []Reminder {
	var out []Reminder
	for _, rec := range records {
		base := Reminder{
			MaintenanceID: rec.ID,
			ServiceIndex:  RecordLevel,
			Service:       rec.Title(),
			Supplier:      rec.Supplier,
		}
		if rec.NextServiceDate != nil && !rec.NextServiceDate.IsZero() {
			out = append(out, dateReminder(base, *rec.NextServiceDate, now, th))
		}
		if rec.NextServiceKm != nil {
			out = append(out, kmReminder(base, *rec.NextServiceKm, odometer, th))
		}

		for i, svc := range rec.Services {
			if svc.NextService == nil {
				continue
			}
			r := base
			r.ServiceIndex = i
			r.Service = svc.Name
			switch svc.NextService.Type {
			case models.TriggerDate:
				if due, err := svc.NextService.DueDate(); err == nil {
					out = append(out, dateReminder(r, due, now, th))
				}
			case models.TriggerOdometer:
				if km, err := svc.NextService.DueKm(); err == nil {
					out = append(out, kmReminder(r, km, odometer, th))
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Status.priority(), out[j].Status.priority()
		if pi != pj {
			return pi < pj
		}
		return out[i].Remaining < out[j].Remaining
	})
	return out
}

func dateReminder(r Reminder, due models.Date, now time.Time, th Thresholds) Reminder {
	r.Trigger = models.TriggerDate
	r.DueDate = &due
	r.Unit = UnitDays
	r.Remaining = DaysUntil(due, now)
	r.Status = Classify(r.Remaining, th.UrgentDays, th.WarningDays)
	return r
}

func kmReminder(r Reminder, due, odometer float64, th Thresholds) Reminder {
	r.Trigger = models.TriggerOdometer
	r.DueKm = &due
	r.Unit = UnitKm
	r.Remaining = due - odometer
	r.Status = Classify(r.Remaining, th.UrgentKm, th.WarningKm)
	return r
}

// Counts tallies reminders per status.
func Counts(rs []Reminder) map[Status]int {
	counts := map[Status]int{
		StatusOverdue: 0, StatusUrgent: 0, StatusWarning: 0, StatusUpcoming: 0,
	}
	for _, r := range rs {
		counts[r.Status]++
	}
	return counts
}
