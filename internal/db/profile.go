package db

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-ledger/internal/models"
)

// Profile returns the vehicle profile, or the first-run default when it has
// never been written.
func (s *Store) Profile(ctx context.Context, now time.Time) (models.Profile, error) {
	var p models.Profile
	found, err := s.GetDocument(ctx, models.DocumentsProfile, models.ProfileID, &p)
	if err != nil {
		return models.Profile{}, err
	}
	if !found {
		return models.NewProfile(now), nil
	}
	return p, nil
}

// SaveProfile overwrites the profile singleton.
func (s *Store) SaveProfile(ctx context.Context, p models.Profile) error {
	p.ID = models.ProfileID
	return s.PutDocument(ctx, models.DocumentsProfile, models.ProfileID, p)
}

// RaiseOdometer moves the profile odometer up to km. Lower readings are
// ignored; only SaveProfile can lower the odometer.
func (s *Store) RaiseOdometer(ctx context.Context, km float64, now time.Time) (bool, error) {
	p, err := s.Profile(ctx, now)
	if err != nil {
		return false, err
	}
	if km <= p.Odometer {
		return false, nil
	}
	previous := p.Odometer
	p.Odometer = km
	p.UpdatedAt = now
	if err := s.SaveProfile(ctx, p); err != nil {
		return false, err
	}
	s.logger.WithFields(log.Fields{"from": previous, "to": km}).Debug("Odometer advanced")
	return true, nil
}
