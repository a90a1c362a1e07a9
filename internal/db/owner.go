package db

import (
	"context"

	"github.com/ukydev/vehicle-ledger/internal/models"
)

// Owner returns the local account, or nil before first-run setup.
func (s *Store) Owner(ctx context.Context) (*models.Owner, error) {
	var o models.Owner
	found, err := s.GetDocument(ctx, models.DocumentsSettings, models.SettingOwner, &o)
	if err != nil || !found {
		return nil, err
	}
	return &o, nil
}

// SaveOwner creates or replaces the local account.
func (s *Store) SaveOwner(ctx context.Context, o *models.Owner) error {
	return s.PutDocument(ctx, models.DocumentsSettings, models.SettingOwner, o)
}
