package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/vehicle-ledger/internal/models"
)

func TestStore_Owner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	owner, err := store.Owner(ctx)
	require.NoError(t, err)
	assert.Nil(t, owner, "no owner before setup")

	created := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveOwner(ctx, &models.Owner{
		Username:     "driver",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    created,
	}))

	owner, err = store.Owner(ctx)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "driver", owner.Username)
	assert.Equal(t, "$2a$10$hash", owner.PasswordHash)
	assert.True(t, created.Equal(owner.CreatedAt))
	assert.Nil(t, owner.LastLogin)

	login := created.Add(time.Hour)
	owner.LastLogin = &login
	require.NoError(t, store.SaveOwner(ctx, owner))

	owner, err = store.Owner(ctx)
	require.NoError(t, err)
	require.NotNil(t, owner.LastLogin)
	assert.True(t, login.Equal(*owner.LastLogin))
}
