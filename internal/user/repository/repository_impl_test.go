package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/storefront/internal/testutil"
	"github.com/smallbiznis/storefront/internal/user/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetBonusPointsRejectsStaleVersion(t *testing.T) {
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	repo := Provide()
	ctx := context.Background()
	seeded := testutil.SeedUser(t, db, node, 100)

	stale := *seeded
	fresh := *seeded
	ok, err := repo.SetBonusPoints(ctx, db, &fresh, 150, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.SetBonusPoints(ctx, db, &stale, 120, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(100), stale.BonusPoints)

	reloaded := testutil.ReloadUser(t, db, seeded.ID)
	assert.Equal(t, int64(150), reloaded.BonusPoints)
	assert.Equal(t, int64(2), reloaded.Version)
}

func TestSetBonusPointsRejectsNegativeBalance(t *testing.T) {
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	user := testutil.SeedUser(t, db, node, 5)

	ok, err := Provide().SetBonusPoints(context.Background(), db, user, -1, time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrInsufficientBonusPoints)
	assert.False(t, ok)
}
