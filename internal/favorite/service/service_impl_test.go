package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/favorite/domain"
	"github.com/smallbiznis/storefront/internal/favorite/repository"
	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
	productrepo "github.com/smallbiznis/storefront/internal/product/repository"
	productsvc "github.com/smallbiznis/storefront/internal/product/service"
	"github.com/smallbiznis/storefront/internal/testutil"
	userdomain "github.com/smallbiznis/storefront/internal/user/domain"
	userrepo "github.com/smallbiznis/storefront/internal/user/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	products := productsvc.New(productsvc.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  productrepo.Provide(),
	})
	return &fixture{
		db:    db,
		node:  node,
		clock: fakeClock,
		svc: New(Params{
			DB:       db,
			Log:      zap.NewNop(),
			GenID:    node,
			Clock:    fakeClock,
			Repo:     repository.Provide(),
			Users:    userrepo.Provide(),
			Products: products,
		}),
	}
}

func TestAddListRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.db, f.node, 0)
	game := testutil.SeedProduct(t, f.db, f.node, "Game", "10")
	dlc := testutil.SeedProduct(t, f.db, f.node, "DLC", "5")

	added, err := f.svc.Add(ctx, user.ID, game.ID.String())
	require.NoError(t, err)
	assert.Equal(t, game.ID.String(), added.Product.ID)
	assert.Equal(t, "10.00", added.Product.Price)

	f.clock.Advance(time.Minute)
	_, err = f.svc.Add(ctx, user.ID, " "+dlc.ID.String()+" ")
	require.NoError(t, err)

	list, err := f.svc.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, dlc.ID.String(), list[0].Product.ID, "newest first")
	assert.Equal(t, game.ID.String(), list[1].Product.ID)

	ok, err := f.svc.IsFavorite(ctx, user.ID, game.ID.String())
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.svc.Remove(ctx, user.ID, game.ID.String()))
	ok, err = f.svc.IsFavorite(ctx, user.ID, game.ID.String())
	require.NoError(t, err)
	assert.False(t, ok)

	err = f.svc.Remove(ctx, user.ID, game.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAddRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.db, f.node, 0)
	game := testutil.SeedProduct(t, f.db, f.node, "Game", "10")

	_, err := f.svc.Add(ctx, user.ID, game.ID.String())
	require.NoError(t, err)

	_, err = f.svc.Add(ctx, user.ID, game.ID.String())
	assert.ErrorIs(t, err, domain.ErrAlreadyFavorite)

	_, err = f.svc.Add(ctx, user.ID, "not-an-id")
	assert.ErrorIs(t, err, domain.ErrInvalidProductID)

	_, err = f.svc.Add(ctx, user.ID, f.node.Generate().String())
	assert.ErrorIs(t, err, productdomain.ErrNotFound)

	_, err = f.svc.Add(ctx, f.node.Generate(), game.ID.String())
	assert.ErrorIs(t, err, userdomain.ErrNotFound)

	assert.Equal(t, int64(1), testutil.CountRows(t, f.db, &domain.Favorite{}))
}

func TestFavoritesArePerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutil.SeedUser(t, f.db, f.node, 0)
	bob := testutil.SeedUser(t, f.db, f.node, 0)
	game := testutil.SeedProduct(t, f.db, f.node, "Game", "10")

	_, err := f.svc.Add(ctx, alice.ID, game.ID.String())
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, bob.ID, game.ID.String())
	require.NoError(t, err)

	require.NoError(t, f.svc.Remove(ctx, alice.ID, game.ID.String()))

	list, err := f.svc.List(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListSkipsDeletedProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.db, f.node, 0)
	game := testutil.SeedProduct(t, f.db, f.node, "Game", "10")
	gone := testutil.SeedProduct(t, f.db, f.node, "Delisted", "1")

	_, err := f.svc.Add(ctx, user.ID, game.ID.String())
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, user.ID, gone.ID.String())
	require.NoError(t, err)
	require.NoError(t, f.db.Exec("DELETE FROM products WHERE id = ?", gone.ID).Error)

	list, err := f.svc.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, game.ID.String(), list[0].Product.ID)
}
