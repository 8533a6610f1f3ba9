package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkPaidOnlyFromPending(t *testing.T) {
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	repo := Provide()
	ctx := context.Background()
	user := testutil.SeedUser(t, db, node, 0)
	order := testutil.SeedOrder(t, db, node, user.ID, "10", "UAH")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok, err := repo.MarkPaid(ctx, db, order.ID, "stripe", "ch_1", at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkPaid(ctx, db, order.ID, "stripe", "ch_2", at)
	require.NoError(t, err)
	assert.False(t, ok)

	reloaded, err := repo.FindByID(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, reloaded.Status)
	assert.True(t, reloaded.PaidBy("stripe", "ch_1"))
	assert.Equal(t, int64(2), reloaded.Version)
}

func TestMarkBonusCreditedOnce(t *testing.T) {
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	repo := Provide()
	ctx := context.Background()
	user := testutil.SeedUser(t, db, node, 0)
	order := testutil.SeedOrder(t, db, node, user.ID, "10", "UAH")

	ok, err := repo.MarkBonusCredited(ctx, db, order.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkBonusCredited(ctx, db, order.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListUnsettled(t *testing.T) {
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	repo := Provide()
	ctx := context.Background()
	user := testutil.SeedUser(t, db, node, 0)
	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cutoff := paidAt.Add(time.Minute)

	pending := testutil.SeedOrder(t, db, node, user.ID, "10", "UAH")
	stalled := testutil.SeedOrder(t, db, node, user.ID, "10", "UAH")
	settled := testutil.SeedOrder(t, db, node, user.ID, "10", "UAH")
	recent := testutil.SeedOrder(t, db, node, user.ID, "10", "UAH")

	for _, o := range []*domain.Order{stalled, settled} {
		ok, err := repo.MarkPaid(ctx, db, o.ID, "stripe", "ch_"+o.ID.String(), paidAt)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := repo.MarkPaid(ctx, db, recent.ID, "stripe", "ch_recent", cutoff.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.Create(&paymentdomain.PaymentRecord{
		ID:                    node.Generate(),
		Provider:              "stripe",
		ProviderTransactionID: "ch_" + settled.ID.String(),
		Success:               true,
		AmountMinorUnits:      1000,
		Currency:              "UAH",
		UserID:                user.ID,
		OrderID:               settled.ID,
		CreatedAt:             paidAt,
		DeliveredAt:           paidAt,
	}).Error)

	orders, err := repo.ListUnsettled(ctx, db, cutoff, 0, 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, stalled.ID, orders[0].ID)
	assert.NotEqual(t, pending.ID, orders[0].ID)

	orders, err = repo.ListUnsettled(ctx, db, cutoff, stalled.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, orders)
}
