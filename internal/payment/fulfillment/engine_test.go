package fulfillment

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/bonus"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	licensedomain "github.com/smallbiznis/storefront/internal/license/domain"
	licenserepo "github.com/smallbiznis/storefront/internal/license/repository"
	"github.com/smallbiznis/storefront/internal/lock"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	orderrepo "github.com/smallbiznis/storefront/internal/order/repository"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/storefront/internal/payment/repository"
	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
	productrepo "github.com/smallbiznis/storefront/internal/product/repository"
	"github.com/smallbiznis/storefront/internal/testutil"
	userdomain "github.com/smallbiznis/storefront/internal/user/domain"
	userrepo "github.com/smallbiznis/storefront/internal/user/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var licenseKeyPattern = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

type harness struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	locker   lock.Locker
	licenses licensedomain.Repository
	payments paymentdomain.Repository
	products productdomain.Repository
	users    userdomain.Repository
	timeout  time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		db:       testutil.OpenDB(t),
		node:     testutil.NewNode(t),
		clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		locker:   lock.NewKeyedMutex(),
		licenses: licenserepo.Provide(),
		payments: paymentrepo.Provide(),
		products: productrepo.Provide(),
		users:    userrepo.Provide(),
	}
}

func (h *harness) engine() *Engine {
	cfg := config.Config{}
	cfg.Fulfillment.Timeout = h.timeout
	cfg.Fulfillment.CounterRetries = 5

	return New(Params{
		DB:       h.db,
		Log:      zap.NewNop(),
		GenID:    h.node,
		Clock:    h.clock,
		Locker:   h.locker,
		Config:   cfg,
		Orders:   orderrepo.Provide(),
		Products: h.products,
		Licenses: h.licenses,
		Users:    h.users,
		Payments: h.payments,
		Bonus:    bonus.NewCalculator(bonus.Static(bonus.DefaultRates()), bonus.DefaultAccrualRate),
		Captures: NewInboxSource(h.db, h.payments),
	})
}

func succeededCapture(order *orderdomain.Order, txn string) *paymentdomain.CaptureResult {
	return &paymentdomain.CaptureResult{
		Provider:          "stripe",
		ProviderEventID:   "evt_" + txn,
		ProviderReference: "pi_" + txn,
		TransactionID:     txn,
		EventType:         "payment_intent.succeeded",
		Succeeded:         true,
		AmountMinorUnits:  order.Total.Mul(decimal.NewFromInt(100)).IntPart(),
		Currency:          order.Currency,
		CapturedAt:        time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC),
		OrderID:           order.ID,
		UserID:            order.UserID,
	}
}

// failingLicenses fails BatchCreate for one order line until disarmed.
type failingLicenses struct {
	licensedomain.Repository
	mu     sync.Mutex
	failOn snowflake.ID
	armed  bool
}

func (f *failingLicenses) BatchCreate(ctx context.Context, db *gorm.DB, licenses []*licensedomain.License) error {
	f.mu.Lock()
	fail := f.armed && len(licenses) > 0 && licenses[0].OrderLineID == f.failOn
	f.mu.Unlock()
	if fail {
		if err := f.Repository.BatchCreate(ctx, db, licenses); err != nil {
			return err
		}
		return errors.New("connection reset by peer")
	}
	return f.Repository.BatchCreate(ctx, db, licenses)
}

func (f *failingLicenses) disarm() {
	f.mu.Lock()
	f.armed = false
	f.mu.Unlock()
}

// failingPayments fails the final record insert once.
type failingPayments struct {
	paymentdomain.Repository
	mu    sync.Mutex
	fails int
}

func (f *failingPayments) InsertRecord(ctx context.Context, db *gorm.DB, record *paymentdomain.PaymentRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return false, errors.New("driver: bad connection")
	}
	return f.Repository.InsertRecord(ctx, db, record)
}

func TestFulfillTwoLineOrder(t *testing.T) {
	h := newHarness(t)
	user := testutil.SeedUser(t, h.db, h.node, 0)
	game := testutil.SeedProduct(t, h.db, h.node, "Game", "100")
	dlc := testutil.SeedProduct(t, h.db, h.node, "DLC", "100")
	order := testutil.SeedOrder(t, h.db, h.node, user.ID, "300", "UAH",
		testutil.LineSpec{ProductID: game.ID, Quantity: 2, UnitPrice: "100"},
		testutil.LineSpec{ProductID: dlc.ID, Quantity: 1, UnitPrice: "100"},
	)

	record, err := h.engine().Fulfill(context.Background(), succeededCapture(order, "ch_two_lines"), user.ID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "stripe", record.Provider)
	assert.Equal(t, "ch_two_lines", record.ProviderTransactionID)
	assert.True(t, record.Success)
	assert.Equal(t, int64(30000), record.AmountMinorUnits)
	assert.Equal(t, order.ID, record.OrderID)
	assert.Equal(t, user.ID, record.UserID)

	paid := testutil.ReloadOrder(t, h.db, order.ID)
	assert.Equal(t, orderdomain.OrderStatusPaid, paid.Status)
	assert.True(t, paid.PaidBy("stripe", "ch_two_lines"))
	assert.NotNil(t, paid.BonusCreditedAt)

	assert.Equal(t, int64(2), testutil.CountLicenses(t, h.db, order.Lines[0].ID))
	assert.Equal(t, int64(1), testutil.CountLicenses(t, h.db, order.Lines[1].ID))
	assert.Equal(t, int64(2), testutil.ReloadProduct(t, h.db, game.ID).SalesCount)
	assert.Equal(t, int64(1), testutil.ReloadProduct(t, h.db, dlc.ID).SalesCount)
	assert.Equal(t, int64(30), testutil.ReloadUser(t, h.db, user.ID).BonusPoints)

	issued, err := h.licenses.ListByOrderLines(context.Background(), h.db, []snowflake.ID{order.Lines[0].ID, order.Lines[1].ID})
	require.NoError(t, err)
	require.Len(t, issued, 3)
	seen := map[string]bool{}
	for _, l := range issued {
		assert.Regexp(t, licenseKeyPattern, l.LicenseKey)
		assert.Equal(t, licensedomain.StatusActive, l.Status)
		assert.False(t, seen[l.LicenseKey], "duplicate key %s", l.LicenseKey)
		seen[l.LicenseKey] = true
	}
}

func TestFulfillSecondDeliveryIsAlreadyProcessed(t *testing.T) {
	h := newHarness(t)
	user := testutil.SeedUser(t, h.db, h.node, 5)
	product := testutil.SeedProduct(t, h.db, h.node, "Game", "100")
	order := testutil.SeedOrder(t, h.db, h.node, user.ID, "100", "UAH",
		testutil.LineSpec{ProductID: product.ID, Quantity: 1, UnitPrice: "100"},
	)
	engine := h.engine()
	capture := succeededCapture(order, "ch_repeat")

	_, err := engine.Fulfill(context.Background(), capture, user.ID)
	require.NoError(t, err)

	record, err := engine.Fulfill(context.Background(), capture, user.ID)
	assert.Nil(t, record)
	assert.ErrorIs(t, err, paymentdomain.ErrAlreadyProcessed)
	assert.True(t, paymentdomain.IsAlreadyProcessed(err))
	assert.False(t, paymentdomain.IsRetryable(err))

	assert.Equal(t, int64(1), testutil.CountLicenses(t, h.db, order.Lines[0].ID))
	assert.Equal(t, int64(1), testutil.ReloadProduct(t, h.db, product.ID).SalesCount)
	assert.Equal(t, int64(15), testutil.ReloadUser(t, h.db, user.ID).BonusPoints)
	assert.Equal(t, int64(1), testutil.CountRows(t, h.db, &paymentdomain.PaymentRecord{}))
}

func TestFulfillConcurrentDeliveriesApplyOnce(t *testing.T) {
	h := newHarness(t)
	user := testutil.SeedUser(t, h.db, h.node, 0)
	product := testutil.SeedProduct(t, h.db, h.node, "Game", "50")
	order := testutil.SeedOrder(t, h.db, h.node, user.ID, "150", "UAH",
		testutil.LineSpec{ProductID: product.ID, Quantity: 3, UnitPrice: "50"},
	)
	engine := h.engine()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		duplicate int
		other     []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.Fulfill(context.Background(), succeededCapture(order, "ch_race"), user.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case paymentdomain.IsAlreadyProcessed(err):
				duplicate++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, duplicate)
	assert.Equal(t, int64(3), testutil.CountLicenses(t, h.db, order.Lines[0].ID))
	assert.Equal(t, int64(3), testutil.ReloadProduct(t, h.db, product.ID).SalesCount)
	assert.Equal(t, int64(15), testutil.ReloadUser(t, h.db, user.ID).BonusPoints)
	assert.Equal(t, int64(1), testutil.CountRows(t, h.db, &paymentdomain.PaymentRecord{}))
}

func TestFulfillBonusByCurrency(t *testing.T) {
	cases := []struct {
		name     string
		total    string
		currency string
		want     int64
	}{
		{name: "base currency", total: "100", currency: "UAH", want: 10},
		{name: "usd", total: "2.4", currency: "USD", want: 10},
		{name: "eur floors", total: "50", currency: "EUR", want: 227},
		{name: "unknown currency is not converted", total: "100", currency: "JPY", want: 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			user := testutil.SeedUser(t, h.db, h.node, 0)
			product := testutil.SeedProduct(t, h.db, h.node, "Game", tc.total)
			order := testutil.SeedOrder(t, h.db, h.node, user.ID, tc.total, tc.currency,
				testutil.LineSpec{ProductID: product.ID, Quantity: 1, UnitPrice: tc.total},
			)

			_, err := h.engine().Fulfill(context.Background(), succeededCapture(order, "ch_"+tc.currency), user.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, testutil.ReloadUser(t, h.db, user.ID).BonusPoints)
		})
	}
}

func TestFulfillRejections(t *testing.T) {
	h := newHarness(t)
	owner := testutil.SeedUser(t, h.db, h.node, 0)
	stranger := testutil.SeedUser(t, h.db, h.node, 0)
	product := testutil.SeedProduct(t, h.db, h.node, "Game", "10")
	engine := h.engine()
	ctx := context.Background()

	t.Run("invalid capture", func(t *testing.T) {
		_, err := engine.Fulfill(ctx, &paymentdomain.CaptureResult{Provider: "stripe"}, owner.ID)
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidCapture)

		_, err = engine.Fulfill(ctx, nil, owner.ID)
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidCapture)
	})

	t.Run("unknown order", func(t *testing.T) {
		capture := &paymentdomain.CaptureResult{
			Provider: "stripe", TransactionID: "ch_missing", Succeeded: true,
			Currency: "UAH", AmountMinorUnits: 100, OrderID: h.node.Generate(),
		}
		_, err := engine.Fulfill(ctx, capture, owner.ID)
		assert.ErrorIs(t, err, paymentdomain.ErrOrderNotFound)
	})

	t.Run("ownership mismatch leaves order pending", func(t *testing.T) {
		order := testutil.SeedOrder(t, h.db, h.node, owner.ID, "10", "UAH",
			testutil.LineSpec{ProductID: product.ID, Quantity: 1, UnitPrice: "10"})
		_, err := engine.Fulfill(ctx, succeededCapture(order, "ch_owner"), stranger.ID)
		assert.ErrorIs(t, err, paymentdomain.ErrOrderOwnershipMismatch)
		assert.Equal(t, orderdomain.OrderStatusPending, testutil.ReloadOrder(t, h.db, order.ID).Status)
	})

	t.Run("failed capture leaves order pending", func(t *testing.T) {
		order := testutil.SeedOrder(t, h.db, h.node, owner.ID, "10", "UAH",
			testutil.LineSpec{ProductID: product.ID, Quantity: 1, UnitPrice: "10"})
		capture := succeededCapture(order, "ch_declined")
		capture.Succeeded = false
		_, err := engine.Fulfill(ctx, capture, owner.ID)
		assert.ErrorIs(t, err, paymentdomain.ErrCaptureNotSucceeded)
		assert.Equal(t, orderdomain.OrderStatusPending, testutil.ReloadOrder(t, h.db, order.ID).Status)
		assert.Zero(t, testutil.CountLicenses(t, h.db, order.Lines[0].ID))
	})

	t.Run("cancelled order is not payable", func(t *testing.T) {
		order := testutil.SeedOrder(t, h.db, h.node, owner.ID, "10", "UAH",
			testutil.LineSpec{ProductID: product.ID, Quantity: 1, UnitPrice: "10"})
		require.NoError(t, h.db.Model(&orderdomain.Order{}).Where("id = ?", order.ID).
			Update("status", orderdomain.OrderStatusCancelled).Error)
		_, err := engine.Fulfill(ctx, succeededCapture(order, "ch_cancelled"), owner.ID)
		assert.ErrorIs(t, err, paymentdomain.ErrOrderNotPayable)
	})

	t.Run("order paid by another transaction", func(t *testing.T) {
		order := testutil.SeedOrder(t, h.db, h.node, owner.ID, "10", "UAH",
			testutil.LineSpec{ProductID: product.ID, Quantity: 1, UnitPrice: "10"})
		_, err := engine.Fulfill(ctx, succeededCapture(order, "ch_first"), owner.ID)
		require.NoError(t, err)

		_, err = engine.Fulfill(ctx, succeededCapture(order, "ch_second"), owner.ID)
		assert.ErrorIs(t, err, paymentdomain.ErrOrderNotPayable)
		assert.Equal(t, int64(1), testutil.CountLicenses(t, h.db, order.Lines[0].ID))
	})
}

func TestMarkPaidRejectsNonPendingOrder(t *testing.T) {
	h := newHarness(t)
	user := testutil.SeedUser(t, h.db, h.node, 0)
	order := testutil.SeedOrder(t, h.db, h.node, user.ID, "10", "UAH")
	orders := orderrepo.Provide()
	ctx := context.Background()

	ok, err := orders.MarkPaid(ctx, h.db, order.ID, "stripe", "ch_a", h.clock.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = orders.MarkPaid(ctx, h.db, order.ID, "stripe", "ch_b", h.clock.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, testutil.ReloadOrder(t, h.db, order.ID).PaidBy("stripe", "ch_a"))
}

func TestFulfillResumesAfterLicenseFailure(t *testing.T) {
	h := newHarness(t)
	user := testutil.SeedUser(t, h.db, h.node, 0)
	first := testutil.SeedProduct(t, h.db, h.node, "First", "100")
	second := testutil.SeedProduct(t, h.db, h.node, "Second", "100")
	order := testutil.SeedOrder(t, h.db, h.node, user.ID, "500", "UAH",
		testutil.LineSpec{ProductID: first.ID, Quantity: 2, UnitPrice: "100"},
		testutil.LineSpec{ProductID: second.ID, Quantity: 3, UnitPrice: "100"},
	)
	failing := &failingLicenses{Repository: h.licenses, failOn: order.Lines[1].ID, armed: true}
	h.licenses = failing
	engine := h.engine()
	capture := succeededCapture(order, "ch_resume")

	_, err := engine.Fulfill(context.Background(), capture, user.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, paymentdomain.ErrPartialFulfillment)
	assert.True(t, paymentdomain.IsRetryable(err))

	assert.Equal(t, orderdomain.OrderStatusPaid, testutil.ReloadOrder(t, h.db, order.ID).Status)
	assert.Equal(t, int64(2), testutil.CountLicenses(t, h.db, order.Lines[0].ID))
	assert.Equal(t, int64(0), testutil.CountLicenses(t, h.db, order.Lines[1].ID))
	assert.Equal(t, int64(2), testutil.ReloadProduct(t, h.db, first.ID).SalesCount)
	assert.Equal(t, int64(0), testutil.ReloadProduct(t, h.db, second.ID).SalesCount)
	assert.Equal(t, int64(0), testutil.ReloadUser(t, h.db, user.ID).BonusPoints)
	assert.Zero(t, testutil.CountRows(t, h.db, &paymentdomain.PaymentRecord{}))

	failing.disarm()
	record, err := engine.Fulfill(context.Background(), capture, user.ID)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, int64(2), testutil.CountLicenses(t, h.db, order.Lines[0].ID))
	assert.Equal(t, int64(3), testutil.CountLicenses(t, h.db, order.Lines[1].ID))
	assert.Equal(t, int64(2), testutil.ReloadProduct(t, h.db, first.ID).SalesCount)
	assert.Equal(t, int64(3), testutil.ReloadProduct(t, h.db, second.ID).SalesCount)
	assert.Equal(t, int64(50), testutil.ReloadUser(t, h.db, user.ID).BonusPoints)

	_, err = engine.Fulfill(context.Background(), capture, user.ID)
	assert.ErrorIs(t, err, paymentdomain.ErrAlreadyProcessed)
}

func TestFulfillResumeDoesNotCreditBonusTwice(t *testing.T) {
	h := newHarness(t)
	user := testutil.SeedUser(t, h.db, h.node, 0)
	product := testutil.SeedProduct(t, h.db, h.node, "Game", "200")
	order := testutil.SeedOrder(t, h.db, h.node, user.ID, "200", "UAH",
		testutil.LineSpec{ProductID: product.ID, Quantity: 1, UnitPrice: "200"},
	)
	h.payments = &failingPayments{Repository: h.payments, fails: 1}
	engine := h.engine()
	capture := succeededCapture(order, "ch_record_fail")

	_, err := engine.Fulfill(context.Background(), capture, user.ID)
	assert.ErrorIs(t, err, paymentdomain.ErrPartialFulfillment)
	assert.ErrorIs(t, err, paymentdomain.ErrStoreUnavailable)
	assert.Equal(t, int64(20), testutil.ReloadUser(t, h.db, user.ID).BonusPoints)

	_, err = engine.Fulfill(context.Background(), capture, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), testutil.ReloadUser(t, h.db, user.ID).BonusPoints)
	assert.Equal(t, int64(1), testutil.CountLicenses(t, h.db, order.Lines[0].ID))
	assert.Equal(t, int64(1), testutil.ReloadProduct(t, h.db, product.ID).SalesCount)
	assert.Equal(t, int64(1), testutil.CountRows(t, h.db, &paymentdomain.PaymentRecord{}))
}

func TestFulfillSkipsLineWithMissingProduct(t *testing.T) {
	h := newHarness(t)
	user := testutil.SeedUser(t, h.db, h.node, 0)
	product := testutil.SeedProduct(t, h.db, h.node, "Game", "100")
	order := testutil.SeedOrder(t, h.db, h.node, user.ID, "200", "UAH",
		testutil.LineSpec{ProductID: h.node.Generate(), Quantity: 1, UnitPrice: "100"},
		testutil.LineSpec{ProductID: product.ID, Quantity: 1, UnitPrice: "100"},
	)

	record, err := h.engine().Fulfill(context.Background(), succeededCapture(order, "ch_missing_product"), user.ID)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Zero(t, testutil.CountLicenses(t, h.db, order.Lines[0].ID))
	assert.Equal(t, int64(1), testutil.CountLicenses(t, h.db, order.Lines[1].ID))
	assert.Equal(t, int64(1), testutil.ReloadProduct(t, h.db, product.ID).SalesCount)
	assert.Equal(t, int64(20), testutil.ReloadUser(t, h.db, user.ID).BonusPoints)
}

func TestFulfillLockTimeoutIsStoreUnavailable(t *testing.T) {
	h := newHarness(t)
	h.timeout = 50 * time.Millisecond
	user := testutil.SeedUser(t, h.db, h.node, 0)
	order := testutil.SeedOrder(t, h.db, h.node, user.ID, "10", "UAH")

	unlock, err := h.locker.Lock(context.Background(), lockKey("stripe", "ch_held"))
	require.NoError(t, err)
	defer unlock()

	_, err = h.engine().Fulfill(context.Background(), succeededCapture(order, "ch_held"), user.ID)
	assert.ErrorIs(t, err, paymentdomain.ErrStoreUnavailable)
	assert.True(t, paymentdomain.IsRetryable(err))
	assert.Equal(t, orderdomain.OrderStatusPending, testutil.ReloadOrder(t, h.db, order.ID).Status)
}

func TestCaptureFromInbox(t *testing.T) {
	h := newHarness(t)
	user := testutil.SeedUser(t, h.db, h.node, 0)
	product := testutil.SeedProduct(t, h.db, h.node, "Game", "100")
	order := testutil.SeedOrder(t, h.db, h.node, user.ID, "100", "UAH",
		testutil.LineSpec{ProductID: product.ID, Quantity: 1, UnitPrice: "100"},
	)
	engine := h.engine()
	ctx := context.Background()

	_, err := engine.Capture(ctx, "stripe", "pi_unknown", user.ID)
	assert.ErrorIs(t, err, paymentdomain.ErrCaptureNotFound)

	inserted, err := h.payments.InsertCapture(ctx, h.db, &paymentdomain.CaptureEvent{
		ID:                h.node.Generate(),
		Provider:          "stripe",
		ProviderEventID:   "evt_1",
		ProviderReference: "pi_1",
		TransactionID:     "ch_1",
		EventType:         "payment_intent.succeeded",
		Status:            paymentdomain.CaptureStatusSucceeded,
		AmountMinorUnits:  10000,
		Currency:          "UAH",
		OrderID:           order.ID,
		UserID:            user.ID,
		CapturedAt:        h.clock.Now(),
		Payload:           []byte(`{}`),
		ReceivedAt:        h.clock.Now(),
	})
	require.NoError(t, err)
	require.True(t, inserted)

	record, err := engine.Capture(ctx, " STRIPE ", "pi_1", user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ch_1", record.ProviderTransactionID)

	_, err = engine.Capture(ctx, "stripe", "pi_1", user.ID)
	assert.ErrorIs(t, err, paymentdomain.ErrAlreadyProcessed)
}

func TestFulfillEuroOrderEndToEnd(t *testing.T) {
	h := newHarness(t)
	user := testutil.SeedUser(t, h.db, h.node, 0)
	productA := testutil.SeedProduct(t, h.db, h.node, "Game", "20")
	productB := testutil.SeedProduct(t, h.db, h.node, "Soundtrack", "10")
	order := testutil.SeedOrder(t, h.db, h.node, user.ID, "50", "EUR",
		testutil.LineSpec{ProductID: productA.ID, Quantity: 2, UnitPrice: "20"},
		testutil.LineSpec{ProductID: productB.ID, Quantity: 1, UnitPrice: "10"},
	)
	engine := h.engine()
	capture := succeededCapture(order, "ch_eur_order")

	record, err := engine.Fulfill(context.Background(), capture, user.ID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, int64(5000), record.AmountMinorUnits)
	assert.Equal(t, "EUR", record.Currency)

	assert.Equal(t, orderdomain.OrderStatusPaid, testutil.ReloadOrder(t, h.db, order.ID).Status)
	assert.Equal(t, int64(2), testutil.CountLicenses(t, h.db, order.Lines[0].ID))
	assert.Equal(t, int64(1), testutil.CountLicenses(t, h.db, order.Lines[1].ID))
	assert.Equal(t, int64(2), testutil.ReloadProduct(t, h.db, productA.ID).SalesCount)
	assert.Equal(t, int64(1), testutil.ReloadProduct(t, h.db, productB.ID).SalesCount)
	assert.Equal(t, int64(227), testutil.ReloadUser(t, h.db, user.ID).BonusPoints)
	assert.Equal(t, int64(1), testutil.CountRows(t, h.db, &paymentdomain.PaymentRecord{}))

	replay, err := engine.Fulfill(context.Background(), capture, user.ID)
	assert.Nil(t, replay)
	assert.True(t, paymentdomain.IsAlreadyProcessed(err))
	assert.Equal(t, int64(227), testutil.ReloadUser(t, h.db, user.ID).BonusPoints)
	assert.Equal(t, int64(3), testutil.CountRows(t, h.db, &licensedomain.License{}))
	assert.Equal(t, int64(1), testutil.CountRows(t, h.db, &paymentdomain.PaymentRecord{}))
}
