// Package fulfillment applies a payment capture to its order exactly once:
// the order is marked paid, one license is issued per purchased unit, bonus
// points are credited, and a payment record closes the transaction.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/bonus"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	licensedomain "github.com/smallbiznis/storefront/internal/license/domain"
	"github.com/smallbiznis/storefront/internal/lock"
	"github.com/smallbiznis/storefront/internal/observability/metrics"
	"github.com/smallbiznis/storefront/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
	userdomain "github.com/smallbiznis/storefront/internal/user/domain"
	"github.com/smallbiznis/storefront/pkg/log/ctxlogger"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultTimeout        = 15 * time.Second
	defaultCounterRetries = 5
)

var errProductMissing = errors.New("product_missing")

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Locker   lock.Locker
	Config   config.Config
	Orders   orderdomain.Repository
	Products productdomain.Repository
	Licenses licensedomain.Repository
	Users    userdomain.Repository
	Payments paymentdomain.Repository
	Bonus    *bonus.Calculator

	Captures paymentdomain.CaptureSource `optional:"true"`
	Metrics  *metrics.Metrics            `optional:"true"`
	Prom     *metrics.PromMetrics        `optional:"true"`
	KeyGen   licensedomain.KeyGenerator  `optional:"true"`
}

type Engine struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	locker   lock.Locker
	orders   orderdomain.Repository
	products productdomain.Repository
	licenses licensedomain.Repository
	users    userdomain.Repository
	payments paymentdomain.Repository
	bonus    *bonus.Calculator
	captures paymentdomain.CaptureSource
	metrics  *metrics.Metrics
	prom     *metrics.PromMetrics
	keyGen   licensedomain.KeyGenerator

	timeout        time.Duration
	counterRetries uint
}

func New(p Params) *Engine {
	e := &Engine{
		db:             p.DB,
		log:            p.Log.Named("payment.fulfillment"),
		genID:          p.GenID,
		clock:          p.Clock,
		locker:         p.Locker,
		orders:         p.Orders,
		products:       p.Products,
		licenses:       p.Licenses,
		users:          p.Users,
		payments:       p.Payments,
		bonus:          p.Bonus,
		captures:       p.Captures,
		metrics:        p.Metrics,
		prom:           p.Prom,
		keyGen:         p.KeyGen,
		timeout:        p.Config.Fulfillment.Timeout,
		counterRetries: p.Config.Fulfillment.CounterRetries,
	}
	if e.clock == nil {
		e.clock = clock.System()
	}
	if e.locker == nil {
		e.locker = lock.NewKeyedMutex()
	}
	if e.keyGen == nil {
		e.keyGen = licensedomain.GenerateKey
	}
	if e.bonus == nil {
		e.bonus = bonus.NewCalculator(nil, bonus.DefaultAccrualRate)
	}
	if e.timeout <= 0 {
		e.timeout = defaultTimeout
	}
	if e.counterRetries == 0 {
		e.counterRetries = defaultCounterRetries
	}
	return e
}

// Capture looks the provider reference up in the capture source and
// fulfills what the provider reported for it.
func (e *Engine) Capture(ctx context.Context, provider, reference string, requestingUserID snowflake.ID) (*paymentdomain.PaymentRecord, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	reference = strings.TrimSpace(reference)
	if provider == "" || reference == "" {
		return nil, paymentdomain.ErrInvalidCapture
	}
	if e.captures == nil {
		return nil, paymentdomain.ErrCaptureNotFound
	}

	capture, err := e.captures.FindCapture(ctx, provider, reference)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrCaptureNotFound) {
			return nil, err
		}
		return nil, storeErr("find capture", err)
	}
	if capture == nil {
		return nil, paymentdomain.ErrCaptureNotFound
	}
	return e.Fulfill(ctx, capture, requestingUserID)
}

// Fulfill applies capture to its order on behalf of requestingUserID.
// Work for one provider transaction is serialized; a repeat after
// completion returns ErrAlreadyProcessed.
func (e *Engine) Fulfill(ctx context.Context, capture *paymentdomain.CaptureResult, requestingUserID snowflake.ID) (record *paymentdomain.PaymentRecord, err error) {
	if err := validateCapture(capture); err != nil {
		return nil, err
	}
	provider := strings.ToLower(strings.TrimSpace(capture.Provider))

	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "payment.fulfill",
		attribute.String("provider", provider),
		attribute.String("order_id", capture.OrderID.String()),
	)
	defer func() {
		outcome := outcomeOf(err)
		e.metrics.RecordFulfillment(ctx, provider, outcome)
		e.prom.ObserveFulfillment(outcome, time.Since(start))
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	lockStart := time.Now()
	unlock, err := e.locker.Lock(ctx, lockKey(provider, capture.TransactionID))
	if err != nil {
		return nil, storeErr("acquire transaction lock", err)
	}
	defer unlock()
	e.prom.ObserveLockWait(time.Since(lockStart))

	return e.fulfillLocked(ctx, provider, capture, requestingUserID)
}

func (e *Engine) fulfillLocked(ctx context.Context, provider string, capture *paymentdomain.CaptureResult, requestingUserID snowflake.ID) (*paymentdomain.PaymentRecord, error) {
	log := ctxlogger.WithContext(ctx, e.log).With(
		zap.String("provider", provider),
		zap.String("transaction_id", capture.TransactionID),
		zap.String("order_id", capture.OrderID.String()),
	)

	existing, err := e.payments.FindRecord(ctx, e.db, provider, capture.TransactionID)
	if err != nil {
		return nil, storeErr("find payment record", err)
	}
	if existing != nil {
		log.Info("capture already processed", zap.String("payment_record_id", existing.ID.String()))
		return nil, paymentdomain.ErrAlreadyProcessed
	}

	order, err := e.orders.FindByID(ctx, e.db, capture.OrderID)
	if err != nil {
		return nil, storeErr("load order", err)
	}
	if order == nil {
		return nil, paymentdomain.ErrOrderNotFound
	}
	if order.UserID != requestingUserID {
		log.Warn("capture requested by non-owner", zap.String("requesting_user_id", requestingUserID.String()))
		return nil, paymentdomain.ErrOrderOwnershipMismatch
	}

	resume := false
	switch {
	case order.Status == orderdomain.OrderStatusPending:
	case order.Status == orderdomain.OrderStatusPaid && order.PaidBy(provider, capture.TransactionID):
		resume = true
	default:
		return nil, paymentdomain.ErrOrderNotPayable
	}

	if !capture.Succeeded {
		return nil, paymentdomain.ErrCaptureNotSucceeded
	}

	e.checkAmount(log, order, capture)

	now := e.clock.Now()
	if resume {
		log.Info("resuming fulfillment of paid order")
	} else {
		ok, err := e.orders.MarkPaid(ctx, e.db, order.ID, provider, capture.TransactionID, now)
		if err != nil {
			return nil, storeErr("mark order paid", err)
		}
		if !ok {
			return nil, paymentdomain.ErrInvalidStateTransition
		}
		paidBy, txn := provider, capture.TransactionID
		order.Status = orderdomain.OrderStatusPaid
		order.PaidProvider = &paidBy
		order.PaidTransactionID = &txn
	}

	issued, err := e.reconcileLicenses(ctx, log, order)
	if err != nil {
		log.Error("license reconciliation failed", zap.Error(err))
		return nil, partial(err)
	}
	e.metrics.AddLicensesIssued(ctx, issued)

	if order.BonusCreditedAt == nil {
		points, err := e.creditBonus(ctx, order)
		if err != nil {
			log.Error("bonus accrual failed", zap.Error(err))
			return nil, partial(err)
		}
		e.metrics.AddBonusPoints(ctx, order.Currency, points)
		log.Info("bonus points credited", zap.Int64("points", points))
	}

	capturedAt := capture.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = now
	}
	record := &paymentdomain.PaymentRecord{
		ID:                    e.genID.Generate(),
		Provider:              provider,
		ProviderTransactionID: capture.TransactionID,
		Success:               true,
		AmountMinorUnits:      capture.AmountMinorUnits,
		Currency:              strings.ToUpper(strings.TrimSpace(capture.Currency)),
		UserID:                order.UserID,
		OrderID:               order.ID,
		CreatedAt:             capturedAt.UTC(),
		DeliveredAt:           e.clock.Now(),
	}
	inserted, err := e.payments.InsertRecord(ctx, e.db, record)
	if err != nil {
		log.Error("payment record insert failed", zap.Error(err))
		return nil, partial(storeErr("insert payment record", err))
	}
	if !inserted {
		return nil, paymentdomain.ErrAlreadyProcessed
	}

	log.Info("capture fulfilled",
		zap.String("payment_record_id", record.ID.String()),
		zap.Int("licenses_issued", issued),
		zap.Bool("resumed", resume),
	)
	return record, nil
}

// reconcileLicenses tops every line up to one license per unit. Each line
// commits its licenses and the matching sales increment together.
func (e *Engine) reconcileLicenses(ctx context.Context, log *zap.Logger, order *orderdomain.Order) (int, error) {
	lines := order.Lines
	if len(lines) == 0 {
		loaded, err := e.orders.ListLines(ctx, e.db, order.ID)
		if err != nil {
			return 0, storeErr("list order lines", err)
		}
		lines = loaded
	}

	issued := 0
	for _, line := range lines {
		created := 0
		err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			product, err := e.products.FindByID(ctx, tx, line.ProductID)
			if err != nil {
				return storeErr("load product", err)
			}
			if product == nil {
				return errProductMissing
			}

			existing, err := e.licenses.CountByOrderLine(ctx, tx, line.ID)
			if err != nil {
				return storeErr("count licenses", err)
			}
			toCreate := int64(line.Quantity) - existing
			if toCreate <= 0 {
				return nil
			}

			now := e.clock.Now()
			batch := make([]*licensedomain.License, 0, toCreate)
			for i := int64(0); i < toCreate; i++ {
				batch = append(batch, &licensedomain.License{
					ID:          e.genID.Generate(),
					ProductID:   line.ProductID,
					OrderLineID: line.ID,
					LicenseKey:  e.keyGen(),
					Status:      licensedomain.StatusActive,
					CreatedAt:   now,
					UpdatedAt:   now,
				})
			}
			if err := e.licenses.BatchCreate(ctx, tx, batch); err != nil {
				return storeErr("create licenses", err)
			}
			if err := e.addSales(ctx, tx, product, toCreate); err != nil {
				return err
			}
			created = int(toCreate)
			return nil
		})
		if errors.Is(err, errProductMissing) {
			log.Warn("order line references missing product, skipped",
				zap.String("order_line_id", line.ID.String()),
				zap.String("product_id", line.ProductID.String()),
			)
			continue
		}
		if err != nil {
			return issued, storeErr("reconcile order line "+line.ID.String(), err)
		}
		issued += created
	}
	return issued, nil
}

func (e *Engine) addSales(ctx context.Context, tx *gorm.DB, product *productdomain.Product, delta int64) error {
	current := product
	return e.retryCounter(ctx, func() (bool, error) {
		if current == nil {
			reloaded, err := e.products.FindByID(ctx, tx, product.ID)
			if err != nil {
				return false, storeErr("reload product", err)
			}
			if reloaded == nil {
				return false, errProductMissing
			}
			current = reloaded
		}
		ok, err := e.products.AddSales(ctx, tx, current, delta, e.clock.Now())
		if err != nil {
			return false, storeErr("increment sales count", err)
		}
		if !ok {
			current = nil
		}
		return ok, nil
	})
}

// creditBonus stamps the order and credits the owner in one transaction,
// so the points are added at most once per order.
func (e *Engine) creditBonus(ctx context.Context, order *orderdomain.Order) (int64, error) {
	points := e.bonus.Points(order.Total, order.Currency)
	now := e.clock.Now()

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stamped, err := e.orders.MarkBonusCredited(ctx, tx, order.ID, now)
		if err != nil {
			return storeErr("mark bonus credited", err)
		}
		if !stamped {
			points = 0
			return nil
		}
		if points <= 0 {
			return nil
		}

		var user *userdomain.User
		return e.retryCounter(ctx, func() (bool, error) {
			if user == nil {
				loaded, err := e.users.FindByID(ctx, tx, order.UserID)
				if err != nil {
					return false, storeErr("load user", err)
				}
				if loaded == nil {
					return false, userdomain.ErrNotFound
				}
				user = loaded
			}
			ok, err := e.users.SetBonusPoints(ctx, tx, user, user.BonusPoints+points, now)
			if err != nil {
				return false, storeErr("credit bonus points", err)
			}
			if !ok {
				user = nil
			}
			return ok, nil
		})
	})
	if err != nil {
		return 0, err
	}
	order.BonusCreditedAt = &now
	return points, nil
}

// retryCounter repeats a versioned write until it lands, backing off
// between attempts. Errors from op stop the loop immediately.
func (e *Engine) retryCounter(ctx context.Context, op func() (bool, error)) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		ok, err := op()
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if !ok {
			return struct{}{}, paymentdomain.ErrConcurrentUpdate
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(e.counterRetries))
	if err != nil && ctx.Err() != nil && !errors.Is(err, paymentdomain.ErrStoreUnavailable) {
		return storeErr("retry counter", ctx.Err())
	}
	return err
}

func (e *Engine) checkAmount(log *zap.Logger, order *orderdomain.Order, capture *paymentdomain.CaptureResult) {
	expected := order.Total.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if expected != capture.AmountMinorUnits || !strings.EqualFold(order.Currency, capture.Currency) {
		log.Warn("capture amount differs from order total",
			zap.Int64("expected_minor_units", expected),
			zap.Int64("captured_minor_units", capture.AmountMinorUnits),
			zap.String("order_currency", order.Currency),
			zap.String("capture_currency", capture.Currency),
		)
	}
}

func validateCapture(capture *paymentdomain.CaptureResult) error {
	if capture == nil {
		return paymentdomain.ErrInvalidCapture
	}
	switch {
	case strings.TrimSpace(capture.Provider) == "",
		strings.TrimSpace(capture.TransactionID) == "",
		strings.TrimSpace(capture.Currency) == "",
		capture.OrderID == 0,
		capture.AmountMinorUnits < 0:
		return paymentdomain.ErrInvalidCapture
	}
	return nil
}

func lockKey(provider, transactionID string) string {
	return "fulfillment:txn:" + provider + ":" + transactionID
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, paymentdomain.ErrStoreUnavailable) ||
		errors.Is(err, paymentdomain.ErrConcurrentUpdate) ||
		errors.Is(err, errProductMissing) ||
		errors.Is(err, userdomain.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", paymentdomain.ErrStoreUnavailable, op, err)
}

func partial(err error) error {
	return fmt.Errorf("%w: %w", paymentdomain.ErrPartialFulfillment, err)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "fulfilled"
	case errors.Is(err, paymentdomain.ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, paymentdomain.ErrPartialFulfillment):
		return "partial"
	case errors.Is(err, paymentdomain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "rejected"
	}
}
