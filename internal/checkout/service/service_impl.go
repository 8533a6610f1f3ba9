package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/checkout/domain"
	"github.com/smallbiznis/storefront/internal/clock"
	licensedomain "github.com/smallbiznis/storefront/internal/license/domain"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
	userdomain "github.com/smallbiznis/storefront/internal/user/domain"
	"github.com/smallbiznis/storefront/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const redeemRetries = 5

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Orders   orderdomain.Repository
	Products productdomain.Repository
	Users    userdomain.Repository
	Licenses licensedomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	orders   orderdomain.Repository
	products productdomain.Repository
	users    userdomain.Repository
	licenses licensedomain.Repository
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("checkout.service"),
		genID:    p.GenID,
		clock:    c,
		orders:   p.Orders,
		products: p.Products,
		users:    p.Users,
		licenses: p.Licenses,
	}
}

// CreateOrder prices the requested lines at current product prices,
// redeems bonus points as a discount and stores the pending order.
func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.OrderResponse, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !currencyCode.MatchString(currency) {
		return nil, domain.ErrInvalidCurrency
	}
	if len(req.Lines) == 0 {
		return nil, domain.ErrEmptyOrder
	}
	if req.BonusPointsUsed < 0 {
		return nil, domain.ErrInvalidBonusPoints
	}

	productIDs := make([]snowflake.ID, 0, len(req.Lines))
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		id, err := snowflake.ParseString(strings.TrimSpace(line.ProductID))
		if err != nil || id == 0 {
			return nil, domain.ErrInvalidProduct
		}
		productIDs = append(productIDs, id)
	}

	now := s.clock.Now()
	order := &orderdomain.Order{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		Currency:  currency,
		Status:    orderdomain.OrderStatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.users.FindByID(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return userdomain.ErrNotFound
		}

		subtotal := decimal.Zero
		for i, line := range req.Lines {
			product, err := s.products.FindByID(ctx, tx, productIDs[i])
			if err != nil {
				return err
			}
			if product == nil || !product.Active {
				return productdomain.ErrNotFound
			}
			orderLine := orderdomain.OrderLine{
				ID:        s.genID.Generate(),
				OrderID:   order.ID,
				ProductID: product.ID,
				Quantity:  line.Quantity,
				UnitPrice: product.Price,
				CreatedAt: now,
				UpdatedAt: now,
			}
			subtotal = subtotal.Add(orderLine.Subtotal())
			order.Lines = append(order.Lines, orderLine)
		}

		// Points beyond the subtotal would buy nothing, so they stay with the user.
		points := req.BonusPointsUsed
		if limit := subtotal.Floor().IntPart(); points > limit {
			points = limit
		}
		if points > 0 {
			if err := s.redeem(ctx, tx, user, points, now); err != nil {
				return err
			}
		}
		order.BonusPointsUsed = points
		order.Total = subtotal.Sub(decimal.NewFromInt(points))
		if order.Total.IsNegative() {
			order.Total = decimal.Zero
		}

		return s.orders.Create(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", order.UserID.String()),
		zap.String("total", order.Total.StringFixed(2)),
		zap.String("currency", order.Currency),
		zap.Int("lines", len(order.Lines)),
	)
	resp := toResponse(order, nil)
	return &resp, nil
}

// redeem debits points with a versioned update, reloading the user when a
// concurrent writer bumped the version first.
func (s *Service) redeem(ctx context.Context, tx *gorm.DB, user *userdomain.User, points int64, at time.Time) error {
	current := user
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if current == nil {
			reloaded, err := s.users.FindByID(ctx, tx, user.ID)
			if err != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			if reloaded == nil {
				return struct{}{}, backoff.Permanent(userdomain.ErrNotFound)
			}
			current = reloaded
		}
		ok, err := s.users.SetBonusPoints(ctx, tx, current, current.BonusPoints-points, at)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if !ok {
			current = nil
			return struct{}{}, errors.New("bonus balance changed concurrently")
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(redeemRetries))
	return err
}

// GetOrder returns the order with license keys issued so far. Orders of
// other users are reported as missing.
func (s *Service) GetOrder(ctx context.Context, id string, userID snowflake.ID) (*domain.OrderResponse, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || orderID == 0 {
		return nil, domain.ErrInvalidOrderID
	}

	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}

	keys, err := s.licenseKeys(ctx, []orderdomain.Order{*order})
	if err != nil {
		return nil, err
	}
	resp := toResponse(order, keys)
	return &resp, nil
}

func (s *Service) ListOrders(ctx context.Context, userID snowflake.ID, req domain.ListOrdersRequest) (*domain.ListOrdersResponse, error) {
	pageSize := req.Limit()

	var afterID snowflake.ID
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	if cursor != nil {
		afterID, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
	}

	orders, err := s.orders.ListByUser(ctx, s.db, userID, afterID, pageSize+1)
	if err != nil {
		return nil, err
	}
	orders, pageInfo, err := pagination.Page(orders, pageSize, func(o orderdomain.Order) string {
		return o.ID.String()
	})
	if err != nil {
		return nil, err
	}

	keys, err := s.licenseKeys(ctx, orders)
	if err != nil {
		return nil, err
	}
	resp := &domain.ListOrdersResponse{
		Orders:   make([]domain.OrderResponse, 0, len(orders)),
		PageInfo: pageInfo,
	}
	for i := range orders {
		resp.Orders = append(resp.Orders, toResponse(&orders[i], keys))
	}
	return resp, nil
}

func (s *Service) licenseKeys(ctx context.Context, orders []orderdomain.Order) (map[snowflake.ID][]string, error) {
	var lineIDs []snowflake.ID
	for _, order := range orders {
		for _, line := range order.Lines {
			lineIDs = append(lineIDs, line.ID)
		}
	}
	items, err := s.licenses.ListByOrderLines(ctx, s.db, lineIDs)
	if err != nil {
		return nil, err
	}
	keys := make(map[snowflake.ID][]string, len(lineIDs))
	for _, item := range items {
		keys[item.OrderLineID] = append(keys[item.OrderLineID], item.LicenseKey)
	}
	return keys, nil
}

func toResponse(order *orderdomain.Order, keys map[snowflake.ID][]string) domain.OrderResponse {
	lines := make([]domain.LineResponse, 0, len(order.Lines))
	for _, line := range order.Lines {
		issued := keys[line.ID]
		if issued == nil {
			issued = []string{}
		}
		lines = append(lines, domain.LineResponse{
			ID:          line.ID.String(),
			ProductID:   line.ProductID.String(),
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice.StringFixed(2),
			Subtotal:    line.Subtotal().StringFixed(2),
			LicenseKeys: issued,
		})
	}
	return domain.OrderResponse{
		ID:                order.ID.String(),
		UserID:            order.UserID.String(),
		Status:            string(order.Status),
		Currency:          order.Currency,
		Total:             order.Total.StringFixed(2),
		BonusPointsUsed:   order.BonusPointsUsed,
		PaidProvider:      order.PaidProvider,
		PaidTransactionID: order.PaidTransactionID,
		BonusCreditedAt:   order.BonusCreditedAt,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
		Lines:             lines,
	}
}
