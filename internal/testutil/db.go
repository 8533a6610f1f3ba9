// Package testutil builds throwaway stores for package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	licensedomain "github.com/smallbiznis/storefront/internal/license/domain"
	"github.com/smallbiznis/storefront/internal/migration"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
	userdomain "github.com/smallbiznis/storefront/internal/user/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// OpenDB returns a private in-memory sqlite database with the full schema.
// A single connection keeps concurrent tests from tripping over sqlite's
// writer lock.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.AutoMigrate(db))
	return db
}

// NewNode returns a snowflake node for test ids.
func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func SeedUser(t *testing.T, db *gorm.DB, node *snowflake.Node, points int64) *userdomain.User {
	t.Helper()
	now := time.Now().UTC()
	id := node.Generate()
	user := &userdomain.User{
		ID:          id,
		Username:    "user-" + id.String(),
		Email:       id.String() + "@example.com",
		BonusPoints: points,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func SeedProduct(t *testing.T, db *gorm.DB, node *snowflake.Node, name, price string) *productdomain.Product {
	t.Helper()
	now := time.Now().UTC()
	product := &productdomain.Product{
		ID:        node.Generate(),
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Stock:     100,
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

// LineSpec describes one order line to seed.
type LineSpec struct {
	ProductID snowflake.ID
	Quantity  int
	UnitPrice string
}

// SeedOrder creates a pending order whose total is the given amount.
func SeedOrder(t *testing.T, db *gorm.DB, node *snowflake.Node, userID snowflake.ID, total, currency string, lines ...LineSpec) *orderdomain.Order {
	t.Helper()
	now := time.Now().UTC()
	order := &orderdomain.Order{
		ID:        node.Generate(),
		UserID:    userID,
		Total:     decimal.RequireFromString(total),
		Currency:  currency,
		Status:    orderdomain.OrderStatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, spec := range lines {
		price := spec.UnitPrice
		if price == "" {
			price = "0"
		}
		order.Lines = append(order.Lines, orderdomain.OrderLine{
			ID:        node.Generate(),
			OrderID:   order.ID,
			ProductID: spec.ProductID,
			Quantity:  spec.Quantity,
			UnitPrice: decimal.RequireFromString(price),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func CountLicenses(t *testing.T, db *gorm.DB, orderLineID snowflake.ID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&licensedomain.License{}).Where("order_line_id = ?", orderLineID).Count(&count).Error)
	return count
}

func CountRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(model).Count(&count).Error)
	return count
}

func ReloadOrder(t *testing.T, db *gorm.DB, id snowflake.ID) *orderdomain.Order {
	t.Helper()
	var order orderdomain.Order
	require.NoError(t, db.Where("id = ?", id).First(&order).Error)
	return &order
}

func ReloadProduct(t *testing.T, db *gorm.DB, id snowflake.ID) *productdomain.Product {
	t.Helper()
	var product productdomain.Product
	require.NoError(t, db.Where("id = ?", id).First(&product).Error)
	return &product
}

func ReloadUser(t *testing.T, db *gorm.DB, id snowflake.ID) *userdomain.User {
	t.Helper()
	var user userdomain.User
	require.NoError(t, db.Where("id = ?", id).First(&user).Error)
	return &user
}
