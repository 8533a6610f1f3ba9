package migration

import (
	favoritedomain "github.com/smallbiznis/storefront/internal/favorite/domain"
	licensedomain "github.com/smallbiznis/storefront/internal/license/domain"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
	userdomain "github.com/smallbiznis/storefront/internal/user/domain"
	"gorm.io/gorm"
)

// Models lists every persisted entity in dependency order.
func Models() []any {
	return []any{
		&userdomain.User{},
		&productdomain.Product{},
		&orderdomain.Order{},
		&orderdomain.OrderLine{},
		&licensedomain.License{},
		&paymentdomain.PaymentRecord{},
		&paymentdomain.CaptureEvent{},
		&favoritedomain.Favorite{},
	}
}

// AutoMigrate builds the schema from the gorm models. Used for sqlite and
// mysql, where the embedded postgres migrations do not apply.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
