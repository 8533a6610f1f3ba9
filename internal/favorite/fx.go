package favorite

import (
	"github.com/smallbiznis/storefront/internal/favorite/repository"
	"github.com/smallbiznis/storefront/internal/favorite/service"
	"go.uber.org/fx"
)

var Module = fx.Module("favorite.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
