package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/favorite/domain"
	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
	userdomain "github.com/smallbiznis/storefront/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Users    userdomain.Repository
	Products productdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	users    userdomain.Repository
	products productdomain.Service
}

func New(p Params) domain.Service {
	svc := &Service{
		db:       p.DB,
		log:      p.Log.Named("favorite.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		users:    p.Users,
		products: p.Products,
	}
	if svc.clock == nil {
		svc.clock = clock.System()
	}
	return svc
}

func (s *Service) Add(ctx context.Context, userID snowflake.ID, productID string) (*domain.Response, error) {
	pid, err := parseProductID(productID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrNotFound
	}

	product, err := s.products.Get(ctx, pid.String())
	if err != nil {
		return nil, err
	}

	fav := &domain.Favorite{
		ID:        s.genID.Generate(),
		UserID:    userID,
		ProductID: pid,
		CreatedAt: s.clock.Now(),
	}
	inserted, err := s.repo.Insert(ctx, s.db, fav)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, domain.ErrAlreadyFavorite
	}

	s.log.Info("favorite added",
		zap.String("user_id", userID.String()),
		zap.String("product_id", pid.String()),
	)
	resp := toResponse(fav, *product)
	return &resp, nil
}

func (s *Service) Remove(ctx context.Context, userID snowflake.ID, productID string) error {
	pid, err := parseProductID(productID)
	if err != nil {
		return err
	}
	removed, err := s.repo.Delete(ctx, s.db, userID, pid)
	if err != nil {
		return err
	}
	if !removed {
		return domain.ErrNotFound
	}
	return nil
}

// List renders the user's favorites newest first. Favorites whose product
// no longer exists are left out.
func (s *Service) List(ctx context.Context, userID snowflake.ID) ([]domain.Response, error) {
	items, err := s.repo.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		product, err := s.products.Get(ctx, items[i].ProductID.String())
		if errors.Is(err, productdomain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		resp = append(resp, toResponse(&items[i], *product))
	}
	return resp, nil
}

func (s *Service) IsFavorite(ctx context.Context, userID snowflake.ID, productID string) (bool, error) {
	pid, err := parseProductID(productID)
	if err != nil {
		return false, err
	}
	fav, err := s.repo.Find(ctx, s.db, userID, pid)
	if err != nil {
		return false, err
	}
	return fav != nil, nil
}

func parseProductID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidProductID
	}
	return id, nil
}

func toResponse(f *domain.Favorite, product productdomain.Response) domain.Response {
	return domain.Response{
		ID:        f.ID.String(),
		UserID:    f.UserID.String(),
		Product:   product,
		CreatedAt: f.CreatedAt,
	}
}
