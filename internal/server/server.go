package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/storefront/internal/checkout"
	checkoutdomain "github.com/smallbiznis/storefront/internal/checkout/domain"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/favorite"
	favoritedomain "github.com/smallbiznis/storefront/internal/favorite/domain"
	"github.com/smallbiznis/storefront/internal/observability"
	obsmiddleware "github.com/smallbiznis/storefront/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	obstracing "github.com/smallbiznis/storefront/internal/observability/tracing"
	"github.com/smallbiznis/storefront/internal/payment"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/product"
	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
	"github.com/smallbiznis/storefront/internal/ratelimit"
	userdomain "github.com/smallbiznis/storefront/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	product.Module,
	checkout.Module,
	favorite.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.PromMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.PromMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	productSvc  productdomain.Service
	checkoutSvc checkoutdomain.Service
	favoriteSvc favoritedomain.Service
	userSvc     userdomain.Service
	webhookSvc  paymentdomain.WebhookService
	fulfiller   paymentdomain.Fulfiller
	limiter     captureLimiter
}

type captureLimiter interface {
	Allow(ctx context.Context, userID string) *ratelimit.RateLimitResult
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	ProductSvc  productdomain.Service
	CheckoutSvc checkoutdomain.Service
	FavoriteSvc favoritedomain.Service
	UserSvc     userdomain.Service
	WebhookSvc  paymentdomain.WebhookService
	Fulfiller   paymentdomain.Fulfiller
	Limiter     *ratelimit.CaptureLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		productSvc:  p.ProductSvc,
		checkoutSvc: p.CheckoutSvc,
		favoriteSvc: p.FavoriteSvc,
		userSvc:     p.UserSvc,
		webhookSvc:  p.WebhookSvc,
		fulfiller:   p.Fulfiller,
		limiter:     p.Limiter,
	}

	svc.RegisterWebhookRoutes()
	svc.RegisterAPIRoutes()

	return svc
}

func (s *Server) RegisterWebhookRoutes() {
	s.engine.POST("/webhooks/payments/:provider", s.HandlePaymentWebhook)
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/products", s.ListProducts)
	api.GET("/products/:id", s.GetProductByID)
	api.POST("/products", s.CreateProduct)

	user := api.Group("", RequireUser())
	user.GET("/me", s.GetProfile)
	user.GET("/favorites", s.ListFavorites)
	user.GET("/favorites/check/:productId", s.CheckFavorite)
	user.POST("/favorites/:productId", s.AddFavorite)
	user.DELETE("/favorites/:productId", s.RemoveFavorite)
	user.POST("/orders", s.CreateOrder)
	user.GET("/orders", s.ListOrders)
	user.GET("/orders/:id", s.GetOrder)
	user.POST("/payments/:provider/capture", s.RateLimitCapture(), s.CapturePayment)
}
