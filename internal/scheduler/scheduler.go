package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/lock"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/pkg/log/ctxlogger"
	"github.com/smallbiznis/storefront/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Locker    lock.Locker
	Orders    orderdomain.Repository
	Payments  paymentdomain.Repository
	Fulfiller paymentdomain.Fulfiller
	Config    Config                  `optional:"true"`
	Prom      *obsmetrics.PromMetrics `optional:"true"`
}

// Scheduler runs background sweeps. Every replica may run one; a shared
// lock keeps a given job to a single replica per tick.
type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	locker    lock.Locker
	orders    orderdomain.Repository
	payments  paymentdomain.Repository
	fulfiller paymentdomain.Fulfiller
	prom      *obsmetrics.PromMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Locker == nil || p.Orders == nil || p.Payments == nil || p.Fulfiller == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     clk,
		locker:    p.Locker,
		orders:    p.Orders,
		payments:  p.Payments,
		fulfiller: p.Fulfiller,
		prom:      p.Prom,
	}, nil
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return ctxlogger.WithContext(ctx, s.log)
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int, error)) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	runID := s.genID.Generate().String()
	ctx = correlation.ContextWithCorrelationID(ctx, runID)
	log := s.logger(ctx).With(zap.String("job", name), zap.String("run_id", runID))

	claimCtx, claimCancel := context.WithTimeout(ctx, 2*time.Second)
	unlock, err := s.locker.Lock(claimCtx, "scheduler:job:"+name)
	claimCancel()
	if err != nil {
		log.Debug("job held elsewhere, skipping", zap.Error(err))
		s.prom.ObserveJob(name, "skipped", 0)
		return nil
	}
	defer unlock()

	processed, err := fn(ctx)
	elapsed := s.clock.Now().Sub(start)
	if err == nil {
		if processed > 0 {
			log.Info("job finished", zap.Int("processed", processed), zap.Duration("duration", elapsed))
		}
		s.prom.ObserveJob(name, "ok", elapsed)
		return nil
	}

	// Deadline is a soft stop; the next tick picks up the rest.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout), zap.Int("processed", processed), zap.Error(err))
		s.prom.ObserveJob(name, "timeout", elapsed)
		return nil
	}
	s.prom.ObserveJob(name, "error", elapsed)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every job a single time.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, "recover_fulfillments", s.RecoverFulfillmentsJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
