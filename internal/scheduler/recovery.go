package scheduler

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"go.uber.org/zap"
)

// RecoverFulfillmentsJob resumes orders that were marked paid but never got
// their payment record, typically because a license line or a counter
// update failed mid-way and the provider stopped redelivering. The capture
// is replayed from the webhook inbox so the same transaction id is used.
func (s *Scheduler) RecoverFulfillmentsJob(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.cfg.RecoveryThreshold)
	log := s.logger(ctx)

	var (
		jobErr    error
		processed int
		afterID   snowflake.ID
	)
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		orders, err := s.orders.ListUnsettled(ctx, s.db, cutoff, afterID, s.cfg.BatchSize)
		if err != nil {
			return processed, errors.Join(paymentdomain.ErrStoreUnavailable, err)
		}
		if len(orders) == 0 {
			break
		}

		for i := range orders {
			order := &orders[i]
			afterID = order.ID
			done, err := s.recoverOrder(ctx, order)
			if err != nil {
				log.Warn("fulfillment recovery failed",
					zap.String("order_id", order.ID.String()),
					zap.Bool("retryable", paymentdomain.IsRetryable(err)),
					zap.Error(err),
				)
				jobErr = errors.Join(jobErr, err)
				continue
			}
			if done {
				processed++
			}
		}

		if len(orders) < s.cfg.BatchSize {
			break
		}
	}
	return processed, jobErr
}

func (s *Scheduler) recoverOrder(ctx context.Context, order *orderdomain.Order) (bool, error) {
	if order.PaidProvider == nil || order.PaidTransactionID == nil {
		return false, nil
	}
	event, err := s.payments.FindSucceededCapture(ctx, s.db, *order.PaidProvider, *order.PaidTransactionID)
	if err != nil {
		return false, errors.Join(paymentdomain.ErrStoreUnavailable, err)
	}
	if event == nil {
		// Paid through a path that left nothing in the inbox. Nothing to replay.
		s.logger(ctx).Warn("no succeeded capture to replay",
			zap.String("order_id", order.ID.String()),
			zap.String("provider", *order.PaidProvider),
			zap.String("transaction_id", *order.PaidTransactionID),
		)
		return false, nil
	}

	_, err = s.fulfiller.Fulfill(ctx, event.ToCaptureResult(), order.UserID)
	switch {
	case err == nil:
		s.logger(ctx).Info("fulfillment recovered",
			zap.String("order_id", order.ID.String()),
			zap.String("transaction_id", event.TransactionID),
		)
		return true, nil
	case paymentdomain.IsAlreadyProcessed(err):
		return false, nil
	default:
		return false, err
	}
}
