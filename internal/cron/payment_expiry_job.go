package cron

import (
	"context"
	"fmt"

	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

type paymentExpirer interface {
	SweepExpired(ctx context.Context, limit int) (int64, error)
}

// PaymentExpiryJobParams configures the pending-payment expiry cron job.
type PaymentExpiryJobParams struct {
	Logger   *logger.Logger
	Payments paymentExpirer
	Limit    int
}

// NewPaymentExpiryJob cancels pending payments whose window has lapsed so
// late provider callbacks cannot revive them.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	return &paymentExpiryJob{
		logg:     params.Logger,
		payments: params.Payments,
		limit:    limit,
	}, nil
}

type paymentExpiryJob struct {
	logg     *logger.Logger
	payments paymentExpirer
	limit    int
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

func (j *paymentExpiryJob) Run(ctx context.Context) error {
	cancelled, err := j.payments.SweepExpired(ctx, j.limit)
	if err != nil {
		return err
	}
	if cancelled > 0 {
		j.logg.Info(j.logg.WithField(ctx, "cancelled", cancelled), "expired pending payments cancelled")
	}
	return nil
}
