package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/zeuslykraios/alauda-api/internal/payments"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

const defaultSweepLimit = 250

type paymentSweeper interface {
	SweepApproved(ctx context.Context, limit int) (payments.SweepTally, error)
	PollInProcess(ctx context.Context, limit int) (payments.SweepTally, error)
}

// PaymentSweepJobParams configures the reconcile sweep cron job.
type PaymentSweepJobParams struct {
	Logger   *logger.Logger
	Payments paymentSweeper
	Limit    int
}

// NewPaymentSweepJob builds the correctness backstop for missed webhooks:
// it processes approved-but-uncredited records and polls in-flight ones.
func NewPaymentSweepJob(params PaymentSweepJobParams) (Job, error) {
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
	return &paymentSweepJob{
		logg:     params.Logger,
		payments: params.Payments,
		limit:    limit,
	}, nil
}

type paymentSweepJob struct {
	logg     *logger.Logger
	payments paymentSweeper
	limit    int
}

func (j *paymentSweepJob) Name() string { return "payment-sweep" }

func (j *paymentSweepJob) Run(ctx context.Context) error {
	var errs error

	approved, err := j.payments.SweepApproved(ctx, j.limit)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	polled, err := j.payments.PollInProcess(ctx, j.limit)
	if err != nil {
		errs = multierr.Append(errs, err)
	}

	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"approved_attempted": approved.Attempted,
		"approved_succeeded": approved.Succeeded,
		"approved_failed":    approved.Failed,
		"polled_attempted":   polled.Attempted,
		"polled_succeeded":   polled.Succeeded,
		"polled_failed":      polled.Failed,
	})
	j.logg.Info(reportCtx, "payment sweep complete")
	return errs
}
