package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/zeuslykraios/alauda-api/internal/payments"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

type fakeSweeper struct {
	approvedTally payments.SweepTally
	approvedErr   error
	polledTally   payments.SweepTally
	polledErr     error
	approvedCalls int
	polledCalls   int
	lastLimit     int
}

func (f *fakeSweeper) SweepApproved(ctx context.Context, limit int) (payments.SweepTally, error) {
	f.approvedCalls++
	f.lastLimit = limit
	return f.approvedTally, f.approvedErr
}

func (f *fakeSweeper) PollInProcess(ctx context.Context, limit int) (payments.SweepTally, error) {
	f.polledCalls++
	return f.polledTally, f.polledErr
}

func newPaymentSweepJob(t *testing.T, sweeper *fakeSweeper) Job {
	t.Helper()
	job, err := NewPaymentSweepJob(PaymentSweepJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Payments: sweeper,
	})
	if err != nil {
		t.Fatalf("NewPaymentSweepJob: %v", err)
	}
	return job
}

func TestPaymentSweepJobRunsBothPhases(t *testing.T) {
	sweeper := &fakeSweeper{
		approvedTally: payments.SweepTally{Attempted: 3, Succeeded: 3},
		polledTally:   payments.SweepTally{Attempted: 1, Succeeded: 1},
	}
	job := newPaymentSweepJob(t, sweeper)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.approvedCalls != 1 || sweeper.polledCalls != 1 {
		t.Fatalf("expected one call per phase, got %d and %d", sweeper.approvedCalls, sweeper.polledCalls)
	}
	if sweeper.lastLimit != defaultSweepLimit {
		t.Fatalf("expected default limit %d, got %d", defaultSweepLimit, sweeper.lastLimit)
	}
}

func TestPaymentSweepJobPollsEvenWhenSweepFails(t *testing.T) {
	sweeper := &fakeSweeper{approvedErr: errors.New("boom")}
	job := newPaymentSweepJob(t, sweeper)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if sweeper.polledCalls != 1 {
		t.Fatalf("expected poll phase to run despite sweep failure, got %d calls", sweeper.polledCalls)
	}
}

func TestPaymentSweepJobRequiresService(t *testing.T) {
	_, err := NewPaymentSweepJob(PaymentSweepJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
	})
	if err == nil {
		t.Fatal("expected error for missing payment service")
	}
}
