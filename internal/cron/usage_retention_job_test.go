package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

type fakePruner struct {
	deleted    int64
	err        error
	calls      int
	lastMaxAge time.Duration
}

func (f *fakePruner) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	f.calls++
	f.lastMaxAge = maxAge
	return f.deleted, f.err
}

func TestUsageRetentionJobPrunesWithConfiguredAge(t *testing.T) {
	pruner := &fakePruner{deleted: 120}
	job, err := NewUsageRetentionJob(UsageRetentionJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Usage:  pruner,
		MaxAge: 90 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewUsageRetentionJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pruner.calls != 1 {
		t.Fatalf("expected one prune, got %d", pruner.calls)
	}
	if pruner.lastMaxAge != 90*24*time.Hour {
		t.Fatalf("unexpected max age %s", pruner.lastMaxAge)
	}
}

func TestUsageRetentionJobRejectsZeroAge(t *testing.T) {
	_, err := NewUsageRetentionJob(UsageRetentionJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Usage:  &fakePruner{},
	})
	if err == nil {
		t.Fatal("expected error for zero retention age")
	}
}

func TestUsageRetentionJobPropagatesErrors(t *testing.T) {
	job, err := NewUsageRetentionJob(UsageRetentionJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Usage:  &fakePruner{err: errors.New("boom")},
		MaxAge: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewUsageRetentionJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
