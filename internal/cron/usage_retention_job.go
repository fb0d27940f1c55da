package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

type usagePruner interface {
	Prune(ctx context.Context, maxAge time.Duration) (int64, error)
}

// UsageRetentionJobParams configures the usage log retention cron job.
type UsageRetentionJobParams struct {
	Logger *logger.Logger
	Usage  usagePruner
	MaxAge time.Duration
}

// NewUsageRetentionJob deletes usage records older than the retention window.
func NewUsageRetentionJob(params UsageRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Usage == nil {
		return nil, fmt.Errorf("usage service required")
	}
	if params.MaxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive")
	}
	return &usageRetentionJob{
		logg:   params.Logger,
		usage:  params.Usage,
		maxAge: params.MaxAge,
	}, nil
}

type usageRetentionJob struct {
	logg   *logger.Logger
	usage  usagePruner
	maxAge time.Duration
}

func (j *usageRetentionJob) Name() string { return "usage-retention" }

func (j *usageRetentionJob) Run(ctx context.Context) error {
	deleted, err := j.usage.Prune(ctx, j.maxAge)
	if err != nil {
		return err
	}
	if deleted > 0 {
		j.logg.Info(j.logg.WithField(ctx, "deleted", deleted), "old usage records pruned")
	}
	return nil
}
