package cron

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeuslykraios/alauda-api/pkg/logger"
	"github.com/zeuslykraios/alauda-api/pkg/metrics"
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    LockProvider
	Metrics  *metrics.CronJobMetrics
}

// Service executes registered jobs, each on its own cadence. A slow run
// never delays the ticker; overlapping ticks for the same job are skipped.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locks    LockProvider
	metrics  *metrics.CronJobMetrics
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	locks := params.Locks
	if locks == nil {
		locks = NoopLockProvider{}
	}
	return &Service{
		logg:     params.Logger,
		registry: params.Registry,
		locks:    locks,
		metrics:  params.Metrics,
	}, nil
}

// Run starts every job's ticker and blocks until the context is canceled.
// Each job fires once immediately, then on its interval.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var wg sync.WaitGroup
	for _, entry := range s.registry.Entries() {
		wg.Add(1)
		go func(entry Entry) {
			defer wg.Done()
			s.runLoop(ctx, entry)
		}(entry)
	}
	wg.Wait()
	s.logg.Info(ctx, "cron service stopped")
	return ctx.Err()
}

func (s *Service) runLoop(ctx context.Context, entry Entry) {
	var inFlight atomic.Bool
	lock := s.locks.For(entry.Job.Name())

	fire := func() {
		if !inFlight.CompareAndSwap(false, true) {
			jobCtx := s.logg.WithField(ctx, "job", entry.Job.Name())
			s.logg.Warn(jobCtx, "previous run still in flight; skipping tick")
			return
		}
		go func() {
			defer inFlight.Store(false)
			s.runJob(ctx, entry.Job, lock)
		}()
	}

	fire()
	ticker := time.NewTicker(entry.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire()
		}
	}
}

func (s *Service) runJob(ctx context.Context, job Job, lock Lock) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")

	locked, err := lock.Acquire(jobCtx)
	if err != nil {
		s.logg.Error(jobCtx, "lock acquire failed", err)
		return
	}
	if !locked {
		s.logg.Info(jobCtx, "another instance holds the lock; skipping")
		return
	}
	defer func() {
		if relErr := lock.Release(jobCtx); relErr != nil {
			s.logg.Error(jobCtx, "failed to release job lock", relErr)
		}
	}()

	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	runErr := job.Run(jobCtx)
	duration := time.Since(start)
	s.observeDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if runErr != nil {
		s.logg.Error(jobCtx, "job failed", runErr)
		s.recordFailure(job.Name())
		return
	}
	s.logg.Info(jobCtx, "job completed")
	s.recordSuccess(job.Name())
}

func (s *Service) observeDuration(job string, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveDuration(job, duration)
}

func (s *Service) recordSuccess(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncSuccess(job)
}

func (s *Service) recordFailure(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncFailure(job)
}
