package usage

import (
	"context"
	"encoding/json"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/zeuslykraios/alauda-api/pkg/db/models"
	"github.com/zeuslykraios/alauda-api/pkg/enums"
	"github.com/zeuslykraios/alauda-api/pkg/errors"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

// Publisher is the slice of the Pub/Sub publisher the service needs.
type Publisher interface {
	Publish(ctx context.Context, data []byte) error
}

// TopicPublisher adapts a Pub/Sub publisher handle to Publisher.
type TopicPublisher struct {
	Topic *pubsub.Publisher
}

func (p *TopicPublisher) Publish(ctx context.Context, data []byte) error {
	if p == nil || p.Topic == nil {
		return nil
	}
	result := p.Topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err := result.Get(ctx)
	return err
}

// Entry captures everything known about a gated call at completion time.
type Entry struct {
	APIKeyID         *uuid.UUID
	CallerKind       string
	Operation        string
	Outcome          enums.UsageOutcome
	CreditsCharged   int64
	CreditsRemaining *int64
	StatusCode       int
	ErrorMessage     string
	Latency          time.Duration
	ClientIP         string
	UserAgent        string
}

type ServiceParams struct {
	Repo      Repository
	Logger    *logger.Logger
	Publisher Publisher
}

// Service writes usage records and fans them out to the analytics topic.
// Publishing is best effort; a publish failure never fails the request.
type Service struct {
	repo Repository
	logg *logger.Logger
	pub  Publisher
}

func NewService(params ServiceParams) *Service {
	return &Service{
		repo: params.Repo,
		logg: params.Logger,
		pub:  params.Publisher,
	}
}

// Record persists a usage entry. It is called once per admitted call when
// the outcome settles, whether the upstream work succeeded or failed;
// denied requests never reach it.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	record := &models.UsageRecord{
		ID:               uuid.New(),
		APIKeyID:         entry.APIKeyID,
		CallerKind:       entry.CallerKind,
		Operation:        entry.Operation,
		Outcome:          entry.Outcome,
		CreditsCharged:   entry.CreditsCharged,
		CreditsRemaining: entry.CreditsRemaining,
		StatusCode:       entry.StatusCode,
		LatencyMs:        entry.Latency.Milliseconds(),
		ClientIP:         entry.ClientIP,
		UserAgent:        entry.UserAgent,
	}
	if entry.ErrorMessage != "" {
		msg := entry.ErrorMessage
		record.ErrorMessage = &msg
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return errors.Wrap(errors.CodeInternal, err, "persisting usage record")
	}

	s.publish(ctx, record)
	return nil
}

// ListByKey returns the most recent records for one credential.
func (s *Service) ListByKey(ctx context.Context, keyID uuid.UUID, limit int) ([]models.UsageRecord, error) {
	records, err := s.repo.ListByKey(ctx, keyID, limit)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "listing usage records")
	}
	return records, nil
}

// Prune deletes records older than the retention cutoff and reports how
// many rows were removed.
func (s *Service) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(errors.CodeInternal, err, "pruning usage records")
	}
	return deleted, nil
}

func (s *Service) publish(ctx context.Context, record *models.UsageRecord) {
	if s.pub == nil {
		return
	}
	payload, err := json.Marshal(record)
	if err != nil {
		s.logg.Warn(ctx, "usage event marshal failed")
		return
	}
	if err := s.pub.Publish(ctx, payload); err != nil {
		s.logg.Warn(ctx, "usage event publish failed")
	}
}
