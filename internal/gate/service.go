package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeuslykraios/alauda-api/internal/keys"
	"github.com/zeuslykraios/alauda-api/internal/usage"
	"github.com/zeuslykraios/alauda-api/pkg/costs"
	"github.com/zeuslykraios/alauda-api/pkg/db/models"
	"github.com/zeuslykraios/alauda-api/pkg/enums"
	pkgerrors "github.com/zeuslykraios/alauda-api/pkg/errors"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
	"github.com/zeuslykraios/alauda-api/pkg/metrics"
	"github.com/zeuslykraios/alauda-api/pkg/plans"
)

const defaultConsumeRetries = 3

// UsageRecorder is the slice of the usage service the gate needs.
type UsageRecorder interface {
	Record(ctx context.Context, entry usage.Entry) error
}

// Request is the envelope the gate admits: who is calling, what operation,
// and the caller metadata recorded with the outcome.
type Request struct {
	// Token is the raw credential token from the designated header or
	// query field.
	Token string
	// PartnerMarker is the raw partner-platform header value. It grants
	// the passthrough only when it equals the configured expected value.
	PartnerMarker string
	Operation     string
	ClientIP      string
	UserAgent     string
}

// ServiceParams groups gate dependencies.
type ServiceParams struct {
	Keys    keys.Repository
	Usage   UsageRecorder
	Logger  *logger.Logger
	Metrics *metrics.GateMetrics
	Costs   *costs.Table
	// Timezone anchors daily-quota resets at local midnight.
	Timezone *time.Location
	// PartnerToken is the expected partner header value; empty disables
	// the passthrough entirely.
	PartnerToken   string
	ConsumeRetries int
	PlanResolver   func(enums.PlanTier) plans.Plan
	Now            func() time.Time
}

// Service is the access gate. Admit runs the read-only checks and hands the
// handler an Admission whose callbacks apply the write effects.
type Service struct {
	keys         keys.Repository
	usage        UsageRecorder
	logg         *logger.Logger
	metrics      *metrics.GateMetrics
	costs        *costs.Table
	tz           *time.Location
	partnerToken string
	retries      int
	planFor      func(enums.PlanTier) plans.Plan
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Keys == nil {
		return nil, errors.New("key repository is required")
	}
	if params.Usage == nil {
		return nil, errors.New("usage recorder is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	table := params.Costs
	if table == nil {
		table = costs.Default()
	}
	tz := params.Timezone
	if tz == nil {
		tz = time.UTC
	}
	retries := params.ConsumeRetries
	if retries <= 0 {
		retries = defaultConsumeRetries
	}
	planFor := params.PlanResolver
	if planFor == nil {
		planFor = plans.For
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		keys:         params.Keys,
		usage:        params.Usage,
		logg:         params.Logger,
		metrics:      params.Metrics,
		costs:        table,
		tz:           tz,
		partnerToken: params.PartnerToken,
		retries:      retries,
		planFor:      planFor,
		now:          now,
	}, nil
}

// Admit runs resolution, validity, quota, and credit checks. On success it
// returns an Admission; exactly one of its callbacks must then be invoked.
// On denial nothing was mutated and no callback exists to call.
func (s *Service) Admit(ctx context.Context, req Request) (*Admission, error) {
	now := s.now()
	cost, matched := s.costs.Resolve(req.Operation)
	if !matched {
		opCtx := s.logg.WithField(ctx, "operation", req.Operation)
		s.logg.Warn(opCtx, "operation has no cost entry, using default")
	}

	if s.partnerToken != "" && req.PartnerMarker == s.partnerToken {
		s.metrics.IncAdmitted(string(KindPartner))
		return &Admission{
			svc:       s,
			caller:    PartnerCaller(),
			operation: req.Operation,
			cost:      cost,
			clientIP:  req.ClientIP,
			userAgent: req.UserAgent,
			started:   now,
		}, nil
	}

	if req.Token == "" {
		s.metrics.IncDenied("unauthenticated")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "api key required")
	}
	key, err := s.keys.FindByDigest(ctx, keys.Digest(req.Token))
	if err != nil {
		s.metrics.IncDenied("internal")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve api key")
	}
	if key == nil {
		s.metrics.IncDenied("unauthenticated")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown api key")
	}

	logCtx := s.logg.WithKeyID(ctx, key.ID.String())

	if denied := s.checkValidity(key, now); denied != nil {
		s.metrics.IncDenied("forbidden")
		return nil, denied
	}

	plan := s.planFor(key.Plan)
	newCount := s.nextDailyCount(key, now)
	if plan.HasDailyLimit() && newCount > plan.DailyLimit {
		s.metrics.IncDenied("quota_exceeded")
		reset := s.nextMidnight(now)
		return nil, pkgerrors.New(pkgerrors.CodeQuotaExceeded,
			fmt.Sprintf("daily limit of %d requests reached", plan.DailyLimit)).
			WithDetails(map[string]any{
				"limit":     plan.DailyLimit,
				"resets_at": reset.Format(time.RFC3339),
			})
	}

	if !plan.UnlimitedCredits && key.Credits < cost {
		s.metrics.IncDenied("insufficient_credit")
		return nil, pkgerrors.New(pkgerrors.CodePaymentRequired,
			fmt.Sprintf("operation costs %d credits, %d available", cost, key.Credits)).
			WithDetails(map[string]any{
				"required":  cost,
				"available": key.Credits,
			})
	}

	// Recorded at admission regardless of the eventual outcome.
	if req.ClientIP != "" {
		if err := s.keys.UpdateLastRequestIP(logCtx, key.ID, req.ClientIP); err != nil {
			s.logg.Warn(logCtx, "updating last request ip failed")
		}
	}

	s.metrics.IncAdmitted(string(KindAPIKey))
	return &Admission{
		svc:       s,
		caller:    Caller{Kind: KindAPIKey, Key: key},
		operation: req.Operation,
		cost:      cost,
		plan:      plan,
		newCount:  newCount,
		clientIP:  req.ClientIP,
		userAgent: req.UserAgent,
		started:   now,
	}, nil
}

func (s *Service) checkValidity(key *models.APIKey, now time.Time) error {
	if key.Suspended {
		reason := "api key suspended"
		if key.SuspendReason != nil && *key.SuspendReason != "" {
			reason = fmt.Sprintf("api key suspended: %s", *key.SuspendReason)
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, reason)
	}
	if !key.Active {
		return pkgerrors.New(pkgerrors.CodeForbidden, "api key revoked")
	}
	if key.Expired(now) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "api key expired")
	}
	return nil
}

// nextDailyCount projects the requests_today value this request would store.
// The counter restarts at 1 the first time a request lands on a new local
// calendar day; elapsed time is irrelevant.
func (s *Service) nextDailyCount(key *models.APIKey, now time.Time) int {
	if key.LastRequestAt == nil || !s.sameLocalDay(*key.LastRequestAt, now) {
		return 1
	}
	return key.RequestsToday + 1
}

func (s *Service) sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.In(s.tz).Date()
	by, bm, bd := b.In(s.tz).Date()
	return ay == by && am == bm && ad == bd
}

func (s *Service) nextMidnight(now time.Time) time.Time {
	local := now.In(s.tz)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.tz).AddDate(0, 0, 1)
}

// Admission is a passed admission check. The downstream handler must settle
// it exactly once with OnSuccess or OnFailure.
type Admission struct {
	svc       *Service
	caller    Caller
	operation string
	cost      int64
	plan      plans.Plan
	newCount  int
	clientIP  string
	userAgent string
	started   time.Time

	mu      sync.Mutex
	settled bool
}

// Caller returns the authenticated identity.
func (a *Admission) Caller() Caller { return a.caller }

// Cost returns the credits this operation charges on success.
func (a *Admission) Cost() int64 { return a.cost }

// OnSuccess consumes the operation's credits and records the outcome. The
// balance decrement is a conditional update retried on conflict a bounded
// number of times.
func (a *Admission) OnSuccess(ctx context.Context, statusCode int) error {
	if err := a.settle(); err != nil {
		return err
	}
	s := a.svc

	if a.caller.Unlimited() {
		a.record(ctx, usage.Entry{
			CallerKind: string(a.caller.Kind),
			Operation:  a.operation,
			Outcome:    enums.UsageSuccess,
			StatusCode: statusCode,
		})
		return nil
	}

	key := a.caller.Key
	newCount := a.newCount
	cost := a.cost
	if a.plan.UnlimitedCredits {
		cost = 0
	}

	var remaining int64
	consumed := false
	for attempt := 0; attempt <= s.retries; attempt++ {
		if !a.plan.UnlimitedCredits && key.Credits < cost {
			return pkgerrors.New(pkgerrors.CodePaymentRequired,
				fmt.Sprintf("operation costs %d credits, %d available", cost, key.Credits))
		}
		ok, err := s.keys.ConsumeCAS(ctx, keys.ConsumeSnapshot{
			ID:            key.ID,
			Credits:       key.Credits,
			Cost:          cost,
			RequestsToday: newCount,
			RequestedAt:   s.now().UTC(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consume credits")
		}
		if ok {
			remaining = key.Credits - cost
			consumed = true
			break
		}
		fresh, err := s.keys.FindByID(ctx, key.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload api key")
		}
		if fresh == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "api key vanished mid-request")
		}
		key = fresh
		newCount = s.nextDailyCount(fresh, s.now())
	}
	if !consumed {
		s.metrics.IncDenied("internal")
		return pkgerrors.New(pkgerrors.CodeInternal, "balance update kept conflicting")
	}

	s.metrics.AddCreditsConsumed(a.operation, cost)
	a.record(ctx, usage.Entry{
		APIKeyID:         &key.ID,
		CallerKind:       string(a.caller.Kind),
		Operation:        a.operation,
		Outcome:          enums.UsageSuccess,
		CreditsCharged:   cost,
		CreditsRemaining: &remaining,
		StatusCode:       statusCode,
	})
	return nil
}

// OnFailure records a failed call. Counters move, the balance does not.
func (a *Admission) OnFailure(ctx context.Context, statusCode int, message string) error {
	if err := a.settle(); err != nil {
		return err
	}
	s := a.svc

	entry := usage.Entry{
		CallerKind:   string(a.caller.Kind),
		Operation:    a.operation,
		Outcome:      enums.UsageFailure,
		StatusCode:   statusCode,
		ErrorMessage: message,
	}
	if a.caller.Kind == KindAPIKey {
		key := a.caller.Key
		entry.APIKeyID = &key.ID
		if err := s.keys.RecordFailure(ctx, key.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record failure")
		}
	}
	a.record(ctx, entry)
	return nil
}

func (a *Admission) settle() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.settled {
		return pkgerrors.New(pkgerrors.CodeInternal, "admission already settled")
	}
	a.settled = true
	return nil
}

func (a *Admission) record(ctx context.Context, entry usage.Entry) {
	s := a.svc
	entry.Latency = s.now().Sub(a.started)
	entry.ClientIP = a.clientIP
	entry.UserAgent = a.userAgent
	if err := s.usage.Record(ctx, entry); err != nil {
		s.logg.Error(ctx, "recording usage failed", err)
	}
}
