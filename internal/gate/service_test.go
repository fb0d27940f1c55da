package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zeuslykraios/alauda-api/internal/keys"
	"github.com/zeuslykraios/alauda-api/internal/usage"
	"github.com/zeuslykraios/alauda-api/pkg/costs"
	"github.com/zeuslykraios/alauda-api/pkg/db/models"
	"github.com/zeuslykraios/alauda-api/pkg/enums"
	pkgerrors "github.com/zeuslykraios/alauda-api/pkg/errors"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
	"github.com/zeuslykraios/alauda-api/pkg/plans"
)

// memKeys is an in-memory key repository with the same conditional-update
// semantics as the real one.
type memKeys struct {
	mu       sync.Mutex
	keys     map[uuid.UUID]*models.APIKey
	casFails int
}

func newMemKeys() *memKeys {
	return &memKeys{keys: map[uuid.UUID]*models.APIKey{}}
}

func (m *memKeys) add(key *models.APIKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *key
	m.keys[key.ID] = &copied
}

func (m *memKeys) get(id uuid.UUID) models.APIKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.keys[id]
}

func (m *memKeys) WithTx(tx *gorm.DB) keys.Repository { return m }

func (m *memKeys) Create(ctx context.Context, key *models.APIKey) error {
	m.add(key)
	return nil
}

func (m *memKeys) Update(ctx context.Context, key *models.APIKey) error {
	m.add(key)
	return nil
}

func (m *memKeys) FindByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return nil, nil
	}
	copied := *key
	return &copied, nil
}

func (m *memKeys) FindByDigest(ctx context.Context, digest string) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.keys {
		if key.TokenDigest == digest {
			copied := *key
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memKeys) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.APIKey, error) {
	return nil, nil
}

func (m *memKeys) ConsumeCAS(ctx context.Context, snap keys.ConsumeSnapshot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.casFails > 0 {
		m.casFails--
		return false, nil
	}
	key, ok := m.keys[snap.ID]
	if !ok || key.Credits != snap.Credits {
		return false, nil
	}
	key.Credits = snap.Credits - snap.Cost
	key.TotalRequests++
	key.SuccessCount++
	key.RequestsToday = snap.RequestsToday
	at := snap.RequestedAt
	key.LastRequestAt = &at
	return true, nil
}

func (m *memKeys) RecordFailure(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.keys[id]; ok {
		key.TotalRequests++
		key.FailureCount++
	}
	return nil
}

func (m *memKeys) AddCredits(ctx context.Context, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.keys[id]; ok {
		key.Credits += amount
	}
	return nil
}

func (m *memKeys) UpdateLastRequestIP(ctx context.Context, id uuid.UUID, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.keys[id]; ok {
		key.LastRequestIP = &ip
	}
	return nil
}

type memUsage struct {
	mu      sync.Mutex
	entries []usage.Entry
}

func (m *memUsage) Record(ctx context.Context, entry usage.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memUsage) byOutcome(outcome enums.UsageOutcome) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.entries {
		if e.Outcome == outcome {
			count++
		}
	}
	return count
}

const testToken = "alk_test_token"

var testZone = time.FixedZone("CAT", 2*60*60)

type gateFixture struct {
	svc  *Service
	repo *memKeys
	rec  *memUsage
	key  *models.APIKey
	now  time.Time
}

func newFixture(t *testing.T, credits int64, dailyLimit int) *gateFixture {
	t.Helper()
	repo := newMemKeys()
	rec := &memUsage{}
	key := &models.APIKey{
		ID:          uuid.New(),
		TokenDigest: keys.Digest(testToken),
		OwnerID:     uuid.New(),
		Plan:        enums.PlanFree,
		Credits:     credits,
		Active:      true,
	}
	repo.add(key)

	fx := &gateFixture{repo: repo, rec: rec, key: key, now: time.Date(2026, 3, 10, 12, 0, 0, 0, testZone)}
	svc, err := NewService(ServiceParams{
		Keys:         repo,
		Usage:        rec,
		Logger:       logger.New(logger.Options{ServiceName: "gate-test"}),
		Costs:        costs.Default(),
		Timezone:     testZone,
		PartnerToken: "partner-secret",
		PlanResolver: func(tier enums.PlanTier) plans.Plan {
			plan := plans.For(tier)
			plan.DailyLimit = dailyLimit
			return plan
		},
		Now: func() time.Time { return fx.now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fx.svc = svc
	return fx
}

func (fx *gateFixture) call(t *testing.T, operation string) error {
	t.Helper()
	adm, err := fx.svc.Admit(context.Background(), Request{
		Token:     testToken,
		Operation: operation,
		ClientIP:  "10.0.0.9",
	})
	if err != nil {
		return err
	}
	if err := adm.OnSuccess(context.Background(), 200); err != nil {
		return err
	}
	return nil
}

func TestGate_QuotaBeforeCreditCheck(t *testing.T) {
	fx := newFixture(t, 100, 10)

	// Ten successful calls at cost 10 drain the balance exactly.
	for i := 0; i < 10; i++ {
		if err := fx.call(t, "fetch/video/tiktok"); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
		fx.now = fx.now.Add(time.Minute)
	}
	stored := fx.repo.get(fx.key.ID)
	if stored.Credits != 0 {
		t.Fatalf("expected balance 0 after ten calls, got %d", stored.Credits)
	}
	if stored.RequestsToday != 10 {
		t.Fatalf("expected today count 10, got %d", stored.RequestsToday)
	}

	// The eleventh call hits the quota ceiling, not the empty balance.
	err := fx.call(t, "fetch/video/tiktok")
	if !pkgerrors.IsCode(err, pkgerrors.CodeQuotaExceeded) {
		t.Fatalf("expected quota exceeded on eleventh call, got %v", err)
	}
	typed := pkgerrors.As(err)
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected quota details")
	}
	if details["limit"] != 10 {
		t.Fatalf("expected limit 10 in details, got %v", details["limit"])
	}
	if _, ok := details["resets_at"]; !ok {
		t.Fatalf("expected reset timestamp in details")
	}
}

func TestGate_InsufficientCredits(t *testing.T) {
	fx := newFixture(t, 5, 100)

	err := fx.call(t, "fetch/video/tiktok")
	if !pkgerrors.IsCode(err, pkgerrors.CodePaymentRequired) {
		t.Fatalf("expected payment required, got %v", err)
	}
	stored := fx.repo.get(fx.key.ID)
	if stored.Credits != 5 {
		t.Fatalf("denied call must not touch the balance, got %d", stored.Credits)
	}
}

func TestGate_UnknownAndMissingToken(t *testing.T) {
	fx := newFixture(t, 100, 10)

	_, err := fx.svc.Admit(context.Background(), Request{Token: "alk_wrong", Operation: "lookup/x"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for unknown token, got %v", err)
	}
	_, err = fx.svc.Admit(context.Background(), Request{Operation: "lookup/x"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for missing token, got %v", err)
	}
}

func TestGate_Validity(t *testing.T) {
	fx := newFixture(t, 100, 10)

	reason := "fraud review"
	suspended := fx.repo.get(fx.key.ID)
	suspended.Suspended = true
	suspended.SuspendReason = &reason
	fx.repo.add(&suspended)

	err := fx.call(t, "lookup/x")
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for suspended key, got %v", err)
	}

	expired := fx.repo.get(fx.key.ID)
	expired.Suspended = false
	expired.SuspendReason = nil
	past := fx.now.Add(-time.Hour)
	expired.ExpiresAt = &past
	fx.repo.add(&expired)

	err = fx.call(t, "lookup/x")
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for expired key, got %v", err)
	}
}

func TestGate_DailyCounterResetsAtLocalMidnight(t *testing.T) {
	fx := newFixture(t, 1000, 10)

	// Fill the day's quota just before midnight local time.
	fx.now = time.Date(2026, 3, 10, 23, 59, 59, 0, testZone)
	last := fx.now.Add(-time.Minute)
	key := fx.repo.get(fx.key.ID)
	key.RequestsToday = 9
	key.LastRequestAt = &last
	fx.repo.add(&key)

	if err := fx.call(t, "lookup/x"); err != nil {
		t.Fatalf("call at 23:59:59: %v", err)
	}
	if got := fx.repo.get(fx.key.ID).RequestsToday; got != 10 {
		t.Fatalf("expected count 10 before midnight, got %d", got)
	}

	// Two seconds later it is a new calendar day; the counter restarts.
	fx.now = time.Date(2026, 3, 11, 0, 0, 1, 0, testZone)
	if err := fx.call(t, "lookup/x"); err != nil {
		t.Fatalf("call at 00:00:01: %v", err)
	}
	if got := fx.repo.get(fx.key.ID).RequestsToday; got != 1 {
		t.Fatalf("expected count reset to 1 after midnight, got %d", got)
	}
}

func TestGate_OnFailureKeepsBalance(t *testing.T) {
	fx := newFixture(t, 100, 10)

	adm, err := fx.svc.Admit(context.Background(), Request{Token: testToken, Operation: "fetch/audio/x"})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := adm.OnFailure(context.Background(), 502, "upstream fetch failed"); err != nil {
		t.Fatalf("on failure: %v", err)
	}

	stored := fx.repo.get(fx.key.ID)
	if stored.Credits != 100 {
		t.Fatalf("failure must not decrement balance, got %d", stored.Credits)
	}
	if stored.FailureCount != 1 || stored.TotalRequests != 1 {
		t.Fatalf("expected failure counters bumped, got failure=%d total=%d", stored.FailureCount, stored.TotalRequests)
	}
	if fx.rec.byOutcome(enums.UsageFailure) != 1 {
		t.Fatalf("expected one failure usage record")
	}
}

func TestGate_AdmissionSettlesOnce(t *testing.T) {
	fx := newFixture(t, 100, 10)

	adm, err := fx.svc.Admit(context.Background(), Request{Token: testToken, Operation: "lookup/x"})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := adm.OnSuccess(context.Background(), 200); err != nil {
		t.Fatalf("on success: %v", err)
	}
	if err := adm.OnFailure(context.Background(), 500, "late"); err == nil {
		t.Fatalf("expected second settle to fail")
	}
}

func TestGate_ConsumeRetriesOnConflict(t *testing.T) {
	fx := newFixture(t, 100, 10)
	fx.repo.casFails = 2

	if err := fx.call(t, "fetch/video/tiktok"); err != nil {
		t.Fatalf("expected retry to absorb conflicts: %v", err)
	}
	if got := fx.repo.get(fx.key.ID).Credits; got != 90 {
		t.Fatalf("expected 90 credits after one consume, got %d", got)
	}
}

func TestGate_ConsumeGivesUpAfterBoundedRetries(t *testing.T) {
	fx := newFixture(t, 100, 10)
	fx.repo.casFails = 100

	err := fx.call(t, "fetch/video/tiktok")
	if !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error after exhausted retries, got %v", err)
	}
}

func TestGate_PartnerPassthrough(t *testing.T) {
	fx := newFixture(t, 100, 10)

	adm, err := fx.svc.Admit(context.Background(), Request{
		PartnerMarker: "partner-secret",
		Operation:     "fetch/video/tiktok",
	})
	if err != nil {
		t.Fatalf("admit partner: %v", err)
	}
	if adm.Caller().Kind != KindPartner || !adm.Caller().Unlimited() {
		t.Fatalf("expected unlimited partner caller")
	}
	if err := adm.OnSuccess(context.Background(), 200); err != nil {
		t.Fatalf("on success: %v", err)
	}

	// No credential was involved, so no balance moved.
	if got := fx.repo.get(fx.key.ID).Credits; got != 100 {
		t.Fatalf("partner call must not touch key balances, got %d", got)
	}
	if fx.rec.byOutcome(enums.UsageSuccess) != 1 {
		t.Fatalf("expected partner usage recorded")
	}
}

func TestGate_PartnerMarkerMustMatchExactly(t *testing.T) {
	fx := newFixture(t, 100, 10)

	_, err := fx.svc.Admit(context.Background(), Request{
		PartnerMarker: "guessed-value",
		Operation:     "lookup/x",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected wrong marker to fall through to auth failure, got %v", err)
	}
}

func TestGate_LastRequestIPRecordedAtAdmission(t *testing.T) {
	fx := newFixture(t, 100, 10)

	adm, err := fx.svc.Admit(context.Background(), Request{
		Token:     testToken,
		Operation: "lookup/x",
		ClientIP:  "192.0.2.7",
	})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	stored := fx.repo.get(fx.key.ID)
	if stored.LastRequestIP == nil || *stored.LastRequestIP != "192.0.2.7" {
		t.Fatalf("expected last request ip recorded at admission")
	}
	// Even when the call then fails.
	if err := adm.OnFailure(context.Background(), 500, "boom"); err != nil {
		t.Fatalf("on failure: %v", err)
	}
	stored = fx.repo.get(fx.key.ID)
	if stored.LastRequestIP == nil || *stored.LastRequestIP != "192.0.2.7" {
		t.Fatalf("expected last request ip preserved after failure")
	}
}
