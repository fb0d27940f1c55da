package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zeuslykraios/alauda-api/internal/keys"
	"github.com/zeuslykraios/alauda-api/pkg/db/models"
	"github.com/zeuslykraios/alauda-api/pkg/enums"
	pkgerrors "github.com/zeuslykraios/alauda-api/pkg/errors"
	"github.com/zeuslykraios/alauda-api/pkg/types"
)

type stubKeyService struct {
	issued      *keys.IssuedKey
	issueErr    error
	key         *models.APIKey
	granted     int64
	revokedWith string
	upgradedTo  enums.PlanTier
}

func (s *stubKeyService) Issue(_ context.Context, params keys.IssueParams) (*keys.IssuedKey, error) {
	if s.issueErr != nil {
		return nil, s.issueErr
	}
	return s.issued, nil
}

func (s *stubKeyService) Get(context.Context, uuid.UUID) (*models.APIKey, error) {
	if s.key == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "api key not found")
	}
	return s.key, nil
}

func (s *stubKeyService) ListByOwner(context.Context, uuid.UUID) ([]models.APIKey, error) {
	if s.key == nil {
		return nil, nil
	}
	return []models.APIKey{*s.key}, nil
}

func (s *stubKeyService) Revoke(_ context.Context, _ uuid.UUID, reason string) (*models.APIKey, error) {
	s.revokedWith = reason
	return s.key, nil
}

func (s *stubKeyService) Reactivate(context.Context, uuid.UUID) (*models.APIKey, error) {
	return s.key, nil
}

func (s *stubKeyService) GrantCredits(_ context.Context, _ uuid.UUID, amount int64) error {
	s.granted = amount
	return nil
}

func (s *stubKeyService) UpgradePlan(_ context.Context, _ uuid.UUID, tier enums.PlanTier) (*models.APIKey, error) {
	s.upgradedTo = tier
	return s.key, nil
}

func testKey() *models.APIKey {
	return &models.APIKey{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		Plan:      enums.PlanFree,
		TokenHint: "alk_...ab12",
		Credits:   50,
		Active:    true,
	}
}

func keyRequest(method, target, body string, keyID uuid.UUID) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("keyId", keyID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestKeyIssueReturnsTokenOnce(t *testing.T) {
	key := testKey()
	svc := &stubKeyService{issued: &keys.IssuedKey{Key: key, Token: "alk_rawtokenvalue"}, key: key}
	handler := KeyIssue(svc, nil)

	body := `{"owner_id":"` + key.OwnerID.String() + `","plan":"free"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/keys", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var envelope types.SuccessEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data := envelope.Data.(map[string]any)
	if data["token"] != "alk_rawtokenvalue" {
		t.Fatalf("raw token missing: %v", data["token"])
	}
	view := data["key"].(map[string]any)
	if _, leaked := view["token_digest"]; leaked {
		t.Fatal("token digest leaked in response")
	}
	if view["token_hint"] != key.TokenHint {
		t.Fatalf("unexpected hint %v", view["token_hint"])
	}
}

func TestKeyIssueRejectsUnknownPlan(t *testing.T) {
	handler := KeyIssue(&stubKeyService{}, nil)

	body := `{"owner_id":"` + uuid.NewString() + `","plan":"platinum"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/keys", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestKeyRevokePassesReason(t *testing.T) {
	key := testKey()
	svc := &stubKeyService{key: key}
	handler := KeyRevoke(svc, nil)

	req := keyRequest(http.MethodPost, "/api/admin/v1/keys/"+key.ID.String()+"/revoke", `{"reason":"abuse"}`, key.ID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.revokedWith != "abuse" {
		t.Fatalf("reason not passed, got %q", svc.revokedWith)
	}
}

func TestKeyGrantCreditsRejectsNonPositiveAmount(t *testing.T) {
	key := testKey()
	svc := &stubKeyService{key: key}
	handler := KeyGrantCredits(svc, nil)

	req := keyRequest(http.MethodPost, "/api/admin/v1/keys/"+key.ID.String()+"/credits", `{"amount":-5}`, key.ID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.granted != 0 {
		t.Fatal("grant reached the service despite validation failure")
	}
}

func TestKeyDetailRejectsMalformedID(t *testing.T) {
	handler := KeyDetail(&stubKeyService{key: testKey()}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/keys/not-a-uuid", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("keyId", "not-a-uuid")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
