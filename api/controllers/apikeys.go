package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zeuslykraios/alauda-api/api/responses"
	"github.com/zeuslykraios/alauda-api/api/validators"
	"github.com/zeuslykraios/alauda-api/internal/keys"
	"github.com/zeuslykraios/alauda-api/pkg/db/models"
	"github.com/zeuslykraios/alauda-api/pkg/enums"
	pkgerrors "github.com/zeuslykraios/alauda-api/pkg/errors"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

// KeyService is the slice of the key service the admin controllers use.
type KeyService interface {
	Issue(ctx context.Context, params keys.IssueParams) (*keys.IssuedKey, error)
	Get(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.APIKey, error)
	Revoke(ctx context.Context, id uuid.UUID, reason string) (*models.APIKey, error)
	Reactivate(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	GrantCredits(ctx context.Context, id uuid.UUID, amount int64) error
	UpgradePlan(ctx context.Context, id uuid.UUID, tier enums.PlanTier) (*models.APIKey, error)
}

type keyView struct {
	ID            uuid.UUID  `json:"id"`
	OwnerID       uuid.UUID  `json:"owner_id"`
	Plan          string     `json:"plan"`
	TokenHint     string     `json:"token_hint"`
	Credits       int64      `json:"credits"`
	TotalRequests int64      `json:"total_requests"`
	SuccessCount  int64      `json:"success_count"`
	FailureCount  int64      `json:"failure_count"`
	RequestsToday int        `json:"requests_today"`
	Active        bool       `json:"active"`
	Suspended     bool       `json:"suspended"`
	SuspendReason *string    `json:"suspend_reason,omitempty"`
	LastRequestAt *time.Time `json:"last_request_at,omitempty"`
	LastRequestIP *string    `json:"last_request_ip,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newKeyView(key *models.APIKey) keyView {
	return keyView{
		ID:            key.ID,
		OwnerID:       key.OwnerID,
		Plan:          string(key.Plan),
		TokenHint:     key.TokenHint,
		Credits:       key.Credits,
		TotalRequests: key.TotalRequests,
		SuccessCount:  key.SuccessCount,
		FailureCount:  key.FailureCount,
		RequestsToday: key.RequestsToday,
		Active:        key.Active,
		Suspended:     key.Suspended,
		SuspendReason: key.SuspendReason,
		LastRequestAt: key.LastRequestAt,
		LastRequestIP: key.LastRequestIP,
		ExpiresAt:     key.ExpiresAt,
		CreatedAt:     key.CreatedAt,
	}
}

type issueKeyRequest struct {
	OwnerID   string     `json:"owner_id" validate:"required,uuid"`
	Plan      string     `json:"plan" validate:"required,oneof=free basic pro premium"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type issuedKeyView struct {
	Key keyView `json:"key"`
	// Token is returned exactly once; only its digest is stored.
	Token string `json:"token"`
}

// KeyIssue creates a credential and returns the raw token once.
func KeyIssue(svc KeyService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body issueKeyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ownerID, err := uuid.Parse(body.OwnerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid owner id"))
			return
		}

		issued, err := svc.Issue(ctx, keys.IssueParams{
			OwnerID:   ownerID,
			Plan:      enums.PlanTier(body.Plan),
			ExpiresAt: body.ExpiresAt,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, issuedKeyView{
			Key:   newKeyView(issued.Key),
			Token: issued.Token,
		})
	}
}

// KeyList returns the credentials issued to an owner.
func KeyList(svc KeyService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid owner id"))
			return
		}

		list, err := svc.ListByOwner(ctx, ownerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		views := make([]keyView, 0, len(list))
		for i := range list {
			views = append(views, newKeyView(&list[i]))
		}
		responses.WriteSuccess(w, views)
	}
}

// KeyDetail returns a single credential.
func KeyDetail(svc KeyService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := keyIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		key, err := svc.Get(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newKeyView(key))
	}
}

type revokeKeyRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// KeyRevoke deactivates a credential.
func KeyRevoke(svc KeyService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := keyIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body revokeKeyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		key, err := svc.Revoke(ctx, id, body.Reason)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newKeyView(key))
	}
}

// KeyReactivate lifts a suspension.
func KeyReactivate(svc KeyService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := keyIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		key, err := svc.Reactivate(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newKeyView(key))
	}
}

type grantCreditsRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// KeyGrantCredits tops up a balance manually.
func KeyGrantCredits(svc KeyService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := keyIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body grantCreditsRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.GrantCredits(ctx, id, body.Amount); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		key, err := svc.Get(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newKeyView(key))
	}
}

type upgradePlanRequest struct {
	Plan string `json:"plan" validate:"required,oneof=free basic pro premium"`
}

// KeyUpgradePlan moves the credential to another tier.
func KeyUpgradePlan(svc KeyService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := keyIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body upgradePlanRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		key, err := svc.UpgradePlan(ctx, id, enums.PlanTier(body.Plan))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newKeyView(key))
	}
}

func keyIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "keyId"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid key id")
	}
	return id, nil
}
