package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zeuslykraios/alauda-api/api/middleware"
	"github.com/zeuslykraios/alauda-api/api/responses"
	"github.com/zeuslykraios/alauda-api/api/validators"
	"github.com/zeuslykraios/alauda-api/internal/payments"
	"github.com/zeuslykraios/alauda-api/pkg/db/models"
	"github.com/zeuslykraios/alauda-api/pkg/enums"
	pkgerrors "github.com/zeuslykraios/alauda-api/pkg/errors"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

const defaultPaymentLimit = 50

// PaymentService is the slice of the payment service the controllers use.
type PaymentService interface {
	Initiate(ctx context.Context, params payments.InitiateParams) (*models.Payment, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Payment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Payment, error)
}

type paymentView struct {
	ID           uuid.UUID  `json:"id"`
	Provider     string     `json:"provider"`
	Status       string     `json:"status"`
	Amount       string     `json:"amount"`
	Currency     string     `json:"currency"`
	CreditsToAdd int64      `json:"credits_to_add"`
	Processed    bool       `json:"processed"`
	CreditsAdded bool       `json:"credits_added"`
	ProviderRef  *string    `json:"provider_ref,omitempty"`
	CancelReason *string    `json:"cancel_reason,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	CreditedAt   *time.Time `json:"credited_at,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

func newPaymentView(p *models.Payment) paymentView {
	return paymentView{
		ID:           p.ID,
		Provider:     string(p.Provider),
		Status:       string(p.Status),
		Amount:       p.Amount.StringFixed(2),
		Currency:     p.Currency,
		CreditsToAdd: p.CreditsToAdd,
		Processed:    p.Processed,
		CreditsAdded: p.CreditsAdded,
		ProviderRef:  p.ProviderRef,
		CancelReason: p.CancelReason,
		ApprovedAt:   p.ApprovedAt,
		CreditedAt:   p.CreditedAt,
		ExpiresAt:    p.ExpiresAt,
		CreatedAt:    p.CreatedAt,
	}
}

type initiatePaymentRequest struct {
	Provider    string `json:"provider" validate:"required,oneof=mpesa emola stripe square"`
	Amount      string `json:"amount" validate:"required"`
	Currency    string `json:"currency" validate:"required,oneof=MZN USD"`
	ProviderRef string `json:"provider_ref,omitempty" validate:"omitempty,max=255"`
}

// PaymentInitiate opens a pending top-up for the authenticated key.
func PaymentInitiate(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		key, ok := middleware.APIKeyFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "api key required"))
			return
		}

		var body initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		amount, err := decimal.NewFromString(body.Amount)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		payment, err := svc.Initiate(ctx, payments.InitiateParams{
			Provider:    enums.PaymentProvider(body.Provider),
			OwnerID:     key.OwnerID,
			APIKeyID:    key.ID,
			Amount:      amount,
			Currency:    body.Currency,
			ProviderRef: body.ProviderRef,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentView(payment))
	}
}

// PaymentList returns the authenticated key owner's payments, newest first.
func PaymentList(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		key, ok := middleware.APIKeyFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "api key required"))
			return
		}

		limit := defaultPaymentLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		list, err := svc.ListByOwner(ctx, key.OwnerID, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		views := make([]paymentView, 0, len(list))
		for i := range list {
			views = append(views, newPaymentView(&list[i]))
		}
		responses.WriteSuccess(w, views)
	}
}

// PaymentDetail returns one of the owner's payments.
func PaymentDetail(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		key, ok := middleware.APIKeyFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "api key required"))
			return
		}
		payment, err := ownedPayment(ctx, svc, r, key.OwnerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentView(payment))
	}
}

type cancelPaymentRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// PaymentCancel cancels one of the owner's pending payments.
func PaymentCancel(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		key, ok := middleware.APIKeyFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "api key required"))
			return
		}
		payment, err := ownedPayment(ctx, svc, r, key.OwnerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body cancelPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cancelled, err := svc.Cancel(ctx, payment.ID, body.Reason)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentView(cancelled))
	}
}

// AdminPaymentList lists any owner's payments on the administrative surface.
func AdminPaymentList(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid owner id"))
			return
		}
		list, err := svc.ListByOwner(ctx, ownerID, defaultPaymentLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		views := make([]paymentView, 0, len(list))
		for i := range list {
			views = append(views, newPaymentView(&list[i]))
		}
		responses.WriteSuccess(w, views)
	}
}

// AdminPaymentDetail returns any payment by id.
func AdminPaymentDetail(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := paymentIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payment, err := svc.Get(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentView(payment))
	}
}

// ownedPayment loads the payment and hides other owners' records behind a
// not-found.
func ownedPayment(ctx context.Context, svc PaymentService, r *http.Request, ownerID uuid.UUID) (*models.Payment, error) {
	id, err := paymentIDParam(r)
	if err != nil {
		return nil, err
	}
	payment, err := svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.OwnerID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

func paymentIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "paymentId"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id")
	}
	return id, nil
}
