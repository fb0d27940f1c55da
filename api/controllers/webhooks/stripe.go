package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/zeuslykraios/alauda-api/api/responses"
	"github.com/zeuslykraios/alauda-api/internal/payments"
	"github.com/zeuslykraios/alauda-api/internal/payments/providers"
	pkgerrors "github.com/zeuslykraios/alauda-api/pkg/errors"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

// StripeParser verifies an event signature and maps it to a Notification.
// A nil notification with nil error means the event type is irrelevant.
type StripeParser interface {
	Parse(body []byte, sigHeader string) (*providers.Notification, error)
}

// ReplayGuard deduplicates redelivered event ids.
type ReplayGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// StripeWebhook ingests signed Stripe events. The replay guard drops
// redelivered event ids up front; a handler failure releases the mark so
// Stripe's retry can land.
func StripeWebhook(parser StripeParser, svc NotificationApplier, guard ReplayGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if parser == nil || svc == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handler not configured"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		notification, err := parser.Parse(body, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if notification == nil {
			// Event type this gateway does not act on.
			responses.WriteSuccess(w, map[string]string{"result": string(payments.AckIgnored)})
			return
		}

		alreadySeen, err := guard.CheckAndMark(ctx, notification.EventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check replay guard"))
			return
		}
		if alreadySeen {
			responses.WriteSuccess(w, map[string]string{"result": string(payments.AckAlreadyProcessed)})
			return
		}

		ack, err := svc.ApplyNotification(ctx, notification)
		if err != nil {
			if relErr := guard.Release(ctx, notification.EventID); relErr != nil && logg != nil {
				logg.Error(ctx, "releasing replay mark failed", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ackCtx := logg.WithProvider(ctx, string(notification.Provider))
			ackCtx = logg.WithField(ackCtx, "ack", string(ack.Result))
			logg.Info(ackCtx, "stripe event processed")
		}
		responses.WriteSuccess(w, map[string]string{"result": string(ack.Result)})
	}
}
