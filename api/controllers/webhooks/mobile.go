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

// NotificationApplier is the slice of the payment reconciler webhooks use.
type NotificationApplier interface {
	ApplyNotification(ctx context.Context, n *providers.Notification) (payments.Ack, error)
}

// MobileParser verifies and decodes an aggregator callback body.
type MobileParser interface {
	Parse(body []byte, signature string) (*providers.Notification, error)
}

// MobileWebhook ingests M-Pesa / e-Mola callbacks. Redeliveries and unknown
// references are acknowledged with 200 so the aggregator stops retrying;
// the reconciler's state machine makes reprocessing harmless.
func MobileWebhook(parser MobileParser, svc NotificationApplier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if parser == nil || svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handler not configured"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		notification, err := parser.Parse(body, r.Header.Get(providers.SignatureHeader))
		if err != nil {
			// A payload that verified but cannot be interpreted must still
			// be acknowledged, or the aggregator redelivers it forever.
			if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "parse_error", err.Error()), "webhook payload not recognized")
				}
				responses.WriteSuccess(w, map[string]string{"result": string(payments.AckUnrecognized)})
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ack, err := svc.ApplyNotification(ctx, notification)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ackCtx := logg.WithProvider(ctx, string(notification.Provider))
			ackCtx = logg.WithField(ackCtx, "ack", string(ack.Result))
			logg.Info(ackCtx, "webhook acknowledged")
		}
		responses.WriteSuccess(w, map[string]string{"result": string(ack.Result)})
	}
}
