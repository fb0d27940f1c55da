package middleware

import (
	"context"

	"github.com/zeuslykraios/alauda-api/pkg/db/models"
)

type ctxKey string

const (
	ctxAdminEmail ctxKey = "admin_email"
	ctxAPIKey     ctxKey = "api_key"
)

// AdminEmailFromContext returns the authenticated admin's email, if any.
func AdminEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(ctxAdminEmail).(string)
	return email, ok && email != ""
}

// WithAPIKey seeds the context with an authenticated credential.
func WithAPIKey(ctx context.Context, key *models.APIKey) context.Context {
	return context.WithValue(ctx, ctxAPIKey, key)
}

// APIKeyFromContext returns the credential KeyAuth resolved for this request.
func APIKeyFromContext(ctx context.Context) (*models.APIKey, bool) {
	key, ok := ctx.Value(ctxAPIKey).(*models.APIKey)
	return key, ok && key != nil
}
