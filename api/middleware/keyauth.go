package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/zeuslykraios/alauda-api/api/responses"
	"github.com/zeuslykraios/alauda-api/pkg/config"
	"github.com/zeuslykraios/alauda-api/pkg/db/models"
	pkgerrors "github.com/zeuslykraios/alauda-api/pkg/errors"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

// KeyAuthenticator resolves a raw token to its credential.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*models.APIKey, error)
}

// KeyAuth authenticates the API key without metering. The owner surface
// (payments, key inspection) uses it: a key with a drained balance must
// still be able to top up.
func KeyAuth(cfg config.GateConfig, svc KeyAuthenticator, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(cfg.TokenHeader))
			if token == "" {
				token = strings.TrimSpace(r.URL.Query().Get(cfg.TokenQueryKey))
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "api key required"))
				return
			}

			key, err := svc.Authenticate(r.Context(), token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if key == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown api key"))
				return
			}
			if !key.Usable(time.Now()) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "api key not usable"))
				return
			}

			ctx := WithAPIKey(r.Context(), key)
			if logg != nil {
				ctx = logg.WithKeyID(ctx, key.ID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
