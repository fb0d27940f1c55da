package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zeuslykraios/alauda-api/api/responses"
	pkgauth "github.com/zeuslykraios/alauda-api/pkg/auth"
	"github.com/zeuslykraios/alauda-api/pkg/config"
	pkgerrors "github.com/zeuslykraios/alauda-api/pkg/errors"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

// AdminAuth validates a bearer token minted by the admin login and seeds the
// request context with the admin identity.
func AdminAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAdminToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxAdminEmail, claims.Email)
			if logg != nil {
				ctx = logg.WithField(ctx, "admin_email", claims.Email)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
