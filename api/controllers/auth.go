package controllers

import (
	"net/http"
	"time"

	"github.com/zeuslykraios/alauda-api/api/responses"
	"github.com/zeuslykraios/alauda-api/api/validators"
	pkgauth "github.com/zeuslykraios/alauda-api/pkg/auth"
	"github.com/zeuslykraios/alauda-api/pkg/config"
	pkgerrors "github.com/zeuslykraios/alauda-api/pkg/errors"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

type adminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type adminLoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// AdminLogin checks the configured admin credentials and mints a JWT for the
// administrative surface.
func AdminLogin(cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body adminLoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if !pkgauth.VerifyAdminPassword(cfg.Admin, body.Email, body.Password) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials"))
			return
		}

		token, err := pkgauth.MintAdminToken(cfg.JWT, time.Now(), body.Email)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint token"))
			return
		}

		responses.WriteSuccess(w, adminLoginResponse{
			Token:     token,
			ExpiresIn: int64(cfg.JWT.ExpirationMinutes) * 60,
		})
	}
}
