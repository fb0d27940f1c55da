package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/zeuslykraios/alauda-api/api/responses"
	"github.com/zeuslykraios/alauda-api/internal/gate"
	"github.com/zeuslykraios/alauda-api/pkg/config"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

// Admitter is the slice of the gate service this middleware needs.
type Admitter interface {
	Admit(ctx context.Context, req gate.Request) (*gate.Admission, error)
}

// Gate admits metered requests. Denials are written immediately; admitted
// requests carry the admission in context and are settled from the response
// status once the handler returns.
func Gate(cfg config.GateConfig, svc Admitter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := strings.TrimSpace(r.Header.Get(cfg.TokenHeader))
			if token == "" {
				token = strings.TrimSpace(r.URL.Query().Get(cfg.TokenQueryKey))
			}

			req := gate.Request{
				Token:         token,
				PartnerMarker: r.Header.Get(cfg.PartnerHeader),
				Operation:     operationFromPath(r.URL.Path),
				ClientIP:      clientIP(r),
				UserAgent:     r.UserAgent(),
			}

			admission, err := svc.Admit(ctx, req)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			ctx = gate.WithAdmission(ctx, admission)
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			if status < http.StatusBadRequest {
				if err := admission.OnSuccess(ctx, status); err != nil {
					if logg != nil {
						logg.Error(ctx, "admission settle failed", err)
					}
				}
				return
			}
			if err := admission.OnFailure(ctx, status, http.StatusText(status)); err != nil {
				if logg != nil {
					logg.Error(ctx, "admission settle failed", err)
				}
			}
		})
	}
}

// operationFromPath strips the API prefix so the cost table sees the bare
// operation, e.g. /api/v1/fetch/video/abc -> fetch/video/abc.
func operationFromPath(path string) string {
	op := strings.TrimPrefix(path, "/api/v1/")
	return strings.TrimPrefix(op, "/")
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
