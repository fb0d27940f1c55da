package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/zeuslykraios/alauda-api/api/responses"
	"github.com/zeuslykraios/alauda-api/pkg/db/models"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

const (
	defaultUsageLimit = 50
	maxUsageLimit     = 500
)

// UsageService is the slice of the usage service the controllers use.
type UsageService interface {
	ListByKey(ctx context.Context, keyID uuid.UUID, limit int) ([]models.UsageRecord, error)
}

// KeyUsage lists the most recent usage records for a credential.
func KeyUsage(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := keyIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		limit := defaultUsageLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		if limit > maxUsageLimit {
			limit = maxUsageLimit
		}

		records, err := svc.ListByKey(ctx, id, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, records)
	}
}
