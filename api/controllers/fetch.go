package controllers

import (
	"net/http"
	"strings"

	"github.com/zeuslykraios/alauda-api/api/responses"
	"github.com/zeuslykraios/alauda-api/internal/content"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
)

// Fetch serves the metered content surface. Admission already happened in
// the gate middleware; whatever status this handler writes decides whether
// the call is charged.
func Fetch(fetcher content.Fetcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		operation := strings.TrimPrefix(r.URL.Path, "/api/v1/")
		result, err := fetcher.Fetch(ctx, operation)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
