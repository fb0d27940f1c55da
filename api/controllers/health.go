package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/zeuslykraios/alauda-api/api/responses"
	"github.com/zeuslykraios/alauda-api/pkg/config"
	"github.com/zeuslykraios/alauda-api/pkg/db"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
	"github.com/zeuslykraios/alauda-api/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Alauda-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Alauda-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{}
		ready := true

		checks["database"] = pingStatus(ctx, dbP)
		checks["redis"] = pingStatus(ctx, redisP)
		for _, status := range checks {
			if status != "ok" {
				ready = false
			}
		}

		if !ready {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "checks", checks), "readiness check failed")
			}
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"checks": checks,
			})
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"status": "ready",
			"checks": checks,
		})
	}
}

func pingStatus(ctx context.Context, p interface{ Ping(context.Context) error }) string {
	if p == nil {
		return "skipped"
	}
	if err := p.Ping(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}
