package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/refurbhq/testbench-backend/api/responses"
	"github.com/refurbhq/testbench-backend/pkg/config"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
	"github.com/refurbhq/testbench-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is the health-check surface a dependency must expose.
type Pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-TestBench-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the wired dependencies; a nil pinger is treated as not
// configured and skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP Pinger) http.HandlerFunc {
	checks := []struct {
		name string
		dep  Pinger
	}{
		{"database", dbP},
		{"redis", redisP},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-TestBench-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		statuses := map[string]string{}
		for _, check := range checks {
			if check.dep == nil {
				continue
			}
			if err := check.dep.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, check.name+" unavailable"))
				return
			}
			statuses[check.name] = "ok"
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "dependencies": statuses})
	}
}
