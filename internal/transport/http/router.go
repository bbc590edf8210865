// Package httptransport assembles the chi router: middleware chain, health
// and metrics endpoints, and the candidate and admin API groups.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	examhandler "examreg/internal/exam/handler"
	payhandler "examreg/internal/payment/handler"
	"examreg/internal/platform/metrics"
	"examreg/internal/platform/middleware"
	reghandler "examreg/internal/registration/handler"
	"examreg/pkg/httputil"
)

// Deps carries everything the router mounts.
type Deps struct {
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	Validator     middleware.TokenValidator
	Registrations *reghandler.Handler
	Payments      *payhandler.Handler
	Exams         *examhandler.Handler

	// Health reports readiness of the backing stores; nil means always ready.
	Health func(ctx context.Context) error
}

// NewRouter wires all endpoints. Candidate routes sit under /api behind
// authentication; admin routes under /api/admin additionally require the
// admin role.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestClock)
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	r.Get("/healthz", handleHealth(deps.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Validator, deps.Logger))

		deps.Exams.Register(r)
		deps.Registrations.Register(r)
		deps.Payments.Register(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			deps.Exams.RegisterAdmin(r)
			deps.Registrations.RegisterAdmin(r)
			deps.Payments.RegisterAdmin(r)
		})
	})
	return r
}

func handleHealth(health func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
