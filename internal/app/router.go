package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kitchenstock/kitchenstock/internal/balance"
	"github.com/kitchenstock/kitchenstock/internal/closeday"
	"github.com/kitchenstock/kitchenstock/internal/ingredient"
	"github.com/kitchenstock/kitchenstock/internal/observability"
	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
	"github.com/kitchenstock/kitchenstock/internal/settings"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/stock"
	"github.com/kitchenstock/kitchenstock/jobs"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Clock   *shared.BusinessClock
	Metrics *observability.Metrics
	Health  map[string]Pinger

	StockInHandler    *stock.Handler
	StockOutHandler   *stock.Handler
	CloseDayHandler   *closeday.Handler
	BalanceHandler    *balance.Handler
	IngredientHandler *ingredient.Handler
	SettingsHandler   *settings.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with kitchenstock defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Clock:   params.Clock,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthz(params.Health))

	r.Route("/inventory", func(r chi.Router) {
		if params.CloseDayHandler != nil {
			r.Route("/close-day", params.CloseDayHandler.MountRoutes)
		}
		if params.BalanceHandler != nil {
			r.Get("/ending", params.BalanceHandler.Ending)
		}
	})
	for dir, h := range map[stock.Direction]*stock.Handler{
		stock.DirectionIn:  params.StockInHandler,
		stock.DirectionOut: params.StockOutHandler,
	} {
		if h == nil {
			continue
		}
		r.Route("/stock-"+dir.String(), func(r chi.Router) {
			h.MountRoutes(r)
			if params.CloseDayHandler != nil {
				r.Post("/close-day", params.CloseDayHandler.CloseDirection(dir))
			}
		})
	}
	if params.BalanceHandler != nil {
		r.Route("/reports", params.BalanceHandler.MountRoutes)
	}
	if params.IngredientHandler != nil {
		r.Route("/ingredients", params.IngredientHandler.MountRoutes)
	}
	if params.SettingsHandler != nil {
		r.Route("/admin/settings", params.SettingsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}

func healthz(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}
		httpx.JSON(w, status, body)
	}
}
