package analytichttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/restaurant-analytics/internal/platform/httpx"
)

// RefreshLimit caps cache-busting and export requests per client.
const RefreshLimit = 10

// MountRoutes registers the analytics endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(RefreshLimit, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.RespondError(w, httpx.ErrRateLimited)
		}),
	)

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/dashboard", h.handleDashboard)
		r.Get("/restaurant", h.handleRestaurant)
		r.Get("/time-series", h.handleTimeSeries)
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Post("/dashboard/refresh", h.handleRefresh)
			gr.Get("/dashboard/export.csv", h.handleCSV)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
