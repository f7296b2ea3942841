package matrixhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the matrix endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(20, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/matrix", h.handleMatrix)
	r.Get("/matrix/roles", h.handleRoleMatrix)
	r.Get("/users/{profileID}/permissions", h.handleUserPermissions)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/bulk", h.handleBulk)
	})
}
