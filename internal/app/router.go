package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tavolo-app/tavolo/internal/catalog"
	matrixhttp "github.com/tavolo-app/tavolo/internal/matrix/http"
	"github.com/tavolo-app/tavolo/internal/observability"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	CatalogHandler *catalog.Handler
	MatrixHandler  *matrixhttp.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with Tavolo defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/authz", func(ar chi.Router) {
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(ar)
		}
		if params.MatrixHandler != nil {
			params.MatrixHandler.MountRoutes(ar)
		}
	})

	return r
}
