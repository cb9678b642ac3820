package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/payrec/payrec/internal/files"
	reconhttp "github.com/payrec/payrec/internal/recon/http"
	"github.com/payrec/payrec/internal/settings"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	FilesHandler    *files.Handler
	SettingsHandler *settings.Handler
	ReconHandler    *reconhttp.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/files", params.FilesHandler.MountRoutes)
	r.Route("/config", params.SettingsHandler.MountRoutes)
	r.Route("/reconcile", params.ReconHandler.MountRoutes)

	return r
}
