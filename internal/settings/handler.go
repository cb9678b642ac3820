package settings

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/payrec/payrec/internal/platform/httpx"
)

// Handler exposes the journal configuration endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers configuration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/journals", h.getJournals)
	r.Put("/journals", h.putJournals)
}

func (h *Handler) getJournals(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Journals())
}

func (h *Handler) putJournals(w http.ResponseWriter, r *http.Request) {
	var j Journals
	if err := httpx.DecodeJSON(r, &j); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.service.Save(j); err != nil {
		h.logger.Error("save journal settings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("journal settings updated",
		slog.Int("purchase", len(j.Purchase)),
		slog.Int("bank", len(j.Bank)),
	)
	httpx.JSON(w, http.StatusOK, j)
}
