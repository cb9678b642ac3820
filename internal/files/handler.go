package files

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/payrec/payrec/internal/platform/httpx"
)

// Handler exposes the upload endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	maxUpload int64
}

func NewHandler(logger *slog.Logger, service *Service, maxUpload int64) *Handler {
	return &Handler{logger: logger, service: service, maxUpload: maxUpload}
}

// MountRoutes registers upload routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/ledger", h.uploadLedger)
	r.Post("/balance", h.uploadBalance)
	r.Delete("/", h.clear)
}

func (h *Handler) uploadLedger(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.service.SaveLedger)
}

func (h *Handler) uploadBalance(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.service.SaveBalance)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request, save func(io.Reader, string) (UploadInfo, error)) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: missing file field", httpx.ErrValidation))
		return
	}
	defer file.Close()

	info, err := save(file, header.Filename)
	if err != nil {
		h.logger.Error("store upload", slog.String("file", header.Filename), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, info)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(); err != nil {
		h.logger.Error("clear uploads", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
