// Package http exposes reconciliation runs over HTTP: starting a run,
// fetching its statement and downloading the styled workbook.
package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/payrec/payrec/internal/export"
	"github.com/payrec/payrec/internal/files"
	"github.com/payrec/payrec/internal/platform/httpx"
	"github.com/payrec/payrec/internal/recon"
	"github.com/payrec/payrec/internal/settings"
)

// historyLimit caps how many finished runs stay addressable.
const historyLimit = 20

// Run is a finished reconciliation kept in memory for later retrieval.
type Run struct {
	ID        uuid.UUID     `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Report    *recon.Report `json:"report"`
}

// Summary is the response to starting a run; the full statement stays
// behind its own endpoint.
type Summary struct {
	ID              uuid.UUID `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	Rows            int       `json:"rows"`
	ExpectedBalance float64   `json:"expected_balance"`
	TotalBalance    float64   `json:"total_balance"`
	Discrepancy     float64   `json:"discrepancy"`
	Balanced        bool      `json:"balanced"`
}

// Handler runs the engine against the stored uploads.
type Handler struct {
	logger   *slog.Logger
	files    *files.Service
	settings *settings.Service
	base     recon.Config

	mu    sync.RWMutex
	runs  map[uuid.UUID]*Run
	order []uuid.UUID
}

func NewHandler(logger *slog.Logger, fs *files.Service, st *settings.Service, base recon.Config) *Handler {
	return &Handler{
		logger:   logger,
		files:    fs,
		settings: st,
		base:     base,
		runs:     make(map[uuid.UUID]*Run),
	}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.startRun)
	r.Get("/{id}", h.getRun)
	r.Get("/{id}/export", h.exportRun)
}

func (h *Handler) engineConfig() recon.Config {
	cfg := h.base
	j := h.settings.Journals()
	cfg.PurchaseJournals = j.Purchase
	cfg.BankJournals = j.Bank
	return cfg
}

func (h *Handler) startRun(w http.ResponseWriter, r *http.Request) {
	entries, err := h.files.Ledger()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	suppliers, err := h.files.Suppliers()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	engine, err := recon.New(h.engineConfig(), h.logger)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}

	started := time.Now()
	report, err := engine.Run(r.Context(), entries, suppliers)
	if err != nil {
		h.logger.Error("reconciliation run failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	run := &Run{ID: uuid.New(), CreatedAt: time.Now().UTC(), Report: report}
	h.remember(run)

	h.logger.Info("reconciliation run finished",
		slog.String("run", run.ID.String()),
		slog.Int("entries", len(entries)),
		slog.Int("rows", len(report.Rows)),
		slog.Bool("balanced", report.Balanced),
		slog.Duration("took", time.Since(started)),
	)

	httpx.JSON(w, http.StatusCreated, Summary{
		ID:              run.ID,
		CreatedAt:       run.CreatedAt,
		Rows:            len(report.Rows),
		ExpectedBalance: report.ExpectedBalance,
		TotalBalance:    report.TotalBalance,
		Discrepancy:     report.Discrepancy,
		Balanced:        report.Balanced,
	})
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.lookup(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) exportRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.lookup(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	filename := fmt.Sprintf("delais_paiement_%s.xlsx", run.CreatedAt.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.Workbook(run.Report, w); err != nil {
		h.logger.Error("export workbook", slog.String("run", run.ID.String()), slog.Any("error", err))
	}
}

func (h *Handler) lookup(raw string) (*Run, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed run id", httpx.ErrValidation)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	run, ok := h.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", httpx.ErrNotFound, id)
	}
	return run, nil
}

func (h *Handler) remember(run *Run) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs[run.ID] = run
	h.order = append(h.order, run.ID)
	for len(h.order) > historyLimit {
		delete(h.runs, h.order[0])
		h.order = h.order[1:]
	}
}
