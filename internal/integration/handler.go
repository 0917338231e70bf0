package integration

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Ingest)
	r.Get("/types", h.Types)
	r.Post("/retry", h.Retry)
	r.Get("/{id}", h.Get)
}

type ingestRequest struct {
	EventType  string          `json:"event_type" validate:"required"`
	ExternalID string          `json:"external_id" validate:"max=128"`
	Payload    json.RawMessage `json:"payload" validate:"required"`
}

func (h *Handler) Types(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"event_types": EventTypes})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = n
	}
	out, err := h.service.List(r.Context(), Status(q.Get("status")), limit)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": out})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	evt, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, evt)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := httpx.Bind(r, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	t, err := ParseEventType(req.EventType)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	evt, err := h.service.Ingest(r.Context(), IngestInput{Type: t, ExternalID: req.ExternalID, Payload: req.Payload})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, evt)
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}
	summary, err := h.service.RetryFailed(r.Context(), limit)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
