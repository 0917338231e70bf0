package mappings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	service  *Service
	resolver *Resolver
	logger   *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver) *Handler {
	return &Handler{logger: logger, service: service, resolver: resolver}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/effective", h.Effective)
	r.Get("/resolve/{key}", h.Resolve)
	r.Put("/{key}", h.Upsert)
	r.Delete("/{key}", h.Delete)
}

type upsertRequest struct {
	AccountID int64 `json:"account_id" validate:"required,gt=0"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"mappings": out})
}

func (h *Handler) Effective(w http.ResponseWriter, r *http.Request) {
	resolved, missing, err := h.service.Effective(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"resolved": resolved, "missing": missing})
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	res, err := h.resolver.Lookup(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := httpx.Bind(r, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	m, err := h.service.Upsert(r.Context(), chi.URLParam(r, "key"), req.AccountID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
