package recurring

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	locks "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler builds the template API. now supplies the default tick date in
// the business timezone.
func NewHandler(logger *slog.Logger, service *Service, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{logger: logger, service: service, now: now}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/run", h.RunDue)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/history", h.History)
	r.Put("/{id}/lines", h.ReplaceLines)
	r.Post("/{id}/pause", h.Pause)
	r.Post("/{id}/resume", h.Resume)
}

type lineRequest struct {
	AccountID   int64        `json:"account_id" validate:"required,gt=0"`
	Amount      money.Amount `json:"amount"`
	Side        shared.Side  `json:"side" validate:"required"`
	Description string       `json:"description" validate:"max=500"`
}

type createRequest struct {
	Name            string        `json:"name" validate:"required,max=120"`
	VoucherType     string        `json:"voucher_type" validate:"required"`
	Frequency       string        `json:"frequency" validate:"required"`
	DayOfMonth      *int          `json:"day_of_month" validate:"omitempty,min=1,max=31"`
	StartDate       string        `json:"start_date" validate:"required"`
	EndDate         string        `json:"end_date"`
	AutoPost        bool          `json:"auto_post"`
	Narration       string        `json:"narration" validate:"max=500"`
	CounterpartyRef string        `json:"counterparty_ref" validate:"max=120"`
	Lines           []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type linesRequest struct {
	Lines []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type runRequest struct {
	AsOf string `json:"as_of"`
}

func toTemplateLines(in []lineRequest) []TemplateLine {
	out := make([]TemplateLine, 0, len(in))
	for _, line := range in {
		out = append(out, TemplateLine(line))
	}
	return out
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	vt, err := vouchers.ParseType(req.VoucherType)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	freq, err := ParseFrequency(req.Frequency)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	start, err := shared.ParseDate(req.StartDate)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	var end *time.Time
	if req.EndDate != "" {
		e, err := shared.ParseDate(req.EndDate)
		if err != nil {
			shared.RespondError(w, h.logger, err)
			return
		}
		end = &e
	}
	t, err := h.service.Create(r.Context(), CreateTemplateInput{
		Name:            req.Name,
		VoucherType:     vt,
		Frequency:       freq,
		DayOfMonth:      req.DayOfMonth,
		StartDate:       start,
		EndDate:         end,
		AutoPost:        req.AutoPost,
		Narration:       req.Narration,
		CounterpartyRef: req.CounterpartyRef,
		Lines:           toTemplateLines(req.Lines),
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) ReplaceLines(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req linesRequest
	if err := httpx.Bind(r, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	t, err := h.service.ReplaceLines(r.Context(), id, toTemplateLines(req.Lines))
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Pause)
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Resume)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (Template, error)) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := fn(r.Context(), id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	out, err := h.service.History(r.Context(), id, limit)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": out})
}

func (h *Handler) RunDue(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength != 0 {
		if err := httpx.Bind(r, &req); err != nil {
			shared.RespondError(w, h.logger, err)
			return
		}
	}
	asOf := shared.TruncateDate(h.now())
	if req.AsOf != "" {
		d, err := shared.ParseDate(req.AsOf)
		if err != nil {
			shared.RespondError(w, h.logger, err)
			return
		}
		asOf = d
	}
	summary, err := h.service.RunDue(r.Context(), asOf)
	if errors.Is(err, locks.ErrLockNotAcquired) {
		httpx.Problem(w, http.StatusConflict, "Tick In Progress", err.Error())
		return
	}
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
