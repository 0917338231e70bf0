package vouchers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
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
	r.Post("/", h.Create)
	r.Get("/types", h.Types)
	r.Get("/{id}", h.Get)
	r.Put("/{id}/lines", h.ReplaceLines)
	r.Post("/{id}/post", h.Post)
	r.Post("/{id}/void", h.Void)
}

type lineRequest struct {
	AccountID   int64        `json:"account_id" validate:"omitempty,gt=0"`
	Role        string       `json:"role" validate:"max=64"`
	Amount      money.Amount `json:"amount"`
	Side        shared.Side  `json:"side" validate:"required"`
	Description string       `json:"description" validate:"max=500"`
}

type createRequest struct {
	Type            string        `json:"type" validate:"required"`
	Date            string        `json:"date" validate:"required"`
	CounterpartyRef string        `json:"counterparty_ref" validate:"max=120"`
	Narration       string        `json:"narration" validate:"max=500"`
	Lines           []lineRequest `json:"lines" validate:"dive"`
}

type linesRequest struct {
	Lines []lineRequest `json:"lines" validate:"dive"`
}

type voidRequest struct {
	Reverse bool   `json:"reverse"`
	Reason  string `json:"reason" validate:"max=500"`
}

func toLineInputs(in []lineRequest) []LineInput {
	out := make([]LineInput, 0, len(in))
	for _, line := range in {
		out = append(out, LineInput(line))
	}
	return out
}

func (h *Handler) Types(w http.ResponseWriter, r *http.Request) {
	out := make(map[Type]Convention, len(Types))
	for _, t := range Types {
		out[t], _ = t.Convention()
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status")), Limit: 100}
	if raw := q.Get("type"); raw != "" {
		t, err := ParseType(raw)
		if err != nil {
			shared.RespondError(w, h.logger, err)
			return
		}
		filter.Type = t
	}
	out, err := h.service.List(r.Context(), filter)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vouchers": out})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	t, err := ParseType(req.Type)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	date, err := shared.ParseDate(req.Date)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	v, err := h.service.Create(r.Context(), CreateInput{
		Type:            t,
		Date:            date,
		CounterpartyRef: req.CounterpartyRef,
		Narration:       req.Narration,
		Lines:           toLineInputs(req.Lines),
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
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
	v, err := h.service.ReplaceLines(r.Context(), id, toLineInputs(req.Lines))
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Post(r.Context(), id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req voidRequest
	if r.ContentLength != 0 {
		if err := httpx.Bind(r, &req); err != nil {
			shared.RespondError(w, h.logger, err)
			return
		}
	}
	result, err := h.service.Void(r.Context(), id, VoidOptions{Reverse: req.Reverse, Reason: req.Reason})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
