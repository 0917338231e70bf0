package journals

import (
	"log/slog"
	"net/http"

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

type lineRequest struct {
	AccountID   int64        `json:"account_id" validate:"required,gt=0"`
	Amount      money.Amount `json:"amount"`
	Side        shared.Side  `json:"side" validate:"required"`
	Description string       `json:"description"`
}

type createRequest struct {
	Date        string        `json:"date" validate:"required"`
	Description string        `json:"description" validate:"max=500"`
	Post        bool          `json:"post"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type voidRequest struct {
	Date   string `json:"date"`
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.service.List(r.Context(), ListFilter{
		Status:     Status(q.Get("status")),
		SourceType: SourceType(q.Get("source_type")),
		Limit:      100,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"journal_entries": entries})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

// Create stores a manual draft, or posts it immediately when "post" is set.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, &req); err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	date, err := shared.ParseDate(req.Date)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	input := PostingInput{
		Header: Header{Date: date, Description: req.Description, SourceType: SourceManual},
		Lines:  make([]LineInput, 0, len(req.Lines)),
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput(line))
	}
	var entry JournalEntry
	if req.Post {
		entry, err = h.service.Post(r.Context(), input)
	} else {
		entry, err = h.service.CreateDraft(r.Context(), input)
	}
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.PostDraft(r.Context(), id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
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
	input := VoidInput{EntryID: id, Reason: req.Reason}
	if req.Date != "" {
		date, err := shared.ParseDate(req.Date)
		if err != nil {
			shared.RespondError(w, h.logger, err)
			return
		}
		input.Date = &date
	}
	result, err := h.service.Void(r.Context(), input)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
