package shared

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// RespondError renders accounting errors as RFC7807 problems.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		unbalanced *UnbalancedEntryError
		missing    *MissingAccountMappingError
		invalid    *ValidationError
	)
	switch {
	case errors.As(err, &unbalanced):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Unbalanced Entry",
			Status: http.StatusUnprocessableEntity,
			Detail: err.Error(),
			Extra: map[string]any{
				"total_debit":  unbalanced.TotalDebit,
				"total_credit": unbalanced.TotalCredit,
			},
		})
	case errors.As(err, &missing):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Missing Account Mapping",
			Status: http.StatusUnprocessableEntity,
			Detail: err.Error(),
			Extra:  map[string]any{"role": missing.Role},
		})
	case errors.As(err, &invalid):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusUnprocessableEntity,
			Detail: err.Error(),
			Errors: map[string]string{invalid.Field: invalid.Message},
		})
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyPosted):
		httpx.Problem(w, http.StatusConflict, "Already Posted", err.Error())
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Invalid Status", err.Error())
	case errors.Is(err, ErrDuplicateRun), errors.Is(err, ErrSourceAlreadyLinked):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		var fields httpx.FieldErrors
		if errors.As(err, &fields) {
			httpx.WriteProblem(w, httpx.ProblemDetail{
				Title:  "Validation Failed",
				Status: http.StatusBadRequest,
				Errors: fields,
			})
			return
		}
		if errors.Is(err, httpx.ErrValidation) || errors.Is(err, httpx.ErrBadParam) {
			httpx.RespondError(w, err)
			return
		}
		if logger != nil {
			logger.Error("accounting request failed", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
