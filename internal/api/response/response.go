package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pagebell/pagebell/internal/core"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the JSON body for every error status.
type ErrorResponse struct {
	Error string `json:"error"`
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteServiceError maps classified store errors onto HTTP statuses.
// Unclassified errors surface as 500 without detail.
func WriteServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrValidation):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrForbidden):
		WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, core.ErrConflict), errors.Is(err, core.ErrUnique):
		WriteError(w, http.StatusConflict, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// PaginatedResponse wraps a list with pagination metadata.
type PaginatedResponse struct {
	Items      any    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// WritePaginated writes a paginated JSON response.
func WritePaginated(w http.ResponseWriter, status int, items any, nextCursor string, hasMore bool) {
	WriteJSON(w, status, PaginatedResponse{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	})
}
