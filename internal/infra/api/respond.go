package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"mediaforge/internal/domain"
)

type ErrorBody struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// StatusFor maps a domain error to its HTTP status and client message.
func StatusFor(err error) (int, string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized: Invalid token"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "Forbidden: User ID mismatch"
	case errors.Is(err, domain.ErrTierRequired):
		return http.StatusForbidden, "Brand training is only available for Business tier users"
	case errors.Is(err, domain.ErrInsufficientTeamCredits):
		return http.StatusForbidden, "Insufficient team credits"
	case errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusForbidden, "Insufficient credits"
	case errors.Is(err, domain.ErrDailyLimitExceeded):
		return http.StatusForbidden, "Daily generation limit reached"
	case errors.Is(err, domain.ErrNotTeamMember):
		return http.StatusForbidden, "User is not a member of the team"
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "Job status changed concurrently"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// WriteError renders err as {"error": msg} with its mapped status.
func WriteError(w http.ResponseWriter, err error) int {
	status, msg := StatusFor(err)
	WriteJSON(w, status, ErrorBody{Error: msg})
	return status
}
