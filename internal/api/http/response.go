package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/repository"
)

// Error kinds produced by the HTTP layer itself.
const (
	kindUnauthorized = "UNAUTHORIZED"
	kindForbidden    = "FORBIDDEN"
	kindRateLimited  = "RATE_LIMITED"
	kindInternal     = "INTERNAL"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type pagination struct {
	Current    int32 `json:"current"`
	Total      int32 `json:"total"`
	Count      int   `json:"count"`
	TotalItems int32 `json:"totalItems"`
}

func newPagination(page, pageSize int32, count int, totalItems int32) pagination {
	limit, _ := repository.Paging(page, pageSize)
	if page < 1 {
		page = 1
	}
	pages := (totalItems + limit - 1) / limit
	return pagination{Current: page, Total: pages, Count: count, TotalItems: totalItems}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, envelope{Success: false, Error: kind, Message: message})
}

// statusFor maps an engine error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyExpired),
		errors.Is(err, domain.ErrAlreadyConfirmed):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.ErrorKind(err)
	if kind == "" {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeFailure(w, http.StatusInternalServerError, kindInternal, "internal server error")
		return
	}
	writeFailure(w, statusFor(err), kind, err.Error())
}
