package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/usecase"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and a message fit for the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	} else {
		logger.Debug("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func errorStatus(err error) (int, string) {
	var fetchErr *domain.FetchError
	var authErr *domain.AuthError
	switch {
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, usecase.FetchFailedMessage
	case errors.As(err, &authErr):
		return http.StatusUnauthorized, authErr.Message
	case errors.Is(err, domain.ErrInvalidParameter):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timed out"
	}
	return http.StatusInternalServerError, "Internal server error"
}
