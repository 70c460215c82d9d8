package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/cashy-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string        `json:"error"`
	Field string        `json:"field,omitempty"`
	Toast *domain.Toast `json:"toast,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, body := resolveServiceError(err, logger)
	writeJSON(w, status, body)
}

// handleWriteError is handleServiceError for user-initiated writes: the
// body also carries an error toast with the same message.
func handleWriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, body := resolveServiceError(err, logger)
	body.Toast = &domain.Toast{Type: "error", Title: "Error", Description: body.Error}
	writeJSON(w, status, body)
}

func resolveServiceError(err error, logger *zap.Logger) (int, errorResponse) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var validation *domain.ErrValidation
	var forbidden *domain.ErrForbidden
	var unauthorized *domain.ErrUnauthorized
	var provider *domain.ErrProvider
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		return http.StatusNotFound, errorResponse{Error: err.Error()}
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		return http.StatusBadRequest, errorResponse{Error: validation.Message, Field: validation.Field}
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		return http.StatusUnauthorized, errorResponse{Error: unauthorized.Error()}
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		return http.StatusForbidden, errorResponse{Error: err.Error()}
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		return http.StatusServiceUnavailable, errorResponse{Error: "provider temporarily unavailable"}
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		logger.Error("request timeout", zap.Error(err))
		return http.StatusGatewayTimeout, errorResponse{Error: "upstream timed out"}
	case errors.As(err, &provider) && clientFault(provider.Status):
		// The request itself was rejected (bad or expired public token):
		// hand the provider's message back to the caller.
		logger.Warn("provider rejected request",
			zap.Int("status", provider.Status),
			zap.String("type", provider.Type),
			zap.String("code", provider.Code),
		)
		return provider.Status, errorResponse{Error: providerMessage(provider)}
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(err))
		return http.StatusBadGateway, errorResponse{Error: "upstream service error"}
	default:
		logger.Error("internal error", zap.Error(err))
		return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
	}
}

func clientFault(status int) bool {
	return status == http.StatusBadRequest || status == http.StatusUnprocessableEntity
}

func providerMessage(e *domain.ErrProvider) string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "request rejected by provider"
}
