package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/pos-service/internal/catalog"
	"github.com/fjod/go_cart/pos-service/internal/commerce"
	"github.com/fjod/go_cart/pos-service/internal/domain"
	"github.com/fjod/go_cart/pos-service/internal/terminal"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	// Bound is the limit a rejected loyalty redemption crossed.
	Bound *int64 `json:"bound,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError maps service errors onto HTTP statuses. Domain errors keep
// their kind as the response code.
func handleError(w http.ResponseWriter, log *zap.Logger, err error) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		resp := ErrorResponse{Error: derr.Detail, Code: string(derr.Kind)}
		status := http.StatusInternalServerError
		switch {
		case derr.Kind == domain.KindValidation:
			status = http.StatusBadRequest
		case derr.Kind == domain.KindAuthorizationRequired, derr.Kind == domain.KindRoleNotAllowed:
			status = http.StatusForbidden
		case derr.Kind == domain.KindInvalidCredentials:
			status = http.StatusUnauthorized
		case derr.Kind.IsRedemptionPolicy():
			status = http.StatusUnprocessableEntity
			bound := derr.Bound
			resp.Bound = &bound
		case derr.Kind == domain.KindVerifierUnavailable:
			status = http.StatusServiceUnavailable
		case derr.Kind == domain.KindNotFound:
			status = http.StatusNotFound
		}
		if status >= http.StatusInternalServerError {
			log.Warn("request failed", zap.Error(err))
		}
		respondJSON(w, status, resp)
		return
	}

	switch {
	case errors.Is(err, catalog.ErrEntryNotFound):
		respondError(w, http.StatusNotFound, "barcode_not_found", "no product for this barcode")
	case errors.Is(err, terminal.ErrInvalidTerminalID):
		respondError(w, http.StatusBadRequest, "invalid_terminal_id", "terminal id must be 1-64 characters")
	case errors.Is(err, commerce.ErrUnavailable):
		log.Warn("commerce backend unavailable", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "commerce backend unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		log.Error("unhandled error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// decodeJSON reads a JSON body, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
