package httpapi

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrorResponse: тело ответа с ошибкой.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondDomainError переводит ошибку ядра в HTTP-статус.
func respondDomainError(w http.ResponseWriter, err error) {
	var cartErr *domain.CartError
	switch {
	case errors.As(err, &cartErr) && cartErr.Kind == domain.ErrorKindValidation:
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   domain.Describe(err),
			Code:    "validation_error",
			Details: cartErr.Op,
		})
	case errors.Is(err, domain.ErrBackend):
		respondError(w, http.StatusBadGateway, "backend_error", domain.Describe(err))
	case errors.Is(err, domain.ErrTransport):
		respondError(w, http.StatusServiceUnavailable, "transport_error", domain.Describe(err))
	case errors.Is(err, domain.ErrLineNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrPreferenceNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrVariantUnavailable):
		respondError(w, http.StatusConflict, "variant_unavailable", err.Error())
	case errors.Is(err, domain.ErrOptionDimension),
		errors.Is(err, domain.ErrPreferenceKeyRequired),
		errors.Is(err, domain.ErrVariantRequired):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
