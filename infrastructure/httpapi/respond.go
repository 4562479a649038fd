package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/specforge/specforge/infrastructure/llm"
	"github.com/specforge/specforge/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

var (
	errInvalidDocType = errors.New("type must be brd or prd")
	errInvalidPaging  = errors.New("limit and offset must be non-negative integers")
)

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondServiceError maps domain and provider errors to HTTP statuses:
// bad input 400, unknown document 404, cost ceiling 402, provider rate
// limits 429, no provider 503, provider timeout 504, anything else from a
// provider 502.
func respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrDocumentNotFound) {
		respondError(w, http.StatusNotFound, "document not found")
		return
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var provErr *llm.ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Type {
		case llm.ErrorTypeCostExceeded:
			respondError(w, http.StatusPaymentRequired, provErr.Error())
		case llm.ErrorTypeRateLimit:
			respondError(w, http.StatusTooManyRequests, provErr.Error())
		case llm.ErrorTypeNoProvider, llm.ErrorTypeMissingCredential:
			respondError(w, http.StatusServiceUnavailable, provErr.Error())
		case llm.ErrorTypeTimeout:
			respondError(w, http.StatusGatewayTimeout, provErr.Error())
		default:
			respondError(w, http.StatusBadGateway, provErr.Error())
		}
		return
	}

	respondError(w, http.StatusInternalServerError, err.Error())
}
