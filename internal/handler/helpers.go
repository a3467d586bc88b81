package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/checkout"
)

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, checkout.ErrInvalidRequest),
		errors.Is(err, catalog.ErrInvalidFilter),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrProductNotFound),
		errors.Is(err, catalog.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrInsufficientStock),
		errors.Is(err, checkout.ErrIdentityConflict),
		errors.Is(err, cart.ErrConcurrentUpdate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := strings.ToLower(fe.Namespace())
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			details[field] = "is required"
		case "email":
			details[field] = "must be a valid email address"
		case "gt":
			details[field] = fmt.Sprintf("must be greater than %s", fe.Param())
		case "min":
			details[field] = fmt.Sprintf("must contain at least %s element(s)", fe.Param())
		case "max":
			details[field] = fmt.Sprintf("must be at most %s characters", fe.Param())
		case "lte":
			details[field] = fmt.Sprintf("must be at most %s", fe.Param())
		default:
			details[field] = fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		}
	}
	return details
}

// decodeAndValidate decodes a JSON body into dst and validates it. It writes
// the error response itself and reports whether the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload: %v", err))
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
			return false
		}
		log.Error().Err(err).Msg("Unexpected error type during validation")
		respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		return false
	}
	return true
}

func emailParam(w http.ResponseWriter, r *http.Request, validate *validator.Validate) (string, bool) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if err := validate.Var(email, "required,email"); err != nil {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'email' must be a valid email address")
		return "", false
	}
	return email, true
}
