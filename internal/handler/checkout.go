package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/checkout"
)

const idempotencyKeyHeader = "Idempotency-Key"

type BuyerRequest struct {
	Name  string `json:"name" validate:"max=255"`
	Email string `json:"email" validate:"required,email"`
}

type CheckoutItemRequest struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int   `json:"quantity" validate:"gt=0,lte=2147483647"`
}

type CheckoutRequest struct {
	Items []CheckoutItemRequest `json:"items" validate:"required,min=1,dive"`
	Buyer BuyerRequest          `json:"buyer"`
}

type CheckoutResponse struct {
	OrderID    int64  `json:"order_id"`
	TotalPrice string `json:"total_price"`
	Status     string `json:"status"`
	Replayed   bool   `json:"replayed,omitempty"`
}

type CheckoutHandler struct {
	service  checkout.Service
	validate *validator.Validate
}

func NewCheckoutHandler(service checkout.Service) *CheckoutHandler {
	return &CheckoutHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *CheckoutHandler) RegisterRoutes(router chi.Router) {
	router.Post("/checkout", h.handleCheckout)
}

func (h *CheckoutHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var payload CheckoutRequest
	if !decodeAndValidate(w, r, h.validate, &payload) {
		return
	}

	req := checkout.Request{
		Buyer:          checkout.Buyer{Name: payload.Buyer.Name, Email: payload.Buyer.Email},
		Items:          make([]checkout.LineItem, 0, len(payload.Items)),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
	}
	for _, item := range payload.Items {
		req.Items = append(req.Items, checkout.LineItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	res, err := h.service.Checkout(r.Context(), req)
	if err != nil {
		respondWithCheckoutError(w, err)
		return
	}
	respondWithCheckoutResult(w, res)
}

func respondWithCheckoutResult(w http.ResponseWriter, res *checkout.Result) {
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	respondWithJSON(w, status, CheckoutResponse{
		OrderID:    res.OrderID,
		TotalPrice: res.TotalPrice.StringFixed(2),
		Status:     "created",
		Replayed:   res.Replayed,
	})
}

// respondWithCheckoutError writes one response shape per failure kind.
func respondWithCheckoutError(w http.ResponseWriter, err error) {
	statusCode := mapErrorToStatusCode(err)

	var cerr *checkout.Error
	if !errors.As(err, &cerr) {
		if statusCode == http.StatusInternalServerError {
			log.Error().Err(err).Msg("Checkout failed")
			respondWithError(w, statusCode, "Internal error")
			return
		}
		respondWithError(w, statusCode, err.Error())
		return
	}

	switch {
	case errors.Is(cerr.Kind, checkout.ErrInvalidRequest):
		body := map[string]any{"error": cerr.Error()}
		if cerr.Line != checkout.NoLine {
			body["line"] = cerr.Line
		}
		respondWithJSON(w, http.StatusBadRequest, body)
	case errors.Is(cerr.Kind, checkout.ErrProductNotFound):
		respondWithJSON(w, http.StatusNotFound, map[string]any{
			"error":      "Product not found",
			"product_id": cerr.ProductID,
		})
	case errors.Is(cerr.Kind, checkout.ErrInsufficientStock):
		respondWithJSON(w, http.StatusConflict, map[string]any{
			"error":        "Insufficient stock",
			"product_id":   cerr.ProductID,
			"product_name": cerr.ProductName,
			"available":    cerr.Available,
		})
	case errors.Is(cerr.Kind, checkout.ErrIdentityConflict):
		respondWithError(w, http.StatusConflict, "Buyer identity conflict, please retry")
	default:
		log.Error().Err(err).Msg("Checkout failed")
		respondWithError(w, http.StatusInternalServerError, "Internal error")
	}
}
