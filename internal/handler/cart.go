package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/checkout"
)

type AddCartItemRequest struct {
	Email     string `json:"email" validate:"required,email"`
	ProductID int64  `json:"product_id" validate:"gt=0"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=2147483647"`
}

type CartCheckoutRequest struct {
	Buyer BuyerRequest `json:"buyer"`
}

type CartHandler struct {
	service  cart.Service
	validate *validator.Validate
}

func NewCartHandler(service cart.Service) *CartHandler {
	return &CartHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Get("/cart", h.handleGet)
	router.Delete("/cart", h.handleClear)
	router.Post("/cart/items", h.handleAddItem)
	router.Delete("/cart/items/{product_id}", h.handleRemoveItem)
	router.Post("/cart/checkout", h.handleCheckout)
}

func (h *CartHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r, h.validate)
	if !ok {
		return
	}
	view, err := h.service.Get(r.Context(), email)
	if err != nil {
		h.respondWithCartError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var payload AddCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &payload) {
		return
	}
	view, err := h.service.AddItem(r.Context(), payload.Email, payload.ProductID, payload.Quantity)
	if err != nil {
		h.respondWithCartError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r, h.validate)
	if !ok {
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}
	view, err := h.service.RemoveItem(r.Context(), email, productID)
	if err != nil {
		h.respondWithCartError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (h *CartHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r, h.validate)
	if !ok {
		return
	}
	if err := h.service.Clear(r.Context(), email); err != nil {
		h.respondWithCartError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var payload CartCheckoutRequest
	if !decodeAndValidate(w, r, h.validate, &payload) {
		return
	}
	buyer := checkout.Buyer{Name: payload.Buyer.Name, Email: payload.Buyer.Email}
	res, err := h.service.Checkout(r.Context(), buyer, strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)))
	if err != nil {
		respondWithCheckoutError(w, err)
		return
	}
	respondWithCheckoutResult(w, res)
}

func (h *CartHandler) respondWithCartError(w http.ResponseWriter, err error) {
	statusCode := mapErrorToStatusCode(err)
	if statusCode == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Cart operation failed")
		respondWithError(w, statusCode, "Internal error")
		return
	}
	respondWithError(w, statusCode, err.Error())
}
