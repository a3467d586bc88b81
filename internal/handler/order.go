package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
)

type OrderHistoryRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ProductSummaryResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Image      string `json:"image"`
	Price      string `json:"price"`
	CategoryID *int64 `json:"category_id"`
}

type OrderItemResponse struct {
	ID        int64                   `json:"id"`
	ProductID int64                   `json:"product_id"`
	Quantity  int                     `json:"quantity"`
	Price     string                  `json:"price"`
	Product   *ProductSummaryResponse `json:"product,omitempty"`
}

type OrderResponse struct {
	ID         int64               `json:"id"`
	UserID     int64               `json:"user_id"`
	TotalPrice string              `json:"total_price"`
	CreatedAt  time.Time           `json:"created_at"`
	Items      []OrderItemResponse `json:"items"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders/history", h.handleHistory)
	router.Get("/orders", h.handleList)
}

func (h *OrderHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	var payload OrderHistoryRequest
	if !decodeAndValidate(w, r, h.validate, &payload) {
		return
	}
	h.respondWithHistory(w, r, payload.Email)
}

func (h *OrderHandler) handleList(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r, h.validate)
	if !ok {
		return
	}
	h.respondWithHistory(w, r, email)
}

func (h *OrderHandler) respondWithHistory(w http.ResponseWriter, r *http.Request, email string) {
	orders, err := h.service.ListForBuyer(r.Context(), email)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list orders via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list orders")
		return
	}

	response := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		response = append(response, toOrderResponse(o))
	}
	respondWithJSON(w, http.StatusOK, response)
}

func toOrderResponse(o order.Order) OrderResponse {
	resp := OrderResponse{
		ID:         o.ID,
		UserID:     o.UserID,
		TotalPrice: o.TotalPrice.StringFixed(2),
		CreatedAt:  o.CreatedAt,
		Items:      make([]OrderItemResponse, 0, len(o.Items)),
	}
	for _, item := range o.Items {
		itemResp := OrderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.StringFixed(2),
		}
		if item.Product != nil {
			itemResp.Product = &ProductSummaryResponse{
				ID:         item.Product.ID,
				Name:       item.Product.Name,
				Image:      item.Product.Image,
				Price:      item.Product.Price.StringFixed(2),
				CategoryID: item.Product.CategoryID,
			}
		}
		resp.Items = append(resp.Items, itemResp)
	}
	return resp
}
