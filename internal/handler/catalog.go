package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/catalog"
)

// ProductSearchRequest accepts the category filter in any supported shape.
type ProductSearchRequest struct {
	Category catalog.CategoryFilter `json:"category"`
}

type CatalogHandler struct {
	service catalog.Service
}

func NewCatalogHandler(service catalog.Service) *CatalogHandler {
	return &CatalogHandler{service: service}
}

func (h *CatalogHandler) RegisterRoutes(router chi.Router) {
	router.Get("/products", h.handleListProducts)
	router.Post("/products", h.handleSearchProducts)
	router.Get("/products/{id}", h.handleGetProduct)
	router.Get("/categories", h.handleListCategories)
}

func (h *CatalogHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := catalog.ParseCategoryValues(r.URL.Query()["category"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondWithProducts(w, r, filter)
}

func (h *CatalogHandler) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	var payload ProductSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondWithProducts(w, r, payload.Category)
}

func (h *CatalogHandler) respondWithProducts(w http.ResponseWriter, r *http.Request, filter catalog.CategoryFilter) {
	products, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list products via service")
		respondWithError(w, http.StatusInternalServerError, "Failed to list products")
		return
	}
	respondWithJSON(w, http.StatusOK, products)
}

func (h *CatalogHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)
		if statusCode == http.StatusNotFound {
			respondWithError(w, statusCode, "Product not found")
			return
		}
		log.Error().Err(err).Int64("product_id", id).Msg("Failed to get product via service")
		respondWithError(w, statusCode, "Failed to get product")
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *CatalogHandler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list categories via service")
		respondWithError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}
	respondWithJSON(w, http.StatusOK, categories)
}
