package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/checkout"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/handler"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/metrics"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
)

// Deps are the services exposed over HTTP. Cart is optional; its routes are
// mounted only when it is set.
type Deps struct {
	Catalog  catalog.Service
	Checkout checkout.Service
	Orders   order.Service
	Cart     cart.Service
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.AccessLog)
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(handler.Instrument(deps.Metrics))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api", func(api chi.Router) {
		handler.NewCatalogHandler(deps.Catalog).RegisterRoutes(api)
		handler.NewCheckoutHandler(deps.Checkout).RegisterRoutes(api)
		handler.NewOrderHandler(deps.Orders).RegisterRoutes(api)
		if deps.Cart != nil {
			handler.NewCartHandler(deps.Cart).RegisterRoutes(api)
		}
	})

	return r
}
