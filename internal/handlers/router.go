package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kiranabazaar/api/internal/platform/httpx"
	"github.com/kiranabazaar/api/internal/platform/idempotency"
	"github.com/kiranabazaar/api/internal/platform/observability"
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	Logger           *zap.Logger
	Cart             *CartHandler
	Checkout         *CheckoutHandler
	Orders           *OrderHandler
	Health           *HealthHandler
	IdempotencyStore idempotency.Store
	IdempotencyOpts  []idempotency.MiddlewareOption
	RequestTimeout   time.Duration
}

// NewRouter assembles the chi router with the full middleware stack.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(observability.InjectLoggerMiddleware(deps.Logger))
	r.Use(observability.TraceMiddleware())
	r.Use(observability.RequestLoggerMiddleware())
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(timeout))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", "method not allowed", http.StatusMethodNotAllowed))
	})

	if deps.Health != nil {
		r.Get("/healthz", deps.Health.Live)
		r.Get("/readyz", deps.Health.Ready)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(CartIdentity)

		if deps.Cart != nil {
			api.Get("/cart", deps.Cart.Get)
			api.Put("/cart/items/{sku}", deps.Cart.UpsertLine)
			api.Delete("/cart/items/{sku}", deps.Cart.RemoveLine)
		}

		if deps.Checkout != nil {
			api.Get("/checkout/summary", deps.Checkout.Summary)
		}

		// Mutations that talk to the gateway or persist orders are replay-guarded.
		api.Group(func(guarded chi.Router) {
			if deps.IdempotencyStore != nil {
				guarded.Use(idempotency.Middleware(deps.IdempotencyStore, deps.IdempotencyOpts...))
			}
			if deps.Checkout != nil {
				guarded.Post("/checkout/payment-order", deps.Checkout.CreatePaymentOrder)
			}
			if deps.Orders != nil {
				guarded.Post("/orders", deps.Orders.Place)
			}
		})

		if deps.Orders != nil {
			api.Get("/orders/{orderId}", deps.Orders.Get)
			api.Post("/orders/{orderId}/verify", deps.Orders.Verify)
			api.Post("/orders/{orderId}/transition", deps.Orders.Transition)
		}
	})

	return r
}
