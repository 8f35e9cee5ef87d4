package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"instrument-rental-backend/internal/security"
	"instrument-rental-backend/internal/service"
)

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	tools             service.ToolService
	bookings          service.BookingService
	orders            service.OrderService
	availability      service.AvailabilityService
	store             Pinger
	validate          *validator.Validate
	now               service.Clock
	lowStockThreshold int32
}

type HandlerDeps struct {
	Tools             service.ToolService
	Bookings          service.BookingService
	Orders            service.OrderService
	Availability      service.AvailabilityService
	Store             Pinger
	Now               service.Clock
	LowStockThreshold int32
}

func NewHandler(deps HandlerDeps) *Handler {
	now := deps.Now
	if now == nil {
		now = service.SystemClock
	}
	return &Handler{
		tools:             deps.Tools,
		bookings:          deps.Bookings,
		orders:            deps.Orders,
		availability:      deps.Availability,
		store:             deps.Store,
		validate:          newValidator(),
		now:               now,
		lowStockThreshold: deps.LowStockThreshold,
	}
}

// NewRouter registers every route. Static segments such as /meta/ are
// registered before the {id} routes they would otherwise shadow.
func NewRouter(h *Handler, auth *Auth, limiter *RateLimiter) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	}))
	router.MethodNotAllowedHandler = RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}))

	router.Use(RequestLogger)
	if limiter != nil {
		router.Use(limiter.Middleware)
	}
	if auth != nil {
		router.Use(auth.Middleware)
	}

	router.HandleFunc("/manage/health", h.Health).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	// Tools
	api.HandleFunc("/tools/meta/categories", h.ListCategories).Methods(http.MethodGet)
	api.HandleFunc("/tools/meta/low-stock", h.ListLowStock).Methods(http.MethodGet)
	api.HandleFunc("/tools/meta/popular", h.ListPopular).Methods(http.MethodGet)
	api.HandleFunc("/tools", h.ListTools).Methods(http.MethodGet)
	api.HandleFunc("/tools", h.CreateTool).Methods(http.MethodPost)
	api.HandleFunc("/tools/{id}", h.GetTool).Methods(http.MethodGet)
	api.HandleFunc("/tools/{id}", h.UpdateTool).Methods(http.MethodPut)
	api.HandleFunc("/tools/{id}", h.DeleteTool).Methods(http.MethodDelete)
	api.HandleFunc("/tools/{id}/availability", h.CheckAvailability).Methods(http.MethodGet)
	api.HandleFunc("/tools/{id}/pricing", h.GetPricing).Methods(http.MethodGet)
	api.HandleFunc("/tools/{id}/stock-movements", h.ListStockMovements).Methods(http.MethodGet)

	// Bookings
	api.HandleFunc("/bookings/my", h.ListMyBookings).Methods(http.MethodGet)
	api.HandleFunc("/bookings", h.ListBookings).Methods(http.MethodGet)
	api.HandleFunc("/bookings", h.ReserveBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}", h.GetBooking).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}/confirm", h.ConfirmBooking).Methods(http.MethodPut)
	api.HandleFunc("/bookings/{id}/cancel", h.CancelBooking).Methods(http.MethodPut)

	// Orders
	api.HandleFunc("/orders/meta/statistics", h.OrderStatistics).Methods(http.MethodGet)
	api.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders", h.CreateOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/history", h.OrderHistory).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/status", h.UpdateOrderStatus).Methods(http.MethodPut)
	api.HandleFunc("/orders/{id}/cancel", h.CancelOrder).Methods(http.MethodPut)
	api.HandleFunc("/orders/{id}/payment", h.UpdatePaymentStatus).Methods(http.MethodPut)
	api.HandleFunc("/orders/{id}/delivery", h.UpdateDeliveryStatus).Methods(http.MethodPut)

	return router
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			writeFailure(w, http.StatusServiceUnavailable, "UNAVAILABLE", "storage unreachable")
			return
		}
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// callerID returns the authenticated user id, or nil without a token.
func callerID(ctx context.Context) *int32 {
	claims, ok := ClaimsFrom(ctx)
	if !ok {
		return nil
	}
	id := claims.UserID
	return &id
}

// canAccess reports whether the caller may act on a record owned by
// customerID. Admins and unauthenticated deployments see everything.
func canAccess(ctx context.Context, customerID *int32) bool {
	claims, ok := ClaimsFrom(ctx)
	if !ok || claims.HasRole(security.RoleAdmin) {
		return true
	}
	return customerID != nil && *customerID == claims.UserID
}

func actor(ctx context.Context) string {
	claims, ok := ClaimsFrom(ctx)
	if !ok {
		return "anonymous"
	}
	if claims.Email != "" {
		return claims.Email
	}
	return "user:" + strconv.Itoa(int(claims.UserID))
}
