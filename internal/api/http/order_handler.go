package http

import (
	"fmt"
	"net/http"
	"time"

	"instrument-rental-backend/internal/domain"
)

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := h.decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	svcReq, err := req.toService()
	if err != nil {
		writeError(w, r, err)
		return
	}
	svcReq.CustomerID = callerID(r.Context())
	svcReq.Actor = actor(r.Context())

	order, err := h.orders.Create(r.Context(), svcReq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, newOrderResponse(order, h.now()))
}

// ownedOrder loads the order and hides it from callers who do not own it.
func (h *Handler) ownedOrder(r *http.Request) (*domain.Order, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	order, err := h.orders.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !canAccess(r.Context(), order.CustomerID) {
		return nil, fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	return order, nil
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newOrderResponse(order, h.now()))
}

func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	history, err := h.orders.History(r.Context(), order.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, history)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var filter domain.OrderFilter
	var err error
	if filter.Page, filter.PageSize, err = queryPage(r); err != nil {
		writeError(w, r, err)
		return
	}

	now := h.now()
	status := r.URL.Query().Get("status")
	if status == string(domain.OrderStatusOverdue) {
		orders, err := h.orders.ListOverdue(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{
			"orders":     toOrderResponses(orders, now),
			"pagination": newPagination(1, int32(len(orders)), len(orders), int32(len(orders))),
		})
		return
	}
	if status != "" {
		if filter.Status, err = domain.ParseOrderStatus(status); err != nil {
			writeError(w, r, fmt.Errorf("%w: unknown order status %q", domain.ErrInvalidInput, status))
			return
		}
	}
	if filter.CustomerID, err = queryInt32(r, "customerId", 0); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.From, err = queryDate(r, "startDate"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.To, err = queryDate(r, "endDate"); err != nil {
		writeError(w, r, err)
		return
	}

	orders, total, err := h.orders.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"orders":     toOrderResponses(orders, now),
		"pagination": newPagination(filter.Page, filter.PageSize, len(orders), total),
	})
}

func toOrderResponses(orders []domain.Order, now time.Time) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, newOrderResponse(&orders[i], now))
	}
	return out
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req orderStatusRequest
	if err := h.decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	to, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	order, err := h.orders.UpdateStatus(r.Context(), id, to, req.Note, actor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newOrderResponse(order, h.now()))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req reasonRequest
	if err := h.decode(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	cancelled, err := h.orders.Cancel(r.Context(), order.ID, req.Reason, actor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newOrderResponse(cancelled, h.now()))
}

func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req paymentStatusRequest
	if err := h.decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := domain.ParsePaymentStatus(req.PaymentStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	order, err := h.orders.UpdatePaymentStatus(r.Context(), id, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newOrderResponse(order, h.now()))
}

func (h *Handler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req deliveryStatusRequest
	if err := h.decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := domain.ParseDeliveryStatus(req.DeliveryStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	order, err := h.orders.UpdateDeliveryStatus(r.Context(), id, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newOrderResponse(order, h.now()))
}

func (h *Handler) OrderStatistics(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "startDate")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := queryDate(r, "endDate")
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := h.orders.Statistics(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}
