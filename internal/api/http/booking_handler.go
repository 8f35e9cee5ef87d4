package http

import (
	"fmt"
	"net/http"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/service"
	"instrument-rental-backend/internal/utils"
)

func (h *Handler) ReserveBooking(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := h.decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	start, err := utils.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := utils.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	booking, err := h.bookings.Reserve(r.Context(), service.ReserveRequest{
		ToolID:     req.ToolID,
		CustomerID: callerID(r.Context()),
		StartDate:  start,
		EndDate:    end,
		Quantity:   req.Quantity,
		Notes:      req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, booking)
}

// ownedBooking loads the booking and hides it from callers who do not own it.
func (h *Handler) ownedBooking(r *http.Request) (*domain.Booking, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	booking, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !canAccess(r.Context(), booking.CustomerID) {
		return nil, fmt.Errorf("%w: booking %d", domain.ErrNotFound, id)
	}
	return booking, nil
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.ownedBooking(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, booking)
}

func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.ownedBooking(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	confirmed, err := h.bookings.Confirm(r.Context(), booking.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, confirmed)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.ownedBooking(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req reasonRequest
	if err := h.decode(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	cancelled, err := h.bookings.Cancel(r.Context(), booking.ID, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, cancelled)
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseBookingFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if filter.CustomerID, err = queryInt32(r, "customerId", 0); err != nil {
		writeError(w, r, err)
		return
	}
	h.listBookings(w, r, filter)
}

func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r.Context())
	if caller == nil {
		writeFailure(w, http.StatusUnauthorized, kindUnauthorized, "customer identity required")
		return
	}
	filter, err := parseBookingFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter.CustomerID = *caller
	h.listBookings(w, r, filter)
}

func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request, filter domain.BookingFilter) {
	bookings, total, err := h.bookings.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"bookings":   bookings,
		"pagination": newPagination(filter.Page, filter.PageSize, len(bookings), total),
	})
}

func parseBookingFilter(r *http.Request) (domain.BookingFilter, error) {
	var filter domain.BookingFilter
	var err error
	if raw := r.URL.Query().Get("status"); raw != "" {
		if filter.Status, err = domain.ParseBookingStatus(raw); err != nil {
			return filter, err
		}
	}
	if filter.ToolID, err = queryInt32(r, "toolId", 0); err != nil {
		return filter, err
	}
	if filter.Page, filter.PageSize, err = queryPage(r); err != nil {
		return filter, err
	}
	return filter, nil
}
