package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/utils"
)

func (h *Handler) ListTools(w http.ResponseWriter, r *http.Request) {
	filter, err := parseToolFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tools, total, err := h.tools.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"tools":      tools,
		"pagination": newPagination(filter.Page, filter.PageSize, len(tools), total),
	})
}

func parseToolFilter(r *http.Request) (domain.ToolFilter, error) {
	q := r.URL.Query()
	filter := domain.ToolFilter{
		Category: strings.TrimSpace(q.Get("category")),
		Brand:    strings.TrimSpace(q.Get("brand")),
		Search:   strings.TrimSpace(q.Get("search")),
	}

	var err error
	if filter.Page, filter.PageSize, err = queryPage(r); err != nil {
		return filter, err
	}
	if filter.MinPriceCents, err = queryInt64(r, "minPrice"); err != nil {
		return filter, err
	}
	if filter.MaxPriceCents, err = queryInt64(r, "maxPrice"); err != nil {
		return filter, err
	}
	if filter.MaxPriceCents > 0 && filter.MinPriceCents > filter.MaxPriceCents {
		return filter, fmt.Errorf("%w: minPrice must be less than or equal to maxPrice", domain.ErrInvalidInput)
	}
	if raw := q.Get("available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("%w: invalid boolean value for available", domain.ErrInvalidInput)
		}
		filter.OnlyInStock = v
	}

	switch sort := q.Get("sort"); sort {
	case "", "name":
		filter.Sort = "name"
	case "price", "pricePerDay":
		filter.Sort = "price"
	case "createdOn", "created_on", "newest":
		filter.Sort = "created_on"
	default:
		return filter, fmt.Errorf("%w: invalid sort value %q", domain.ErrInvalidInput, sort)
	}
	switch order := q.Get("order"); order {
	case "", "asc":
	case "desc":
		filter.Descending = true
	default:
		return filter, fmt.Errorf("%w: order must be asc or desc", domain.ErrInvalidInput)
	}
	return filter, nil
}

func (h *Handler) GetTool(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tool, err := h.tools.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, tool)
}

func (h *Handler) CreateTool(w http.ResponseWriter, r *http.Request) {
	var req createToolRequest
	if err := h.decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	tool, err := req.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.tools.Create(r.Context(), tool); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, tool)
}

func (h *Handler) UpdateTool(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateToolRequest
	if err := h.decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	upd, err := req.toService()
	if err != nil {
		writeError(w, r, err)
		return
	}
	tool, err := h.tools.Update(r.Context(), id, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, tool)
}

func (h *Handler) DeleteTool(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.tools.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "tool deleted"})
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.tools.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, categories)
}

func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	threshold, err := queryInt32(r, "threshold", h.lowStockThreshold)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tools, err := h.tools.ListLowStock(r.Context(), threshold)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, tools)
}

func (h *Handler) ListPopular(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt32(r, "limit", 10)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tools, err := h.tools.ListPopular(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, tools)
}

// CheckAvailability answers how many units are free for the requested range.
// It never takes locks.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	if q.Get("startDate") == "" || q.Get("endDate") == "" {
		writeError(w, r, fmt.Errorf("%w: startDate and endDate are required", domain.ErrInvalidRange))
		return
	}
	start, err := utils.ParseDate(q.Get("startDate"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := utils.ParseDate(q.Get("endDate"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	quantity, err := queryInt32(r, "quantity", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}

	avail, err := h.availability.Check(r.Context(), id, start, end, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, avail)
}

func (h *Handler) GetPricing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	days, err := queryInt32(r, "days", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	quantity, err := queryInt32(r, "quantity", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pricing, err := h.tools.Pricing(r.Context(), id, days, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, pricing)
}

func (h *Handler) ListStockMovements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, limit, err := queryPage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	movements, total, err := h.tools.StockMovements(r.Context(), id, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"movements":  movements,
		"pagination": newPagination(page, limit, len(movements), total),
	})
}
