package memory

import (
	"context"
	"sort"
	"time"

	"instrument-rental-backend/internal/domain"
)

type orderRepository struct {
	s *Store
	j *journal
}

func copyOrder(o domain.Order) *domain.Order {
	o.CustomerID = copyInt32(o.CustomerID)
	items := make([]domain.OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return &o
}

func (r *orderRepository) Create(ctx context.Context, o *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.seq.order++
	o.ID = r.s.seq.order
	for i := range o.Items {
		r.s.seq.item++
		o.Items[i].ID = r.s.seq.item
		o.Items[i].OrderID = o.ID
	}
	r.s.orders[o.ID] = *copyOrder(*o)
	id := o.ID
	r.j.add(func() { delete(r.s.orders, id) })
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id int32) (*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, notFound("order", id)
	}
	return copyOrder(o), nil
}

func (r *orderRepository) Update(ctx context.Context, o *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	old, ok := r.s.orders[o.ID]
	if !ok {
		return notFound("order", o.ID)
	}
	next := *copyOrder(old)
	next.Status = o.Status
	next.PaymentStatus = o.PaymentStatus
	next.DeliveryStatus = o.DeliveryStatus
	next.Notes = o.Notes
	next.UpdatedOn = o.UpdatedOn
	r.s.orders[o.ID] = next
	r.j.add(func() { r.s.orders[old.ID] = old })
	return nil
}

func inWindow(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}

func (r *orderRepository) List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, int32, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []domain.Order
	for _, o := range r.s.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.CustomerID != 0 && (o.CustomerID == nil || *o.CustomerID != f.CustomerID) {
			continue
		}
		if !inWindow(o.CreatedOn, f.From, f.To) {
			continue
		}
		matched = append(matched, *copyOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	return paginate(matched, f.Page, f.PageSize), int32(len(matched)), nil
}

func (r *orderRepository) ListActiveEndedBefore(ctx context.Context, at time.Time) ([]domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Order
	for _, o := range r.s.orders {
		if o.Status == domain.OrderStatusActive && o.EndDate.Before(at) {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out, nil
}

func (r *orderRepository) UnitsRentedOut(ctx context.Context, toolID int32) (int32, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out int32
	for _, o := range r.s.orders {
		if o.Status != domain.OrderStatusActive {
			continue
		}
		for _, it := range o.Items {
			if it.ToolID == toolID {
				out += it.Quantity
			}
		}
	}
	return out, nil
}

func (r *orderRepository) AppendStatusChange(ctx context.Context, c *domain.OrderStatusChange) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.seq.change++
	c.ID = r.s.seq.change
	r.s.changes[c.ID] = *c
	id := c.ID
	r.j.add(func() { delete(r.s.changes, id) })
	return nil
}

func (r *orderRepository) ListStatusChanges(ctx context.Context, orderID int32) ([]domain.OrderStatusChange, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []domain.OrderStatusChange{}
	for _, c := range r.s.changes {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *orderRepository) Statistics(ctx context.Context, from, to *time.Time, now time.Time) (*domain.OrderStatistics, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	stats := &domain.OrderStatistics{StatusCount: make(map[domain.OrderStatus]int32)}
	var billable int64
	for _, o := range r.s.orders {
		if !inWindow(o.CreatedOn, from, to) {
			continue
		}
		stats.TotalOrders++
		stats.StatusCount[o.Status]++
		if o.Status != domain.OrderStatusCancelled {
			stats.RevenueCents += o.TotalCents
			billable++
		}
		if o.IsOverdue(now) {
			stats.OverdueCount++
		}
	}
	if billable > 0 {
		stats.AverageCents = stats.RevenueCents / billable
	}
	return stats, nil
}
