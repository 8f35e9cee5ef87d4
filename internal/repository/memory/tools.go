package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/repository"
)

type toolRepository struct {
	s *Store
	j *journal
}

func copyTool(t domain.Tool) *domain.Tool {
	if t.DeletedOn != nil {
		d := *t.DeletedOn
		t.DeletedOn = &d
	}
	return &t
}

func (r *toolRepository) Create(ctx context.Context, t *domain.Tool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.seq.tool++
	t.ID = r.s.seq.tool
	r.s.tools[t.ID] = *copyTool(*t)
	id := t.ID
	r.j.add(func() { delete(r.s.tools, id) })
	return nil
}

func (r *toolRepository) GetByID(ctx context.Context, id int32) (*domain.Tool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tools[id]
	if !ok {
		return nil, notFound("tool", id)
	}
	return copyTool(t), nil
}

func (r *toolRepository) Update(ctx context.Context, t *domain.Tool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	old, ok := r.s.tools[t.ID]
	if !ok {
		return notFound("tool", t.ID)
	}
	r.s.tools[t.ID] = *copyTool(*t)
	r.j.add(func() { r.s.tools[old.ID] = old })
	return nil
}

func (r *toolRepository) SoftDelete(ctx context.Context, id int32, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	old, ok := r.s.tools[id]
	if !ok {
		return notFound("tool", id)
	}
	t := *copyTool(old)
	t.DeletedOn = &at
	t.UpdatedOn = at
	r.s.tools[id] = t
	r.j.add(func() { r.s.tools[id] = old })
	return nil
}

func (r *toolRepository) List(ctx context.Context, f domain.ToolFilter) ([]domain.Tool, int32, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search := strings.ToLower(f.Search)
	var matched []domain.Tool
	for _, t := range r.s.tools {
		if t.DeletedOn != nil {
			continue
		}
		if f.Category != "" && !strings.EqualFold(t.Category, f.Category) {
			continue
		}
		if f.Brand != "" && !strings.EqualFold(t.Brand, f.Brand) {
			continue
		}
		if f.MinPriceCents > 0 && t.PricePerDayCents < f.MinPriceCents {
			continue
		}
		if f.MaxPriceCents > 0 && t.PricePerDayCents > f.MaxPriceCents {
			continue
		}
		if f.OnlyInStock && t.InStock <= 0 {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Name), search) &&
			!strings.Contains(strings.ToLower(t.Brand), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		matched = append(matched, *copyTool(t))
	}

	less := func(a, b domain.Tool) bool {
		switch f.Sort {
		case "price":
			return a.PricePerDayCents < b.PricePerDayCents || (a.PricePerDayCents == b.PricePerDayCents && a.ID < b.ID)
		case "created_on":
			return a.CreatedOn.Before(b.CreatedOn) || (a.CreatedOn.Equal(b.CreatedOn) && a.ID < b.ID)
		}
		return a.Name < b.Name || (a.Name == b.Name && a.ID < b.ID)
	}
	sort.Slice(matched, func(i, j int) bool {
		if f.Descending {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})

	return paginate(matched, f.Page, f.PageSize), int32(len(matched)), nil
}

func (r *toolRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	subs := make(map[string]map[string]struct{})
	for _, t := range r.s.tools {
		if t.DeletedOn != nil || t.Category == "" {
			continue
		}
		if subs[t.Category] == nil {
			subs[t.Category] = make(map[string]struct{})
		}
		if t.Subcategory != "" {
			subs[t.Category][t.Subcategory] = struct{}{}
		}
	}

	cats := make([]domain.Category, 0, len(subs))
	for name, set := range subs {
		c := domain.Category{Name: name, Subcategories: make([]string, 0, len(set))}
		for sub := range set {
			c.Subcategories = append(c.Subcategories, sub)
		}
		sort.Strings(c.Subcategories)
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats, nil
}

func (r *toolRepository) ListLowStock(ctx context.Context, threshold int32) ([]domain.Tool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var low []domain.Tool
	for _, t := range r.s.tools {
		if t.Status != domain.ToolStatusRetired && t.LowStock(threshold) {
			low = append(low, *copyTool(t))
		}
	}
	sort.Slice(low, func(i, j int) bool {
		if low[i].InStock != low[j].InStock {
			return low[i].InStock < low[j].InStock
		}
		return low[i].ID < low[j].ID
	})
	return low, nil
}

func (r *toolRepository) ListPopular(ctx context.Context, limit int32) ([]domain.PopularTool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[int32]int32)
	for _, o := range r.s.orders {
		if o.Status == domain.OrderStatusCancelled {
			continue
		}
		for _, it := range o.Items {
			counts[it.ToolID]++
		}
	}

	popular := []domain.PopularTool{}
	for _, t := range r.s.tools {
		if t.DeletedOn != nil || t.Status == domain.ToolStatusRetired {
			continue
		}
		popular = append(popular, domain.PopularTool{Tool: *copyTool(t), RentalCount: counts[t.ID]})
	}
	sort.Slice(popular, func(i, j int) bool {
		if popular[i].RentalCount != popular[j].RentalCount {
			return popular[i].RentalCount > popular[j].RentalCount
		}
		return popular[i].ID < popular[j].ID
	})
	if limit > 0 && int(limit) < len(popular) {
		popular = popular[:limit]
	}
	return popular, nil
}

func paginate[T any](items []T, page, pageSize int32) []T {
	limit, offset := repository.Paging(page, pageSize)
	if int(offset) >= len(items) {
		return []T{}
	}
	end := int(offset + limit)
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
