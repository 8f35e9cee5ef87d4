package memory

import (
	"context"
	"sort"

	"instrument-rental-backend/internal/domain"
)

type stockRepository struct {
	s *Store
	j *journal
}

func (r *stockRepository) Record(ctx context.Context, m *domain.StockMovement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.seq.movement++
	m.ID = r.s.seq.movement
	stored := *m
	stored.OrderID = copyInt32(m.OrderID)
	r.s.movements[m.ID] = stored
	id := m.ID
	r.j.add(func() { delete(r.s.movements, id) })
	return nil
}

func (r *stockRepository) ListByTool(ctx context.Context, toolID int32, page, pageSize int32) ([]domain.StockMovement, int32, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.StockMovement
	for _, m := range r.s.movements {
		if m.ToolID == toolID {
			m.OrderID = copyInt32(m.OrderID)
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, page, pageSize), int32(len(out)), nil
}
