package postgres

import (
	"context"
	"database/sql"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/repository"
)

type stockRepository struct {
	db DBTX
}

func NewStockRepository(db DBTX) repository.StockRepository {
	return &stockRepository{db: db}
}

func (r *stockRepository) Record(ctx context.Context, m *domain.StockMovement) error {
	query := `INSERT INTO stock_movements (tool_id, order_id, delta, total_delta, in_stock_after, total_stock_after, reason, note, created_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, m.ToolID, nullInt32(m.OrderID), m.Delta, m.TotalDelta, m.InStockAfter,
		m.TotalStockAfter, m.Reason, m.Note, m.CreatedOn).Scan(&m.ID)
	return mapError(err, "stock movement", 0)
}

func (r *stockRepository) ListByTool(ctx context.Context, toolID int32, page, pageSize int32) ([]domain.StockMovement, int32, error) {
	var count int32
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM stock_movements WHERE tool_id = $1`, toolID).Scan(&count); err != nil {
		return nil, 0, err
	}

	limit, offset := repository.Paging(page, pageSize)
	query := `SELECT id, tool_id, order_id, delta, total_delta, in_stock_after, total_stock_after, reason, note, created_on
	          FROM stock_movements WHERE tool_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, toolID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	movements := []domain.StockMovement{}
	for rows.Next() {
		var m domain.StockMovement
		var orderID sql.NullInt32
		if err := rows.Scan(&m.ID, &m.ToolID, &orderID, &m.Delta, &m.TotalDelta, &m.InStockAfter, &m.TotalStockAfter,
			&m.Reason, &m.Note, &m.CreatedOn); err != nil {
			return nil, 0, err
		}
		m.OrderID = int32Ptr(orderID)
		movements = append(movements, m)
	}
	return movements, count, rows.Err()
}
