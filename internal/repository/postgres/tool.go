package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/repository"
)

type toolRepository struct {
	db DBTX
}

func NewToolRepository(db DBTX) repository.ToolRepository {
	return &toolRepository{db: db}
}

var toolColumns = []string{
	"id", "name", "brand", "category", "subcategory", "description", "condition",
	"price_per_day_cents", "total_stock", "in_stock", "status", "created_on", "updated_on", "deleted_on",
}

type rowScanner interface {
	Scan(dest ...any) error
}

// toolDest lists scan targets in toolColumns order.
func toolDest(t *domain.Tool, deleted *sql.NullTime) []any {
	return []any{&t.ID, &t.Name, &t.Brand, &t.Category, &t.Subcategory, &t.Description, &t.Condition,
		&t.PricePerDayCents, &t.TotalStock, &t.InStock, &t.Status, &t.CreatedOn, &t.UpdatedOn, deleted}
}

func scanTool(row rowScanner) (*domain.Tool, error) {
	var t domain.Tool
	var deleted sql.NullTime
	if err := row.Scan(toolDest(&t, &deleted)...); err != nil {
		return nil, err
	}
	t.DeletedOn = timePtr(deleted)
	return &t, nil
}

func (r *toolRepository) Create(ctx context.Context, t *domain.Tool) error {
	query := `INSERT INTO tools (name, brand, category, subcategory, description, condition, price_per_day_cents, total_stock, in_stock, status, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`
	logger.DatabaseCall("CreateTool", query, "name", t.Name)
	err := r.db.QueryRowContext(ctx, query, t.Name, t.Brand, t.Category, t.Subcategory, t.Description, t.Condition,
		t.PricePerDayCents, t.TotalStock, t.InStock, t.Status, t.CreatedOn, t.UpdatedOn).Scan(&t.ID)
	return mapError(err, "tool", 0)
}

func (r *toolRepository) GetByID(ctx context.Context, id int32) (*domain.Tool, error) {
	query, args, err := qb.Select(toolColumns...).From("tools").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	t, err := scanTool(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err, "tool", id)
	}
	return t, nil
}

func (r *toolRepository) Update(ctx context.Context, t *domain.Tool) error {
	query := `UPDATE tools SET name=$1, brand=$2, category=$3, subcategory=$4, description=$5, condition=$6,
	          price_per_day_cents=$7, total_stock=$8, in_stock=$9, status=$10, updated_on=$11 WHERE id=$12`
	logger.DatabaseCall("UpdateTool", query, "tool_id", t.ID)
	res, err := r.db.ExecContext(ctx, query, t.Name, t.Brand, t.Category, t.Subcategory, t.Description, t.Condition,
		t.PricePerDayCents, t.TotalStock, t.InStock, t.Status, t.UpdatedOn, t.ID)
	if err != nil {
		return mapError(err, "tool", t.ID)
	}
	return expectOneRow(res, "tool", t.ID)
}

func (r *toolRepository) SoftDelete(ctx context.Context, id int32, at time.Time) error {
	query := `UPDATE tools SET deleted_on = $1, updated_on = $1 WHERE id = $2`
	logger.DatabaseCall("SoftDeleteTool", query, "tool_id", id)
	res, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		logger.DatabaseResult("SoftDeleteTool", 0, err, "tool_id", id)
		return mapError(err, "tool", id)
	}
	if n, err := res.RowsAffected(); err == nil {
		logger.DatabaseResult("SoftDeleteTool", n, nil, "tool_id", id)
	}
	return expectOneRow(res, "tool", id)
}

func applyToolFilter(q sq.SelectBuilder, f domain.ToolFilter) sq.SelectBuilder {
	q = q.Where(sq.Eq{"deleted_on": nil})
	if f.Category != "" {
		q = q.Where("LOWER(category) = LOWER(?)", f.Category)
	}
	if f.Brand != "" {
		q = q.Where("LOWER(brand) = LOWER(?)", f.Brand)
	}
	if f.MinPriceCents > 0 {
		q = q.Where(sq.GtOrEq{"price_per_day_cents": f.MinPriceCents})
	}
	if f.MaxPriceCents > 0 {
		q = q.Where(sq.LtOrEq{"price_per_day_cents": f.MaxPriceCents})
	}
	if f.OnlyInStock {
		q = q.Where(sq.Gt{"in_stock": 0})
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		q = q.Where(sq.Or{
			sq.ILike{"name": pattern},
			sq.ILike{"brand": pattern},
			sq.ILike{"description": pattern},
		})
	}
	return q
}

func toolOrderBy(f domain.ToolFilter) string {
	col := "name"
	switch f.Sort {
	case "price":
		col = "price_per_day_cents"
	case "created_on":
		col = "created_on"
	}
	dir := "ASC"
	if f.Descending {
		dir = "DESC"
	}
	return fmt.Sprintf("%s %s, id %s", col, dir, dir)
}

func (r *toolRepository) List(ctx context.Context, f domain.ToolFilter) ([]domain.Tool, int32, error) {
	countQuery, countArgs, err := applyToolFilter(qb.Select("count(*)").From("tools"), f).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var count int32
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&count); err != nil {
		return nil, 0, err
	}

	limit, offset := repository.Paging(f.Page, f.PageSize)
	query, args, err := applyToolFilter(qb.Select(toolColumns...).From("tools"), f).
		OrderBy(toolOrderBy(f)).
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	logger.DatabaseCall("ListTools", query, "args", args)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tools := []domain.Tool{}
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, 0, err
		}
		tools = append(tools, *t)
	}
	return tools, count, rows.Err()
}

func (r *toolRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	query := `SELECT DISTINCT category, subcategory FROM tools
	          WHERE deleted_on IS NULL AND category <> '' ORDER BY category, subcategory`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := make(map[string]*domain.Category)
	for rows.Next() {
		var cat, sub string
		if err := rows.Scan(&cat, &sub); err != nil {
			return nil, err
		}
		c, ok := byName[cat]
		if !ok {
			c = &domain.Category{Name: cat, Subcategories: []string{}}
			byName[cat] = c
		}
		if sub != "" {
			c.Subcategories = append(c.Subcategories, sub)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cats := make([]domain.Category, 0, len(byName))
	for _, c := range byName {
		cats = append(cats, *c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats, nil
}

func (r *toolRepository) ListLowStock(ctx context.Context, threshold int32) ([]domain.Tool, error) {
	query, args, err := qb.Select(toolColumns...).From("tools").
		Where(sq.Eq{"deleted_on": nil}).
		Where(sq.NotEq{"status": domain.ToolStatusRetired}).
		Where(sq.LtOrEq{"in_stock": threshold}).
		OrderBy("in_stock ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tools []domain.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, *t)
	}
	return tools, rows.Err()
}

func (r *toolRepository) ListPopular(ctx context.Context, limit int32) ([]domain.PopularTool, error) {
	cols := make([]string, 0, len(toolColumns))
	for _, c := range toolColumns {
		cols = append(cols, "t."+c)
	}
	q := qb.Select(cols...).
		Column("COUNT(o.id) AS rental_count").
		From("tools t").
		LeftJoin("order_items oi ON oi.tool_id = t.id").
		LeftJoin("orders o ON o.id = oi.order_id AND o.status <> ?", domain.OrderStatusCancelled).
		Where(sq.Eq{"t.deleted_on": nil}).
		Where(sq.NotEq{"t.status": domain.ToolStatusRetired}).
		GroupBy("t.id").
		OrderBy("rental_count DESC", "t.id ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	logger.DatabaseCall("ListPopularTools", query, "limit", limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	popular := []domain.PopularTool{}
	for rows.Next() {
		var p domain.PopularTool
		var deleted sql.NullTime
		if err := rows.Scan(append(toolDest(&p.Tool, &deleted), &p.RentalCount)...); err != nil {
			return nil, err
		}
		p.DeletedOn = timePtr(deleted)
		popular = append(popular, p)
	}
	return popular, rows.Err()
}
