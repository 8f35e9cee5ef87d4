package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/repository"
)

type orderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) repository.OrderRepository {
	return &orderRepository{db: db}
}

var orderColumns = []string{
	"id", "order_number", "customer_id", "customer_info", "delivery_info", "payment_method",
	"start_date", "end_date", "total_days", "subtotal_cents", "tax_cents", "total_cents", "deposit_cents",
	"status", "payment_status", "delivery_status", "notes", "created_on", "updated_on",
}

const orderItemColumns = `id, order_id, booking_id, tool_id, tool_name, quantity, price_per_day_cents, days, start_date, end_date, total_cents`

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var customerID sql.NullInt32
	var customerInfo, deliveryInfo []byte
	if err := row.Scan(&o.ID, &o.OrderNumber, &customerID, &customerInfo, &deliveryInfo, &o.PaymentMethod,
		&o.StartDate, &o.EndDate, &o.TotalDays, &o.SubtotalCents, &o.TaxCents, &o.TotalCents, &o.DepositCents,
		&o.Status, &o.PaymentStatus, &o.DeliveryStatus, &o.Notes, &o.CreatedOn, &o.UpdatedOn); err != nil {
		return nil, err
	}
	o.CustomerID = int32Ptr(customerID)
	o.StartDate = o.StartDate.UTC()
	o.EndDate = o.EndDate.UTC()
	if len(customerInfo) > 0 {
		if err := json.Unmarshal(customerInfo, &o.CustomerInfo); err != nil {
			return nil, fmt.Errorf("decode customer_info of order %d: %w", o.ID, err)
		}
	}
	if len(deliveryInfo) > 0 {
		if err := json.Unmarshal(deliveryInfo, &o.DeliveryInfo); err != nil {
			return nil, fmt.Errorf("decode delivery_info of order %d: %w", o.ID, err)
		}
	}
	return &o, nil
}

func (r *orderRepository) Create(ctx context.Context, o *domain.Order) error {
	customerInfo, err := json.Marshal(o.CustomerInfo)
	if err != nil {
		return err
	}
	deliveryInfo, err := json.Marshal(o.DeliveryInfo)
	if err != nil {
		return err
	}

	query := `INSERT INTO orders (order_number, customer_id, customer_info, delivery_info, payment_method, start_date, end_date, total_days, subtotal_cents, tax_cents, total_cents, deposit_cents, status, payment_status, delivery_status, notes, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18) RETURNING id`
	logger.DatabaseCall("CreateOrder", query, "order_number", o.OrderNumber)
	err = r.db.QueryRowContext(ctx, query, o.OrderNumber, nullInt32(o.CustomerID), customerInfo, deliveryInfo, o.PaymentMethod,
		o.StartDate, o.EndDate, o.TotalDays, o.SubtotalCents, o.TaxCents, o.TotalCents, o.DepositCents,
		o.Status, o.PaymentStatus, o.DeliveryStatus, o.Notes, o.CreatedOn, o.UpdatedOn).Scan(&o.ID)
	if err != nil {
		return mapError(err, "order", 0)
	}

	itemQuery := `INSERT INTO order_items (order_id, booking_id, tool_id, tool_name, quantity, price_per_day_cents, days, start_date, end_date, total_cents)
	              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		if err := r.db.QueryRowContext(ctx, itemQuery, it.OrderID, it.BookingID, it.ToolID, it.ToolName, it.Quantity,
			it.PricePerDayCents, it.Days, it.StartDate, it.EndDate, it.TotalCents).Scan(&it.ID); err != nil {
			return mapError(err, "order item", 0)
		}
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id int32) (*domain.Order, error) {
	query, args, err := qb.Select(orderColumns...).From("orders").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err, "order", id)
	}
	items, err := r.loadItems(ctx, []int32{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]
	if o.Items == nil {
		o.Items = []domain.OrderItem{}
	}
	return o, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderIDs []int32) (map[int32][]domain.OrderItem, error) {
	query := `SELECT ` + orderItemColumns + ` FROM order_items WHERE order_id = ANY($1) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byOrder := make(map[int32][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.BookingID, &it.ToolID, &it.ToolName, &it.Quantity,
			&it.PricePerDayCents, &it.Days, &it.StartDate, &it.EndDate, &it.TotalCents); err != nil {
			return nil, err
		}
		it.StartDate = it.StartDate.UTC()
		it.EndDate = it.EndDate.UTC()
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	return byOrder, rows.Err()
}

func (r *orderRepository) Update(ctx context.Context, o *domain.Order) error {
	query := `UPDATE orders SET status=$1, payment_status=$2, delivery_status=$3, notes=$4, updated_on=$5 WHERE id=$6`
	logger.DatabaseCall("UpdateOrder", query, "order_id", o.ID, "status", o.Status)
	res, err := r.db.ExecContext(ctx, query, o.Status, o.PaymentStatus, o.DeliveryStatus, o.Notes, o.UpdatedOn, o.ID)
	if err != nil {
		return mapError(err, "order", o.ID)
	}
	return expectOneRow(res, "order", o.ID)
}

func (r *orderRepository) queryOrders(ctx context.Context, q sq.SelectBuilder) ([]domain.Order, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	logger.DatabaseCall("QueryOrders", query, "args", args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []domain.Order{}
	var ids []int32
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return orders, nil
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func applyCreatedWindow(q sq.SelectBuilder, from, to *time.Time) sq.SelectBuilder {
	if from != nil {
		q = q.Where(sq.GtOrEq{"created_on": *from})
	}
	if to != nil {
		q = q.Where(sq.Lt{"created_on": *to})
	}
	return q
}

func applyOrderFilter(q sq.SelectBuilder, f domain.OrderFilter) sq.SelectBuilder {
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": f.Status})
	}
	if f.CustomerID != 0 {
		q = q.Where(sq.Eq{"customer_id": f.CustomerID})
	}
	return applyCreatedWindow(q, f.From, f.To)
}

func (r *orderRepository) List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, int32, error) {
	countQuery, countArgs, err := applyOrderFilter(qb.Select("count(*)").From("orders"), f).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var count int32
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&count); err != nil {
		return nil, 0, err
	}

	limit, offset := repository.Paging(f.Page, f.PageSize)
	orders, err := r.queryOrders(ctx, applyOrderFilter(qb.Select(orderColumns...).From("orders"), f).
		OrderBy("id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)))
	if err != nil {
		return nil, 0, err
	}
	return orders, count, nil
}

func (r *orderRepository) ListActiveEndedBefore(ctx context.Context, at time.Time) ([]domain.Order, error) {
	return r.queryOrders(ctx, qb.Select(orderColumns...).From("orders").
		Where(sq.Eq{"status": domain.OrderStatusActive}).
		Where(sq.Lt{"end_date": at}).
		OrderBy("end_date", "id"))
}

func (r *orderRepository) UnitsRentedOut(ctx context.Context, toolID int32) (int32, error) {
	query := `SELECT COALESCE(SUM(oi.quantity), 0) FROM order_items oi
	          JOIN orders o ON o.id = oi.order_id
	          WHERE oi.tool_id = $1 AND o.status = $2`
	logger.DatabaseCall("UnitsRentedOut", query, "tool_id", toolID)
	var out int32
	if err := r.db.QueryRowContext(ctx, query, toolID, domain.OrderStatusActive).Scan(&out); err != nil {
		return 0, err
	}
	return out, nil
}

func (r *orderRepository) AppendStatusChange(ctx context.Context, c *domain.OrderStatusChange) error {
	query := `INSERT INTO order_status_history (order_id, from_status, to_status, note, actor, created_on)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, c.OrderID, c.From, c.To, c.Note, c.Actor, c.CreatedOn).Scan(&c.ID)
	return mapError(err, "order status change", 0)
}

func (r *orderRepository) ListStatusChanges(ctx context.Context, orderID int32) ([]domain.OrderStatusChange, error) {
	query := `SELECT id, order_id, from_status, to_status, note, actor, created_on
	          FROM order_status_history WHERE order_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []domain.OrderStatusChange{}
	for rows.Next() {
		var c domain.OrderStatusChange
		if err := rows.Scan(&c.ID, &c.OrderID, &c.From, &c.To, &c.Note, &c.Actor, &c.CreatedOn); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (r *orderRepository) Statistics(ctx context.Context, from, to *time.Time, now time.Time) (*domain.OrderStatistics, error) {
	query, args, err := applyCreatedWindow(
		qb.Select("status", "count(*)", "COALESCE(SUM(total_cents), 0)").
			Column("count(*) FILTER (WHERE status = 'active' AND end_date < ?)", now).
			From("orders"), from, to).
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.OrderStatistics{StatusCount: make(map[domain.OrderStatus]int32)}
	var billable int64
	for rows.Next() {
		var status domain.OrderStatus
		var count, overdue int32
		var revenue int64
		if err := rows.Scan(&status, &count, &revenue, &overdue); err != nil {
			return nil, err
		}
		stats.StatusCount[status] = count
		stats.TotalOrders += count
		stats.OverdueCount += overdue
		if status != domain.OrderStatusCancelled {
			stats.RevenueCents += revenue
			billable += int64(count)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if billable > 0 {
		stats.AverageCents = stats.RevenueCents / billable
	}
	return stats, nil
}
