package postgres

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/repository"
)

type bookingRepository struct {
	db DBTX
}

func NewBookingRepository(db DBTX) repository.BookingRepository {
	return &bookingRepository{db: db}
}

var bookingColumns = []string{
	"id", "tool_id", "customer_id", "order_id", "start_date", "end_date", "quantity", "status",
	"price_per_day_cents", "total_price_cents", "expires_at", "notes", "cancel_reason", "confirmed_on",
	"created_on", "updated_on",
}

var openBookingStatuses = []string{string(domain.BookingStatusPending), string(domain.BookingStatusConfirmed)}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var b domain.Booking
	var customerID, orderID sql.NullInt32
	var expiresAt, confirmedOn sql.NullTime
	if err := row.Scan(&b.ID, &b.ToolID, &customerID, &orderID, &b.StartDate, &b.EndDate, &b.Quantity, &b.Status,
		&b.PricePerDayCents, &b.TotalPriceCents, &expiresAt, &b.Notes, &b.CancelReason, &confirmedOn,
		&b.CreatedOn, &b.UpdatedOn); err != nil {
		return nil, err
	}
	b.CustomerID = int32Ptr(customerID)
	b.OrderID = int32Ptr(orderID)
	b.ExpiresAt = timePtr(expiresAt)
	b.ConfirmedOn = timePtr(confirmedOn)
	b.StartDate = b.StartDate.UTC()
	b.EndDate = b.EndDate.UTC()
	return &b, nil
}

func (r *bookingRepository) queryBookings(ctx context.Context, q sq.SelectBuilder) ([]domain.Booking, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	logger.DatabaseCall("QueryBookings", query, "args", args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := []domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	query := `INSERT INTO bookings (tool_id, customer_id, order_id, start_date, end_date, quantity, status, price_per_day_cents, total_price_cents, expires_at, notes, cancel_reason, confirmed_on, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`
	logger.DatabaseCall("CreateBooking", query, "tool_id", b.ToolID)
	err := r.db.QueryRowContext(ctx, query, b.ToolID, nullInt32(b.CustomerID), nullInt32(b.OrderID), b.StartDate, b.EndDate,
		b.Quantity, b.Status, b.PricePerDayCents, b.TotalPriceCents, b.ExpiresAt, b.Notes, b.CancelReason, b.ConfirmedOn,
		b.CreatedOn, b.UpdatedOn).Scan(&b.ID)
	return mapError(err, "booking", 0)
}

func (r *bookingRepository) GetByID(ctx context.Context, id int32) (*domain.Booking, error) {
	query, args, err := qb.Select(bookingColumns...).From("bookings").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err, "booking", id)
	}
	return b, nil
}

func (r *bookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	query := `UPDATE bookings SET order_id=$1, status=$2, expires_at=$3, notes=$4, cancel_reason=$5, confirmed_on=$6, updated_on=$7 WHERE id=$8`
	logger.DatabaseCall("UpdateBooking", query, "booking_id", b.ID, "status", b.Status)
	res, err := r.db.ExecContext(ctx, query, nullInt32(b.OrderID), b.Status, b.ExpiresAt, b.Notes, b.CancelReason, b.ConfirmedOn, b.UpdatedOn, b.ID)
	if err != nil {
		return mapError(err, "booking", b.ID)
	}
	return expectOneRow(res, "booking", b.ID)
}

func (r *bookingRepository) ListOverlapping(ctx context.Context, toolID int32, start, end time.Time) ([]domain.Booking, error) {
	return r.queryBookings(ctx, qb.Select(bookingColumns...).From("bookings").
		Where(sq.Eq{"tool_id": toolID, "status": openBookingStatuses}).
		Where(sq.Lt{"start_date": end}).
		Where(sq.Gt{"end_date": start}).
		OrderBy("id"))
}

func (r *bookingRepository) ListOpenFrom(ctx context.Context, toolID int32, from time.Time) ([]domain.Booking, error) {
	return r.queryBookings(ctx, qb.Select(bookingColumns...).From("bookings").
		Where(sq.Eq{"tool_id": toolID, "status": openBookingStatuses}).
		Where(sq.Gt{"end_date": from}).
		OrderBy("id"))
}

func (r *bookingRepository) ListLapsedHolds(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	return r.queryBookings(ctx, qb.Select(bookingColumns...).From("bookings").
		Where(sq.Eq{"status": domain.BookingStatusPending}).
		Where(sq.LtOrEq{"expires_at": now}).
		OrderBy("id"))
}

func (r *bookingRepository) ListByOrder(ctx context.Context, orderID int32) ([]domain.Booking, error) {
	return r.queryBookings(ctx, qb.Select(bookingColumns...).From("bookings").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("id"))
}

func applyBookingFilter(q sq.SelectBuilder, f domain.BookingFilter) sq.SelectBuilder {
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": f.Status})
	}
	if f.ToolID != 0 {
		q = q.Where(sq.Eq{"tool_id": f.ToolID})
	}
	if f.CustomerID != 0 {
		q = q.Where(sq.Eq{"customer_id": f.CustomerID})
	}
	return q
}

func (r *bookingRepository) List(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, int32, error) {
	countQuery, countArgs, err := applyBookingFilter(qb.Select("count(*)").From("bookings"), f).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var count int32
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&count); err != nil {
		return nil, 0, err
	}

	limit, offset := repository.Paging(f.Page, f.PageSize)
	bookings, err := r.queryBookings(ctx, applyBookingFilter(qb.Select(bookingColumns...).From("bookings"), f).
		OrderBy("id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)))
	if err != nil {
		return nil, 0, err
	}
	return bookings, count, nil
}
