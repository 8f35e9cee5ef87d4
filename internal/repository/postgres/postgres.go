package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/repository"
)

//go:embed migrations/*.sql
var MigrationFiles embed.FS

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects, verifies the connection and sizes the pool.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int, connMaxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(MigrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func (s *Store) Repos() repository.Repositories {
	return newRepositories(s.db)
}

func newRepositories(db DBTX) repository.Repositories {
	return repository.Repositories{
		Tools:    NewToolRepository(db),
		Bookings: NewBookingRepository(db),
		Orders:   NewOrderRepository(db),
		Stock:    NewStockRepository(db),
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

const lockToolsQuery = `SELECT id FROM tools WHERE id = ANY($1) ORDER BY id FOR UPDATE`

// WithinToolLocks runs fn in one transaction after taking row locks on the
// tools. Postgres acquires FOR UPDATE locks in the ORDER BY order, so every
// caller locks in ascending id order.
func (s *Store) WithinToolLocks(ctx context.Context, toolIDs []int32, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Error("Failed to roll back transaction", "error", rbErr)
			}
		}
	}()

	ids := repository.LockOrder(toolIDs)
	if len(ids) > 0 {
		if err = lockTools(ctx, tx, ids); err != nil {
			return err
		}
	}

	if err = fn(ctx, newRepositories(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func lockTools(ctx context.Context, tx DBTX, ids []int32) error {
	logger.DatabaseCall("LockTools", lockToolsQuery, "tool_ids", ids)
	rows, err := tx.QueryContext(ctx, lockToolsQuery, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("lock tools: %w", err)
	}
	defer rows.Close()

	locked := make(map[int32]bool, len(ids))
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return err
		}
		locked[id] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		if !locked[id] {
			return fmt.Errorf("%w: tool %d", domain.ErrNotFound, id)
		}
	}
	return nil
}

// mapError converts driver errors into domain errors where one applies.
func mapError(err error, kind string, id int32) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", domain.ErrNotFound, kind, id)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23514": // check_violation
			return fmt.Errorf("%w: %s violates %s", domain.ErrInvalidInput, kind, pqErr.Constraint)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s references a missing row (%s)", domain.ErrNotFound, kind, pqErr.Constraint)
		}
	}
	return err
}

func expectOneRow(res sql.Result, kind string, id int32) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", domain.ErrNotFound, kind, id)
	}
	return nil
}

func nullInt32(v *int32) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: *v, Valid: true}
}

func int32Ptr(v sql.NullInt32) *int32 {
	if !v.Valid {
		return nil
	}
	i := v.Int32
	return &i
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
