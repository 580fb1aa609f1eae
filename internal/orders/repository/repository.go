// Package repository provides data access for orders and their stage history.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"colorgarb_portal_backend/internal/timeline"
	"colorgarb_portal_backend/platform/apperr"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVersionConflict is returned when an optimistic-concurrency update finds
// a newer version of the order than the caller read.
var ErrVersionConflict = errors.New("order version conflict")

// Order is the persisted order aggregate root.
type Order struct {
	ID               uuid.UUID
	OrderNumber      string
	OrganizationID   uuid.UUID
	OrganizationName string
	Description      string
	CurrentStage     timeline.Stage
	OriginalShipDate time.Time
	CurrentShipDate  time.Time
	Status           string
	TotalValueCents  *int64
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Organization is the summary row returned alongside admin order listings.
type Organization struct {
	ID   uuid.UUID
	Name string
}

// ListFilters translates admin UI filter selections into a query.
type ListFilters struct {
	OrganizationID *uuid.UUID
	Status         string
	Stage          *timeline.Stage
	ShipDateFrom   *time.Time
	ShipDateTo     *time.Time
	Query          string
	SortBy         string
	SortDir        string
	Page           int
	PageSize       int
}

// Repository provides order data access.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates an order repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const orderColumns = `o.id, o.order_number, o.organization_id, org.name, o.description,
	o.current_stage, o.original_ship_date, o.current_ship_date, o.status,
	o.total_value_cents, o.version, o.created_at, o.updated_at`

var sortColumns = map[string]string{
	"orderNumber":     "o.order_number",
	"currentStage":    "o.current_stage",
	"currentShipDate": "o.current_ship_date",
	"createdAt":       "o.created_at",
	"updatedAt":       "o.updated_at",
	"organization":    "org.name",
}

func applyFilters(builder sq.SelectBuilder, f ListFilters) sq.SelectBuilder {
	if f.OrganizationID != nil {
		builder = builder.Where(sq.Eq{"o.organization_id": *f.OrganizationID})
	}
	if f.Status != "" {
		builder = builder.Where(sq.Eq{"o.status": f.Status})
	}
	if f.Stage != nil {
		builder = builder.Where(sq.Eq{"o.current_stage": string(*f.Stage)})
	}
	if f.ShipDateFrom != nil {
		builder = builder.Where(sq.GtOrEq{"o.current_ship_date": *f.ShipDateFrom})
	}
	if f.ShipDateTo != nil {
		builder = builder.Where(sq.LtOrEq{"o.current_ship_date": *f.ShipDateTo})
	}
	if f.Query != "" {
		like := "%" + f.Query + "%"
		builder = builder.Where(sq.Or{
			sq.ILike{"o.order_number": like},
			sq.ILike{"o.description": like},
			sq.ILike{"org.name": like},
		})
	}
	return builder
}

// List returns one page of orders matching the filters plus the total count
// and the distinct organizations represented in the full (unpaged) match.
func (r *Repository) List(ctx context.Context, f ListFilters) ([]Order, []Organization, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}

	countSQL, countArgs, err := applyFilters(
		psql.Select("COUNT(*)").
			From("orders o").
			Join("organizations org ON org.id = o.organization_id"), f).ToSql()
	if err != nil {
		return nil, nil, 0, apperr.Wrap(apperr.KindInternal, "build order count query", err)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, nil, 0, apperr.Wrap(apperr.KindInternal, "count orders", err)
	}

	sortCol, ok := sortColumns[f.SortBy]
	if !ok {
		sortCol = "o.created_at"
	}
	dir := "DESC"
	if f.SortDir == "asc" {
		dir = "ASC"
	}

	listSQL, listArgs, err := applyFilters(
		psql.Select(orderColumns).
			From("orders o").
			Join("organizations org ON org.id = o.organization_id"), f).
		OrderBy(fmt.Sprintf("%s %s", sortCol, dir), "o.id").
		Limit(uint64(f.PageSize)).
		Offset(uint64((f.Page - 1) * f.PageSize)).
		ToSql()
	if err != nil {
		return nil, nil, 0, apperr.Wrap(apperr.KindInternal, "build order list query", err)
	}

	rows, err := r.pool.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, nil, 0, apperr.Wrap(apperr.KindInternal, "list orders", err)
	}
	defer rows.Close()

	orders := make([]Order, 0, f.PageSize)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, nil, 0, apperr.Wrap(apperr.KindInternal, "scan order", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, 0, apperr.Wrap(apperr.KindInternal, "iterate orders", err)
	}

	orgs, err := r.listOrganizations(ctx, f)
	if err != nil {
		return nil, nil, 0, err
	}

	return orders, orgs, total, nil
}

func (r *Repository) listOrganizations(ctx context.Context, f ListFilters) ([]Organization, error) {
	orgSQL, orgArgs, err := applyFilters(
		psql.Select("DISTINCT org.id, org.name").
			From("orders o").
			Join("organizations org ON org.id = o.organization_id"), f).
		OrderBy("org.name").
		ToSql()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "build organization query", err)
	}

	rows, err := r.pool.Query(ctx, orgSQL, orgArgs...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list organizations", err)
	}
	defer rows.Close()

	orgs := make([]Organization, 0)
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan organization", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// GetByID loads a single order with its organization name.
func (r *Repository) GetByID(ctx context.Context, orderID uuid.UUID) (Order, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		JOIN organizations org ON org.id = o.organization_id
		WHERE o.id = $1
	`, orderID)

	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.NotFound("order not found")
	}
	if err != nil {
		return Order{}, apperr.Wrap(apperr.KindInternal, "get order", err)
	}
	return order, nil
}

// UpdateStageParams carries the persisted effects of a stage transition.
type UpdateStageParams struct {
	OrderID  uuid.UUID
	Stage    timeline.Stage
	ShipDate *time.Time
	Version  int64
}

// UpdateStage moves the order to the given stage, optionally revising the
// current ship date, guarded by the version the caller read. A version
// mismatch returns ErrVersionConflict.
func (r *Repository) UpdateStage(ctx context.Context, p UpdateStageParams) (Order, error) {
	var row pgx.Row
	if p.ShipDate != nil {
		row = r.pool.QueryRow(ctx, `
			UPDATE orders o
			SET current_stage = $1, current_ship_date = $2, version = version + 1, updated_at = now()
			WHERE o.id = $3 AND o.version = $4
			RETURNING o.id
		`, string(p.Stage), *p.ShipDate, p.OrderID, p.Version)
	} else {
		row = r.pool.QueryRow(ctx, `
			UPDATE orders o
			SET current_stage = $1, version = version + 1, updated_at = now()
			WHERE o.id = $2 AND o.version = $3
			RETURNING o.id
		`, string(p.Stage), p.OrderID, p.Version)
	}

	var id uuid.UUID
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrVersionConflict
		}
		return Order{}, apperr.Wrap(apperr.KindInternal, "update order stage", err)
	}

	return r.GetByID(ctx, p.OrderID)
}

type orderRowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s orderRowScanner) (Order, error) {
	var o Order
	var stage string
	err := s.Scan(
		&o.ID, &o.OrderNumber, &o.OrganizationID, &o.OrganizationName, &o.Description,
		&stage, &o.OriginalShipDate, &o.CurrentShipDate, &o.Status,
		&o.TotalValueCents, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return Order{}, err
	}
	o.CurrentStage = timeline.Stage(stage)
	return o, nil
}
