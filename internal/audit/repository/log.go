// Package repository provides communication audit data access.
package repository

import (
	"context"
	"time"

	"colorgarb_portal_backend/platform/apperr"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Communication log types.
const (
	TypeEmail              = "Email"
	TypeSMS                = "SMS"
	TypeMessage            = "Message"
	TypeSystemNotification = "SystemNotification"
)

// Delivery statuses.
const (
	StatusSent      = "Sent"
	StatusDelivered = "Delivered"
	StatusFailed    = "Failed"
	StatusBounced   = "Bounced"
	StatusQueued    = "Queued"
)

// CommunicationLog is one immutable audit trail entry.
type CommunicationLog struct {
	ID                uuid.UUID
	OrderID           *uuid.UUID
	OrganizationID    *uuid.UUID
	Type              string
	Direction         string
	Sender            string
	Recipient         string
	Subject           string
	BodyExcerpt       string
	DeliveryStatus    string
	SentAt            time.Time
	ExternalMessageID string
}

// SearchFilters narrows an audit search.
type SearchFilters struct {
	Types          []string
	Statuses       []string
	DateFrom       *time.Time
	DateTo         *time.Time
	OrganizationID *uuid.UUID
	OrderID        *uuid.UUID
	Query          string
	SortBy         string
	SortDir        string
	Page           int
	PageSize       int
}

// SearchResult is one page of matching log entries plus per-filter aggregates.
type SearchResult struct {
	Logs          []CommunicationLog
	TotalCount    int
	Page          int
	PageSize      int
	HasNextPage   bool
	StatusSummary map[string]int
	TypeSummary   map[string]int
}

// Repository provides communication log persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates an audit repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const logColumns = `id, order_id, organization_id, type, direction, sender, recipient,
	subject, body_excerpt, delivery_status, sent_at, external_message_id`

var logSortColumns = map[string]string{
	"sentAt":         "sent_at",
	"type":           "type",
	"deliveryStatus": "delivery_status",
	"recipient":      "recipient",
}

func applyLogFilters(builder sq.SelectBuilder, f SearchFilters) sq.SelectBuilder {
	if len(f.Types) > 0 {
		builder = builder.Where(sq.Eq{"type": f.Types})
	}
	if len(f.Statuses) > 0 {
		builder = builder.Where(sq.Eq{"delivery_status": f.Statuses})
	}
	if f.DateFrom != nil {
		builder = builder.Where(sq.GtOrEq{"sent_at": *f.DateFrom})
	}
	if f.DateTo != nil {
		builder = builder.Where(sq.LtOrEq{"sent_at": *f.DateTo})
	}
	if f.OrganizationID != nil {
		builder = builder.Where(sq.Eq{"organization_id": *f.OrganizationID})
	}
	if f.OrderID != nil {
		builder = builder.Where(sq.Eq{"order_id": *f.OrderID})
	}
	if f.Query != "" {
		like := "%" + f.Query + "%"
		builder = builder.Where(sq.Or{
			sq.ILike{"subject": like},
			sq.ILike{"body_excerpt": like},
			sq.ILike{"recipient": like},
			sq.ILike{"sender": like},
		})
	}
	return builder
}

// AppendParams describes a new audit entry.
type AppendParams struct {
	OrderID           *uuid.UUID
	OrganizationID    *uuid.UUID
	Type              string
	Direction         string
	Sender            string
	Recipient         string
	Subject           string
	BodyExcerpt       string
	DeliveryStatus    string
	SentAt            time.Time
	ExternalMessageID string
}

// Append inserts an immutable audit entry.
func (r *Repository) Append(ctx context.Context, p AppendParams) (CommunicationLog, error) {
	sentAt := p.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	var entry CommunicationLog
	err := r.pool.QueryRow(ctx,
		`INSERT INTO communication_logs
		   (id, order_id, organization_id, type, direction, sender, recipient,
		    subject, body_excerpt, delivery_status, sent_at, external_message_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+logColumns,
		uuid.New(), p.OrderID, p.OrganizationID, p.Type, p.Direction, p.Sender,
		p.Recipient, p.Subject, p.BodyExcerpt, p.DeliveryStatus, sentAt, p.ExternalMessageID,
	).Scan(
		&entry.ID, &entry.OrderID, &entry.OrganizationID, &entry.Type, &entry.Direction,
		&entry.Sender, &entry.Recipient, &entry.Subject, &entry.BodyExcerpt,
		&entry.DeliveryStatus, &entry.SentAt, &entry.ExternalMessageID,
	)
	if err != nil {
		return CommunicationLog{}, apperr.Wrap(apperr.KindInternal, "append communication log", err)
	}
	return entry, nil
}

// Search returns one page of matching entries plus aggregate counts over the
// full (unpaged) match.
func (r *Repository) Search(ctx context.Context, f SearchFilters) (SearchResult, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 25
	}

	countSQL, countArgs, err := applyLogFilters(
		psql.Select("COUNT(*)").From("communication_logs"), f).ToSql()
	if err != nil {
		return SearchResult{}, apperr.Wrap(apperr.KindInternal, "build audit count query", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return SearchResult{}, apperr.Wrap(apperr.KindInternal, "count audit logs", err)
	}

	sortCol, ok := logSortColumns[f.SortBy]
	if !ok {
		sortCol = "sent_at"
	}
	dir := "DESC"
	if f.SortDir == "asc" {
		dir = "ASC"
	}

	pageSQL, pageArgs, err := applyLogFilters(
		psql.Select(logColumns).From("communication_logs"), f).
		OrderBy(sortCol + " " + dir).
		Limit(uint64(f.PageSize)).
		Offset(uint64((f.Page - 1) * f.PageSize)).
		ToSql()
	if err != nil {
		return SearchResult{}, apperr.Wrap(apperr.KindInternal, "build audit page query", err)
	}

	rows, err := r.pool.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return SearchResult{}, apperr.Wrap(apperr.KindInternal, "search audit logs", err)
	}
	defer rows.Close()

	logs, err := scanLogs(rows)
	if err != nil {
		return SearchResult{}, err
	}

	statusSummary, err := r.aggregate(ctx, f, "delivery_status")
	if err != nil {
		return SearchResult{}, err
	}
	typeSummary, err := r.aggregate(ctx, f, "type")
	if err != nil {
		return SearchResult{}, err
	}

	return SearchResult{
		Logs:          logs,
		TotalCount:    total,
		Page:          f.Page,
		PageSize:      f.PageSize,
		HasNextPage:   f.Page*f.PageSize < total,
		StatusSummary: statusSummary,
		TypeSummary:   typeSummary,
	}, nil
}

func (r *Repository) aggregate(ctx context.Context, f SearchFilters, column string) (map[string]int, error) {
	aggSQL, aggArgs, err := applyLogFilters(
		psql.Select(column, "COUNT(*)").From("communication_logs"), f).
		GroupBy(column).
		ToSql()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "build audit aggregate query", err)
	}

	rows, err := r.pool.Query(ctx, aggSQL, aggArgs...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "aggregate audit logs", err)
	}
	defer rows.Close()

	summary := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan audit aggregate row", err)
		}
		summary[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "iterate audit aggregate rows", err)
	}
	return summary, nil
}

// Stream walks every matching entry in sent_at order, up to limit rows,
// invoking fn per row. Used by export writers so large result sets never sit
// in memory at once.
func (r *Repository) Stream(ctx context.Context, f SearchFilters, limit int, fn func(CommunicationLog) error) (int, error) {
	streamSQL, streamArgs, err := applyLogFilters(
		psql.Select(logColumns).From("communication_logs"), f).
		OrderBy("sent_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "build audit stream query", err)
	}

	rows, err := r.pool.Query(ctx, streamSQL, streamArgs...)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "stream audit logs", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return count, err
		}
		if err := fn(entry); err != nil {
			return count, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, apperr.Wrap(apperr.KindInternal, "iterate audit stream rows", err)
	}
	return count, nil
}

// Count returns how many entries match the filters.
func (r *Repository) Count(ctx context.Context, f SearchFilters) (int, error) {
	countSQL, countArgs, err := applyLogFilters(
		psql.Select("COUNT(*)").From("communication_logs"), f).ToSql()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "build audit count query", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "count audit logs", err)
	}
	return total, nil
}

func scanLog(rows pgx.Rows) (CommunicationLog, error) {
	var entry CommunicationLog
	if err := rows.Scan(
		&entry.ID, &entry.OrderID, &entry.OrganizationID, &entry.Type, &entry.Direction,
		&entry.Sender, &entry.Recipient, &entry.Subject, &entry.BodyExcerpt,
		&entry.DeliveryStatus, &entry.SentAt, &entry.ExternalMessageID,
	); err != nil {
		return CommunicationLog{}, apperr.Wrap(apperr.KindInternal, "scan audit log row", err)
	}
	return entry, nil
}

func scanLogs(rows pgx.Rows) ([]CommunicationLog, error) {
	logs := make([]CommunicationLog, 0)
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "iterate audit log rows", err)
	}
	return logs, nil
}
