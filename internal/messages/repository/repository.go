// Package repository provides message thread data access.
package repository

import (
	"context"
	"errors"
	"time"

	"colorgarb_portal_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message is one entry in an order's communication thread.
type Message struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	SenderID      uuid.UUID
	SenderName    string
	SenderRole    string
	RecipientRole string
	Content       string
	CreatedAt     time.Time
	ReadAt        *time.Time
}

// OrderRef is the slice of the order needed for thread scoping and events.
type OrderRef struct {
	ID             uuid.UUID
	OrderNumber    string
	OrganizationID uuid.UUID
}

// Repository provides message persistence backed by Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a message repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const messageColumns = `m.id, m.order_id, m.sender_id, m.sender_name, m.sender_role,
	m.recipient_role, m.content, m.created_at, r.read_at`

// GetOrderRef loads the owning order for scoping checks.
func (r *Repository) GetOrderRef(ctx context.Context, orderID uuid.UUID) (OrderRef, error) {
	var ref OrderRef
	err := r.pool.QueryRow(ctx,
		`SELECT id, order_number, organization_id FROM orders WHERE id = $1`,
		orderID,
	).Scan(&ref.ID, &ref.OrderNumber, &ref.OrganizationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderRef{}, apperr.NotFound("order not found")
	}
	if err != nil {
		return OrderRef{}, apperr.Wrap(apperr.KindInternal, "load order for message thread", err)
	}
	return ref, nil
}

// CreateParams describes a new thread message.
type CreateParams struct {
	OrderID       uuid.UUID
	SenderID      uuid.UUID
	SenderName    string
	SenderRole    string
	RecipientRole string
	Content       string
}

// Create inserts a message into the order thread.
func (r *Repository) Create(ctx context.Context, p CreateParams) (Message, error) {
	var m Message
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (id, order_id, sender_id, sender_name, sender_role, recipient_role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 RETURNING id, order_id, sender_id, sender_name, sender_role, recipient_role, content, created_at`,
		uuid.New(), p.OrderID, p.SenderID, p.SenderName, p.SenderRole, p.RecipientRole, p.Content,
	).Scan(&m.ID, &m.OrderID, &m.SenderID, &m.SenderName, &m.SenderRole, &m.RecipientRole, &m.Content, &m.CreatedAt)
	if err != nil {
		return Message{}, apperr.Wrap(apperr.KindInternal, "create message", err)
	}
	return m, nil
}

// ListThread returns one page of the order thread, newest first, with the
// reader's receipt joined in.
func (r *Repository) ListThread(ctx context.Context, orderID, readerID uuid.UUID, page, pageSize int) ([]Message, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE order_id = $1`, orderID,
	).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "count thread messages", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM messages m
		 LEFT JOIN message_reads r ON r.message_id = m.id AND r.user_id = $2
		 WHERE m.order_id = $1
		 ORDER BY m.created_at DESC
		 LIMIT $3 OFFSET $4`,
		orderID, readerID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "list thread messages", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// Search returns thread messages whose content matches the term, newest first.
func (r *Repository) Search(ctx context.Context, orderID, readerID uuid.UUID, term string, limit int) ([]Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM messages m
		 LEFT JOIN message_reads r ON r.message_id = m.id AND r.user_id = $2
		 WHERE m.order_id = $1 AND m.content ILIKE $3
		 ORDER BY m.created_at DESC
		 LIMIT $4`,
		orderID, readerID, "%"+term+"%", limit,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "search thread messages", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MarkRead records a read receipt. Repeated calls keep the first receipt.
func (r *Repository) MarkRead(ctx context.Context, messageID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id, read_at)
		 SELECT id, $2, now() FROM messages WHERE id = $1
		 ON CONFLICT (message_id, user_id) DO NOTHING`,
		messageID, userID,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "mark message read", err)
	}
	return nil
}

// UnreadCount returns how many thread messages the reader has not read,
// excluding their own.
func (r *Repository) UnreadCount(ctx context.Context, orderID, readerID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM messages m
		 LEFT JOIN message_reads r ON r.message_id = m.id AND r.user_id = $2
		 WHERE m.order_id = $1 AND m.sender_id <> $2 AND r.read_at IS NULL`,
		orderID, readerID,
	).Scan(&count)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "count unread messages", err)
	}
	return count, nil
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.OrderID, &m.SenderID, &m.SenderName, &m.SenderRole,
			&m.RecipientRole, &m.Content, &m.CreatedAt, &m.ReadAt,
		); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan message row", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "iterate message rows", err)
	}
	return messages, nil
}
