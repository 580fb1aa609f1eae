package repository

import (
	"context"
	"strings"
	"time"

	"colorgarb_portal_backend/internal/timeline"
	"colorgarb_portal_backend/platform/apperr"

	"github.com/google/uuid"
)

// NotesMaxLen is the maximum character length stored for a history note.
const NotesMaxLen = 400

// TruncateNotes trims text to maxLen, appending "..." on overflow.
func TruncateNotes(text string, maxLen int) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > maxLen {
		trimmed = trimmed[:maxLen] + "..."
	}
	return trimmed
}

// StageHistoryEntry is the immutable audit record of a stage transition.
// Entries are append-only: no update or delete path exists.
type StageHistoryEntry struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	Stage            timeline.Stage
	EnteredAt        time.Time
	UpdatedBy        string
	Notes            string
	PreviousShipDate *time.Time
	NewShipDate      *time.Time
	ChangeReason     *string
}

// AppendHistoryParams describes a new stage history entry.
type AppendHistoryParams struct {
	OrderID          uuid.UUID
	Stage            timeline.Stage
	UpdatedBy        string
	Notes            string
	PreviousShipDate *time.Time
	NewShipDate      *time.Time
	ChangeReason     *string
}

// AppendHistory inserts a stage history entry.
func (r *Repository) AppendHistory(ctx context.Context, p AppendHistoryParams) (StageHistoryEntry, error) {
	var entry StageHistoryEntry
	var stage string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO order_stage_history (
			order_id, stage, updated_by, notes,
			previous_ship_date, new_ship_date, change_reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, order_id, stage, entered_at, updated_by, notes,
			previous_ship_date, new_ship_date, change_reason
	`, p.OrderID, string(p.Stage), p.UpdatedBy, TruncateNotes(p.Notes, NotesMaxLen),
		p.PreviousShipDate, p.NewShipDate, p.ChangeReason).Scan(
		&entry.ID, &entry.OrderID, &stage, &entry.EnteredAt, &entry.UpdatedBy, &entry.Notes,
		&entry.PreviousShipDate, &entry.NewShipDate, &entry.ChangeReason,
	)
	if err != nil {
		return StageHistoryEntry{}, apperr.Wrap(apperr.KindInternal, "append stage history", err)
	}
	entry.Stage = timeline.Stage(stage)
	return entry, nil
}

// ListHistory returns all history entries for an order, oldest first.
func (r *Repository) ListHistory(ctx context.Context, orderID uuid.UUID) ([]StageHistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, stage, entered_at, updated_by, notes,
			previous_ship_date, new_ship_date, change_reason
		FROM order_stage_history
		WHERE order_id = $1
		ORDER BY entered_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list stage history", err)
	}
	defer rows.Close()

	entries := make([]StageHistoryEntry, 0)
	for rows.Next() {
		var entry StageHistoryEntry
		var stage string
		if err := rows.Scan(
			&entry.ID, &entry.OrderID, &stage, &entry.EnteredAt, &entry.UpdatedBy, &entry.Notes,
			&entry.PreviousShipDate, &entry.NewShipDate, &entry.ChangeReason,
		); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan stage history", err)
		}
		entry.Stage = timeline.Stage(stage)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
