package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"colorgarb_portal_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opGet    = "notification.preferences.repository.get"
	opUpsert = "notification.preferences.repository.upsert"

	errRepoNotConfigured = "notification preferences repository not configured"
	errUserIDRequired    = "userId is required"
)

// ErrNotFound signals that a user has no stored preference row yet.
var ErrNotFound = errors.New("notification preferences not found")

// Preferences is a user's stored notification configuration.
type Preferences struct {
	UserID       uuid.UUID
	EmailEnabled bool
	SMSEnabled   bool
	PhoneNumber  string
	Frequency    string
	Milestones   map[string]bool
	UpdatedAt    time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, userID uuid.UUID) (Preferences, error) {
	if r == nil || r.pool == nil {
		return Preferences{}, apperr.Internal(errRepoNotConfigured).WithOp(opGet)
	}
	if userID == uuid.Nil {
		return Preferences{}, apperr.Validation(errUserIDRequired).WithOp(opGet)
	}

	var p Preferences
	var milestones []byte
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, email_enabled, sms_enabled, phone_number, frequency, milestones, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.EmailEnabled, &p.SMSEnabled, &p.PhoneNumber, &p.Frequency, &milestones, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Preferences{}, ErrNotFound
		}
		return Preferences{}, apperr.Internal(fmt.Sprintf("get notification preferences failed: %v", err)).WithOp(opGet)
	}

	if len(milestones) > 0 {
		if err := json.Unmarshal(milestones, &p.Milestones); err != nil {
			return Preferences{}, apperr.Internal(fmt.Sprintf("decode milestone toggles failed: %v", err)).WithOp(opGet)
		}
	}

	return p, nil
}

// Upsert stores the full preference row, replacing any previous state.
func (r *Repository) Upsert(ctx context.Context, p Preferences) (Preferences, error) {
	if r == nil || r.pool == nil {
		return Preferences{}, apperr.Internal(errRepoNotConfigured).WithOp(opUpsert)
	}
	if p.UserID == uuid.Nil {
		return Preferences{}, apperr.Validation(errUserIDRequired).WithOp(opUpsert)
	}

	milestones, err := json.Marshal(p.Milestones)
	if err != nil {
		return Preferences{}, apperr.Internal(fmt.Sprintf("encode milestone toggles failed: %v", err)).WithOp(opUpsert)
	}

	var stored Preferences
	var storedMilestones []byte
	err = r.pool.QueryRow(ctx, `
		INSERT INTO notification_preferences (user_id, email_enabled, sms_enabled, phone_number, frequency, milestones)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled,
			sms_enabled = EXCLUDED.sms_enabled,
			phone_number = EXCLUDED.phone_number,
			frequency = EXCLUDED.frequency,
			milestones = EXCLUDED.milestones,
			updated_at = now()
		RETURNING user_id, email_enabled, sms_enabled, phone_number, frequency, milestones, updated_at
	`, p.UserID, p.EmailEnabled, p.SMSEnabled, p.PhoneNumber, p.Frequency, milestones).Scan(
		&stored.UserID, &stored.EmailEnabled, &stored.SMSEnabled, &stored.PhoneNumber, &stored.Frequency, &storedMilestones, &stored.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Preferences{}, apperr.Validation("invalid userId").WithOp(opUpsert)
		}
		return Preferences{}, apperr.Internal(fmt.Sprintf("upsert notification preferences failed: %v", err)).WithOp(opUpsert)
	}

	if len(storedMilestones) > 0 {
		if err := json.Unmarshal(storedMilestones, &stored.Milestones); err != nil {
			return Preferences{}, apperr.Internal(fmt.Sprintf("decode milestone toggles failed: %v", err)).WithOp(opUpsert)
		}
	}

	return stored, nil
}
