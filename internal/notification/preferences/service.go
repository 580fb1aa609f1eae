// Package preferences manages per-user notification settings: delivery
// channels, frequency, and which production milestones trigger a message.
package preferences

import (
	"context"
	"errors"
	"fmt"

	"colorgarb_portal_backend/internal/timeline"
	"colorgarb_portal_backend/platform/apperr"
	"colorgarb_portal_backend/platform/logger"
	"colorgarb_portal_backend/platform/phone"

	"github.com/google/uuid"
)

const (
	FrequencyImmediate = "Immediate"
	FrequencyDaily     = "Daily"
	FrequencyWeekly    = "Weekly"
)

// Store abstracts preference persistence for the service.
type Store interface {
	Get(ctx context.Context, userID uuid.UUID) (Preferences, error)
	Upsert(ctx context.Context, p Preferences) (Preferences, error)
}

// UpdateParams carries a full preference update. Milestones is keyed by
// stage name; stages absent from the map keep their default (enabled).
type UpdateParams struct {
	EmailEnabled bool
	SMSEnabled   bool
	PhoneNumber  string
	Frequency    string
	Milestones   map[string]bool
}

type Service struct {
	store Store
	log   *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// Defaults returns the preferences a user has before ever saving any:
// email on, SMS off, immediate delivery, every milestone subscribed.
func Defaults(userID uuid.UUID) Preferences {
	milestones := make(map[string]bool, timeline.StageCount)
	for _, stage := range timeline.Stages() {
		milestones[string(stage)] = true
	}
	return Preferences{
		UserID:       userID,
		EmailEnabled: true,
		SMSEnabled:   false,
		Frequency:    FrequencyImmediate,
		Milestones:   milestones,
	}
}

// Get returns the user's stored preferences, falling back to defaults when
// no row exists yet.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (Preferences, error) {
	if userID == uuid.Nil {
		return Preferences{}, apperr.Validation(errUserIDRequired)
	}

	stored, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Defaults(userID), nil
		}
		return Preferences{}, err
	}

	// Stages added after the row was saved default to subscribed.
	if stored.Milestones == nil {
		stored.Milestones = make(map[string]bool, timeline.StageCount)
	}
	for _, stage := range timeline.Stages() {
		if _, ok := stored.Milestones[string(stage)]; !ok {
			stored.Milestones[string(stage)] = true
		}
	}

	return stored, nil
}

// Update validates and stores a full preference replacement.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, params UpdateParams) (Preferences, error) {
	if userID == uuid.Nil {
		return Preferences{}, apperr.Validation(errUserIDRequired)
	}

	switch params.Frequency {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly:
	default:
		return Preferences{}, apperr.Validation(fmt.Sprintf("frequency must be %s, %s or %s", FrequencyImmediate, FrequencyDaily, FrequencyWeekly))
	}

	phoneNumber := ""
	if params.SMSEnabled {
		normalized, err := phone.ValidateE164(params.PhoneNumber)
		if err != nil {
			return Preferences{}, apperr.Validation("a valid phone number is required when SMS notifications are enabled")
		}
		phoneNumber = normalized
	} else if params.PhoneNumber != "" {
		// Keep a number on file even when SMS is off, but only a plausible one.
		phoneNumber = phone.NormalizeE164(params.PhoneNumber)
	}

	milestones := make(map[string]bool, timeline.StageCount)
	for _, stage := range timeline.Stages() {
		milestones[string(stage)] = true
	}
	for name, enabled := range params.Milestones {
		if _, err := timeline.ParseStage(name); err != nil {
			return Preferences{}, apperr.Validation(fmt.Sprintf("unknown milestone %q", name))
		}
		milestones[name] = enabled
	}

	stored, err := s.store.Upsert(ctx, Preferences{
		UserID:       userID,
		EmailEnabled: params.EmailEnabled,
		SMSEnabled:   params.SMSEnabled,
		PhoneNumber:  phoneNumber,
		Frequency:    params.Frequency,
		Milestones:   milestones,
	})
	if err != nil {
		return Preferences{}, err
	}

	s.log.Info("notification preferences updated",
		"userId", userID,
		"emailEnabled", stored.EmailEnabled,
		"smsEnabled", stored.SMSEnabled,
		"frequency", stored.Frequency,
	)
	return stored, nil
}

// WantsMilestone reports whether a user should be notified for a stage.
func WantsMilestone(p Preferences, stage timeline.Stage) bool {
	if p.Milestones == nil {
		return true
	}
	enabled, ok := p.Milestones[string(stage)]
	if !ok {
		return true
	}
	return enabled
}
