package preferences

import (
	"context"
	"testing"

	"colorgarb_portal_backend/internal/timeline"
	"colorgarb_portal_backend/platform/apperr"
	"colorgarb_portal_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	rows map[uuid.UUID]Preferences
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[uuid.UUID]Preferences)}
}

func (f *fakeStore) Get(_ context.Context, userID uuid.UUID) (Preferences, error) {
	p, ok := f.rows[userID]
	if !ok {
		return Preferences{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) Upsert(_ context.Context, p Preferences) (Preferences, error) {
	f.rows[p.UserID] = p
	return p, nil
}

func newTestService() (*Service, *fakeStore) {
	store := newFakeStore()
	return NewService(store, logger.New("development")), store
}

func TestGetReturnsDefaultsForNewUser(t *testing.T) {
	svc, _ := newTestService()
	userID := uuid.New()

	p, err := svc.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !p.EmailEnabled {
		t.Error("expected email enabled by default")
	}
	if p.SMSEnabled {
		t.Error("expected SMS disabled by default")
	}
	if p.Frequency != FrequencyImmediate {
		t.Errorf("frequency = %q, want %q", p.Frequency, FrequencyImmediate)
	}
	if len(p.Milestones) != timeline.StageCount {
		t.Fatalf("milestones = %d entries, want %d", len(p.Milestones), timeline.StageCount)
	}
	for _, stage := range timeline.Stages() {
		if !p.Milestones[string(stage)] {
			t.Errorf("milestone %s should default to enabled", stage)
		}
	}
}

func TestGetBackfillsMissingMilestones(t *testing.T) {
	svc, store := newTestService()
	userID := uuid.New()
	store.rows[userID] = Preferences{
		UserID:       userID,
		EmailEnabled: true,
		Frequency:    FrequencyDaily,
		Milestones: map[string]bool{
			string(timeline.StageCutting): false,
		},
	}

	p, err := svc.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Milestones[string(timeline.StageCutting)] {
		t.Error("explicit opt-out should survive")
	}
	if !p.Milestones[string(timeline.StageSewing)] {
		t.Error("stage missing from stored row should default to enabled")
	}
	if len(p.Milestones) != timeline.StageCount {
		t.Errorf("milestones = %d entries, want %d", len(p.Milestones), timeline.StageCount)
	}
}

func TestUpdateRejectsUnknownFrequency(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Update(context.Background(), uuid.New(), UpdateParams{Frequency: "Hourly"})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateRejectsUnknownMilestone(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Update(context.Background(), uuid.New(), UpdateParams{
		Frequency:  FrequencyImmediate,
		Milestones: map[string]bool{"Embroidery": true},
	})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateRequiresValidPhoneWhenSMSEnabled(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Update(context.Background(), uuid.New(), UpdateParams{
		Frequency:   FrequencyImmediate,
		SMSEnabled:  true,
		PhoneNumber: "not a number",
	})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = svc.Update(context.Background(), uuid.New(), UpdateParams{
		Frequency:  FrequencyImmediate,
		SMSEnabled: true,
	})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for empty phone, got %v", err)
	}
}

func TestUpdateNormalizesPhoneNumber(t *testing.T) {
	svc, _ := newTestService()
	userID := uuid.New()

	p, err := svc.Update(context.Background(), userID, UpdateParams{
		Frequency:   FrequencyWeekly,
		SMSEnabled:  true,
		PhoneNumber: "(212) 555-0123",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if p.PhoneNumber != "+12125550123" {
		t.Errorf("phone = %q, want +12125550123", p.PhoneNumber)
	}
}

func TestUpdateStoresMilestoneOverrides(t *testing.T) {
	svc, store := newTestService()
	userID := uuid.New()

	p, err := svc.Update(context.Background(), userID, UpdateParams{
		EmailEnabled: true,
		Frequency:    FrequencyImmediate,
		Milestones: map[string]bool{
			string(timeline.StagePackaging): false,
		},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(p.Milestones) != timeline.StageCount {
		t.Fatalf("milestones = %d entries, want %d", len(p.Milestones), timeline.StageCount)
	}
	if p.Milestones[string(timeline.StagePackaging)] {
		t.Error("Packaging should be disabled")
	}
	if !p.Milestones[string(timeline.StageShipOrder)] {
		t.Error("untouched stages should stay enabled")
	}

	stored := store.rows[userID]
	if WantsMilestone(stored, timeline.StagePackaging) {
		t.Error("WantsMilestone should honor the stored opt-out")
	}
	if !WantsMilestone(stored, timeline.StageDelivery) {
		t.Error("WantsMilestone should default to true for enabled stages")
	}
}

func TestWantsMilestoneDefaultsTrue(t *testing.T) {
	if !WantsMilestone(Preferences{}, timeline.StageCutting) {
		t.Error("nil milestone map should mean subscribed")
	}
}
