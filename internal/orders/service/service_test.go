package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"colorgarb_portal_backend/internal/events"
	"colorgarb_portal_backend/internal/orders/repository"
	"colorgarb_portal_backend/internal/timeline"
	"colorgarb_portal_backend/platform/apperr"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]repository.Order
	history map[uuid.UUID][]repository.StageHistoryEntry

	updateErr error
	listErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:  make(map[uuid.UUID]repository.Order),
		history: make(map[uuid.UUID][]repository.StageHistoryEntry),
	}
}

func (f *fakeStore) put(o repository.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
}

func (f *fakeStore) List(ctx context.Context, filters repository.ListFilters) ([]repository.Order, []repository.Organization, int, error) {
	if f.listErr != nil {
		return nil, nil, 0, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	orders := make([]repository.Order, 0, len(f.orders))
	for _, o := range f.orders {
		orders = append(orders, o)
	}
	return orders, nil, len(orders), nil
}

func (f *fakeStore) GetByID(ctx context.Context, orderID uuid.UUID) (repository.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return repository.Order{}, apperr.NotFound("order not found")
	}
	return o, nil
}

func (f *fakeStore) UpdateStage(ctx context.Context, p repository.UpdateStageParams) (repository.Order, error) {
	if f.updateErr != nil {
		return repository.Order{}, f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[p.OrderID]
	if !ok {
		return repository.Order{}, apperr.NotFound("order not found")
	}
	if o.Version != p.Version {
		return repository.Order{}, repository.ErrVersionConflict
	}
	o.CurrentStage = p.Stage
	if p.ShipDate != nil {
		o.CurrentShipDate = *p.ShipDate
	}
	o.Version++
	f.orders[p.OrderID] = o
	return o, nil
}

func (f *fakeStore) AppendHistory(ctx context.Context, p repository.AppendHistoryParams) (repository.StageHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := repository.StageHistoryEntry{
		ID:               uuid.New(),
		OrderID:          p.OrderID,
		Stage:            p.Stage,
		EnteredAt:        time.Now(),
		UpdatedBy:        p.UpdatedBy,
		Notes:            p.Notes,
		PreviousShipDate: p.PreviousShipDate,
		NewShipDate:      p.NewShipDate,
		ChangeReason:     p.ChangeReason,
	}
	f.history[p.OrderID] = append(f.history[p.OrderID], entry)
	return entry, nil
}

func (f *fakeStore) ListHistory(ctx context.Context, orderID uuid.UUID) ([]repository.StageHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repository.StageHistoryEntry(nil), f.history[orderID]...), nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *fakeBus) Publish(ctx context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *fakeBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *fakeBus) Subscribe(eventName string, h events.Handler) {}

func (b *fakeBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.events))
	for i, e := range b.events {
		names[i] = e.EventName()
	}
	return names
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testOrder(stage timeline.Stage) repository.Order {
	ship := date(2026, time.November, 15)
	return repository.Order{
		ID:               uuid.New(),
		OrderNumber:      "CG-2026-0042",
		OrganizationID:   uuid.New(),
		OrganizationName: "Lincoln HS Marching Band",
		Description:      "Fall show uniforms",
		CurrentStage:     stage,
		OriginalShipDate: ship,
		CurrentShipDate:  ship,
		Status:           "Active",
		Version:          1,
	}
}

func TestUpdateStageForward(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	svc := New(store, bus, nil)

	order := testOrder(timeline.StageMeasurements)
	store.put(order)

	updated, err := svc.UpdateStage(context.Background(), order.ID, UpdateStageRequest{
		Stage: timeline.StageProductionPlanning,
		Actor: Actor{ID: uuid.New(), Name: "staff"},
	})
	if err != nil {
		t.Fatalf("UpdateStage: %v", err)
	}
	if updated.CurrentStage != timeline.StageProductionPlanning {
		t.Errorf("stage = %s, want %s", updated.CurrentStage, timeline.StageProductionPlanning)
	}
	if updated.Version != order.Version+1 {
		t.Errorf("version = %d, want %d", updated.Version, order.Version+1)
	}

	history, _ := store.ListHistory(context.Background(), order.ID)
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	if history[0].Stage != timeline.StageProductionPlanning {
		t.Errorf("history stage = %s", history[0].Stage)
	}

	names := bus.names()
	if len(names) != 1 || names[0] != "orders.stage.changed" {
		t.Errorf("published events = %v, want [orders.stage.changed]", names)
	}
}

func TestUpdateStageUnknownStage(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeBus{}, nil)
	order := testOrder(timeline.StageSewing)
	store.put(order)

	_, err := svc.UpdateStage(context.Background(), order.ID, UpdateStageRequest{
		Stage: timeline.Stage("Ironing"),
	})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestUpdateStageRevertContract(t *testing.T) {
	t.Run("revert without history is rejected", func(t *testing.T) {
		store := newFakeStore()
		svc := New(store, &fakeBus{}, nil)
		order := testOrder(timeline.StageSewing)
		store.put(order)

		_, err := svc.UpdateStage(context.Background(), order.ID, UpdateStageRequest{
			Stage:     timeline.StageMeasurements,
			Confirmed: true,
			Reason:    "rework",
		})
		if apperr.GetKind(err) != apperr.KindConflict {
			t.Fatalf("err = %v, want conflict", err)
		}
		if !strings.Contains(err.Error(), "no recorded history") {
			t.Errorf("err = %v, want no-history message", err)
		}
	})

	t.Run("revert with history requires confirmation", func(t *testing.T) {
		store := newFakeStore()
		svc := New(store, &fakeBus{}, nil)
		order := testOrder(timeline.StageSewing)
		store.put(order)
		store.AppendHistory(context.Background(), repository.AppendHistoryParams{
			OrderID: order.ID, Stage: timeline.StageMeasurements, UpdatedBy: "staff",
		})

		_, err := svc.UpdateStage(context.Background(), order.ID, UpdateStageRequest{
			Stage:  timeline.StageMeasurements,
			Reason: "rework",
		})
		if apperr.GetKind(err) != apperr.KindConflict {
			t.Fatalf("err = %v, want conflict", err)
		}
		if !strings.Contains(err.Error(), "requires confirmation") {
			t.Errorf("err = %v, want confirmation message", err)
		}
	})

	t.Run("confirmed revert requires a reason", func(t *testing.T) {
		store := newFakeStore()
		svc := New(store, &fakeBus{}, nil)
		order := testOrder(timeline.StageSewing)
		store.put(order)
		store.AppendHistory(context.Background(), repository.AppendHistoryParams{
			OrderID: order.ID, Stage: timeline.StageMeasurements, UpdatedBy: "staff",
		})

		_, err := svc.UpdateStage(context.Background(), order.ID, UpdateStageRequest{
			Stage:     timeline.StageMeasurements,
			Confirmed: true,
		})
		if apperr.GetKind(err) != apperr.KindValidation {
			t.Fatalf("err = %v, want validation", err)
		}
	})

	t.Run("confirmed revert with reason succeeds", func(t *testing.T) {
		store := newFakeStore()
		bus := &fakeBus{}
		svc := New(store, bus, nil)
		order := testOrder(timeline.StageSewing)
		store.put(order)
		store.AppendHistory(context.Background(), repository.AppendHistoryParams{
			OrderID: order.ID, Stage: timeline.StageMeasurements, UpdatedBy: "staff",
		})

		updated, err := svc.UpdateStage(context.Background(), order.ID, UpdateStageRequest{
			Stage:     timeline.StageMeasurements,
			Confirmed: true,
			Reason:    "measurement rework",
		})
		if err != nil {
			t.Fatalf("UpdateStage: %v", err)
		}
		if updated.CurrentStage != timeline.StageMeasurements {
			t.Errorf("stage = %s", updated.CurrentStage)
		}
	})
}

func TestUpdateStageNoOp(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	svc := New(store, bus, nil)
	order := testOrder(timeline.StageSewing)
	store.put(order)

	updated, err := svc.UpdateStage(context.Background(), order.ID, UpdateStageRequest{
		Stage: timeline.StageSewing,
	})
	if err != nil {
		t.Fatalf("UpdateStage: %v", err)
	}
	if updated.Version != order.Version {
		t.Errorf("version = %d, no-op must not bump", updated.Version)
	}
	if len(bus.names()) != 0 {
		t.Errorf("events = %v, want none for no-op", bus.names())
	}
	if history, _ := store.ListHistory(context.Background(), order.ID); len(history) != 0 {
		t.Errorf("history = %d entries, want none for no-op", len(history))
	}
}

func TestUpdateStageShipDateRevision(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	svc := New(store, bus, nil)
	order := testOrder(timeline.StageSewing)
	store.put(order)

	newShip := date(2026, time.December, 1)
	updated, err := svc.UpdateStage(context.Background(), order.ID, UpdateStageRequest{
		Stage:    timeline.StageFinishing,
		ShipDate: &newShip,
		Reason:   "material-delay",
		Actor:    Actor{Name: "staff"},
	})
	if err != nil {
		t.Fatalf("UpdateStage: %v", err)
	}
	if !updated.CurrentShipDate.Equal(newShip) {
		t.Errorf("currentShipDate = %v, want %v", updated.CurrentShipDate, newShip)
	}

	history, _ := store.ListHistory(context.Background(), order.ID)
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	entry := history[0]
	if entry.PreviousShipDate == nil || !entry.PreviousShipDate.Equal(order.CurrentShipDate) {
		t.Errorf("previousShipDate = %v, want %v", entry.PreviousShipDate, order.CurrentShipDate)
	}
	if entry.NewShipDate == nil || !entry.NewShipDate.Equal(newShip) {
		t.Errorf("newShipDate = %v, want %v", entry.NewShipDate, newShip)
	}
	if entry.ChangeReason == nil || *entry.ChangeReason != "material-delay" {
		t.Errorf("changeReason = %v", entry.ChangeReason)
	}

	names := bus.names()
	if len(names) != 2 {
		t.Fatalf("events = %v, want stage change and ship date revision", names)
	}
}

func TestUpdateStageVersionConflict(t *testing.T) {
	store := newFakeStore()
	store.updateErr = repository.ErrVersionConflict
	svc := New(store, &fakeBus{}, nil)
	order := testOrder(timeline.StageSewing)
	store.put(order)

	_, err := svc.UpdateStage(context.Background(), order.ID, UpdateStageRequest{
		Stage: timeline.StageFinishing,
	})
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("err = %v, want conflict", err)
	}
	if !strings.Contains(err.Error(), "modified concurrently") {
		t.Errorf("err = %v, want concurrency message", err)
	}
}

func TestBulkUpdateEmptySelection(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeBus{}, nil)

	_, err := svc.BulkUpdate(context.Background(), BulkUpdateRequest{})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if err.Error() != "No orders selected for bulk update" {
		t.Errorf("err = %q", err.Error())
	}
}

func TestBulkUpdateRequiresStageOrShipDate(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeBus{}, nil)

	_, err := svc.BulkUpdate(context.Background(), BulkUpdateRequest{
		OrderIDs: []uuid.UUID{uuid.New()},
	})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestBulkUpdatePartitionsOutcomes(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeBus{}, nil)

	good := make([]uuid.UUID, 3)
	for i := range good {
		o := testOrder(timeline.StageSewing)
		good[i] = o.ID
		store.put(o)
	}
	missing := uuid.New()

	stage := timeline.StageFinishing
	result, err := svc.BulkUpdate(context.Background(), BulkUpdateRequest{
		OrderIDs: append(append([]uuid.UUID{}, good...), missing),
		Stage:    &stage,
		Reason:   "batch move",
		Actor:    Actor{Name: "staff"},
	})
	if err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}
	if len(result.Successful) != 3 {
		t.Errorf("successful = %d, want 3", len(result.Successful))
	}
	if len(result.Failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(result.Failed))
	}
	if result.Failed[0].OrderID != missing {
		t.Errorf("failed order = %s, want %s", result.Failed[0].OrderID, missing)
	}

	for _, id := range good {
		o, _ := store.GetByID(context.Background(), id)
		if o.CurrentStage != timeline.StageFinishing {
			t.Errorf("order %s stage = %s, want %s", id, o.CurrentStage, timeline.StageFinishing)
		}
	}
}

func TestBulkUpdateAllFail(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeBus{}, nil)

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	stage := timeline.StageFinishing
	result, err := svc.BulkUpdate(context.Background(), BulkUpdateRequest{
		OrderIDs: ids,
		Stage:    &stage,
	})
	if err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}
	if len(result.Successful) != 0 {
		t.Errorf("successful = %d, want 0", len(result.Successful))
	}
	if len(result.Failed) != len(ids) {
		t.Errorf("failed = %d, want %d", len(result.Failed), len(ids))
	}
}

func TestBulkUpdateAllSucceed(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeBus{}, nil)

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		o := testOrder(timeline.StageMeasurements)
		ids[i] = o.ID
		store.put(o)
	}

	ship := date(2026, time.December, 10)
	result, err := svc.BulkUpdate(context.Background(), BulkUpdateRequest{
		OrderIDs: ids,
		ShipDate: &ship,
		Reason:   "schedule-balancing",
	})
	if err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}
	if len(result.Failed) != 0 {
		t.Errorf("failed = %v, want none", result.Failed)
	}
	if len(result.Successful) != len(ids) {
		t.Errorf("successful = %d, want %d", len(result.Successful), len(ids))
	}
	for _, id := range ids {
		o, _ := store.GetByID(context.Background(), id)
		if !o.CurrentShipDate.Equal(ship) {
			t.Errorf("order %s ship date = %v, want %v", id, o.CurrentShipDate, ship)
		}
		// Ship-date-only update keeps the current stage.
		if o.CurrentStage != timeline.StageMeasurements {
			t.Errorf("order %s stage = %s, want unchanged", id, o.CurrentStage)
		}
	}
}

func TestTimelineView(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeBus{}, nil)
	order := testOrder(timeline.StageMeasurements)
	delayed := date(2026, time.November, 25)
	order.CurrentShipDate = delayed
	store.put(order)

	prev := order.OriginalShipDate
	reason := "material-delay"
	store.AppendHistory(context.Background(), repository.AppendHistoryParams{
		OrderID: order.ID, Stage: timeline.StageDesignProposal, UpdatedBy: "staff",
	})
	store.AppendHistory(context.Background(), repository.AppendHistoryParams{
		OrderID: order.ID, Stage: timeline.StageProofApproval, UpdatedBy: "staff",
		PreviousShipDate: &prev, NewShipDate: &delayed, ChangeReason: &reason,
	})

	view, err := svc.Timeline(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}

	if len(view.Stages) != timeline.StageCount {
		t.Fatalf("stages = %d, want %d", len(view.Stages), timeline.StageCount)
	}
	if view.Schedule != timeline.ScheduleDelayed {
		t.Errorf("schedule = %s, want %s", view.Schedule, timeline.ScheduleDelayed)
	}

	var current int
	for _, sv := range view.Stages {
		if sv.Status == timeline.StatusCurrent {
			current++
			if sv.Stage != timeline.StageMeasurements {
				t.Errorf("current stage = %s", sv.Stage)
			}
		}
	}
	if current != 1 {
		t.Errorf("current stages = %d, want exactly 1", current)
	}

	if len(view.ShipDateChanges) != 1 {
		t.Fatalf("ship date changes = %d, want 1", len(view.ShipDateChanges))
	}
	change := view.ShipDateChanges[0]
	if change.ReasonLabel != "Material Delay" {
		t.Errorf("reason label = %q", change.ReasonLabel)
	}

	// Past stage with history toggles to a confirmation prompt; past stage
	// without history is disabled.
	for _, sv := range view.Stages {
		switch sv.Stage {
		case timeline.StageDesignProposal:
			if sv.Toggle != timeline.ToggleNeedsConfirmation {
				t.Errorf("design proposal toggle = %s", sv.Toggle)
			}
		case timeline.StageProofApproval:
			if sv.Toggle != timeline.ToggleNeedsConfirmation {
				t.Errorf("proof approval toggle = %s", sv.Toggle)
			}
		}
	}
}
