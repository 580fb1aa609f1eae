// Package service implements order timeline operations: listing for staff,
// stage transitions with audit history, and bulk updates.
package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"colorgarb_portal_backend/internal/events"
	"colorgarb_portal_backend/internal/orders/repository"
	"colorgarb_portal_backend/internal/timeline"
	"colorgarb_portal_backend/platform/apperr"
	"colorgarb_portal_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// bulkConcurrency bounds how many orders a bulk update touches in parallel.
const bulkConcurrency = 8

// OrderStore is the persistence surface the service needs.
type OrderStore interface {
	List(ctx context.Context, f repository.ListFilters) ([]repository.Order, []repository.Organization, int, error)
	GetByID(ctx context.Context, orderID uuid.UUID) (repository.Order, error)
	UpdateStage(ctx context.Context, p repository.UpdateStageParams) (repository.Order, error)
	AppendHistory(ctx context.Context, p repository.AppendHistoryParams) (repository.StageHistoryEntry, error)
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]repository.StageHistoryEntry, error)
}

// Actor identifies who performed a mutation.
type Actor struct {
	ID   uuid.UUID
	Name string
}

// Service implements order operations.
type Service struct {
	store OrderStore
	bus   events.Bus
	log   *logger.Logger

	// Striped per-order locks serialize concurrent stage mutations on the
	// same order so history entries and version bumps interleave cleanly.
	locks [64]sync.Mutex
}

// New creates the order service.
func New(store OrderStore, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, bus: bus, log: log}
}

func (s *Service) lockFor(orderID uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(orderID[:])
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}

// ListResult is one page of the cross-organization admin order listing.
type ListResult struct {
	Orders        []repository.Order
	Organizations []repository.Organization
	TotalCount    int
	Page          int
	PageSize      int
}

// ListOrders returns orders matching the filters (staff only; enforced at the
// routing layer).
func (s *Service) ListOrders(ctx context.Context, f repository.ListFilters) (ListResult, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}

	orders, orgs, total, err := s.store.List(ctx, f)
	if err != nil {
		return ListResult{}, err
	}

	return ListResult{
		Orders:        orders,
		Organizations: orgs,
		TotalCount:    total,
		Page:          f.Page,
		PageSize:      f.PageSize,
	}, nil
}

// GetOrder loads a single order.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (repository.Order, error) {
	return s.store.GetByID(ctx, orderID)
}

// StageView is a single stage row of the timeline: derived status, the toggle
// permission for admin mode, and the persisted history entries for the stage.
type StageView struct {
	Stage   timeline.Stage
	Label   string
	Status  timeline.StageStatus
	Toggle  timeline.ToggleDecision
	History []repository.StageHistoryEntry
}

// ShipDateChange is one event of the ship-date audit trail.
type ShipDateChange struct {
	ChangedAt        time.Time
	UpdatedBy        string
	ReasonCode       string
	ReasonLabel      string
	PreviousShipDate *time.Time
	NewShipDate      *time.Time
}

// TimelineView is the full read model behind the order timeline and ship-date
// display: all 13 stages with statuses, plus schedule classification.
type TimelineView struct {
	Order           repository.Order
	Stages          []StageView
	Schedule        timeline.Schedule
	ShipDateChanges []ShipDateChange
}

// Timeline builds the timeline read model for one order.
func (s *Service) Timeline(ctx context.Context, orderID uuid.UUID) (TimelineView, error) {
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return TimelineView{}, err
	}

	history, err := s.store.ListHistory(ctx, orderID)
	if err != nil {
		return TimelineView{}, err
	}

	byStage := make(map[timeline.Stage][]repository.StageHistoryEntry)
	recorded := timeline.NewStageSet()
	changes := make([]ShipDateChange, 0)
	for _, entry := range history {
		byStage[entry.Stage] = append(byStage[entry.Stage], entry)
		recorded[entry.Stage] = struct{}{}

		if entry.NewShipDate != nil {
			reason := ""
			if entry.ChangeReason != nil {
				reason = *entry.ChangeReason
			}
			changes = append(changes, ShipDateChange{
				ChangedAt:        entry.EnteredAt,
				UpdatedBy:        entry.UpdatedBy,
				ReasonCode:       reason,
				ReasonLabel:      timeline.ReasonLabel(reason),
				PreviousShipDate: entry.PreviousShipDate,
				NewShipDate:      entry.NewShipDate,
			})
		}
	}

	stageViews := make([]StageView, 0, timeline.StageCount)
	for _, stage := range timeline.Stages() {
		stageViews = append(stageViews, StageView{
			Stage:   stage,
			Label:   stage.Label(),
			Status:  timeline.StatusOf(stage, order.CurrentStage),
			Toggle:  timeline.DecideToggle(stage, order.CurrentStage, recorded),
			History: byStage[stage],
		})
	}

	return TimelineView{
		Order:           order,
		Stages:          stageViews,
		Schedule:        timeline.ClassifySchedule(order.OriginalShipDate, order.CurrentShipDate),
		ShipDateChanges: changes,
	}, nil
}

// UpdateStageRequest describes a single stage transition.
type UpdateStageRequest struct {
	Stage     timeline.Stage
	ShipDate  *time.Time
	Reason    string
	Confirmed bool
	Actor     Actor
}

// UpdateStage validates the transition against the toggle contract, applies
// it with an optimistic version check, appends the immutable history entry,
// and publishes the stage-change (and ship-date) events.
func (s *Service) UpdateStage(ctx context.Context, orderID uuid.UUID, req UpdateStageRequest) (repository.Order, error) {
	lock := s.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	return s.updateStageLocked(ctx, orderID, req)
}

func (s *Service) updateStageLocked(ctx context.Context, orderID uuid.UUID, req UpdateStageRequest) (repository.Order, error) {
	if !req.Stage.Valid() {
		return repository.Order{}, apperr.Validation("unknown order stage: " + string(req.Stage))
	}

	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return repository.Order{}, err
	}

	if req.Stage.Index() < order.CurrentStage.Index() {
		history, err := s.store.ListHistory(ctx, orderID)
		if err != nil {
			return repository.Order{}, err
		}
		recorded := timeline.NewStageSet()
		for _, entry := range history {
			recorded[entry.Stage] = struct{}{}
		}

		switch timeline.DecideToggle(req.Stage, order.CurrentStage, recorded) {
		case timeline.ToggleDisabled:
			return repository.Order{}, apperr.Conflict("stage has no recorded history and cannot be reverted")
		case timeline.ToggleNeedsConfirmation:
			if !req.Confirmed {
				return repository.Order{}, apperr.Conflict("reverting a completed stage requires confirmation")
			}
			if req.Reason == "" {
				return repository.Order{}, apperr.Validation("a reason is required when reverting a completed stage")
			}
		}
	}

	if req.Stage == order.CurrentStage && req.ShipDate == nil {
		// No-op transition; nothing to persist or announce.
		return order, nil
	}

	var shipDate *time.Time
	if req.ShipDate != nil && !req.ShipDate.Equal(order.CurrentShipDate) {
		shipDate = req.ShipDate
	}

	updated, err := s.store.UpdateStage(ctx, repository.UpdateStageParams{
		OrderID:  orderID,
		Stage:    req.Stage,
		ShipDate: shipDate,
		Version:  order.Version,
	})
	if errors.Is(err, repository.ErrVersionConflict) {
		return repository.Order{}, apperr.Conflict("order was modified concurrently, reload and retry")
	}
	if err != nil {
		return repository.Order{}, err
	}

	historyParams := repository.AppendHistoryParams{
		OrderID:   orderID,
		Stage:     req.Stage,
		UpdatedBy: req.Actor.Name,
		Notes:     req.Reason,
	}
	if shipDate != nil {
		prev := order.CurrentShipDate
		reason := req.Reason
		historyParams.PreviousShipDate = &prev
		historyParams.NewShipDate = shipDate
		historyParams.ChangeReason = &reason
	}
	if _, err := s.store.AppendHistory(ctx, historyParams); err != nil {
		return repository.Order{}, err
	}

	if s.log != nil {
		s.log.StageTransition(orderID.String(), string(order.CurrentStage), string(req.Stage), req.Actor.Name)
	}

	if s.bus != nil {
		if req.Stage != order.CurrentStage {
			s.bus.Publish(ctx, events.OrderStageChanged{
				BaseEvent:      events.NewBaseEvent(),
				OrderID:        updated.ID,
				OrderNumber:    updated.OrderNumber,
				OrganizationID: updated.OrganizationID,
				OldStage:       string(order.CurrentStage),
				NewStage:       string(req.Stage),
				ActorID:        req.Actor.ID,
				ActorName:      req.Actor.Name,
				Reason:         req.Reason,
			})
		}
		if shipDate != nil {
			s.bus.Publish(ctx, events.ShipDateRevised{
				BaseEvent:        events.NewBaseEvent(),
				OrderID:          updated.ID,
				OrderNumber:      updated.OrderNumber,
				OrganizationID:   updated.OrganizationID,
				PreviousShipDate: order.CurrentShipDate,
				NewShipDate:      *shipDate,
				Reason:           req.Reason,
				ActorID:          req.Actor.ID,
			})
		}
	}

	return updated, nil
}

// BulkUpdateRequest applies the same stage/ship-date update to many orders.
type BulkUpdateRequest struct {
	OrderIDs []uuid.UUID
	Stage    *timeline.Stage
	ShipDate *time.Time
	Reason   string
	Actor    Actor
}

// BulkFailure records why one order in a bulk update was rejected.
type BulkFailure struct {
	OrderID uuid.UUID
	Error   string
}

// BulkUpdateResult partitions a bulk update into per-order outcomes.
type BulkUpdateResult struct {
	Successful []uuid.UUID
	Failed     []BulkFailure
}

// BulkUpdate applies the update to every selected order. Per-order failures
// do not abort the batch; the result partitions outcomes. Orders are
// processed in parallel with bounded concurrency, serialized per order id.
func (s *Service) BulkUpdate(ctx context.Context, req BulkUpdateRequest) (BulkUpdateResult, error) {
	if len(req.OrderIDs) == 0 {
		return BulkUpdateResult{}, apperr.Validation("No orders selected for bulk update")
	}
	if req.Stage == nil && req.ShipDate == nil {
		return BulkUpdateResult{}, apperr.Validation("bulk update requires a stage or a ship date")
	}
	if req.Stage != nil && !req.Stage.Valid() {
		return BulkUpdateResult{}, apperr.Validation("unknown order stage: " + string(*req.Stage))
	}

	type outcome struct {
		orderID uuid.UUID
		err     error
	}
	outcomes := make([]outcome, len(req.OrderIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for i, orderID := range req.OrderIDs {
		i, orderID := i, orderID
		g.Go(func() error {
			lock := s.lockFor(orderID)
			lock.Lock()
			defer lock.Unlock()

			stage := timeline.Stage("")
			if req.Stage != nil {
				stage = *req.Stage
			} else {
				order, err := s.store.GetByID(gctx, orderID)
				if err != nil {
					outcomes[i] = outcome{orderID: orderID, err: err}
					return nil
				}
				stage = order.CurrentStage
			}

			// The bulk selection dialog is the confirmation step; reverts in
			// a bulk batch are treated as confirmed.
			_, err := s.updateStageLocked(gctx, orderID, UpdateStageRequest{
				Stage:     stage,
				ShipDate:  req.ShipDate,
				Reason:    req.Reason,
				Confirmed: true,
				Actor:     req.Actor,
			})
			outcomes[i] = outcome{orderID: orderID, err: err}
			return nil
		})
	}
	// Tasks never return errors; they record per-order outcomes.
	_ = g.Wait()

	result := BulkUpdateResult{
		Successful: make([]uuid.UUID, 0, len(req.OrderIDs)),
		Failed:     make([]BulkFailure, 0),
	}
	for _, o := range outcomes {
		if o.err != nil {
			result.Failed = append(result.Failed, BulkFailure{OrderID: o.orderID, Error: o.err.Error()})
			continue
		}
		result.Successful = append(result.Successful, o.orderID)
	}
	return result, nil
}
