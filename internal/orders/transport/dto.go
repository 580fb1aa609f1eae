// Package transport defines the wire DTOs for the orders module.
package transport

import (
	"time"

	"colorgarb_portal_backend/internal/orders/repository"
	"colorgarb_portal_backend/internal/orders/service"

	"github.com/google/uuid"
)

// OrderResponse mirrors one order row of the admin listing.
type OrderResponse struct {
	ID               uuid.UUID `json:"id"`
	OrderNumber      string    `json:"orderNumber"`
	OrganizationID   uuid.UUID `json:"organizationId"`
	OrganizationName string    `json:"organizationName"`
	Description      string    `json:"description"`
	CurrentStage     string    `json:"currentStage"`
	OriginalShipDate time.Time `json:"originalShipDate"`
	CurrentShipDate  time.Time `json:"currentShipDate"`
	Status           string    `json:"status"`
	TotalValueCents  *int64    `json:"totalValueCents,omitempty"`
	Version          int64     `json:"version"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// OrganizationResponse is a summary organization row.
type OrganizationResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ListOrdersResponse is the admin order listing envelope.
type ListOrdersResponse struct {
	Orders        []OrderResponse        `json:"orders"`
	Organizations []OrganizationResponse `json:"organizations"`
	TotalCount    int                    `json:"totalCount"`
	Page          int                    `json:"page"`
	PageSize      int                    `json:"pageSize"`
}

// UpdateStageRequest is the stage transition command body.
type UpdateStageRequest struct {
	Stage     string  `json:"stage" validate:"required"`
	ShipDate  *string `json:"shipDate,omitempty"`
	Reason    string  `json:"reason" validate:"max=400"`
	Confirmed bool    `json:"confirmed"`
}

// BulkUpdateRequest is the bulk stage/ship-date command body.
type BulkUpdateRequest struct {
	OrderIDs []uuid.UUID `json:"orderIds"`
	Stage    *string     `json:"stage,omitempty"`
	ShipDate *string     `json:"shipDate,omitempty"`
	Reason   string      `json:"reason" validate:"max=400"`
}

// BulkFailureResponse reports one rejected order of a bulk update.
type BulkFailureResponse struct {
	OrderID uuid.UUID `json:"orderId"`
	Error   string    `json:"error"`
}

// BulkUpdateResponse partitions the bulk outcome.
type BulkUpdateResponse struct {
	Successful []uuid.UUID           `json:"successful"`
	Failed     []BulkFailureResponse `json:"failed"`
}

// StageHistoryResponse is one immutable stage transition record.
type StageHistoryResponse struct {
	ID               uuid.UUID  `json:"id"`
	Stage            string     `json:"stage"`
	EnteredAt        time.Time  `json:"enteredAt"`
	UpdatedBy        string     `json:"updatedBy"`
	Notes            string     `json:"notes,omitempty"`
	PreviousShipDate *time.Time `json:"previousShipDate,omitempty"`
	NewShipDate      *time.Time `json:"newShipDate,omitempty"`
	ChangeReason     *string    `json:"changeReason,omitempty"`
}

// StageViewResponse is one timeline row with derived status and toggle state.
type StageViewResponse struct {
	Stage   string                 `json:"stage"`
	Label   string                 `json:"label"`
	Status  string                 `json:"status"`
	Toggle  string                 `json:"toggle"`
	History []StageHistoryResponse `json:"history,omitempty"`
}

// ShipDateChangeResponse is one ship-date audit trail event.
type ShipDateChangeResponse struct {
	ChangedAt        time.Time  `json:"changedAt"`
	UpdatedBy        string     `json:"updatedBy"`
	ReasonCode       string     `json:"reasonCode,omitempty"`
	ReasonLabel      string     `json:"reasonLabel,omitempty"`
	PreviousShipDate *time.Time `json:"previousShipDate,omitempty"`
	NewShipDate      *time.Time `json:"newShipDate,omitempty"`
}

// TimelineResponse is the full timeline read model for one order.
type TimelineResponse struct {
	Order           OrderResponse            `json:"order"`
	Stages          []StageViewResponse      `json:"stages"`
	Schedule        string                   `json:"schedule"`
	ShipDateChanges []ShipDateChangeResponse `json:"shipDateChanges"`
}

// ToOrderResponse maps a repository order to the wire shape.
func ToOrderResponse(o repository.Order) OrderResponse {
	return OrderResponse{
		ID:               o.ID,
		OrderNumber:      o.OrderNumber,
		OrganizationID:   o.OrganizationID,
		OrganizationName: o.OrganizationName,
		Description:      o.Description,
		CurrentStage:     string(o.CurrentStage),
		OriginalShipDate: o.OriginalShipDate,
		CurrentShipDate:  o.CurrentShipDate,
		Status:           o.Status,
		TotalValueCents:  o.TotalValueCents,
		Version:          o.Version,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

// ToListOrdersResponse maps a service listing result to the wire shape.
func ToListOrdersResponse(res service.ListResult) ListOrdersResponse {
	orders := make([]OrderResponse, len(res.Orders))
	for i, o := range res.Orders {
		orders[i] = ToOrderResponse(o)
	}
	orgs := make([]OrganizationResponse, len(res.Organizations))
	for i, org := range res.Organizations {
		orgs[i] = OrganizationResponse{ID: org.ID, Name: org.Name}
	}
	return ListOrdersResponse{
		Orders:        orders,
		Organizations: orgs,
		TotalCount:    res.TotalCount,
		Page:          res.Page,
		PageSize:      res.PageSize,
	}
}

// ToTimelineResponse maps the timeline read model to the wire shape.
func ToTimelineResponse(view service.TimelineView) TimelineResponse {
	stages := make([]StageViewResponse, len(view.Stages))
	for i, sv := range view.Stages {
		history := make([]StageHistoryResponse, len(sv.History))
		for j, entry := range sv.History {
			history[j] = StageHistoryResponse{
				ID:               entry.ID,
				Stage:            string(entry.Stage),
				EnteredAt:        entry.EnteredAt,
				UpdatedBy:        entry.UpdatedBy,
				Notes:            entry.Notes,
				PreviousShipDate: entry.PreviousShipDate,
				NewShipDate:      entry.NewShipDate,
				ChangeReason:     entry.ChangeReason,
			}
		}
		stages[i] = StageViewResponse{
			Stage:   string(sv.Stage),
			Label:   sv.Label,
			Status:  string(sv.Status),
			Toggle:  string(sv.Toggle),
			History: history,
		}
	}

	changes := make([]ShipDateChangeResponse, len(view.ShipDateChanges))
	for i, ch := range view.ShipDateChanges {
		changes[i] = ShipDateChangeResponse{
			ChangedAt:        ch.ChangedAt,
			UpdatedBy:        ch.UpdatedBy,
			ReasonCode:       ch.ReasonCode,
			ReasonLabel:      ch.ReasonLabel,
			PreviousShipDate: ch.PreviousShipDate,
			NewShipDate:      ch.NewShipDate,
		}
	}

	return TimelineResponse{
		Order:           ToOrderResponse(view.Order),
		Stages:          stages,
		Schedule:        string(view.Schedule),
		ShipDateChanges: changes,
	}
}
