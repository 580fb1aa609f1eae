// Package handler exposes the order HTTP endpoints.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"colorgarb_portal_backend/internal/orders/repository"
	"colorgarb_portal_backend/internal/orders/service"
	"colorgarb_portal_backend/internal/orders/transport"
	"colorgarb_portal_backend/internal/timeline"
	"colorgarb_portal_backend/platform/apperr"
	"colorgarb_portal_backend/platform/httpkit"
	"colorgarb_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves the order endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates the order handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// List handles GET /api/v1/admin/orders.
func (h *Handler) List(c *gin.Context) {
	filters, err := parseListFilters(c)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	result, err := h.svc.ListOrders(c.Request.Context(), filters)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToListOrdersResponse(result))
}

// Timeline handles GET /api/v1/orders/:id/timeline. Non-staff callers only
// see orders that belong to their own organization.
func (h *Handler) Timeline(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid order id", nil)
		return
	}

	view, err := h.svc.Timeline(c.Request.Context(), orderID)
	if httpkit.HandleError(c, err) {
		return
	}

	if !id.IsStaff() {
		orgID := id.OrganizationID()
		if orgID == nil || view.Order.OrganizationID != *orgID {
			httpkit.HandleError(c, apperr.NotFound("order not found"))
			return
		}
	}

	httpkit.OK(c, transport.ToTimelineResponse(view))
}

// UpdateStage handles PATCH /api/v1/admin/orders/:id/stage.
func (h *Handler) UpdateStage(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid order id", nil)
		return
	}

	var req transport.UpdateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	shipDate, err := parseShipDate(req.ShipDate)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	order, err := h.svc.UpdateStage(c.Request.Context(), orderID, service.UpdateStageRequest{
		Stage:     timeline.Stage(req.Stage),
		ShipDate:  shipDate,
		Reason:    req.Reason,
		Confirmed: req.Confirmed,
		Actor:     actorFrom(id),
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToOrderResponse(order))
}

// BulkUpdate handles POST /api/v1/admin/orders/bulk-update.
func (h *Handler) BulkUpdate(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	var req transport.BulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	shipDate, err := parseShipDate(req.ShipDate)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	var stage *timeline.Stage
	if req.Stage != nil {
		s := timeline.Stage(*req.Stage)
		stage = &s
	}

	result, err := h.svc.BulkUpdate(c.Request.Context(), service.BulkUpdateRequest{
		OrderIDs: req.OrderIDs,
		Stage:    stage,
		ShipDate: shipDate,
		Reason:   req.Reason,
		Actor:    actorFrom(id),
	})
	if httpkit.HandleError(c, err) {
		return
	}

	failed := make([]transport.BulkFailureResponse, len(result.Failed))
	for i, f := range result.Failed {
		failed[i] = transport.BulkFailureResponse{OrderID: f.OrderID, Error: f.Error}
	}
	httpkit.OK(c, transport.BulkUpdateResponse{
		Successful: result.Successful,
		Failed:     failed,
	})
}

// actorFrom attributes the write to the user's display name so stage history
// stays attributable per person; the role is only a fallback for tokens
// issued without a name claim.
func actorFrom(id httpkit.Identity) service.Actor {
	name := id.Name()
	if name == "" {
		name = id.Role()
	}
	return service.Actor{ID: id.UserID(), Name: name}
}

// parseShipDate accepts a calendar date or a full RFC 3339 timestamp.
func parseShipDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", *raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, apperr.Validation("shipDate must be YYYY-MM-DD or RFC 3339")
	}
	return &t, nil
}

func parseListFilters(c *gin.Context) (repository.ListFilters, error) {
	f := repository.ListFilters{
		Status:  c.Query("status"),
		Query:   c.Query("q"),
		SortBy:  c.DefaultQuery("sortBy", "created_at"),
		SortDir: c.DefaultQuery("sortDir", "desc"),
	}

	if raw := c.Query("organizationId"); raw != "" {
		orgID, err := uuid.Parse(raw)
		if err != nil {
			return f, apperr.Validation("invalid organizationId filter")
		}
		f.OrganizationID = &orgID
	}

	if raw := c.Query("stage"); raw != "" {
		stage, err := timeline.ParseStage(raw)
		if err != nil {
			return f, apperr.Validation("invalid stage filter")
		}
		f.Stage = &stage
	}

	for param, dst := range map[string]**time.Time{
		"shipDateFrom": &f.ShipDateFrom,
		"shipDateTo":   &f.ShipDateTo,
	} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, apperr.Validation("invalid " + param + " filter, expected YYYY-MM-DD")
		}
		*dst = &t
	}

	f.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	f.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	return f, nil
}
