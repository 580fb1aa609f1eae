// Package handler exposes the order messaging HTTP endpoints.
package handler

import (
	"net/http"
	"strconv"

	"colorgarb_portal_backend/internal/messages/service"
	"colorgarb_portal_backend/internal/messages/transport"
	"colorgarb_portal_backend/platform/httpkit"
	"colorgarb_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves the messaging endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates the messaging handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func readerFrom(id httpkit.Identity) service.Reader {
	name := id.Name()
	if name == "" {
		name = id.Role()
	}
	return service.Reader{
		UserID:         id.UserID(),
		Name:           name,
		Role:           id.Role(),
		OrganizationID: id.OrganizationID(),
		Staff:          id.IsStaff(),
	}
}

func orderIDParam(c *gin.Context) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid order id", nil)
		return uuid.Nil, false
	}
	return orderID, true
}

// Thread handles GET /api/v1/orders/:id/messages.
func (h *Handler) Thread(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	thread, err := h.svc.Thread(c.Request.Context(), orderID, readerFrom(id), page, pageSize)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToThreadResponse(thread))
}

// Send handles POST /api/v1/orders/:id/messages.
func (h *Handler) Send(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	var req transport.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), orderID, readerFrom(id), req.Content, req.RecipientRole)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToMessageResponse(msg))
}

// MarkRead handles POST /api/v1/orders/:id/messages/:messageId/read.
func (h *Handler) MarkRead(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid message id", nil)
		return
	}

	if httpkit.HandleError(c, h.svc.MarkRead(c.Request.Context(), orderID, messageID, readerFrom(id))) {
		return
	}
	c.Status(http.StatusNoContent)
}

// Search handles GET /api/v1/orders/:id/messages/search.
func (h *Handler) Search(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	result, err := h.svc.Search(c.Request.Context(), orderID, readerFrom(id), c.Query("q"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToSearchResponse(result))
}

// SearchHistory handles GET /api/v1/orders/:id/messages/search-history.
func (h *Handler) SearchHistory(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	entries, err := h.svc.SearchHistory(c.Request.Context(), orderID, readerFrom(id))
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.SearchEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = transport.ToSearchEntryResponse(e)
	}
	httpkit.OK(c, transport.SearchHistoryResponse{Entries: out})
}

// ClearSearchHistory handles DELETE /api/v1/orders/:id/messages/search-history.
func (h *Handler) ClearSearchHistory(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.ClearSearchHistory(c.Request.Context(), orderID, readerFrom(id))) {
		return
	}
	c.Status(http.StatusNoContent)
}
