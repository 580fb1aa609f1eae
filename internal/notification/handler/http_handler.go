package handler

import (
	"strconv"

	"colorgarb_portal_backend/internal/notification/inapp"
	"colorgarb_portal_backend/internal/notification/preferences"
	"colorgarb_portal_backend/platform/apperr"
	"colorgarb_portal_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type HTTPHandler struct {
	inApp *inapp.Service
	prefs *preferences.Service
}

func NewHTTPHandler(inApp *inapp.Service, prefs *preferences.Service) *HTTPHandler {
	return &HTTPHandler{inApp: inApp, prefs: prefs}
}

// RegisterNotificationRoutes mounts the in-app notification feed routes.
func (h *HTTPHandler) RegisterNotificationRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/unread", h.CountUnread)
	rg.PATCH("/:id/read", h.MarkRead)
	rg.PATCH("/read-all", h.MarkAllRead)
	rg.DELETE("/:id", h.Delete)
}

// RegisterPreferenceRoutes mounts the per-user preference routes.
func (h *HTTPHandler) RegisterPreferenceRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/notification-preferences", h.GetPreferences)
	rg.PUT("/:id/notification-preferences", h.UpdatePreferences)
}

func (h *HTTPHandler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	items, total, err := h.inApp.List(c.Request.Context(), identity.UserID(), page, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{
		"items": items,
		"total": total,
		"page":  page,
	})
}

func (h *HTTPHandler) CountUnread(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	count, err := h.inApp.CountUnread(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"count": count})
}

func (h *HTTPHandler) MarkRead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, 400, "invalid id", nil)
		return
	}

	if err := h.inApp.MarkRead(c.Request.Context(), identity.UserID(), id); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "ok"})
}

func (h *HTTPHandler) MarkAllRead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if err := h.inApp.MarkAllRead(c.Request.Context(), identity.UserID()); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "ok"})
}

func (h *HTTPHandler) Delete(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, 400, "invalid id", nil)
		return
	}

	if err := h.inApp.Delete(c.Request.Context(), identity.UserID(), id); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "ok"})
}

// PreferencesResponse is the wire shape of a user's notification settings.
type PreferencesResponse struct {
	UserID       string          `json:"userId"`
	EmailEnabled bool            `json:"emailEnabled"`
	SMSEnabled   bool            `json:"smsEnabled"`
	PhoneNumber  string          `json:"phoneNumber,omitempty"`
	Frequency    string          `json:"frequency"`
	Milestones   map[string]bool `json:"milestones"`
}

// UpdatePreferencesRequest carries a full preference replacement.
type UpdatePreferencesRequest struct {
	EmailEnabled bool            `json:"emailEnabled"`
	SMSEnabled   bool            `json:"smsEnabled"`
	PhoneNumber  string          `json:"phoneNumber"`
	Frequency    string          `json:"frequency" binding:"required"`
	Milestones   map[string]bool `json:"milestones"`
}

func toPreferencesResponse(p preferences.Preferences) PreferencesResponse {
	return PreferencesResponse{
		UserID:       p.UserID.String(),
		EmailEnabled: p.EmailEnabled,
		SMSEnabled:   p.SMSEnabled,
		PhoneNumber:  p.PhoneNumber,
		Frequency:    p.Frequency,
		Milestones:   p.Milestones,
	}
}

// preferenceUser resolves the target user id and enforces that only the user
// themself, or staff, may touch the preferences.
func (h *HTTPHandler) preferenceUser(c *gin.Context) (uuid.UUID, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, 400, "invalid user id", nil)
		return uuid.Nil, false
	}

	if userID != identity.UserID() && !identity.IsStaff() {
		httpkit.HandleError(c, apperr.Forbidden("cannot manage another user's notification preferences"))
		return uuid.Nil, false
	}

	return userID, true
}

func (h *HTTPHandler) GetPreferences(c *gin.Context) {
	userID, ok := h.preferenceUser(c)
	if !ok {
		return
	}

	prefs, err := h.prefs.Get(c.Request.Context(), userID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toPreferencesResponse(prefs))
}

func (h *HTTPHandler) UpdatePreferences(c *gin.Context) {
	userID, ok := h.preferenceUser(c)
	if !ok {
		return
	}

	var req UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, 400, "invalid request body", err.Error())
		return
	}

	prefs, err := h.prefs.Update(c.Request.Context(), userID, preferences.UpdateParams{
		EmailEnabled: req.EmailEnabled,
		SMSEnabled:   req.SMSEnabled,
		PhoneNumber:  req.PhoneNumber,
		Frequency:    req.Frequency,
		Milestones:   req.Milestones,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toPreferencesResponse(prefs))
}
