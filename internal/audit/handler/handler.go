// Package handler exposes the communication audit HTTP endpoints.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"colorgarb_portal_backend/internal/audit/repository"
	"colorgarb_portal_backend/internal/audit/service"
	"colorgarb_portal_backend/internal/audit/transport"
	"colorgarb_portal_backend/platform/apperr"
	"colorgarb_portal_backend/platform/httpkit"
	"colorgarb_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves the communication audit endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates the audit handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Search handles GET /api/v1/admin/communication-audit/search.
func (h *Handler) Search(c *gin.Context) {
	filters, err := parseSearchFilters(c)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	result, err := h.svc.Search(c.Request.Context(), filters)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToSearchResponse(result))
}

// Export handles POST /api/v1/admin/communication-audit/export. Small result
// sets stream back inline; large ones return the queued job.
func (h *Handler) Export(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	var req transport.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	outcome, err := h.svc.Export(c.Request.Context(), id.UserID(), req.Format, req.Filters.ToFilters(), req.MaxRecords)
	if httpkit.HandleError(c, err) {
		return
	}

	if outcome.Sync != nil {
		c.Header("Content-Disposition", `attachment; filename="`+outcome.Sync.FileName+`"`)
		c.Header("X-Record-Count", strconv.Itoa(outcome.Sync.RecordCount))
		c.Data(http.StatusOK, outcome.Sync.ContentType, outcome.Sync.Data)
		return
	}

	httpkit.JSON(c, http.StatusAccepted, transport.ExportJobResponse{
		JobID:       outcome.Job.ID,
		Status:      outcome.Job.Status,
		RecordCount: outcome.Job.RecordCount,
	})
}

// ExportStatus handles GET /api/v1/admin/communication-audit/export/:jobId/status.
func (h *Handler) ExportStatus(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid job id", nil)
		return
	}

	status, err := h.svc.Status(c.Request.Context(), jobID, id.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToJobResponse(status))
}

// DismissExport handles DELETE /api/v1/admin/communication-audit/export/:jobId.
func (h *Handler) DismissExport(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid job id", nil)
		return
	}

	if httpkit.HandleError(c, h.svc.Dismiss(c.Request.Context(), jobID, id.UserID())) {
		return
	}
	c.Status(http.StatusNoContent)
}

// ComplianceReport handles POST /api/v1/admin/communication-audit/compliance-report.
func (h *Handler) ComplianceReport(c *gin.Context) {
	var req transport.ComplianceReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	doc, err := h.svc.ComplianceReport(c.Request.Context(), req.OrganizationID, req.DateFrom, req.DateTo)
	if httpkit.HandleError(c, err) {
		return
	}

	c.Header("Content-Disposition", `attachment; filename="compliance-report.pdf"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}

func parseSearchFilters(c *gin.Context) (repository.SearchFilters, error) {
	f := repository.SearchFilters{
		Types:    c.QueryArray("type"),
		Statuses: c.QueryArray("status"),
		Query:    c.Query("q"),
		SortBy:   c.DefaultQuery("sortBy", "sentAt"),
		SortDir:  c.DefaultQuery("sortDir", "desc"),
	}

	for param, dst := range map[string]**uuid.UUID{
		"organizationId": &f.OrganizationID,
		"orderId":        &f.OrderID,
	} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return f, apperr.Validation("invalid " + param + " filter")
		}
		*dst = &parsed
	}

	for param, dst := range map[string]**time.Time{
		"dateFrom": &f.DateFrom,
		"dateTo":   &f.DateTo,
	} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			if t, err = time.Parse("2006-01-02", raw); err != nil {
				return f, apperr.Validation("invalid " + param + " filter")
			}
		}
		*dst = &t
	}

	f.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	f.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "25"))
	return f, nil
}
