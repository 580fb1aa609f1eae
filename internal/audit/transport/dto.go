// Package transport defines the wire DTOs for the communication audit module.
package transport

import (
	"time"

	"colorgarb_portal_backend/internal/audit/repository"
	"colorgarb_portal_backend/internal/audit/service"

	"github.com/google/uuid"
)

// LogResponse is one communication log entry.
type LogResponse struct {
	ID                uuid.UUID  `json:"id"`
	OrderID           *uuid.UUID `json:"orderId,omitempty"`
	OrganizationID    *uuid.UUID `json:"organizationId,omitempty"`
	Type              string     `json:"type"`
	Direction         string     `json:"direction"`
	Sender            string     `json:"sender"`
	Recipient         string     `json:"recipient"`
	Subject           string     `json:"subject"`
	BodyExcerpt       string     `json:"bodyExcerpt"`
	DeliveryStatus    string     `json:"deliveryStatus"`
	SentAt            time.Time  `json:"sentAt"`
	ExternalMessageID string     `json:"externalMessageId,omitempty"`
}

// SearchResponse is one page of audit results with per-filter aggregates.
type SearchResponse struct {
	Logs          []LogResponse  `json:"logs"`
	TotalCount    int            `json:"totalCount"`
	Page          int            `json:"page"`
	PageSize      int            `json:"pageSize"`
	HasNextPage   bool           `json:"hasNextPage"`
	StatusSummary map[string]int `json:"statusSummary"`
	TypeSummary   map[string]int `json:"typeSummary"`
}

// ExportFilters mirrors the search filters inside an export request body.
type ExportFilters struct {
	Types          []string   `json:"types,omitempty"`
	Statuses       []string   `json:"statuses,omitempty"`
	DateFrom       *time.Time `json:"dateFrom,omitempty"`
	DateTo         *time.Time `json:"dateTo,omitempty"`
	OrganizationID *uuid.UUID `json:"organizationId,omitempty"`
	OrderID        *uuid.UUID `json:"orderId,omitempty"`
	Query          string     `json:"q,omitempty"`
}

// ExportRequest starts an export.
type ExportRequest struct {
	Filters    ExportFilters `json:"filters"`
	Format     string        `json:"format" validate:"required,oneof=csv excel"`
	MaxRecords int           `json:"maxRecords" validate:"omitempty,min=1"`
}

// ExportJobResponse is the async export acknowledgement and poll shape.
type ExportJobResponse struct {
	JobID        uuid.UUID `json:"jobId"`
	Status       string    `json:"status"`
	DownloadURL  string    `json:"downloadUrl,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	RecordCount  int       `json:"recordCount"`
}

// ComplianceReportRequest renders an organization's compliance PDF.
type ComplianceReportRequest struct {
	OrganizationID uuid.UUID `json:"organizationId" validate:"required"`
	DateFrom       time.Time `json:"dateFrom" validate:"required"`
	DateTo         time.Time `json:"dateTo" validate:"required"`
}

// ToFilters maps export request filters onto repository filters.
func (f ExportFilters) ToFilters() repository.SearchFilters {
	return repository.SearchFilters{
		Types:          f.Types,
		Statuses:       f.Statuses,
		DateFrom:       f.DateFrom,
		DateTo:         f.DateTo,
		OrganizationID: f.OrganizationID,
		OrderID:        f.OrderID,
		Query:          f.Query,
	}
}

// ToLogResponse maps a log entry to the wire shape.
func ToLogResponse(entry repository.CommunicationLog) LogResponse {
	return LogResponse{
		ID:                entry.ID,
		OrderID:           entry.OrderID,
		OrganizationID:    entry.OrganizationID,
		Type:              entry.Type,
		Direction:         entry.Direction,
		Sender:            entry.Sender,
		Recipient:         entry.Recipient,
		Subject:           entry.Subject,
		BodyExcerpt:       entry.BodyExcerpt,
		DeliveryStatus:    entry.DeliveryStatus,
		SentAt:            entry.SentAt,
		ExternalMessageID: entry.ExternalMessageID,
	}
}

// ToSearchResponse maps a search result to the wire shape.
func ToSearchResponse(res repository.SearchResult) SearchResponse {
	logs := make([]LogResponse, len(res.Logs))
	for i, entry := range res.Logs {
		logs[i] = ToLogResponse(entry)
	}
	return SearchResponse{
		Logs:          logs,
		TotalCount:    res.TotalCount,
		Page:          res.Page,
		PageSize:      res.PageSize,
		HasNextPage:   res.HasNextPage,
		StatusSummary: res.StatusSummary,
		TypeSummary:   res.TypeSummary,
	}
}

// ToJobResponse maps a job status to the wire shape.
func ToJobResponse(status service.JobStatus) ExportJobResponse {
	return ExportJobResponse{
		JobID:        status.JobID,
		Status:       status.Status,
		DownloadURL:  status.DownloadURL,
		ErrorMessage: status.ErrorMessage,
		RecordCount:  status.RecordCount,
	}
}
