// Package portalclient is a typed Go client for the ColorGarb portal API.
// It covers the staff-facing admin surface: order listing, stage updates,
// bulk updates and communication-audit export jobs.
package portalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal api: %d %s", e.StatusCode, e.Message)
}

// Order mirrors one order row of the admin listing.
type Order struct {
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

// Organization is a summary organization row.
type Organization struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// OrderList is the admin order listing envelope.
type OrderList struct {
	Orders        []Order        `json:"orders"`
	Organizations []Organization `json:"organizations"`
	TotalCount    int            `json:"totalCount"`
	Page          int            `json:"page"`
	PageSize      int            `json:"pageSize"`
}

// OrderFilters are the admin listing query parameters. Zero values are
// omitted from the request.
type OrderFilters struct {
	Status         string
	OrganizationID *uuid.UUID
	Stage          string
	Query          string
	ShipDateFrom   *time.Time
	ShipDateTo     *time.Time
	SortBy         string
	SortDir        string
	Page           int
	PageSize       int
}

func (f OrderFilters) values() url.Values {
	q := url.Values{}
	set := func(key, val string) {
		if val != "" {
			q.Set(key, val)
		}
	}
	set("status", f.Status)
	set("stage", f.Stage)
	set("q", f.Query)
	set("sortBy", f.SortBy)
	set("sortDir", f.SortDir)
	if f.OrganizationID != nil {
		q.Set("organizationId", f.OrganizationID.String())
	}
	if f.ShipDateFrom != nil {
		q.Set("shipDateFrom", f.ShipDateFrom.Format("2006-01-02"))
	}
	if f.ShipDateTo != nil {
		q.Set("shipDateTo", f.ShipDateTo.Format("2006-01-02"))
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(f.PageSize))
	}
	return q
}

// StageUpdate is the stage transition command body.
type StageUpdate struct {
	Stage     string  `json:"stage"`
	ShipDate  *string `json:"shipDate,omitempty"`
	Reason    string  `json:"reason"`
	Confirmed bool    `json:"confirmed"`
}

// BulkUpdate is the bulk stage/ship-date command body.
type BulkUpdate struct {
	OrderIDs []uuid.UUID `json:"orderIds"`
	Stage    *string     `json:"stage,omitempty"`
	ShipDate *string     `json:"shipDate,omitempty"`
	Reason   string      `json:"reason"`
}

// BulkFailure reports one rejected order of a bulk update.
type BulkFailure struct {
	OrderID uuid.UUID `json:"orderId"`
	Error   string    `json:"error"`
}

// BulkResult partitions the bulk outcome.
type BulkResult struct {
	Successful []uuid.UUID   `json:"successful"`
	Failed     []BulkFailure `json:"failed"`
}

// ExportJob is one communication-audit export job.
type ExportJob struct {
	JobID        uuid.UUID `json:"jobId"`
	Status       string    `json:"status"`
	DownloadURL  string    `json:"downloadUrl,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	RecordCount  int       `json:"recordCount"`
}

// Export job states as reported by the server.
const (
	JobProcessing = "Processing"
	JobCompleted  = "Completed"
	JobFailed     = "Failed"
)

// Client calls the portal REST API with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the given API base URL, e.g. "https://portal.example.com".
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token, e.g. after a refresh.
func (c *Client) SetToken(token string) { c.token = token }

// ListOrders fetches one page of the admin order listing.
func (c *Client) ListOrders(ctx context.Context, f OrderFilters) (OrderList, error) {
	var out OrderList
	path := "/api/v1/admin/orders"
	if q := f.values().Encode(); q != "" {
		path += "?" + q
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// UpdateOrderStage transitions one order.
func (c *Client) UpdateOrderStage(ctx context.Context, orderID uuid.UUID, req StageUpdate) (Order, error) {
	var out Order
	err := c.do(ctx, http.MethodPatch, "/api/v1/admin/orders/"+orderID.String()+"/stage", req, &out)
	return out, err
}

// BulkUpdateOrders applies a stage and/or ship-date change to many orders.
func (c *Client) BulkUpdateOrders(ctx context.Context, req BulkUpdate) (BulkResult, error) {
	var out BulkResult
	err := c.do(ctx, http.MethodPost, "/api/v1/admin/orders/bulk-update", req, &out)
	return out, err
}

// ExportStatus polls one export job.
func (c *Client) ExportStatus(ctx context.Context, jobID uuid.UUID) (ExportJob, error) {
	var out ExportJob
	err := c.do(ctx, http.MethodGet, "/api/v1/communication-audit/export/"+jobID.String()+"/status", nil, &out)
	return out, err
}

// DismissExport removes an export job from the server-side listing.
func (c *Client) DismissExport(ctx context.Context, jobID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/communication-audit/export/"+jobID.String(), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error == "" {
			envelope.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
