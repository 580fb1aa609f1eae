package portalclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoSelection is returned by BulkUpdateOrders when no orders are selected.
var ErrNoSelection = errors.New("No orders selected for bulk update")

// FilterPatch is a partial update of the admin listing filters. Nil fields
// are left unchanged. ClearOrganization drops the organization filter.
type FilterPatch struct {
	Status            *string
	OrganizationID    *uuid.UUID
	ClearOrganization bool
	Stage             *string
	Query             *string
	ShipDateFrom      *time.Time
	ShipDateTo        *time.Time
	SortBy            *string
	SortDir           *string
	Page              *int
	PageSize          *int
}

// AdminStore holds the staff order-management view state: the current page
// of orders, the active filters and the bulk-update selection. All methods
// are safe for concurrent use.
type AdminStore struct {
	client *Client

	mu            sync.Mutex
	fetchGen      uint64
	filters       OrderFilters
	orders        []Order
	organizations []Organization
	totalCount    int
	selected      map[uuid.UUID]struct{}
	loading       bool
	lastError     string
	lastSuccess   string
}

// NewAdminStore creates a store over the given client with default paging.
func NewAdminStore(client *Client) *AdminStore {
	return &AdminStore{
		client:   client,
		filters:  OrderFilters{Page: 1, PageSize: 20, SortBy: "created_at", SortDir: "desc"},
		selected: make(map[uuid.UUID]struct{}),
	}
}

// FetchAllOrders loads the listing with the current filters. A response that
// was overtaken by a newer fetch is discarded, so out-of-order completions
// cannot clobber fresher state.
func (s *AdminStore) FetchAllOrders(ctx context.Context) error {
	s.mu.Lock()
	s.fetchGen++
	gen := s.fetchGen
	s.loading = true
	filters := s.filters
	s.mu.Unlock()

	list, err := s.client.ListOrders(ctx, filters)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.fetchGen {
		// A newer fetch has started; its result owns the state.
		return err
	}
	s.loading = false
	if err != nil {
		s.orders = nil
		s.organizations = nil
		s.totalCount = 0
		s.lastError = err.Error()
		return err
	}
	s.orders = list.Orders
	s.organizations = list.Organizations
	s.totalCount = list.TotalCount
	s.lastError = ""
	return nil
}

// UpdateFilters merges the patch into the filters, resets the page to 1
// unless the patch set it explicitly, clears the selection and issues
// exactly one refetch.
func (s *AdminStore) UpdateFilters(ctx context.Context, patch FilterPatch) error {
	s.mu.Lock()
	if patch.Status != nil {
		s.filters.Status = *patch.Status
	}
	if patch.ClearOrganization {
		s.filters.OrganizationID = nil
	} else if patch.OrganizationID != nil {
		s.filters.OrganizationID = patch.OrganizationID
	}
	if patch.Stage != nil {
		s.filters.Stage = *patch.Stage
	}
	if patch.Query != nil {
		s.filters.Query = *patch.Query
	}
	if patch.ShipDateFrom != nil {
		s.filters.ShipDateFrom = patch.ShipDateFrom
	}
	if patch.ShipDateTo != nil {
		s.filters.ShipDateTo = patch.ShipDateTo
	}
	if patch.SortBy != nil {
		s.filters.SortBy = *patch.SortBy
	}
	if patch.SortDir != nil {
		s.filters.SortDir = *patch.SortDir
	}
	if patch.PageSize != nil {
		s.filters.PageSize = *patch.PageSize
	}
	if patch.Page != nil {
		s.filters.Page = *patch.Page
	} else {
		s.filters.Page = 1
	}
	s.selected = make(map[uuid.UUID]struct{})
	s.mu.Unlock()

	return s.FetchAllOrders(ctx)
}

// UpdateOrderStage transitions one order and patches the matching row in
// place on success.
func (s *AdminStore) UpdateOrderStage(ctx context.Context, orderID uuid.UUID, req StageUpdate) error {
	updated, err := s.client.UpdateOrderStage(ctx, orderID, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastError = err.Error()
		return err
	}
	for i := range s.orders {
		if s.orders[i].ID == orderID {
			s.orders[i].CurrentStage = updated.CurrentStage
			s.orders[i].CurrentShipDate = updated.CurrentShipDate
			s.orders[i].Version = updated.Version
			s.orders[i].UpdatedAt = updated.UpdatedAt
			break
		}
	}
	s.lastError = ""
	s.lastSuccess = "Order " + updated.OrderNumber + " updated successfully"
	return nil
}

// BulkUpdateParams describes the change applied to every selected order.
type BulkUpdateParams struct {
	Stage    *string
	ShipDate *string
	Reason   string
}

// BulkUpdateOrders applies the change to the current selection. Succeeded
// orders are patched in place and the selection is cleared. Partial failure
// sets both the success and the error message.
func (s *AdminStore) BulkUpdateOrders(ctx context.Context, params BulkUpdateParams) (BulkResult, error) {
	s.mu.Lock()
	if len(s.selected) == 0 {
		s.mu.Unlock()
		return BulkResult{}, ErrNoSelection
	}
	ids := make([]uuid.UUID, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	result, err := s.client.BulkUpdateOrders(ctx, BulkUpdate{
		OrderIDs: ids,
		Stage:    params.Stage,
		ShipDate: params.ShipDate,
		Reason:   params.Reason,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastError = err.Error()
		return BulkResult{}, err
	}

	succeeded := make(map[uuid.UUID]struct{}, len(result.Successful))
	for _, id := range result.Successful {
		succeeded[id] = struct{}{}
	}
	for i := range s.orders {
		if _, ok := succeeded[s.orders[i].ID]; !ok {
			continue
		}
		if params.Stage != nil {
			s.orders[i].CurrentStage = *params.Stage
		}
		if params.ShipDate != nil {
			if t, err := time.Parse("2006-01-02", *params.ShipDate); err == nil {
				s.orders[i].CurrentShipDate = t
			}
		}
	}

	s.selected = make(map[uuid.UUID]struct{})
	s.lastSuccess = fmt.Sprintf("Bulk update completed: %d successful, %d failed", len(result.Successful), len(result.Failed))
	if len(result.Failed) > 0 {
		s.lastError = fmt.Sprintf("%d orders failed to update", len(result.Failed))
	} else {
		s.lastError = ""
	}
	return result, nil
}

// ToggleOrderSelection adds the order to the selection, or removes it when
// already selected.
func (s *AdminStore) ToggleOrderSelection(orderID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.selected[orderID]; ok {
		delete(s.selected, orderID)
		return
	}
	s.selected[orderID] = struct{}{}
}

// SelectAllOrders selects every order on the current page.
func (s *AdminStore) SelectAllOrders() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		s.selected[o.ID] = struct{}{}
	}
}

// ClearSelection empties the selection.
func (s *AdminStore) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = make(map[uuid.UUID]struct{})
}

// IsSelected reports whether the order is in the selection.
func (s *AdminStore) IsSelected(orderID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selected[orderID]
	return ok
}

// SelectedOrderIDs returns a copy of the selection.
func (s *AdminStore) SelectedOrderIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	return ids
}

// Orders returns a copy of the current page.
func (s *AdminStore) Orders() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// Organizations returns a copy of the organization summaries.
func (s *AdminStore) Organizations() []Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Organization, len(s.organizations))
	copy(out, s.organizations)
	return out
}

// TotalCount returns the unpaged match count of the last fetch.
func (s *AdminStore) TotalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalCount
}

// Filters returns the active filters.
func (s *AdminStore) Filters() OrderFilters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// Loading reports whether a fetch is in flight.
func (s *AdminStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LastError returns the most recent error message, empty after a success.
func (s *AdminStore) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// LastSuccess returns the most recent success message.
func (s *AdminStore) LastSuccess() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSuccess
}

// ClearMessages resets both status messages.
func (s *AdminStore) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
	s.lastSuccess = ""
}
