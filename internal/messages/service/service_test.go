package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"colorgarb_portal_backend/internal/events"
	"colorgarb_portal_backend/internal/messages/repository"
	"colorgarb_portal_backend/platform/apperr"

	"github.com/google/uuid"
)

type fakeStore struct {
	orders   map[uuid.UUID]repository.OrderRef
	messages []repository.Message
	reads    map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders: make(map[uuid.UUID]repository.OrderRef),
		reads:  make(map[string]time.Time),
	}
}

func (f *fakeStore) GetOrderRef(ctx context.Context, orderID uuid.UUID) (repository.OrderRef, error) {
	ref, ok := f.orders[orderID]
	if !ok {
		return repository.OrderRef{}, apperr.NotFound("order not found")
	}
	return ref, nil
}

func (f *fakeStore) Create(ctx context.Context, p repository.CreateParams) (repository.Message, error) {
	m := repository.Message{
		ID:            uuid.New(),
		OrderID:       p.OrderID,
		SenderID:      p.SenderID,
		SenderName:    p.SenderName,
		SenderRole:    p.SenderRole,
		RecipientRole: p.RecipientRole,
		Content:       p.Content,
		CreatedAt:     time.Now(),
	}
	f.messages = append(f.messages, m)
	return m, nil
}

func (f *fakeStore) ListThread(ctx context.Context, orderID, readerID uuid.UUID, page, pageSize int) ([]repository.Message, int, error) {
	var out []repository.Message
	for _, m := range f.messages {
		if m.OrderID == orderID {
			out = append(out, m)
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) Search(ctx context.Context, orderID, readerID uuid.UUID, term string, limit int) ([]repository.Message, error) {
	var out []repository.Message
	for _, m := range f.messages {
		if m.OrderID == orderID && strings.Contains(strings.ToLower(m.Content), strings.ToLower(term)) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, messageID, userID uuid.UUID) error {
	key := messageID.String() + ":" + userID.String()
	if _, ok := f.reads[key]; !ok {
		f.reads[key] = time.Now()
	}
	return nil
}

func (f *fakeStore) UnreadCount(ctx context.Context, orderID, readerID uuid.UUID) (int, error) {
	count := 0
	for _, m := range f.messages {
		if m.OrderID != orderID || m.SenderID == readerID {
			continue
		}
		if _, ok := f.reads[m.ID.String()+":"+readerID.String()]; !ok {
			count++
		}
	}
	return count, nil
}

type fakeHistory struct {
	entries map[string][]repository.SearchEntry
	fail    bool
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{entries: make(map[string][]repository.SearchEntry)}
}

func historyKey(userID, orderID uuid.UUID) string {
	return userID.String() + ":" + orderID.String()
}

func (f *fakeHistory) Record(ctx context.Context, userID, orderID uuid.UUID, term string, resultCount int) (repository.SearchEntry, error) {
	if f.fail {
		return repository.SearchEntry{}, apperr.Internal("history unavailable")
	}
	entry := repository.SearchEntry{
		ID:          uuid.New(),
		SearchTerm:  term,
		Timestamp:   time.Now(),
		ResultCount: resultCount,
	}
	key := historyKey(userID, orderID)
	f.entries[key] = append([]repository.SearchEntry{entry}, f.entries[key]...)
	return entry, nil
}

func (f *fakeHistory) List(ctx context.Context, userID, orderID uuid.UUID) ([]repository.SearchEntry, error) {
	return f.entries[historyKey(userID, orderID)], nil
}

func (f *fakeHistory) Clear(ctx context.Context, userID, orderID uuid.UUID) error {
	delete(f.entries, historyKey(userID, orderID))
	return nil
}

type fakeBus struct {
	events []events.Event
}

func (b *fakeBus) Publish(ctx context.Context, e events.Event)            { b.events = append(b.events, e) }
func (b *fakeBus) PublishSync(ctx context.Context, e events.Event) error  { b.Publish(ctx, e); return nil }
func (b *fakeBus) Subscribe(eventName string, h events.Handler)           {}

func setup() (*fakeStore, *fakeHistory, *fakeBus, *Service, repository.OrderRef) {
	store := newFakeStore()
	history := newFakeHistory()
	bus := &fakeBus{}
	svc := New(store, history, bus, nil)

	ref := repository.OrderRef{
		ID:             uuid.New(),
		OrderNumber:    "CG-2026-0042",
		OrganizationID: uuid.New(),
	}
	store.orders[ref.ID] = ref
	return store, history, bus, svc, ref
}

func staffReader() Reader {
	return Reader{UserID: uuid.New(), Name: "ColorGarbStaff", Role: "ColorGarbStaff", Staff: true}
}

func clientReader(orgID uuid.UUID) Reader {
	return Reader{UserID: uuid.New(), Name: "Director", Role: "Director", OrganizationID: &orgID}
}

func TestSendPublishesEvent(t *testing.T) {
	_, _, bus, svc, ref := setup()

	msg, err := svc.Send(context.Background(), ref.ID, staffReader(), "Proof approved, moving to measurements.", "Director")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.Content != "Proof approved, moving to measurements." {
		t.Errorf("content = %q", msg.Content)
	}

	if len(bus.events) != 1 {
		t.Fatalf("events = %d, want 1", len(bus.events))
	}
	sent, ok := bus.events[0].(events.MessageSent)
	if !ok {
		t.Fatalf("event type = %T", bus.events[0])
	}
	if sent.OrderID != ref.ID || sent.OrderNumber != ref.OrderNumber {
		t.Errorf("event order = %s/%s", sent.OrderID, sent.OrderNumber)
	}
	if sent.Excerpt == "" {
		t.Error("event excerpt empty")
	}
}

func TestSendValidation(t *testing.T) {
	_, _, _, svc, ref := setup()

	if _, err := svc.Send(context.Background(), ref.ID, staffReader(), "   ", ""); apperr.GetKind(err) != apperr.KindValidation {
		t.Errorf("blank content err = %v, want validation", err)
	}

	long := strings.Repeat("x", ContentMaxLen+1)
	if _, err := svc.Send(context.Background(), ref.ID, staffReader(), long, ""); apperr.GetKind(err) != apperr.KindValidation {
		t.Errorf("oversize content err = %v, want validation", err)
	}
}

func TestThreadScoping(t *testing.T) {
	_, _, _, svc, ref := setup()

	// A client in the owning organization sees the thread.
	if _, err := svc.Thread(context.Background(), ref.ID, clientReader(ref.OrganizationID), 1, 20); err != nil {
		t.Errorf("same-org client: %v", err)
	}

	// A client in another organization gets not-found, not forbidden.
	_, err := svc.Thread(context.Background(), ref.ID, clientReader(uuid.New()), 1, 20)
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Errorf("cross-org client err = %v, want not found", err)
	}

	// Staff see every thread.
	if _, err := svc.Thread(context.Background(), ref.ID, staffReader(), 1, 20); err != nil {
		t.Errorf("staff: %v", err)
	}
}

func TestThreadUnreadCount(t *testing.T) {
	store, _, _, svc, ref := setup()
	staff := staffReader()
	client := clientReader(ref.OrganizationID)

	svc.Send(context.Background(), ref.ID, staff, "first", "")
	svc.Send(context.Background(), ref.ID, staff, "second", "")

	page, err := svc.Thread(context.Background(), ref.ID, client, 1, 20)
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if page.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2", page.UnreadCount)
	}

	if err := svc.MarkRead(context.Background(), ref.ID, store.messages[0].ID, client); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	// Idempotent.
	if err := svc.MarkRead(context.Background(), ref.ID, store.messages[0].ID, client); err != nil {
		t.Fatalf("MarkRead repeat: %v", err)
	}

	page, _ = svc.Thread(context.Background(), ref.ID, client, 1, 20)
	if page.UnreadCount != 1 {
		t.Errorf("unread after read = %d, want 1", page.UnreadCount)
	}
}

func TestSearchRecordsHistory(t *testing.T) {
	_, _, _, svc, ref := setup()
	reader := staffReader()

	svc.Send(context.Background(), ref.ID, reader, "The fabric swatch shipped today.", "")
	svc.Send(context.Background(), ref.ID, reader, "Measurements are due Friday.", "")

	result, err := svc.Search(context.Background(), ref.ID, reader, "fabric")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Errorf("hits = %d, want 1", len(result.Messages))
	}
	if result.Entry.SearchTerm != "fabric" || result.Entry.ResultCount != 1 {
		t.Errorf("entry = %+v", result.Entry)
	}

	entries, err := svc.SearchHistory(context.Background(), ref.ID, reader)
	if err != nil {
		t.Fatalf("SearchHistory: %v", err)
	}
	if len(entries) != 1 || entries[0].SearchTerm != "fabric" {
		t.Errorf("history = %+v", entries)
	}

	if err := svc.ClearSearchHistory(context.Background(), ref.ID, reader); err != nil {
		t.Fatalf("ClearSearchHistory: %v", err)
	}
	entries, _ = svc.SearchHistory(context.Background(), ref.ID, reader)
	if len(entries) != 0 {
		t.Errorf("history after clear = %+v", entries)
	}
}

func TestSearchSurvivesHistoryFailure(t *testing.T) {
	_, history, _, svc, ref := setup()
	history.fail = true
	reader := staffReader()

	svc.Send(context.Background(), ref.ID, reader, "Quality control passed.", "")

	result, err := svc.Search(context.Background(), ref.ID, reader, "quality")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Errorf("hits = %d, want 1", len(result.Messages))
	}
}

func TestSearchRequiresTerm(t *testing.T) {
	_, _, _, svc, ref := setup()

	_, err := svc.Search(context.Background(), ref.ID, staffReader(), "  ")
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Errorf("err = %v, want validation", err)
	}
}
