// Package service implements order messaging: threads, read receipts, and
// server-side search with per-user search history.
package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"colorgarb_portal_backend/internal/events"
	"colorgarb_portal_backend/internal/messages/repository"
	"colorgarb_portal_backend/platform/apperr"
	"colorgarb_portal_backend/platform/logger"

	"github.com/google/uuid"
)

// ContentMaxLen bounds message bodies.
const ContentMaxLen = 5000

// excerptLen is how much of a message body rides along on the sent event.
const excerptLen = 120

// searchResultLimit bounds a single search response.
const searchResultLimit = 50

// MessageStore is the persistence surface the service needs.
type MessageStore interface {
	GetOrderRef(ctx context.Context, orderID uuid.UUID) (repository.OrderRef, error)
	Create(ctx context.Context, p repository.CreateParams) (repository.Message, error)
	ListThread(ctx context.Context, orderID, readerID uuid.UUID, page, pageSize int) ([]repository.Message, int, error)
	Search(ctx context.Context, orderID, readerID uuid.UUID, term string, limit int) ([]repository.Message, error)
	MarkRead(ctx context.Context, messageID, userID uuid.UUID) error
	UnreadCount(ctx context.Context, orderID, readerID uuid.UUID) (int, error)
}

// HistoryStore records and serves recent searches.
type HistoryStore interface {
	Record(ctx context.Context, userID, orderID uuid.UUID, term string, resultCount int) (repository.SearchEntry, error)
	List(ctx context.Context, userID, orderID uuid.UUID) ([]repository.SearchEntry, error)
	Clear(ctx context.Context, userID, orderID uuid.UUID) error
}

// Reader identifies who is acting on a thread, with the scoping attributes.
type Reader struct {
	UserID         uuid.UUID
	Name           string
	Role           string
	OrganizationID *uuid.UUID
	Staff          bool
}

// Service implements messaging operations.
type Service struct {
	store   MessageStore
	history HistoryStore
	bus     events.Bus
	log     *logger.Logger
}

// New creates the messaging service.
func New(store MessageStore, history HistoryStore, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, history: history, bus: bus, log: log}
}

// authorize loads the order and checks that the reader may see its thread.
// Staff see every thread; clients only their own organization's.
func (s *Service) authorize(ctx context.Context, orderID uuid.UUID, reader Reader) (repository.OrderRef, error) {
	ref, err := s.store.GetOrderRef(ctx, orderID)
	if err != nil {
		return repository.OrderRef{}, err
	}
	if !reader.Staff {
		if reader.OrganizationID == nil || ref.OrganizationID != *reader.OrganizationID {
			return repository.OrderRef{}, apperr.NotFound("order not found")
		}
	}
	return ref, nil
}

// ThreadPage is one page of a thread plus the reader's unread count.
type ThreadPage struct {
	Messages    []repository.Message
	TotalCount  int
	UnreadCount int
	Page        int
	PageSize    int
}

// Thread returns one page of the order's message thread, newest first.
func (s *Service) Thread(ctx context.Context, orderID uuid.UUID, reader Reader, page, pageSize int) (ThreadPage, error) {
	if _, err := s.authorize(ctx, orderID, reader); err != nil {
		return ThreadPage{}, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	messages, total, err := s.store.ListThread(ctx, orderID, reader.UserID, page, pageSize)
	if err != nil {
		return ThreadPage{}, err
	}
	unread, err := s.store.UnreadCount(ctx, orderID, reader.UserID)
	if err != nil {
		return ThreadPage{}, err
	}

	return ThreadPage{
		Messages:    messages,
		TotalCount:  total,
		UnreadCount: unread,
		Page:        page,
		PageSize:    pageSize,
	}, nil
}

// Send posts a message to the order thread and publishes the sent event.
func (s *Service) Send(ctx context.Context, orderID uuid.UUID, reader Reader, content, recipientRole string) (repository.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return repository.Message{}, apperr.Validation("message content is required")
	}
	if utf8.RuneCountInString(content) > ContentMaxLen {
		return repository.Message{}, apperr.Validation("message content is too long")
	}

	ref, err := s.authorize(ctx, orderID, reader)
	if err != nil {
		return repository.Message{}, err
	}

	msg, err := s.store.Create(ctx, repository.CreateParams{
		OrderID:       orderID,
		SenderID:      reader.UserID,
		SenderName:    reader.Name,
		SenderRole:    reader.Role,
		RecipientRole: recipientRole,
		Content:       content,
	})
	if err != nil {
		return repository.Message{}, err
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.MessageSent{
			BaseEvent:      events.NewBaseEvent(),
			MessageID:      msg.ID,
			OrderID:        ref.ID,
			OrderNumber:    ref.OrderNumber,
			OrganizationID: ref.OrganizationID,
			SenderID:       reader.UserID,
			SenderName:     reader.Name,
			RecipientRole:  recipientRole,
			Excerpt:        excerpt(content),
		})
	}

	return msg, nil
}

// MarkRead records the reader's receipt for one message. Idempotent.
func (s *Service) MarkRead(ctx context.Context, orderID, messageID uuid.UUID, reader Reader) error {
	if _, err := s.authorize(ctx, orderID, reader); err != nil {
		return err
	}
	return s.store.MarkRead(ctx, messageID, reader.UserID)
}

// SearchResult is the outcome of one executed search.
type SearchResult struct {
	Messages []repository.Message
	Entry    repository.SearchEntry
}

// Search runs a content search over the thread and records it in the reader's
// search history. A history write failure does not fail the search.
func (s *Service) Search(ctx context.Context, orderID uuid.UUID, reader Reader, term string) (SearchResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return SearchResult{}, apperr.Validation("search term is required")
	}

	if _, err := s.authorize(ctx, orderID, reader); err != nil {
		return SearchResult{}, err
	}

	messages, err := s.store.Search(ctx, orderID, reader.UserID, term, searchResultLimit)
	if err != nil {
		return SearchResult{}, err
	}

	entry, err := s.history.Record(ctx, reader.UserID, orderID, term, len(messages))
	if err != nil && s.log != nil {
		s.log.Warn("search history record failed", "orderId", orderID.String(), "error", err.Error())
	}

	return SearchResult{Messages: messages, Entry: entry}, nil
}

// SearchHistory returns the reader's recent searches for the order.
func (s *Service) SearchHistory(ctx context.Context, orderID uuid.UUID, reader Reader) ([]repository.SearchEntry, error) {
	if _, err := s.authorize(ctx, orderID, reader); err != nil {
		return nil, err
	}
	return s.history.List(ctx, reader.UserID, orderID)
}

// ClearSearchHistory drops the reader's recent searches for the order.
func (s *Service) ClearSearchHistory(ctx context.Context, orderID uuid.UUID, reader Reader) error {
	if _, err := s.authorize(ctx, orderID, reader); err != nil {
		return err
	}
	return s.history.Clear(ctx, reader.UserID, orderID)
}

func excerpt(content string) string {
	if utf8.RuneCountInString(content) <= excerptLen {
		return content
	}
	runes := []rune(content)
	return string(runes[:excerptLen])
}
