// Package transport defines the wire DTOs for the messages module.
package transport

import (
	"time"

	"colorgarb_portal_backend/internal/messages/repository"
	"colorgarb_portal_backend/internal/messages/service"

	"github.com/google/uuid"
)

// MessageResponse is one thread message.
type MessageResponse struct {
	ID            uuid.UUID  `json:"id"`
	OrderID       uuid.UUID  `json:"orderId"`
	SenderID      uuid.UUID  `json:"senderId"`
	SenderName    string     `json:"senderName"`
	SenderRole    string     `json:"senderRole"`
	RecipientRole string     `json:"recipientRole,omitempty"`
	Content       string     `json:"content"`
	CreatedAt     time.Time  `json:"createdAt"`
	ReadAt        *time.Time `json:"readAt,omitempty"`
}

// ThreadResponse is one page of an order's message thread.
type ThreadResponse struct {
	Messages    []MessageResponse `json:"messages"`
	TotalCount  int               `json:"totalCount"`
	UnreadCount int               `json:"unreadCount"`
	Page        int               `json:"page"`
	PageSize    int               `json:"pageSize"`
}

// SendMessageRequest posts a new message to the thread.
type SendMessageRequest struct {
	Content       string `json:"content" validate:"required,max=5000"`
	RecipientRole string `json:"recipientRole" validate:"omitempty,oneof=Director Finance ColorGarbStaff"`
}

// SearchEntryResponse is one recorded search.
type SearchEntryResponse struct {
	ID          uuid.UUID `json:"id"`
	SearchTerm  string    `json:"searchTerm"`
	Timestamp   time.Time `json:"timestamp"`
	ResultCount int       `json:"resultCount"`
}

// SearchResponse carries search hits plus the history entry the search wrote.
type SearchResponse struct {
	Messages []MessageResponse   `json:"messages"`
	Entry    SearchEntryResponse `json:"entry"`
}

// SearchHistoryResponse lists recent searches, newest first.
type SearchHistoryResponse struct {
	Entries []SearchEntryResponse `json:"entries"`
}

// ToMessageResponse maps a repository message to the wire shape.
func ToMessageResponse(m repository.Message) MessageResponse {
	return MessageResponse{
		ID:            m.ID,
		OrderID:       m.OrderID,
		SenderID:      m.SenderID,
		SenderName:    m.SenderName,
		SenderRole:    m.SenderRole,
		RecipientRole: m.RecipientRole,
		Content:       m.Content,
		CreatedAt:     m.CreatedAt,
		ReadAt:        m.ReadAt,
	}
}

// ToThreadResponse maps a thread page to the wire shape.
func ToThreadResponse(page service.ThreadPage) ThreadResponse {
	messages := make([]MessageResponse, len(page.Messages))
	for i, m := range page.Messages {
		messages[i] = ToMessageResponse(m)
	}
	return ThreadResponse{
		Messages:    messages,
		TotalCount:  page.TotalCount,
		UnreadCount: page.UnreadCount,
		Page:        page.Page,
		PageSize:    page.PageSize,
	}
}

// ToSearchEntryResponse maps a history entry to the wire shape.
func ToSearchEntryResponse(e repository.SearchEntry) SearchEntryResponse {
	return SearchEntryResponse{
		ID:          e.ID,
		SearchTerm:  e.SearchTerm,
		Timestamp:   e.Timestamp,
		ResultCount: e.ResultCount,
	}
}

// ToSearchResponse maps a search result to the wire shape.
func ToSearchResponse(res service.SearchResult) SearchResponse {
	messages := make([]MessageResponse, len(res.Messages))
	for i, m := range res.Messages {
		messages[i] = ToMessageResponse(m)
	}
	return SearchResponse{
		Messages: messages,
		Entry:    ToSearchEntryResponse(res.Entry),
	}
}
