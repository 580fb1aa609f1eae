package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"colorgarb_portal_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SearchHistoryMax caps how many recent searches are kept per user and order.
const SearchHistoryMax = 10

// searchHistoryTTL expires abandoned histories instead of keeping them forever.
const searchHistoryTTL = 90 * 24 * time.Hour

// SearchEntry is one recorded message search.
type SearchEntry struct {
	ID          uuid.UUID `json:"id"`
	SearchTerm  string    `json:"searchTerm"`
	Timestamp   time.Time `json:"timestamp"`
	ResultCount int       `json:"resultCount"`
}

// SearchHistory stores recent message searches per (user, order) as a capped
// Redis list, newest first.
type SearchHistory struct {
	rdb *redis.Client
}

// NewSearchHistory creates the search history store.
func NewSearchHistory(rdb *redis.Client) *SearchHistory {
	return &SearchHistory{rdb: rdb}
}

func searchHistoryKey(userID, orderID uuid.UUID) string {
	return fmt.Sprintf("messages:search-history:%s:%s", userID, orderID)
}

// Record prepends a search to the history and trims it to the cap.
func (h *SearchHistory) Record(ctx context.Context, userID, orderID uuid.UUID, term string, resultCount int) (SearchEntry, error) {
	entry := SearchEntry{
		ID:          uuid.New(),
		SearchTerm:  term,
		Timestamp:   time.Now().UTC(),
		ResultCount: resultCount,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return SearchEntry{}, apperr.Wrap(apperr.KindInternal, "encode search history entry", err)
	}

	key := searchHistoryKey(userID, orderID)
	pipe := h.rdb.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, SearchHistoryMax-1)
	pipe.Expire(ctx, key, searchHistoryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return SearchEntry{}, apperr.Wrap(apperr.KindInternal, "record search history entry", err)
	}
	return entry, nil
}

// List returns the stored searches, newest first.
func (h *SearchHistory) List(ctx context.Context, userID, orderID uuid.UUID) ([]SearchEntry, error) {
	raw, err := h.rdb.LRange(ctx, searchHistoryKey(userID, orderID), 0, SearchHistoryMax-1).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load search history", err)
	}

	entries := make([]SearchEntry, 0, len(raw))
	for _, item := range raw {
		var entry SearchEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			// Skip entries written by incompatible versions.
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Clear removes the history for one user and order.
func (h *SearchHistory) Clear(ctx context.Context, userID, orderID uuid.UUID) error {
	if err := h.rdb.Del(ctx, searchHistoryKey(userID, orderID)).Err(); err != nil {
		return apperr.Wrap(apperr.KindInternal, "clear search history", err)
	}
	return nil
}
