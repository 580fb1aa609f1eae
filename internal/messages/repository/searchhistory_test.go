package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestHistory(t *testing.T) *SearchHistory {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewSearchHistory(rdb)
}

func TestSearchHistoryRecordAndList(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()
	userID, orderID := uuid.New(), uuid.New()

	if _, err := h.Record(ctx, userID, orderID, "fabric swatch", 3); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := h.Record(ctx, userID, orderID, "ship date", 0); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := h.List(ctx, userID, orderID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].SearchTerm != "ship date" {
		t.Errorf("newest entry = %q, want most recent search first", entries[0].SearchTerm)
	}
	if entries[0].ResultCount != 0 {
		t.Errorf("resultCount = %d, want 0", entries[0].ResultCount)
	}
	if entries[1].SearchTerm != "fabric swatch" || entries[1].ResultCount != 3 {
		t.Errorf("older entry = %+v", entries[1])
	}
	if entries[0].ID == uuid.Nil {
		t.Error("entry id not assigned")
	}
}

func TestSearchHistoryCap(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()
	userID, orderID := uuid.New(), uuid.New()

	for i := 0; i < SearchHistoryMax+5; i++ {
		if _, err := h.Record(ctx, userID, orderID, fmt.Sprintf("term-%d", i), i); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := h.List(ctx, userID, orderID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != SearchHistoryMax {
		t.Fatalf("entries = %d, want cap of %d", len(entries), SearchHistoryMax)
	}
	if entries[0].SearchTerm != fmt.Sprintf("term-%d", SearchHistoryMax+4) {
		t.Errorf("newest = %q, want the last recorded term", entries[0].SearchTerm)
	}
	// The oldest surviving entry is the one just inside the cap.
	if entries[len(entries)-1].SearchTerm != "term-5" {
		t.Errorf("oldest = %q, want term-5", entries[len(entries)-1].SearchTerm)
	}
}

func TestSearchHistoryScopedPerUserAndOrder(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()
	user1, user2 := uuid.New(), uuid.New()
	order1, order2 := uuid.New(), uuid.New()

	h.Record(ctx, user1, order1, "alpha", 1)
	h.Record(ctx, user2, order1, "beta", 2)
	h.Record(ctx, user1, order2, "gamma", 3)

	entries, err := h.List(ctx, user1, order1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].SearchTerm != "alpha" {
		t.Errorf("user1/order1 history = %+v, want only alpha", entries)
	}
}

func TestSearchHistoryClear(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()
	userID, orderID := uuid.New(), uuid.New()

	h.Record(ctx, userID, orderID, "cleanup", 7)
	if err := h.Clear(ctx, userID, orderID); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	entries, err := h.List(ctx, userID, orderID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries after clear = %d, want 0", len(entries))
	}

	// Clearing an empty history is not an error.
	if err := h.Clear(ctx, userID, orderID); err != nil {
		t.Errorf("Clear on empty: %v", err)
	}
}
