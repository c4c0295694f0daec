package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/relay/internal/domain"
)

// SearchMemoryInput contains the query. A zero query lists everything.
type SearchMemoryInput struct {
	MessageID *int64
	Keyword   string
	Limit     int // 0 means no limit
}

// SearchMemoryOutput contains the matching index entries, newest first.
type SearchMemoryOutput struct {
	Entries []domain.IndexEntry
}

// SearchMemory looks up past tasks in the memory index.
type SearchMemory struct {
	store domain.MemoryStore
}

// NewSearchMemory creates a new SearchMemory use case.
func NewSearchMemory(store domain.MemoryStore) *SearchMemory {
	return &SearchMemory{store: store}
}

// Execute runs the query.
func (uc *SearchMemory) Execute(ctx context.Context, in SearchMemoryInput) (*SearchMemoryOutput, error) {
	entries, err := uc.store.Search(ctx, domain.MemoryQuery{MessageID: in.MessageID, Keyword: in.Keyword})
	if err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}
	if in.Limit > 0 && len(entries) > in.Limit {
		entries = entries[:in.Limit]
	}
	return &SearchMemoryOutput{Entries: entries}, nil
}
