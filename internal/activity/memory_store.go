package activity

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/matthewbaird/advisorlens/internal/daterange"
	"github.com/matthewbaird/advisorlens/internal/types"
)

// MemoryStore implements Store using in-memory slices.
// Intended for demos and tests; no database required.
type MemoryStore struct {
	mu    sync.RWMutex
	feeds map[string][]types.AuditEntry // kept sorted newest first
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{feeds: make(map[string][]types.AuditEntry)}
}

func (s *MemoryStore) Append(_ context.Context, entries []types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]bool)
	for _, e := range entries {
		feed := s.feeds[e.FeedID]
		if slices.ContainsFunc(feed, func(x types.AuditEntry) bool { return x.ID == e.ID }) {
			continue
		}
		s.feeds[e.FeedID] = append(feed, e)
		touched[e.FeedID] = true
	}
	for id := range touched {
		feed := s.feeds[id]
		sort.Slice(feed, func(i, j int) bool {
			a, b := feed[i].OccurredAt.UnixNano(), feed[j].OccurredAt.UnixNano()
			if a != b {
				return a > b
			}
			return feed[i].ID > feed[j].ID
		})
	}
	return nil
}

func (s *MemoryStore) Page(_ context.Context, feedID string, opts PageOptions) ([]types.AuditEntry, string, error) {
	var after *cursor
	if opts.Cursor != "" {
		c, err := decodeCursor(opts.Cursor)
		if err != nil {
			return nil, "", err
		}
		after = &c
	}
	limit := opts.limit()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []types.AuditEntry
	for _, e := range s.feeds[feedID] {
		if after != nil && !after.after(e.OccurredAt.UnixNano(), e.ID) {
			continue
		}
		if len(opts.Kinds) > 0 && !slices.Contains(opts.Kinds, e.Kind) {
			continue
		}
		if opts.Actor != "" && e.Actor != opts.Actor {
			continue
		}
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.OccurredAt.After(*opts.Until) {
			continue
		}
		matched = append(matched, e)
		if len(matched) > limit {
			break
		}
	}

	var next string
	if len(matched) > limit {
		matched = matched[:limit]
		last := matched[len(matched)-1]
		next = encodeCursor(last.OccurredAt, last.ID)
	}
	return matched, next, nil
}

func (s *MemoryStore) Availability(_ context.Context, feedID string) (daterange.Availability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	feed := s.feeds[feedID]
	if len(feed) == 0 {
		return daterange.Availability{}, nil
	}
	return availability(feed[len(feed)-1].OccurredAt, feed[0].OccurredAt), nil
}
