package activity

import (
	"context"
	"maps"

	"github.com/matthewbaird/advisorlens/internal/daterange"
	"github.com/matthewbaird/advisorlens/internal/types"
)

// LocalSource serves feed pages straight from a Store, with the same shape
// the remote API client offers. It lets the explorer run without a remote API.
type LocalSource struct {
	store Store
}

// NewLocalSource creates a LocalSource over store.
func NewLocalSource(store Store) *LocalSource {
	return &LocalSource{store: store}
}

// FetchPage returns one page of feedID. q.Filters is parsed like the query
// string of the page endpoint.
func (s *LocalSource) FetchPage(ctx context.Context, feedID string, q types.PageQuery) (types.FeedPage, error) {
	params := maps.Clone(q.Filters)
	if params == nil {
		params = make(map[string]string)
	}
	delete(params, ParamLimit)
	delete(params, ParamCursor)

	opts, err := ParsePageOptions(params)
	if err != nil {
		return types.FeedPage{}, err
	}
	opts.Limit = q.Limit
	opts.Cursor = q.Cursor

	entries, next, err := s.store.Page(ctx, feedID, opts)
	if err != nil {
		return types.FeedPage{}, err
	}
	return types.NewFeedPage(entries, next), nil
}

// Availability returns the date span of feedID.
func (s *LocalSource) Availability(ctx context.Context, feedID string) (daterange.Availability, error) {
	return s.store.Availability(ctx, feedID)
}
