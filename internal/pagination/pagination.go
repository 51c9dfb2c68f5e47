// Package pagination converges on filtered results from cursor-paginated
// feeds that cannot filter at the source.
//
// Pages of one run are always fetched sequentially: each request carries the
// cursor returned by the previous response. Filtering, de-duplication and the
// termination checks run between fetches, so a run has no internal
// concurrency. Runs that compete for the same view are arbitrated by Guard.
package pagination

import (
	"context"
	"errors"
	"fmt"
)

// DefaultTarget is the match count Accumulate gathers when the request does
// not set one.
const DefaultTarget = 25

var (
	// ErrCanceled marks a run stopped by its context. It is a notice, not a
	// failure: callers should not show error UI for it.
	ErrCanceled = errors.New("pagination: run canceled")

	// ErrStalledCursor is returned when a feed hands back the cursor it was
	// just called with, which would otherwise loop forever.
	ErrStalledCursor = errors.New("pagination: feed returned the requested cursor again")

	// ErrNoTarget is returned by Locate when no target id is given.
	ErrNoTarget = errors.New("pagination: locate requires a target id")
)

// IsCanceled reports whether err is a cancellation notice rather than a failure.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// Page is one response of a cursor-paginated feed. An empty NextCursor means
// the feed is exhausted. Cursors are opaque and passed back verbatim.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// FetchFunc fetches the page that starts at cursor. The empty cursor
// requests the first page. Implementations should abort in-flight I/O when
// ctx is canceled.
type FetchFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Predicate selects the records a view displays. A nil Predicate keeps everything.
type Predicate[T any] func(T) bool

// KeyFunc returns the id that identifies a record within its feed.
type KeyFunc[T any] func(T) string

// Result is the outcome of one run. It is valid even when the run also
// returns an error: Items then holds what earlier pages produced.
type Result[T any] struct {
	Items      []T
	NextCursor string
	Exhausted  bool
	Pages      int
}

// Aggregator drives a FetchFunc until enough matching records are collected
// or a target record is found.
type Aggregator[T any] struct {
	fetch FetchFunc[T]
	key   KeyFunc[T]
}

// New creates an Aggregator over fetch, identifying records with key.
func New[T any](fetch FetchFunc[T], key KeyFunc[T]) *Aggregator[T] {
	return &Aggregator[T]{fetch: fetch, key: key}
}

// state is the per-run aggregation state. index maps every collected id to
// its position in collected, so an id is never collected twice.
type state[T any] struct {
	key       KeyFunc[T]
	collected []T
	index     map[string]int
	cursor    string
	exhausted bool
	attempts  int
	pages     int
}

func newState[T any](key KeyFunc[T], cursor string) *state[T] {
	return &state[T]{
		key:    key,
		index:  make(map[string]int),
		cursor: cursor,
	}
}

func (s *state[T]) absorb(page Page[T], pred Predicate[T]) {
	for _, item := range page.Items {
		if pred != nil && !pred(item) {
			continue
		}
		id := s.key(item)
		if _, dup := s.index[id]; dup {
			continue
		}
		s.index[id] = len(s.collected)
		s.collected = append(s.collected, item)
	}
	s.cursor = page.NextCursor
	s.exhausted = page.NextCursor == ""
	s.pages++
}

func (s *state[T]) result(limit int) Result[T] {
	items := s.collected
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return Result[T]{
		Items:      items,
		NextCursor: s.cursor,
		Exhausted:  s.exhausted,
		Pages:      s.pages,
	}
}

// next fetches the page at the current cursor and absorbs it. Cancellation
// is checked before the fetch and again after it returns; a page that
// arrives after cancellation is dropped without touching s.
func (a *Aggregator[T]) next(ctx context.Context, s *state[T], pred Predicate[T]) (Page[T], error) {
	if err := ctx.Err(); err != nil {
		return Page[T]{}, fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	page, err := a.fetch(ctx, s.cursor)
	if cerr := ctx.Err(); cerr != nil {
		return Page[T]{}, fmt.Errorf("%w: %w", ErrCanceled, cerr)
	}
	if err != nil {
		return Page[T]{}, fmt.Errorf("fetching page %d: %w", s.pages+1, err)
	}
	if page.NextCursor != "" && page.NextCursor == s.cursor {
		return Page[T]{}, ErrStalledCursor
	}
	s.absorb(page, pred)
	return page, nil
}

// AccumulateRequest configures Accumulate.
type AccumulateRequest[T any] struct {
	Predicate Predicate[T]
	// Target is the number of matches to gather; <= 0 means DefaultTarget.
	Target int
	// Cursor resumes a previous run ("load more"). Empty starts at the head.
	Cursor string
}

// Accumulate pages through the feed until Target matches are collected or
// the feed is exhausted. It returns at most Target items; NextCursor points
// past the last fetched page, so matches beyond Target on that page are not
// returned by a follow-up call.
//
// The page count is bounded only by exhaustion: callers must bound the run
// with ctx. On failure the error is returned with the matches gathered so far.
func (a *Aggregator[T]) Accumulate(ctx context.Context, req AccumulateRequest[T]) (Result[T], error) {
	target := req.Target
	if target <= 0 {
		target = DefaultTarget
	}
	s := newState(a.key, req.Cursor)
	for {
		if _, err := a.next(ctx, s, req.Predicate); err != nil {
			return s.result(target), err
		}
		if len(s.collected) >= target || s.exhausted {
			return s.result(target), nil
		}
	}
}
