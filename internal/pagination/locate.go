package pagination

import "context"

// DefaultMaxExtraAttempts bounds the pages Locate fetches after the first.
const DefaultMaxExtraAttempts = 3

// MatchMode selects which records Locate compares against the target id.
type MatchMode int

const (
	// MatchRaw finds the target in the unfiltered page, even when it does
	// not satisfy the display predicate.
	MatchRaw MatchMode = iota
	// MatchFiltered only finds the target among predicate matches.
	MatchFiltered
)

func (m MatchMode) String() string {
	if m == MatchFiltered {
		return "filtered"
	}
	return "raw"
}

// Found describes a located record.
type Found[T any] struct {
	Item T
	// Position is the index of Item in the collected items, or -1 when it
	// was matched raw and is filtered out of the display.
	Position int
	// Page is the 1-based page the record arrived on.
	Page int
}

// LocateRequest configures Locate.
type LocateRequest[T any] struct {
	Predicate Predicate[T]
	TargetID  string
	Cursor    string
	Match     MatchMode
	// MaxExtraAttempts is the number of pages fetched after the first;
	// <= 0 means DefaultMaxExtraAttempts.
	MaxExtraAttempts int
	// OnFound is called once, before Locate returns, when the target is
	// found. It is how a view highlights or scrolls to the record.
	OnFound func(Found[T])
}

// LocateResult is the outcome of Locate. Found is nil when the target was
// not found within the attempt budget.
type LocateResult[T any] struct {
	Result[T]
	Found    *Found[T]
	Attempts int
}

// Locate pages through the feed until the record with req.TargetID appears,
// the feed is exhausted, or MaxExtraAttempts further pages were fetched.
// It performs at most MaxExtraAttempts+1 fetches regardless of feed size.
func (a *Aggregator[T]) Locate(ctx context.Context, req LocateRequest[T]) (LocateResult[T], error) {
	if req.TargetID == "" {
		return LocateResult[T]{}, ErrNoTarget
	}
	budget := req.MaxExtraAttempts
	if budget <= 0 {
		budget = DefaultMaxExtraAttempts
	}

	s := newState(a.key, req.Cursor)
	for {
		page, err := a.next(ctx, s, req.Predicate)
		if err != nil {
			return LocateResult[T]{Result: s.result(0), Attempts: s.attempts}, err
		}
		if found, ok := a.find(s, page, req); ok {
			if req.OnFound != nil {
				req.OnFound(found)
			}
			return LocateResult[T]{Result: s.result(0), Found: &found, Attempts: s.attempts}, nil
		}
		if s.exhausted || s.attempts >= budget {
			return LocateResult[T]{Result: s.result(0), Attempts: s.attempts}, nil
		}
		s.attempts++
	}
}

func (a *Aggregator[T]) find(s *state[T], page Page[T], req LocateRequest[T]) (Found[T], bool) {
	pos, collected := s.index[req.TargetID]
	if req.Match == MatchFiltered {
		if !collected {
			return Found[T]{}, false
		}
		return Found[T]{Item: s.collected[pos], Position: pos, Page: s.pages}, true
	}
	for _, item := range page.Items {
		if a.key(item) != req.TargetID {
			continue
		}
		if !collected {
			pos = -1
		}
		return Found[T]{Item: item, Position: pos, Page: s.pages}, true
	}
	return Found[T]{}, false
}
