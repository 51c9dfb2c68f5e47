package catalog

import (
	"time"

	"github.com/matthewbaird/advisorlens/internal/activity"
	"github.com/matthewbaird/advisorlens/internal/apiclient"
	"github.com/matthewbaird/advisorlens/internal/daterange"
	"github.com/matthewbaird/advisorlens/internal/pagination"
	"github.com/matthewbaird/advisorlens/internal/types"
)

// MatchMode returns the pagination match mode of the view's locate budget.
func (v View) MatchMode() pagination.MatchMode {
	if v.Locate.Match == "raw" {
		return pagination.MatchRaw
	}
	return pagination.MatchFiltered
}

// FeedID returns the id of the view's feed for business.
func (v View) FeedID(business string) string {
	return activity.FeedID(business, v.Feed)
}

// Predicate returns the display predicate of v under filters f, whose date
// range has already been resolved to r. The upstream feed filters by date
// too; the predicate repeats the check so a source that ignores since/until
// still yields in-range entries only.
func (v View) Predicate(f daterange.Filters, r daterange.Range) pagination.Predicate[types.AuditEntry] {
	return func(e types.AuditEntry) bool {
		if !v.Allows(e.Kind) {
			return false
		}
		day := e.OccurredAt.UTC().Format(time.DateOnly)
		if day < r.Start || day > r.End {
			return false
		}
		if f.Account != "" && e.Account != f.Account {
			return false
		}
		if f.Category != "" && e.Category != f.Category {
			return false
		}
		if f.Direction != "" && e.Direction() != f.Direction {
			return false
		}
		return e.MatchesText(f.Query)
	}
}

// Upstream returns the server-side filters sent with every page request.
func Upstream(r daterange.Range) map[string]string {
	return map[string]string{
		activity.ParamSince: r.Start,
		activity.ParamUntil: r.End,
	}
}

// Aggregator returns an aggregator over the view's feed for business,
// restricted upstream to r.
func (v View) Aggregator(src apiclient.PageSource, business string, r daterange.Range) *pagination.Aggregator[types.AuditEntry] {
	fetch := apiclient.Fetcher(src, v.FeedID(business), v.PageSize, Upstream(r))
	return pagination.New(fetch, types.EntryID)
}

// AccumulateRequest builds the accumulate request of v. A positive n
// overrides the view's target.
func (v View) AccumulateRequest(f daterange.Filters, r daterange.Range, n int, cursor string) pagination.AccumulateRequest[types.AuditEntry] {
	target := v.Target
	if n > 0 {
		target = n
	}
	return pagination.AccumulateRequest[types.AuditEntry]{
		Predicate: v.Predicate(f, r),
		Target:    target,
		Cursor:    cursor,
	}
}

// LocateRequest builds the locate request of v for the entry id.
func (v View) LocateRequest(f daterange.Filters, r daterange.Range, id, cursor string) pagination.LocateRequest[types.AuditEntry] {
	return pagination.LocateRequest[types.AuditEntry]{
		Predicate:        v.Predicate(f, r),
		TargetID:         id,
		Cursor:           cursor,
		Match:            v.MatchMode(),
		MaxExtraAttempts: v.Locate.MaxExtraAttempts,
	}
}
