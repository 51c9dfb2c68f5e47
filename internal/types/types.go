// Package types provides the wire shapes shared by the feed store, the API
// client and the explorer handlers.
package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AuditEntry is one record of an append-only, cursor-paginated feed
// (audit log, signals, transactions). Only ID is significant to pagination;
// the remaining fields feed display predicates.
type AuditEntry struct {
	ID         string           `json:"id"`
	FeedID     string           `json:"feed_id"`
	Kind       string           `json:"kind"` // e.g. "plan.updated", "signal.raised", "txn.posted"
	OccurredAt time.Time        `json:"occurred_at"`
	Actor      string           `json:"actor,omitempty"`
	Account    string           `json:"account,omitempty"`
	Category   string           `json:"category,omitempty"`
	Summary    string           `json:"summary"`
	Amount     *decimal.Decimal `json:"amount,omitempty"` // signed; negative is an outflow
	Payload    json.RawMessage  `json:"payload,omitempty"`
}

// EntryID returns the id of e. It is the pagination key of every feed.
func EntryID(e AuditEntry) string { return e.ID }

// Direction values accepted by the "direction" filter.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Direction classifies e by the sign of its amount: "in", "out", or "" when
// the entry carries no amount or a zero amount.
func (e AuditEntry) Direction() string {
	if e.Amount == nil {
		return ""
	}
	switch e.Amount.Sign() {
	case 1:
		return DirectionIn
	case -1:
		return DirectionOut
	}
	return ""
}

// MatchesText reports whether q occurs in the summary, kind or actor of e,
// ignoring case.
func (e AuditEntry) MatchesText(q string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	for _, s := range []string{e.Summary, e.Kind, e.Actor} {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

// FeedPage is the JSON body of a page request. NextCursor is null once the
// feed is exhausted.
type FeedPage struct {
	Items      []AuditEntry `json:"items"`
	NextCursor *string      `json:"next_cursor"`
}

// NewFeedPage builds a FeedPage, mapping the empty cursor to null.
func NewFeedPage(items []AuditEntry, next string) FeedPage {
	if items == nil {
		items = []AuditEntry{}
	}
	p := FeedPage{Items: items}
	if next != "" {
		p.NextCursor = &next
	}
	return p
}

// Cursor returns the next cursor, or "" when the feed is exhausted.
func (p FeedPage) Cursor() string {
	if p.NextCursor == nil {
		return ""
	}
	return *p.NextCursor
}

// PageQuery is a request for one page of a feed. Filters carries server-side
// filter parameters (event_type, actor, since, until) verbatim.
type PageQuery struct {
	Cursor  string
	Limit   int
	Filters map[string]string
}
