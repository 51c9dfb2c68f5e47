package activity

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Filter keys understood by ParsePageOptions.
const (
	ParamLimit     = "limit"
	ParamCursor    = "cursor"
	ParamEventType = "event_type"
	ParamActor     = "actor"
	ParamSince     = "since"
	ParamUntil     = "until"
)

// ErrInvalidCursor is returned for a cursor this store did not issue.
var ErrInvalidCursor = errors.New("activity: invalid cursor")

// PageOptions controls filtering and pagination of a feed page.
type PageOptions struct {
	Limit  int        // default 50, max 500
	Cursor string     // opaque, from a previous page
	Kinds  []string   // only these kinds; empty means all
	Actor  string     // only this actor
	Since  *time.Time // occurred_at >= Since
	Until  *time.Time // occurred_at <= Until
}

func (o PageOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultLimit
	}
	if o.Limit > MaxLimit {
		return MaxLimit
	}
	return o.Limit
}

// ParsePageOptions builds PageOptions from query parameters. since and until
// accept RFC 3339 timestamps or YYYY-MM-DD dates; a date until covers the
// whole day.
func ParsePageOptions(params map[string]string) (PageOptions, error) {
	var opts PageOptions
	if l := params[ParamLimit]; l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return opts, fmt.Errorf("invalid limit %q", l)
		}
		opts.Limit = n
	}
	opts.Cursor = params[ParamCursor]
	if k := params[ParamEventType]; k != "" {
		opts.Kinds = strings.Split(k, ",")
	}
	opts.Actor = params[ParamActor]
	if s := params[ParamSince]; s != "" {
		t, _, err := parseBound(s)
		if err != nil {
			return opts, fmt.Errorf("invalid since: %w", err)
		}
		opts.Since = &t
	}
	if u := params[ParamUntil]; u != "" {
		t, dateOnly, err := parseBound(u)
		if err != nil {
			return opts, fmt.Errorf("invalid until: %w", err)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		opts.Until = &t
	}
	return opts, nil
}

func parseBound(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, false, err
}

// cursor is the keyset position of the last entry of a page. Pages are
// ordered by (occurred_at DESC, id DESC).
type cursor struct {
	nanos int64
	id    string
}

func encodeCursor(occurredAt time.Time, id string) string {
	raw := strconv.FormatInt(occurredAt.UnixNano(), 10) + ":" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return cursor{}, ErrInvalidCursor
	}
	nanos, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return cursor{}, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return cursor{}, ErrInvalidCursor
	}
	return cursor{nanos: n, id: id}, nil
}

// after reports whether an entry at (nanos, id) sorts after c.
func (c cursor) after(nanos int64, id string) bool {
	return nanos < c.nanos || (nanos == c.nanos && id < c.id)
}
