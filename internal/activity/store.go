// Package activity stores the append-only feeds the explorer pages through
// and serves them with opaque keyset cursors.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/shopspring/decimal"

	"github.com/matthewbaird/advisorlens/internal/daterange"
	"github.com/matthewbaird/advisorlens/internal/types"
)

// Store is the interface for appending to and paging through feeds.
type Store interface {
	// Append writes entries. Entries whose (feed_id, id) already exist are skipped.
	Append(ctx context.Context, entries []types.AuditEntry) error

	// Page returns one page of a feed, newest first, and the cursor of the
	// next page ("" when the feed is exhausted).
	Page(ctx context.Context, feedID string, opts PageOptions) (entries []types.AuditEntry, nextCursor string, err error)

	// Availability returns the dates of the oldest and newest entry of a
	// feed. Both bounds are empty for an empty feed.
	Availability(ctx context.Context, feedID string) (daterange.Availability, error)
}

const entriesTable = "audit_entries"

var entryColumns = []string{
	"id", "feed_id", "kind", "occurred_at", "actor", "account", "category", "summary", "amount", "payload",
}

// SQLStore implements Store on SQLite or Postgres. occurred_at is stored as
// unix nanoseconds so ordering and keyset comparison are identical on both.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore creates a SQLStore. dialect is an entgo.io/ent/dialect name
// (dialect.SQLite or dialect.Postgres).
func NewSQLStore(db *sql.DB, dialect string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// CreateTable creates the audit_entries table and its feed index.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id          TEXT NOT NULL,
			feed_id     TEXT NOT NULL,
			kind        TEXT NOT NULL,
			occurred_at BIGINT NOT NULL,
			actor       TEXT NOT NULL DEFAULT '',
			account     TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT '',
			summary     TEXT NOT NULL,
			amount      TEXT,
			payload     TEXT,
			PRIMARY KEY (feed_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_entries_feed_time
			ON audit_entries (feed_id, occurred_at DESC, id DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating audit_entries: %w", err)
		}
	}
	return nil
}

// maxAppendRows keeps one INSERT under SQLite's bound-parameter limit.
const maxAppendRows = 500

// Append inserts entries in batches of maxAppendRows rows.
func (s *SQLStore) Append(ctx context.Context, entries []types.AuditEntry) error {
	for len(entries) > 0 {
		n := min(len(entries), maxAppendRows)
		if err := s.appendBatch(ctx, entries[:n]); err != nil {
			return err
		}
		entries = entries[n:]
	}
	return nil
}

func (s *SQLStore) appendBatch(ctx context.Context, entries []types.AuditEntry) error {
	ins := entsql.Dialect(s.dialect).
		Insert(entriesTable).
		Columns(entryColumns...)
	for _, e := range entries {
		var amount, payload any
		if e.Amount != nil {
			amount = e.Amount.String()
		}
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		ins.Values(e.ID, e.FeedID, e.Kind, e.OccurredAt.UnixNano(), e.Actor, e.Account, e.Category, e.Summary, amount, payload)
	}
	ins.OnConflict(entsql.ConflictColumns("feed_id", "id"), entsql.DoNothing())

	query, args := ins.Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("appending audit entries: %w", err)
	}
	return nil
}

// Page returns one page of feedID with filtering and keyset pagination.
func (s *SQLStore) Page(ctx context.Context, feedID string, opts PageOptions) ([]types.AuditEntry, string, error) {
	limit := opts.limit()

	preds := []*entsql.Predicate{entsql.EQ("feed_id", feedID)}
	if len(opts.Kinds) > 0 {
		kinds := make([]any, len(opts.Kinds))
		for i, k := range opts.Kinds {
			kinds[i] = k
		}
		preds = append(preds, entsql.In("kind", kinds...))
	}
	if opts.Actor != "" {
		preds = append(preds, entsql.EQ("actor", opts.Actor))
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", opts.Since.UnixNano()))
	}
	if opts.Until != nil {
		preds = append(preds, entsql.LTE("occurred_at", opts.Until.UnixNano()))
	}
	if opts.Cursor != "" {
		c, err := decodeCursor(opts.Cursor)
		if err != nil {
			return nil, "", err
		}
		preds = append(preds, entsql.Or(
			entsql.LT("occurred_at", c.nanos),
			entsql.And(entsql.EQ("occurred_at", c.nanos), entsql.LT("id", c.id)),
		))
	}

	sel := entsql.Dialect(s.dialect).
		Select(entryColumns...).
		From(entsql.Table(entriesTable)).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("occurred_at"), entsql.Desc("id")).
		Limit(limit + 1) // one extra row tells us whether a next page exists
	query, args := sel.Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []types.AuditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, "", err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("reading audit entries: %w", err)
	}

	var next string
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		next = encodeCursor(last.OccurredAt, last.ID)
	}
	return entries, next, nil
}

// Availability returns the date span of feedID.
func (s *SQLStore) Availability(ctx context.Context, feedID string) (daterange.Availability, error) {
	sel := entsql.Dialect(s.dialect).
		Select(entsql.Min("occurred_at"), entsql.Max("occurred_at")).
		From(entsql.Table(entriesTable)).
		Where(entsql.EQ("feed_id", feedID))
	query, args := sel.Query()

	var first, last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&first, &last); err != nil {
		return daterange.Availability{}, fmt.Errorf("querying availability: %w", err)
	}
	if !first.Valid || !last.Valid {
		return daterange.Availability{}, nil
	}
	return availability(time.Unix(0, first.Int64), time.Unix(0, last.Int64)), nil
}

func availability(first, last time.Time) daterange.Availability {
	return daterange.Availability{
		StartAt: first.UTC().Format(time.DateOnly),
		EndAt:   last.UTC().Format(time.DateOnly),
	}
}

func scanEntry(rows *sql.Rows) (types.AuditEntry, error) {
	var (
		e       types.AuditEntry
		nanos   int64
		amount  sql.NullString
		payload sql.NullString
	)
	err := rows.Scan(&e.ID, &e.FeedID, &e.Kind, &nanos, &e.Actor, &e.Account, &e.Category, &e.Summary, &amount, &payload)
	if err != nil {
		return e, fmt.Errorf("scanning audit entry: %w", err)
	}
	e.OccurredAt = time.Unix(0, nanos).UTC()
	if amount.Valid {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return e, fmt.Errorf("scanning amount of %s: %w", e.ID, err)
		}
		e.Amount = &d
	}
	if payload.Valid {
		e.Payload = []byte(payload.String)
	}
	return e, nil
}
