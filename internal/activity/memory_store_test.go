package activity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/advisorlens/internal/types"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testEntry(feed, id, kind, actor string, minutesAgo int) types.AuditEntry {
	return types.AuditEntry{
		ID:         id,
		FeedID:     feed,
		Kind:       kind,
		OccurredAt: base.Add(-time.Duration(minutesAgo) * time.Minute),
		Actor:      actor,
		Summary:    kind + " by " + actor,
	}
}

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := NewSQLStore(db, dialect.SQLite)
	require.NoError(t, s.CreateTable(context.Background()))
	return s
}

func newMemoryStore(*testing.T) Store { return NewMemoryStore() }

func eachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	for name, mk := range map[string]func(*testing.T) Store{
		"memory": newMemoryStore,
		"sqlite": newSQLiteStore,
	} {
		t.Run(name, func(t *testing.T) { fn(t, mk(t)) })
	}
}

func pageIDs(entries []types.AuditEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestStore_PagesNewestFirst(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Append(ctx, []types.AuditEntry{
			testEntry("biz.audit", "e1", "plan.created", "dana", 50),
			testEntry("biz.audit", "e2", "plan.updated", "dana", 40),
			testEntry("biz.audit", "e3", "session.login", "lee", 30),
			testEntry("biz.audit", "e4", "plan.updated", "lee", 20),
			testEntry("biz.audit", "e5", "export.generated", "dana", 10),
			testEntry("other.audit", "x1", "plan.created", "dana", 5),
		}))

		var all []string
		cursor := ""
		for pages := 0; ; pages++ {
			require.Less(t, pages, 5, "pagination did not terminate")
			entries, next, err := store.Page(ctx, "biz.audit", PageOptions{Limit: 2, Cursor: cursor})
			require.NoError(t, err)
			all = append(all, pageIDs(entries)...)
			if next == "" {
				break
			}
			cursor = next
		}
		assert.Equal(t, []string{"e5", "e4", "e3", "e2", "e1"}, all)
	})
}

func TestStore_TiedTimestamps(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Append(ctx, []types.AuditEntry{
			testEntry("f", "a", "k", "x", 0),
			testEntry("f", "b", "k", "x", 0),
			testEntry("f", "c", "k", "x", 0),
		}))

		first, next, err := store.Page(ctx, "f", PageOptions{Limit: 2})
		require.NoError(t, err)
		require.NotEmpty(t, next)
		second, next, err := store.Page(ctx, "f", PageOptions{Limit: 2, Cursor: next})
		require.NoError(t, err)

		assert.Equal(t, []string{"c", "b"}, pageIDs(first))
		assert.Equal(t, []string{"a"}, pageIDs(second))
		assert.Empty(t, next)
	})
}

func TestStore_Filters(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Append(ctx, []types.AuditEntry{
			testEntry("f", "e1", "plan.created", "dana", 60*24*3),
			testEntry("f", "e2", "plan.updated", "lee", 60*24*2),
			testEntry("f", "e3", "session.login", "dana", 60*24),
			testEntry("f", "e4", "plan.updated", "dana", 0),
		}))

		entries, _, err := store.Page(ctx, "f", PageOptions{Kinds: []string{"plan.updated", "plan.created"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"e4", "e2", "e1"}, pageIDs(entries))

		entries, _, err = store.Page(ctx, "f", PageOptions{Actor: "lee"})
		require.NoError(t, err)
		assert.Equal(t, []string{"e2"}, pageIDs(entries))

		since := base.AddDate(0, 0, -2)
		until := base.Add(-time.Hour)
		entries, _, err = store.Page(ctx, "f", PageOptions{Since: &since, Until: &until})
		require.NoError(t, err)
		assert.Equal(t, []string{"e3", "e2"}, pageIDs(entries))
	})
}

func TestStore_DuplicateAppendIgnored(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		e := testEntry("f", "dup", "k", "x", 0)
		require.NoError(t, store.Append(ctx, []types.AuditEntry{e}))
		require.NoError(t, store.Append(ctx, []types.AuditEntry{e}))

		entries, _, err := store.Page(ctx, "f", PageOptions{})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestStore_RoundTripsAmountAndPayload(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		amount := decimal.RequireFromString("-1234.56")
		e := testEntry("f", "t1", "txn.posted", "", 0)
		e.Amount = &amount
		e.Account = "checking"
		e.Category = "payroll"
		e.Payload = []byte(`{"memo":"march"}`)
		require.NoError(t, store.Append(ctx, []types.AuditEntry{e}))

		entries, _, err := store.Page(ctx, "f", PageOptions{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		got := entries[0]
		require.NotNil(t, got.Amount)
		assert.True(t, amount.Equal(*got.Amount))
		assert.Equal(t, "checking", got.Account)
		assert.Equal(t, "payroll", got.Category)
		assert.JSONEq(t, `{"memo":"march"}`, string(got.Payload))
		assert.True(t, e.OccurredAt.Equal(got.OccurredAt))
	})
}

func TestStore_InvalidCursor(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		for _, c := range []string{"%%%", "bm90LWEtY3Vyc29y", encodeCursor(base, "")} {
			_, _, err := store.Page(context.Background(), "f", PageOptions{Cursor: c})
			assert.ErrorIs(t, err, ErrInvalidCursor, "cursor %q", c)
		}
	})
}

func TestStore_Availability(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		a, err := store.Availability(ctx, "empty")
		require.NoError(t, err)
		assert.Empty(t, a.StartAt)
		assert.Empty(t, a.EndAt)

		require.NoError(t, store.Append(ctx, []types.AuditEntry{
			testEntry("f", "old", "k", "x", 60*24*40),
			testEntry("f", "new", "k", "x", 0),
		}))
		a, err = store.Availability(ctx, "f")
		require.NoError(t, err)
		assert.Equal(t, "2024-01-21", a.StartAt)
		assert.Equal(t, "2024-03-01", a.EndAt)
	})
}

func TestSeedDemoData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, SeedDemoData(ctx, store, base))
	require.NoError(t, SeedDemoData(ctx, store, base), "reseeding must not duplicate entries")

	counts := map[string]int{}
	for _, feed := range []string{"audit", "signals", "transactions"} {
		cursor := ""
		for {
			entries, next, err := store.Page(ctx, FeedID(DemoBusinessID, feed), PageOptions{Limit: MaxLimit, Cursor: cursor})
			require.NoError(t, err)
			counts[feed] += len(entries)
			if next == "" {
				break
			}
			cursor = next
		}
	}
	assert.Equal(t, map[string]int{"audit": 400, "signals": 120, "transactions": 600}, counts)

	a, err := store.Availability(ctx, FeedID(DemoBusinessID, "transactions"))
	require.NoError(t, err)
	assert.LessOrEqual(t, a.StartAt, a.EndAt)
	assert.GreaterOrEqual(t, a.StartAt, "2022-09-01")
}
