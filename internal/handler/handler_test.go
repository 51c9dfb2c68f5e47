package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/advisorlens/internal/activity"
	"github.com/matthewbaird/advisorlens/internal/apiclient"
	"github.com/matthewbaird/advisorlens/internal/catalog"
	"github.com/matthewbaird/advisorlens/internal/daterange"
	"github.com/matthewbaird/advisorlens/internal/types"
)

const testViews = `
views: {
	activity: {feed: "audit", page_size: 5, target: 4, exclude_kinds: ["sync.heartbeat"]}
	plans: {feed: "audit", page_size: 5, include_kinds: ["plan.updated"], locate: max_extra_attempts: 1}
	raw: {feed: "audit", page_size: 5, include_kinds: ["plan.updated"], locate: match: "raw"}
}
`

var now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

// seedStore writes 30 entries to biz.audit, one every six hours going back
// from 2024-03-14 18:00: e00 is the newest, every third one a heartbeat,
// every even one on the Operating account.
func seedStore(t *testing.T) *activity.MemoryStore {
	t.Helper()
	newest := time.Date(2024, 3, 14, 18, 0, 0, 0, time.UTC)
	var entries []types.AuditEntry
	for i := range 30 {
		e := types.AuditEntry{
			ID:         fmt.Sprintf("e%02d", i),
			FeedID:     "biz.audit",
			Kind:       "plan.updated",
			OccurredAt: newest.Add(-time.Duration(i) * 6 * time.Hour),
			Account:    "Savings",
			Summary:    fmt.Sprintf("step %d", i),
		}
		if i%3 == 0 {
			e.Kind = "sync.heartbeat"
		}
		if i%2 == 0 {
			e.Account = "Operating"
		}
		entries = append(entries, e)
	}
	store := activity.NewMemoryStore()
	require.NoError(t, store.Append(context.Background(), entries))
	return store
}

// failingSource serves ok pages from src, then fails every request with err.
type failingSource struct {
	apiclient.Source
	ok    int
	calls int
	err   error
}

func (f *failingSource) FetchPage(ctx context.Context, feedID string, q types.PageQuery) (types.FeedPage, error) {
	f.calls++
	if f.calls > f.ok {
		return types.FeedPage{}, f.err
	}
	return f.Source.FetchPage(ctx, feedID, q)
}

func newRouter(t *testing.T, store activity.Store, src apiclient.Source) http.Handler {
	t.Helper()
	cat, err := catalog.Parse("views.cue", []byte(testViews))
	require.NoError(t, err)

	eh := NewExplorerHandler(src, cat, daterange.Resolver{Now: func() time.Time { return now }})
	fh := NewFeedHandler(store)

	r := chi.NewRouter()
	r.Get("/v1/feeds/{feed_id}/entries", fh.HandleListEntries)
	r.Get("/v1/feeds/{feed_id}/availability", fh.HandleGetAvailability)
	r.Get("/v1/views", eh.HandleListViews)
	r.Get("/v1/businesses/{business_id}/views/{view}/range", eh.HandleGetRange)
	r.Get("/v1/businesses/{business_id}/views/{view}/entries", eh.HandleListEntries)
	r.Get("/v1/businesses/{business_id}/views/{view}/entries/{entry_id}/locate", eh.HandleLocateEntry)
	return Recovery(Logging(r))
}

func get(t *testing.T, h http.Handler, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func ids(entries []types.AuditEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

type entriesBody struct {
	Range      daterange.Range    `json:"range"`
	Items      []types.AuditEntry `json:"items"`
	NextCursor *string            `json:"next_cursor"`
	Exhausted  bool               `json:"exhausted"`
	Pages      int                `json:"pages"`
	Error      string             `json:"error"`
	Code       string             `json:"code"`
}

func TestListEntries_StopsAtTarget(t *testing.T) {
	store := seedStore(t)
	h := newRouter(t, store, activity.NewLocalSource(store))

	var body entriesBody
	require.Equal(t, http.StatusOK, get(t, h, "/v1/businesses/biz/views/activity/entries", &body))
	assert.Equal(t, []string{"e01", "e02", "e04", "e05"}, ids(body.Items))
	assert.Equal(t, 2, body.Pages)
	assert.False(t, body.Exhausted)
	assert.NotNil(t, body.NextCursor)
	assert.Equal(t, daterange.Range{Start: "2024-02-14", End: "2024-03-15", Window: daterange.Window30}, body.Range)
}

func TestListEntries_Exhausts(t *testing.T) {
	store := seedStore(t)
	h := newRouter(t, store, activity.NewLocalSource(store))

	var body entriesBody
	require.Equal(t, http.StatusOK, get(t, h, "/v1/businesses/biz/views/activity/entries?n=100", &body))
	assert.Len(t, body.Items, 20)
	assert.True(t, body.Exhausted)
	assert.Nil(t, body.NextCursor)
}

func TestListEntries_Filters(t *testing.T) {
	store := seedStore(t)
	h := newRouter(t, store, activity.NewLocalSource(store))

	var body entriesBody
	require.Equal(t, http.StatusOK, get(t, h, "/v1/businesses/biz/views/activity/entries?n=100&account=Operating", &body))
	assert.Equal(t, []string{"e02", "e04", "e08", "e10", "e14", "e16", "e20", "e22", "e26", "e28"}, ids(body.Items))

	body = entriesBody{}
	require.Equal(t, http.StatusOK, get(t, h, "/v1/businesses/biz/views/activity/entries?n=100&start=2024-03-13&end=2024-03-14", &body))
	assert.Equal(t, []string{"e01", "e02", "e04", "e05", "e07"}, ids(body.Items))
	assert.Equal(t, "2024-03-13", body.Range.Start)

	body = entriesBody{}
	require.Equal(t, http.StatusOK, get(t, h, "/v1/businesses/biz/views/activity/entries?n=100&q=STEP+1", &body))
	assert.Equal(t, []string{"e01", "e10", "e11", "e13", "e14", "e16", "e17", "e19"}, ids(body.Items))
}

func TestListEntries_Resume(t *testing.T) {
	store := seedStore(t)
	h := newRouter(t, store, activity.NewLocalSource(store))

	var first entriesBody
	require.Equal(t, http.StatusOK, get(t, h, "/v1/businesses/biz/views/activity/entries?n=3", &first))
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, []string{"e01", "e02", "e04"}, ids(first.Items))

	var second entriesBody
	require.Equal(t, http.StatusOK, get(t, h, "/v1/businesses/biz/views/activity/entries?n=3&cursor="+*first.NextCursor, &second))
	assert.Equal(t, []string{"e05", "e07", "e08"}, ids(second.Items))
}

func TestListEntries_BadRequests(t *testing.T) {
	store := seedStore(t)
	h := newRouter(t, store, activity.NewLocalSource(store))

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/businesses/biz/views/nope/entries", &body))
	assert.Equal(t, "UNKNOWN_VIEW", body["code"])

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/businesses/biz/views/activity/entries?n=zero", &body))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/businesses/biz/views/activity/entries?month=2024-13", &body))
	assert.Equal(t, "INVALID_MONTH", body["code"])

	var partial entriesBody
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/businesses/biz/views/activity/entries?cursor=not-a-cursor", &partial))
	assert.Equal(t, "INVALID_CURSOR", partial.Code)
}

func TestListEntries_Month(t *testing.T) {
	store := seedStore(t)
	h := newRouter(t, store, activity.NewLocalSource(store))

	var body entriesBody
	require.Equal(t, http.StatusOK, get(t, h, "/v1/businesses/biz/views/activity/entries?month=2024-02", &body))
	assert.Equal(t, daterange.Range{Start: "2024-02-01", End: "2024-02-29", Window: daterange.WindowCustom}, body.Range)
	assert.Empty(t, body.Items)
	assert.True(t, body.Exhausted)
}

func TestListEntries_PartialOnFailure(t *testing.T) {
	store := seedStore(t)
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"transport", &apiclient.StatusError{StatusCode: http.StatusServiceUnavailable}, http.StatusBadGateway, "TRANSPORT_ERROR"},
		{"session expired", &apiclient.StatusError{StatusCode: http.StatusUnauthorized}, http.StatusUnauthorized, "UNAUTHORIZED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := &failingSource{Source: activity.NewLocalSource(store), ok: 1, err: tc.err}
			h := newRouter(t, store, src)

			var body entriesBody
			assert.Equal(t, tc.status, get(t, h, "/v1/businesses/biz/views/activity/entries", &body))
			assert.Equal(t, tc.code, body.Code)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, []string{"e01", "e02", "e04"}, ids(body.Items))
			assert.Equal(t, 1, body.Pages)
			assert.NotNil(t, body.NextCursor)
		})
	}
}

type locateBody struct {
	entriesBody
	EntryID  string            `json:"entry_id"`
	Match    string            `json:"match"`
	Found    bool              `json:"found"`
	Entry    *types.AuditEntry `json:"entry"`
	Position *int              `json:"position"`
	Page     int               `json:"page"`
	Attempts int               `json:"attempts"`
}

func TestLocate(t *testing.T) {
	store := seedStore(t)
	h := newRouter(t, store, activity.NewLocalSource(store))

	t.Run("found on second page", func(t *testing.T) {
		var body locateBody
		require.Equal(t, http.StatusOK, get(t, h, "/v1/businesses/biz/views/plans/entries/e07/locate", &body))
		assert.True(t, body.Found)
		assert.Equal(t, "filtered", body.Match)
		require.NotNil(t, body.Position)
		assert.Equal(t, 4, *body.Position)
		assert.Equal(t, 2, body.Page)
		assert.Equal(t, 1, body.Attempts)
		assert.Equal(t, "e07", body.Entry.ID)
	})

	t.Run("beyond the attempt budget", func(t *testing.T) {
		var body locateBody
		require.Equal(t, http.StatusOK, get(t, h, "/v1/businesses/biz/views/plans/entries/e20/locate", &body))
		assert.False(t, body.Found)
		assert.Nil(t, body.Position)
		assert.Equal(t, 1, body.Attempts)
		assert.Equal(t, 2, body.Pages)
		assert.Equal(t, []string{"e01", "e02", "e04", "e05", "e07", "e08"}, ids(body.Items),
			"everything collected from the fetched pages is returned")
	})

	t.Run("raw match of a hidden entry", func(t *testing.T) {
		var body locateBody
		require.Equal(t, http.StatusOK, get(t, h, "/v1/businesses/biz/views/raw/entries/e03/locate", &body))
		assert.True(t, body.Found)
		assert.Equal(t, "raw", body.Match)
		require.NotNil(t, body.Position)
		assert.Equal(t, -1, *body.Position)
		assert.Equal(t, 0, body.Attempts)
	})

	t.Run("filtered match ignores a hidden entry", func(t *testing.T) {
		var body locateBody
		require.Equal(t, http.StatusOK, get(t, h, "/v1/businesses/biz/views/plans/entries/e03/locate", &body))
		assert.False(t, body.Found)
	})
}

func TestGetRange(t *testing.T) {
	store := seedStore(t)
	h := newRouter(t, store, activity.NewLocalSource(store))

	var body struct {
		Range        daterange.Range        `json:"range"`
		Filters      map[string]string      `json:"filters"`
		Clamped      map[string]string      `json:"clamped"`
		Query        string                 `json:"query"`
		Availability daterange.Availability `json:"availability"`
		TrendMonths  int                    `json:"trend_months"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/v1/businesses/biz/views/activity/range?window=7&account=Operating", &body))
	assert.Equal(t, daterange.Availability{StartAt: "2024-03-07", EndAt: "2024-03-14"}, body.Availability)
	assert.Equal(t, map[string]string{"window": "7", "account": "Operating"}, body.Filters)
	assert.Equal(t, map[string]string{"start": "2024-03-08", "end": "2024-03-14", "window": "custom", "account": "Operating"}, body.Clamped)
	assert.Equal(t, daterange.Range{Start: "2024-03-08", End: "2024-03-14", Window: daterange.WindowCustom}, body.Range)
	assert.Equal(t, "account=Operating&end=2024-03-14&start=2024-03-08&window=custom", body.Query)
	assert.Equal(t, 3, body.TrendMonths)

	// Already inside the available span: nothing to clamp.
	body.Clamped = nil
	require.Equal(t, http.StatusOK, get(t, h, "/v1/businesses/biz/views/activity/range?start=2024-03-09&end=2024-03-10", &body))
	assert.Nil(t, body.Clamped)
	assert.Equal(t, "2024-03-09", body.Range.Start)
}

func TestFeedEndpoints(t *testing.T) {
	store := seedStore(t)
	h := newRouter(t, store, activity.NewLocalSource(store))

	var page types.FeedPage
	require.Equal(t, http.StatusOK, get(t, h, "/v1/feeds/biz.audit/entries?limit=10", &page))
	assert.Equal(t, "e00", page.Items[0].ID)
	assert.Len(t, page.Items, 10)
	require.NotNil(t, page.NextCursor)

	var next types.FeedPage
	require.Equal(t, http.StatusOK, get(t, h, "/v1/feeds/biz.audit/entries?limit=10&cursor="+page.Cursor(), &next))
	assert.Equal(t, "e10", next.Items[0].ID)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/feeds/biz.audit/entries?cursor=bogus", &errBody))
	assert.Equal(t, "INVALID_CURSOR", errBody["code"])
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/feeds/biz.audit/entries?limit=-1", &errBody))
	assert.Equal(t, "INVALID_PARAMS", errBody["code"])

	var avail daterange.Availability
	require.Equal(t, http.StatusOK, get(t, h, "/v1/feeds/biz.audit/availability", &avail))
	assert.Equal(t, daterange.Availability{StartAt: "2024-03-07", EndAt: "2024-03-14"}, avail)

	avail = daterange.Availability{}
	require.Equal(t, http.StatusOK, get(t, h, "/v1/feeds/other/availability", &avail))
	assert.Empty(t, avail.StartAt)
}

func TestListViews(t *testing.T) {
	store := seedStore(t)
	h := newRouter(t, store, activity.NewLocalSource(store))

	var body struct {
		Views []catalog.View `json:"views"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/v1/views", &body))
	require.Len(t, body.Views, 3)
	assert.Equal(t, "activity", body.Views[0].Name)
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	var body map[string]string
	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/", &body))
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
}
