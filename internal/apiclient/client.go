// Package apiclient is the typed JSON client for the remote advisor API.
// It realizes the page-fetch capability the pagination package consumes.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/advisorlens/internal/daterange"
	"github.com/matthewbaird/advisorlens/internal/pagination"
	"github.com/matthewbaird/advisorlens/internal/types"
)

// Client calls the remote API. The zero value is not usable; use New.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *http.Client
}

// DefaultTimeout is the per-request timeout of the default http.Client.
const DefaultTimeout = 30 * time.Second

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying http.Client. The client is used
// as given; WithTimeout does not modify it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
// It has no effect together with WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Get issues a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, body, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Do sends one request. body, when non-nil, is sent as JSON; out, when
// non-nil, receives the decoded JSON response. Non-2xx responses return a
// *StatusError; network failures wrap ErrTransport; a canceled ctx returns
// an error matching context.Canceled.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return fmt.Errorf("%w: decoding %s %s: %w", ErrTransport, method, path, err)
	}
	return nil
}

// statusError unwraps the {"error": ..., "code": ...} envelope when present.
func statusError(resp *http.Response) *StatusError {
	se := &StatusError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var envelope struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(b, &envelope) == nil && envelope.Error != "" {
		se.Message = envelope.Error
		se.Code = envelope.Code
	}
	return se
}

// FetchPage requests one page of feedID.
func (c *Client) FetchPage(ctx context.Context, feedID string, q types.PageQuery) (types.FeedPage, error) {
	query := url.Values{}
	for k, v := range q.Filters {
		query.Set(k, v)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		query.Set("cursor", q.Cursor)
	}

	var page types.FeedPage
	err := c.Get(ctx, "/v1/feeds/"+url.PathEscape(feedID)+"/entries", query, &page)
	return page, err
}

// Availability returns the known date span of feedID.
func (c *Client) Availability(ctx context.Context, feedID string) (daterange.Availability, error) {
	var a daterange.Availability
	err := c.Get(ctx, "/v1/feeds/"+url.PathEscape(feedID)+"/availability", nil, &a)
	return a, err
}

// PageSource is anything that serves feed pages: the remote Client or a
// local store adapter.
type PageSource interface {
	FetchPage(ctx context.Context, feedID string, q types.PageQuery) (types.FeedPage, error)
}

// Source serves feed pages and the date span each feed covers.
type Source interface {
	PageSource
	Availability(ctx context.Context, feedID string) (daterange.Availability, error)
}

// Fetcher adapts src to a pagination.FetchFunc over one feed with a fixed
// page size and server-side filters.
func Fetcher(src PageSource, feedID string, limit int, filters map[string]string) pagination.FetchFunc[types.AuditEntry] {
	return func(ctx context.Context, cursor string) (pagination.Page[types.AuditEntry], error) {
		page, err := src.FetchPage(ctx, feedID, types.PageQuery{Cursor: cursor, Limit: limit, Filters: filters})
		if err != nil {
			return pagination.Page[types.AuditEntry]{}, err
		}
		return pagination.Page[types.AuditEntry]{Items: page.Items, NextCursor: page.Cursor()}, nil
	}
}
