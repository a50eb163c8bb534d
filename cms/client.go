// Package cms is a client for a Prismic-compatible headless content API
// (REST API v2): master ref resolution, predicate queries with paging,
// lookups by UID or ID, and following next_page cursors.
package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"

	"github.com/eringen/spacetraveling/internal/logctx"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	defaultRefTTL     = 10 * time.Second
	maxBodySize       = 8 << 20 // 8MB
)

// Client talks to one API endpoint. It is safe for concurrent use.
type Client struct {
	endpoint        *url.URL
	token           string
	httpClient      *http.Client
	maxRetries      int
	initialInterval time.Duration
	metrics         *Metrics
	refTTL          time.Duration

	mu      sync.Mutex
	ref     string
	refTime time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithAccessToken sets the token appended to every request.
func WithAccessToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the default HTTP client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetry sets how many times a failed request is retried and the first
// backoff interval. maxRetries 0 disables retrying.
func WithRetry(maxRetries int, initialInterval time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialInterval = initialInterval
	}
}

// WithMetrics records request metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithRefTTL sets how long the master ref is reused before it is looked up again.
func WithRefTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.refTTL = ttl
	}
}

// New creates a client for endpoint, e.g. "https://repo.cdn.prismic.io/api/v2".
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("cms: parse endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("cms: endpoint must be an absolute http(s) URL, got %q", endpoint)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	c := &Client{
		endpoint:        u,
		httpClient:      &http.Client{Timeout: defaultTimeout},
		maxRetries:      defaultMaxRetries,
		initialInterval: 200 * time.Millisecond,
		refTTL:          defaultRefTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the API endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// MasterRef returns the ref of the currently published content release.
func (c *Client) MasterRef(ctx context.Context) (string, error) {
	const op = "cms.MasterRef"

	c.mu.Lock()
	if c.ref != "" && time.Since(c.refTime) < c.refTTL {
		ref := c.ref
		c.mu.Unlock()
		return ref, nil
	}
	c.mu.Unlock()

	u := *c.endpoint
	c.authorize(&u)

	var root apiRoot
	if err := c.get(ctx, "api", &u, &root); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	for _, r := range root.Refs {
		if r.IsMasterRef && r.Ref != "" {
			c.mu.Lock()
			c.ref = r.Ref
			c.refTime = time.Now()
			c.mu.Unlock()
			return r.Ref, nil
		}
	}
	return "", fmt.Errorf("%s: %w", op, ErrNoMasterRef)
}

// Query describes a search request.
type Query struct {
	Predicates []Predicate
	PageSize   int
	Page       int
	Orderings  string
	Lang       string
	// Ref selects a content release; empty means the master ref.
	Ref string
}

// Query runs a search and returns one page of results.
func (c *Client) Query(ctx context.Context, q Query) (*Response, error) {
	const op = "cms.Query"

	ref := q.Ref
	if ref == "" {
		var err error
		ref, err = c.MasterRef(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	u := *c.endpoint
	u.Path += "/documents/search"
	params := url.Values{}
	params.Set("ref", ref)
	if len(q.Predicates) > 0 {
		params.Set("q", encodePredicates(q.Predicates))
	}
	if q.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Orderings != "" {
		params.Set("orderings", q.Orderings)
	}
	if q.Lang != "" {
		params.Set("lang", q.Lang)
	}
	u.RawQuery = params.Encode()
	c.authorize(&u)

	var resp Response
	if err := c.get(ctx, "search", &u, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.sanitize(&resp)
	return &resp, nil
}

// GetByUID returns the document of type docType with the given UID.
func (c *Client) GetByUID(ctx context.Context, docType, uid, ref string) (*Document, error) {
	return c.getOne(ctx, "cms.GetByUID", At("my."+docType+".uid", uid), ref)
}

// GetByID returns the document with the given ID.
func (c *Client) GetByID(ctx context.Context, id, ref string) (*Document, error) {
	return c.getOne(ctx, "cms.GetByID", At("document.id", id), ref)
}

func (c *Client) getOne(ctx context.Context, op string, pred Predicate, ref string) (*Document, error) {
	resp, err := c.Query(ctx, Query{Predicates: []Predicate{pred}, PageSize: 1, Ref: ref})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	doc := resp.Results[0]
	return &doc, nil
}

// FetchPage follows a next_page cursor returned by an earlier Query. The
// cursor must point at this client's endpoint; anything else is rejected with
// ErrForeignCursor.
func (c *Client) FetchPage(ctx context.Context, cursor string) (*Response, error) {
	const op = "cms.FetchPage"

	u, err := c.ownURL(cursor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.authorize(u)

	var resp Response
	if err := c.get(ctx, "page", u, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.sanitize(&resp)
	return &resp, nil
}

func (c *Client) ownURL(cursor string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(cursor))
	if err != nil {
		return nil, ErrForeignCursor
	}
	if !strings.EqualFold(u.Scheme, c.endpoint.Scheme) ||
		!strings.EqualFold(u.Host, c.endpoint.Host) ||
		!strings.HasPrefix(u.Path, c.endpoint.Path+"/") {
		return nil, ErrForeignCursor
	}
	u.Fragment = ""
	return u, nil
}

func (c *Client) authorize(u *url.URL) {
	if c.token == "" {
		return
	}
	q := u.Query()
	q.Set("access_token", c.token)
	u.RawQuery = q.Encode()
}

// sanitize removes the access token from returned cursors so they can be
// handed to browsers.
func (c *Client) sanitize(resp *Response) {
	resp.NextPage = stripToken(resp.NextPage)
	resp.PrevPage = stripToken(resp.PrevPage)
}

func stripToken(cursor *string) *string {
	if cursor == nil || *cursor == "" {
		return nil
	}
	u, err := url.Parse(*cursor)
	if err != nil {
		return cursor
	}
	q := u.Query()
	if _, ok := q["access_token"]; !ok {
		return cursor
	}
	q.Del("access_token")
	u.RawQuery = q.Encode()
	s := u.String()
	return &s
}

// get performs a GET with retries and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, op string, u *url.URL, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	// WithMaxRetries treats 0 as unlimited.
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if c.maxRetries > 0 {
		policy = backoff.WithMaxRetries(b, uint64(c.maxRetries))
	}
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := c.getOnce(ctx, op, u, out)
		if err == nil {
			return nil
		}
		if !retryable(ctx, err) {
			return backoff.Permanent(err)
		}
		logctx.From(ctx).Warn("cms_request_retry",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()),
		)
		return err
	}, backoff.WithContext(policy, ctx))
	return err
}

func (c *Client) getOnce(ctx context.Context, op string, u *url.URL, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.observe(op, outcome, time.Since(start))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("new_request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do: %w", redact(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return &StatusError{Op: op, Code: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

// redact drops the request URL (which may carry the access token) from
// transport errors.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{Op: ue.Op, URL: "[redacted]", Err: ue.Err}
	}
	return err
}
