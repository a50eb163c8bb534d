// Package pagination holds the state of an incrementally loaded post listing.
//
// A Feed is always in one of three states:
//
//	Idle    --LoadMore-->  Loading
//	Loading --success-->   Idle
//	Loading --failure-->   Errored
//	Errored --LoadMore-->  Loading
//	Errored --Dismiss-->   Idle
//
// Results are only ever appended, in the order pages arrive, and a failed
// fetch leaves both the results and the cursor untouched so it can be retried.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/eringen/spacetraveling/content"
)

var (
	// ErrBusy is returned by LoadMore while another load is in flight.
	ErrBusy = errors.New("pagination: load already in progress")
	// ErrExhausted is returned by LoadMore when there is no next page.
	ErrExhausted = errors.New("pagination: no more pages")
	// ErrCursorLoop is returned by Drain when a page points back at a cursor
	// that was already followed.
	ErrCursorLoop = errors.New("pagination: cursor repeats")
)

// State is the feed's load state.
type State int

const (
	Idle State = iota
	Loading
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Fetcher fetches the page a cursor points at.
type Fetcher interface {
	FetchPage(ctx context.Context, cursor string) (content.Page, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, cursor string) (content.Page, error)

func (f FetcherFunc) FetchPage(ctx context.Context, cursor string) (content.Page, error) {
	return f(ctx, cursor)
}

// Feed is safe for concurrent use. The lock is never held during a fetch.
type Feed struct {
	mu      sync.Mutex
	state   State
	results []content.PostSummary
	next    string
	err     error

	dedupe bool
	seen   map[string]struct{}
}

// Option configures a Feed.
type Option func(*Feed)

// WithDedupe drops results whose UID is already in the feed. Without it the
// API is trusted to return non-overlapping pages.
func WithDedupe() Option {
	return func(f *Feed) {
		f.dedupe = true
	}
}

// New returns an idle feed holding the first page.
func New(first content.Page, opts ...Option) *Feed {
	f := &Feed{}
	for _, opt := range opts {
		opt(f)
	}
	if f.dedupe {
		f.seen = make(map[string]struct{})
	}
	f.results = f.filter(first.Results)
	f.next = first.NextPage
	return f
}

// Resume returns an idle, empty feed positioned at cursor. It serves requests
// that continue a listing rendered earlier.
func Resume(cursor string, opts ...Option) *Feed {
	return New(content.Page{NextPage: cursor}, opts...)
}

// filter must be called with mu held (or before f is shared).
func (f *Feed) filter(in []content.PostSummary) []content.PostSummary {
	out := make([]content.PostSummary, 0, len(in))
	for _, s := range in {
		if f.dedupe {
			if _, ok := f.seen[s.UID]; ok {
				continue
			}
			f.seen[s.UID] = struct{}{}
		}
		out = append(out, s)
	}
	return out
}

// LoadMore fetches the next page and appends it. It returns the page as
// appended (after deduplication, if enabled).
func (f *Feed) LoadMore(ctx context.Context, fetcher Fetcher) (content.Page, error) {
	f.mu.Lock()
	if f.state == Loading {
		f.mu.Unlock()
		return content.Page{}, ErrBusy
	}
	if f.next == "" {
		f.mu.Unlock()
		return content.Page{}, ErrExhausted
	}
	cursor := f.next
	f.state = Loading
	f.mu.Unlock()

	page, err := fetcher.FetchPage(ctx, cursor)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state = Errored
		f.err = err
		return content.Page{}, fmt.Errorf("pagination: load more: %w", err)
	}
	added := f.filter(page.Results)
	f.results = append(f.results, added...)
	f.next = page.NextPage
	f.state = Idle
	f.err = nil
	return content.Page{Results: added, NextPage: page.NextPage}, nil
}

// Dismiss clears an error and returns the feed to Idle. It has no effect in
// other states.
func (f *Feed) Dismiss() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Errored {
		f.state = Idle
		f.err = nil
	}
}

// Snapshot is a point-in-time copy of a Feed.
type Snapshot struct {
	State    State
	Results  []content.PostSummary
	NextPage string
	Err      error
}

// HasMore reports whether a next page exists.
func (s Snapshot) HasMore() bool {
	return s.NextPage != ""
}

// Snapshot returns a copy of the feed's current state.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		State:    f.state,
		Results:  append([]content.PostSummary(nil), f.results...),
		NextPage: f.next,
		Err:      f.err,
	}
}

// State returns the current state.
func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// HasMore reports whether a next page exists.
func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next != ""
}

// Drain loads pages until the cursor runs out and returns every result.
// It stops at the first error, or with ErrCursorLoop when a cursor repeats.
func (f *Feed) Drain(ctx context.Context, fetcher Fetcher) ([]content.PostSummary, error) {
	visited := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f.mu.Lock()
		cursor := f.next
		f.mu.Unlock()
		if cursor != "" {
			if _, ok := visited[cursor]; ok {
				return nil, fmt.Errorf("%w: %s", ErrCursorLoop, cursor)
			}
			visited[cursor] = struct{}{}
		}
		_, err := f.LoadMore(ctx, fetcher)
		if errors.Is(err, ErrExhausted) {
			return f.Snapshot().Results, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
