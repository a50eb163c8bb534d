package spacetraveling

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/eringen/spacetraveling/content"
	"github.com/eringen/spacetraveling/internal/logctx"
)

var (
	// ErrNotFound is returned when the content API has no post for a slug.
	ErrNotFound = errors.New("spacetraveling: post not found")
	// ErrNotGenerated is returned when a post is not in the snapshot yet.
	ErrNotGenerated = errors.New("spacetraveling: post not generated")
)

// PostLoader fetches a fresh post from the content API.
type PostLoader func(ctx context.Context, uid string) (*content.PostDetail, error)

// ListingLoader fetches a fresh first listing page from the content API.
type ListingLoader func(ctx context.Context) (content.Page, error)

type cachedPost struct {
	post    *content.PostDetail
	fetched time.Time
}

// PostCache serves posts and the listing from memory, then from the snapshot
// store, then from the content API.
//
// Memory entries live for ttl. Snapshot entries older than revalidate (when
// revalidate > 0), or expired explicitly, are refetched on read; if that
// fails the stale entry is served.
type PostCache struct {
	mu      sync.RWMutex
	posts   map[string]cachedPost
	listing *content.Page
	listed  time.Time

	ttl        time.Duration
	revalidate time.Duration
	store      *Store
	loadPost   PostLoader
	loadList   ListingLoader
	group      singleflight.Group
	now        func() time.Time

	// generateTimeout bounds a shared fetch, which outlives the request that
	// started it.
	generateTimeout time.Duration
}

// NewPostCache creates a PostCache backed by the given Store and loaders.
func NewPostCache(s *Store, ttl, revalidate time.Duration, loadPost PostLoader, loadList ListingLoader) *PostCache {
	return &PostCache{
		posts:      make(map[string]cachedPost),
		ttl:        ttl,
		revalidate: revalidate,
		store:      s,
		loadPost:   loadPost,
		loadList:   loadList,
		now:        time.Now,

		generateTimeout: 30 * time.Second,
	}
}

// Invalidate clears the memory cache so the next read goes to the store.
func (c *PostCache) Invalidate() {
	c.mu.Lock()
	c.posts = make(map[string]cachedPost)
	c.listing = nil
	c.mu.Unlock()
}

func (c *PostCache) fresh(t time.Time) bool {
	return c.now().Sub(t) < c.ttl
}

// stale reports whether a snapshot entry fetched at t must be refetched.
func (c *PostCache) stale(t time.Time) bool {
	if t.UnixMilli() == 0 {
		return true
	}
	return c.revalidate > 0 && c.now().Sub(t) >= c.revalidate
}

// Post returns a generated post. It returns ErrNotGenerated when the post is
// not in the snapshot and ErrNotFound when revalidation finds it deleted.
func (c *PostCache) Post(ctx context.Context, uid string) (*content.PostDetail, error) {
	c.mu.RLock()
	if e, ok := c.posts[uid]; ok && c.fresh(e.fetched) {
		c.mu.RUnlock()
		return e.post, nil
	}
	c.mu.RUnlock()

	stored, err := c.store.GetPost(ctx, uid)
	if err != nil {
		return nil, err
	}
	post := stored.Post
	if c.stale(stored.FetchedAt) {
		post, err = c.refreshPost(ctx, uid, stored.Post)
		if err != nil {
			return nil, err
		}
	}
	c.remember(uid, post)
	return post, nil
}

// Generate fetches uid from the content API, stores it and returns it.
// Concurrent calls for the same uid share one fetch. A caller whose ctx ends
// stops waiting, but the fetch carries on for the others.
func (c *PostCache) Generate(ctx context.Context, uid string) (*content.PostDetail, error) {
	ch := c.group.DoChan("post:"+uid, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.generateTimeout)
		defer cancel()
		post, err := c.loadPost(ctx, uid)
		if err != nil {
			return nil, err
		}
		if err := c.store.SavePost(ctx, post, -1, c.now()); err != nil {
			return nil, err
		}
		return post, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	post := res.Val.(*content.PostDetail)
	c.remember(uid, post)
	return post, nil
}

func (c *PostCache) refreshPost(ctx context.Context, uid string, old *content.PostDetail) (*content.PostDetail, error) {
	post, err := c.Generate(ctx, uid)
	switch {
	case err == nil:
		return post, nil
	case errors.Is(err, ErrNotFound):
		if derr := c.store.DeletePost(ctx, uid); derr != nil {
			logctx.From(ctx).Warn("snapshot_delete_failed", slog.String("uid", uid), slog.String("err", derr.Error()))
		}
		c.forget(uid)
		return nil, err
	default:
		logctx.From(ctx).Warn("revalidate_failed_serving_stale",
			slog.String("uid", uid),
			slog.String("err", err.Error()),
		)
		return old, nil
	}
}

func (c *PostCache) remember(uid string, post *content.PostDetail) {
	c.mu.Lock()
	c.posts[uid] = cachedPost{post: post, fetched: c.now()}
	c.mu.Unlock()
}

func (c *PostCache) forget(uid string) {
	c.mu.Lock()
	delete(c.posts, uid)
	c.mu.Unlock()
}

// Listing returns the first listing page. Without a snapshot it is fetched
// from the content API and stored.
func (c *PostCache) Listing(ctx context.Context) (content.Page, error) {
	c.mu.RLock()
	if c.listing != nil && c.fresh(c.listed) {
		page := *c.listing
		c.mu.RUnlock()
		return page, nil
	}
	c.mu.RUnlock()

	stored, err := c.store.GetListing(ctx)
	switch {
	case errors.Is(err, ErrNotGenerated):
		page, err := c.refreshListing(ctx)
		if err != nil {
			return content.Page{}, err
		}
		c.rememberListing(page)
		return page, nil
	case err != nil:
		return content.Page{}, err
	}

	page := stored.Page
	if c.stale(stored.FetchedAt) {
		fresh, err := c.refreshListing(ctx)
		if err != nil {
			logctx.From(ctx).Warn("revalidate_failed_serving_stale",
				slog.String("uid", "listing"),
				slog.String("err", err.Error()),
			)
		} else {
			page = fresh
		}
	}
	c.rememberListing(page)
	return page, nil
}

func (c *PostCache) refreshListing(ctx context.Context) (content.Page, error) {
	v, err, _ := c.group.Do("listing", func() (any, error) {
		page, err := c.loadList(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.SaveListing(ctx, page, c.now()); err != nil {
			return nil, err
		}
		return page, nil
	})
	if err != nil {
		return content.Page{}, err
	}
	return v.(content.Page), nil
}

func (c *PostCache) rememberListing(page content.Page) {
	c.mu.Lock()
	c.listing = &page
	c.listed = c.now()
	c.mu.Unlock()
}
