package spacetraveling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/spacetraveling/content"
)

type fakeLoaders struct {
	mu        sync.Mutex
	posts     map[string]*content.PostDetail
	postErr   error
	listing   content.Page
	listErr   error
	postCalls atomic.Int32
	listCalls atomic.Int32
	release   chan struct{}
}

func (f *fakeLoaders) loadPost(ctx context.Context, uid string) (*content.PostDetail, error) {
	f.postCalls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return nil, f.postErr
	}
	p, ok := f.posts[uid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeLoaders) loadListing(ctx context.Context) (content.Page, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listing, f.listErr
}

func (f *fakeLoaders) set(fn func(f *fakeLoaders)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, ttl, revalidate time.Duration) (*PostCache, *fakeLoaders, *testClock) {
	t.Helper()
	loaders := &fakeLoaders{posts: map[string]*content.PostDetail{}}
	clock := &testClock{t: time.Date(2021, 3, 20, 12, 0, 0, 0, time.UTC)}
	c := NewPostCache(setupTestStore(t), ttl, revalidate, loaders.loadPost, loaders.loadListing)
	c.now = clock.now
	return c, loaders, clock
}

func TestPostCache_NotGeneratedPassesThrough(t *testing.T) {
	c, loaders, _ := newTestCache(t, time.Minute, 0)

	_, err := c.Post(context.Background(), "unknown")
	require.ErrorIs(t, err, ErrNotGenerated)
	assert.Zero(t, loaders.postCalls.Load(), "Post must not fetch from the API")
}

func TestPostCache_GenerateStoresAndServes(t *testing.T) {
	c, loaders, clock := newTestCache(t, time.Minute, 0)
	ctx := context.Background()
	loaders.posts["a"] = testPost("a", "A", clock.now())

	got, err := c.Generate(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title)

	// Served from the snapshot after memory expires, without another fetch.
	c.Invalidate()
	got, err = c.Post(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title)
	assert.EqualValues(t, 1, loaders.postCalls.Load())
}

func TestPostCache_GenerateUnknownIsNotFound(t *testing.T) {
	c, _, _ := newTestCache(t, time.Minute, 0)

	_, err := c.Generate(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.Post(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotGenerated, "failed generation must not store anything")
}

func TestPostCache_GenerateSharesConcurrentFetches(t *testing.T) {
	c, loaders, clock := newTestCache(t, time.Minute, 0)
	loaders.posts["a"] = testPost("a", "A", clock.now())
	loaders.release = make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Generate(context.Background(), "a")
		}()
	}
	require.Eventually(t, func() bool { return loaders.postCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(loaders.release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, loaders.postCalls.Load())
}

func TestPostCache_GenerateSurvivesFirstCallerCancelling(t *testing.T) {
	c, loaders, clock := newTestCache(t, time.Minute, 0)
	loaders.posts["a"] = testPost("a", "A", clock.now())
	loaders.release = make(chan struct{})

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Generate(first, "a")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return loaders.postCalls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := c.Generate(context.Background(), "a")
		second <- err
	}()
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	time.Sleep(20 * time.Millisecond)
	close(loaders.release)
	require.NoError(t, <-second)
	assert.EqualValues(t, 1, loaders.postCalls.Load())

	got, err := c.Post(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title)
}

func TestPostCache_RevalidatesStaleEntries(t *testing.T) {
	c, loaders, clock := newTestCache(t, time.Second, time.Minute)
	ctx := context.Background()
	loaders.posts["a"] = testPost("a", "Old", clock.now())
	_, err := c.Generate(ctx, "a")
	require.NoError(t, err)

	loaders.set(func(f *fakeLoaders) { f.posts["a"] = testPost("a", "New", clock.now()) })

	clock.advance(30 * time.Second)
	got, err := c.Post(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Old", got.Title, "entry younger than the revalidate interval is served as is")

	clock.advance(time.Minute)
	got, err = c.Post(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
}

func TestPostCache_ServesStaleWhenRevalidationFails(t *testing.T) {
	c, loaders, clock := newTestCache(t, time.Second, time.Minute)
	ctx := context.Background()
	loaders.posts["a"] = testPost("a", "Old", clock.now())
	_, err := c.Generate(ctx, "a")
	require.NoError(t, err)

	loaders.set(func(f *fakeLoaders) { f.postErr = errors.New("api down") })
	clock.advance(2 * time.Minute)

	got, err := c.Post(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Old", got.Title)
}

func TestPostCache_RevalidationDropsDeletedPosts(t *testing.T) {
	c, loaders, clock := newTestCache(t, time.Second, time.Minute)
	ctx := context.Background()
	loaders.posts["a"] = testPost("a", "A", clock.now())
	_, err := c.Generate(ctx, "a")
	require.NoError(t, err)

	loaders.set(func(f *fakeLoaders) { delete(f.posts, "a") })
	clock.advance(2 * time.Minute)

	_, err = c.Post(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.Post(ctx, "a")
	require.ErrorIs(t, err, ErrNotGenerated)
}

func TestPostCache_ExpiredSnapshotIsRefetched(t *testing.T) {
	c, loaders, clock := newTestCache(t, time.Minute, 0)
	ctx := context.Background()
	loaders.posts["a"] = testPost("a", "Old", clock.now())
	_, err := c.Generate(ctx, "a")
	require.NoError(t, err)

	loaders.set(func(f *fakeLoaders) { f.posts["a"] = testPost("a", "New", clock.now()) })
	require.NoError(t, c.store.ExpireAll(ctx))
	c.Invalidate()

	got, err := c.Post(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
}

func TestPostCache_ListingFetchedOnceThenStored(t *testing.T) {
	c, loaders, _ := newTestCache(t, time.Minute, 0)
	ctx := context.Background()
	loaders.listing = content.Page{Results: []content.PostSummary{{UID: "a"}}, NextPage: "next"}

	page, err := c.Listing(ctx)
	require.NoError(t, err)
	assert.Equal(t, "next", page.NextPage)

	c.Invalidate()
	page, err = c.Listing(ctx)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.EqualValues(t, 1, loaders.listCalls.Load())
}

func TestPostCache_ListingErrorWithoutSnapshot(t *testing.T) {
	c, loaders, _ := newTestCache(t, time.Minute, 0)
	loaders.listErr = errors.New("api down")

	_, err := c.Listing(context.Background())
	require.Error(t, err)
}

func TestPostCache_ListingServesStaleOnFailure(t *testing.T) {
	c, loaders, clock := newTestCache(t, time.Second, time.Minute)
	ctx := context.Background()
	loaders.listing = content.Page{Results: []content.PostSummary{{UID: "a"}}}
	_, err := c.Listing(ctx)
	require.NoError(t, err)

	loaders.set(func(f *fakeLoaders) { f.listErr = errors.New("api down") })
	clock.advance(2 * time.Minute)

	page, err := c.Listing(ctx)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "a", page.Results[0].UID)
}
