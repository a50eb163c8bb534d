package spacetraveling

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/eringen/spacetraveling/content"
	"github.com/eringen/spacetraveling/richtext"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPost(uid, title string, published time.Time) *content.PostDetail {
	return &content.PostDetail{
		UID:                  uid,
		FirstPublicationDate: &published,
		Title:                title,
		Subtitle:             title + " subtitle",
		Author:               "Joseph Oliveira",
		Banner:               content.Image{URL: "https://images.example.com/" + uid + ".png", Alt: title},
		Content: []content.Section{{
			Heading: "Intro",
			Body:    []richtext.Block{{Type: richtext.TypeParagraph, Text: "Hello world"}},
		}},
	}
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	s := setupTestStore(t)
	if s.db == nil {
		t.Fatal("db should not be nil")
	}
}

func TestSaveAndGetPost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	published := time.Date(2021, 3, 15, 19, 25, 28, 0, time.UTC)
	fetched := time.UnixMilli(time.Now().UnixMilli())

	if err := s.SavePost(ctx, testPost("como-utilizar-hooks", "Como utilizar Hooks", published), 0, fetched); err != nil {
		t.Fatalf("SavePost failed: %v", err)
	}

	got, err := s.GetPost(ctx, "como-utilizar-hooks")
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if got.Post.Title != "Como utilizar Hooks" {
		t.Errorf("Title = %q", got.Post.Title)
	}
	if got.Post.FirstPublicationDate == nil || !got.Post.FirstPublicationDate.Equal(published) {
		t.Errorf("FirstPublicationDate = %v, want %v", got.Post.FirstPublicationDate, published)
	}
	if len(got.Post.Content) != 1 || got.Post.Content[0].Body[0].Text != "Hello world" {
		t.Errorf("Content = %+v", got.Post.Content)
	}
	if !got.FetchedAt.Equal(fetched) {
		t.Errorf("FetchedAt = %v, want %v", got.FetchedAt, fetched)
	}
}

func TestGetPostNotGenerated(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetPost(context.Background(), "missing")
	if !errors.Is(err, ErrNotGenerated) {
		t.Fatalf("expected ErrNotGenerated, got %v", err)
	}
}

func TestSavePostUpdatesAndKeepsPosition(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()
	day := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := s.SavePost(ctx, testPost("a", "A", day), 1, now); err != nil {
		t.Fatal(err)
	}
	if err := s.SavePost(ctx, testPost("b", "B", day), 0, now); err != nil {
		t.Fatal(err)
	}
	// A negative position keeps the one assigned by the build.
	if err := s.SavePost(ctx, testPost("a", "A updated", day), -1, now); err != nil {
		t.Fatal(err)
	}

	posts, err := s.ListPosts(ctx)
	if err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].UID != "b" || posts[1].UID != "a" {
		t.Errorf("order = %s, %s; want b, a", posts[0].UID, posts[1].UID)
	}
	if posts[1].Title != "A updated" {
		t.Errorf("Title = %q, want updated", posts[1].Title)
	}
}

func TestListPostsEmpty(t *testing.T) {
	s := setupTestStore(t)
	posts, err := s.ListPosts(context.Background())
	if err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("expected no posts, got %d", len(posts))
	}
}

func TestPrunePosts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()
	for i, uid := range []string{"a", "b", "c"} {
		if err := s.SavePost(ctx, testPost(uid, uid, now), i, now); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.PrunePosts(ctx, []string{"a", "c"})
	if err != nil {
		t.Fatalf("PrunePosts failed: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	if _, err := s.GetPost(ctx, "b"); !errors.Is(err, ErrNotGenerated) {
		t.Errorf("b should be pruned, got %v", err)
	}

	n, err = s.PrunePosts(ctx, nil)
	if err != nil {
		t.Fatalf("PrunePosts(nil) failed: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
}

func TestDeletePost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()
	if err := s.SavePost(ctx, testPost("a", "A", now), 0, now); err != nil {
		t.Fatal(err)
	}
	if err := s.DeletePost(ctx, "a"); err != nil {
		t.Fatalf("DeletePost failed: %v", err)
	}
	if _, err := s.GetPost(ctx, "a"); !errors.Is(err, ErrNotGenerated) {
		t.Errorf("expected ErrNotGenerated after delete, got %v", err)
	}
}

func TestSaveAndGetListing(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.GetListing(ctx); !errors.Is(err, ErrNotGenerated) {
		t.Fatalf("expected ErrNotGenerated before save, got %v", err)
	}

	page := content.Page{
		Results:  []content.PostSummary{{UID: "a", Title: "A", Author: "X"}},
		NextPage: "https://repo.example.com/api/v2/documents/search?page=2",
	}
	if err := s.SaveListing(ctx, page, time.Now()); err != nil {
		t.Fatalf("SaveListing failed: %v", err)
	}
	got, err := s.GetListing(ctx)
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	if len(got.Page.Results) != 1 || got.Page.Results[0].UID != "a" {
		t.Errorf("Results = %+v", got.Page.Results)
	}
	if got.Page.NextPage != page.NextPage {
		t.Errorf("NextPage = %q, want %q", got.Page.NextPage, page.NextPage)
	}
}

func TestExpireAll(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()
	if err := s.SavePost(ctx, testPost("a", "A", now), 0, now); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveListing(ctx, content.Page{}, now); err != nil {
		t.Fatal(err)
	}

	if err := s.ExpireAll(ctx); err != nil {
		t.Fatalf("ExpireAll failed: %v", err)
	}

	post, err := s.GetPost(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if post.FetchedAt.UnixMilli() != 0 {
		t.Errorf("post FetchedAt = %v, want epoch", post.FetchedAt)
	}
	listing, err := s.GetListing(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if listing.FetchedAt.UnixMilli() != 0 {
		t.Errorf("listing FetchedAt = %v, want epoch", listing.FetchedAt)
	}
}
