package spacetraveling

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/spacetraveling/cms"
	"github.com/eringen/spacetraveling/cms/cmstest"
	"github.com/eringen/spacetraveling/content"
)

func TestBuild_SnapshotsEveryPost(t *testing.T) {
	app, _ := newTestApp(t, testPosts(), func(c *SiteConfig) { c.BuildConcurrency = 2 })
	ctx := context.Background()

	report, err := app.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Posts)
	assert.Zero(t, report.Failed)

	posts, err := app.Store.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "como-utilizar-hooks", posts[0].UID)
	assert.Equal(t, "criando-um-app-cra-do-zero", posts[1].UID)
	assert.Equal(t, "react-server-components", posts[2].UID)

	stored, err := app.Store.GetPost(ctx, "como-utilizar-hooks")
	require.NoError(t, err)
	assert.Equal(t, 640, stored.Post.Banner.Width)
	assert.Equal(t, 360, stored.Post.Banner.Height)

	listing, err := app.Store.GetListing(ctx)
	require.NoError(t, err)
	require.Len(t, listing.Page.Results, 1)
	assert.True(t, listing.Page.HasMore())
}

func TestBuild_PrunesRemovedPosts(t *testing.T) {
	docs := testPosts()
	app, srv := newTestApp(t, docs, nil)
	ctx := context.Background()

	_, err := app.Build(ctx)
	require.NoError(t, err)

	srv.SetDocuments(docs[0], docs[2])
	report, err := app.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Posts)
	assert.EqualValues(t, 1, report.Pruned)

	_, err = app.Store.GetPost(ctx, "criando-um-app-cra-do-zero")
	assert.ErrorIs(t, err, ErrNotGenerated)
}

func TestBuild_ReportsFailedPostsAndKeepsTheRest(t *testing.T) {
	docs := testPosts()
	broken := cmstest.PostData("Sem banner", "Sub", "Autor", "H", "Body")
	delete(broken, "banner")
	docs = append(docs, cmstest.Post("sem-banner", "2021-04-10T10:00:00+0000", broken))
	app, _ := newTestApp(t, docs, nil)
	ctx := context.Background()

	report, err := app.Build(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, content.ErrMalformed)
	assert.Contains(t, err.Error(), "sem-banner")
	assert.Equal(t, 3, report.Posts)
	assert.Equal(t, 1, report.Failed)

	posts, err := app.Store.ListPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, posts, 3)
}

func TestBuild_ListingFailureAborts(t *testing.T) {
	app, srv := newTestApp(t, testPosts(), nil)
	srv.FailNext(500)

	_, err := app.Build(context.Background())
	require.Error(t, err)
	var se *cms.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.Code)
}

func TestExport_WritesStaticSite(t *testing.T) {
	app, _ := newTestApp(t, testPosts(), nil)
	ctx := context.Background()
	dir := t.TempDir()

	_, err := app.Export(ctx, dir)
	require.ErrorIs(t, err, ErrEmptySnapshot)

	_, err = app.Build(ctx)
	require.NoError(t, err)

	n, err := app.Export(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	index, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "Como utilizar Hooks")
	assert.Contains(t, string(index), "React Server Components")
	assert.NotContains(t, string(index), `id="load-more"`)

	post, err := os.ReadFile(filepath.Join(dir, "post", "criando-um-app-cra-do-zero", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(post), "<h1>Criando um app CRA do zero</h1>")

	for _, name := range []string{"sitemap.xml", "feed.xml", "robots.txt", filepath.Join("public", "styles.css")} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	// Exporting again overwrites.
	_, err = app.Export(ctx, dir)
	require.NoError(t, err)
}

func TestExport_RejectsUIDsOutsideTheSite(t *testing.T) {
	app, _ := newTestApp(t, testPosts(), nil)
	ctx := context.Background()
	root := t.TempDir()
	dir := filepath.Join(root, "site")

	_, err := app.Build(ctx)
	require.NoError(t, err)
	require.NoError(t, app.Store.SavePost(ctx, testPost("../../escape", "Escape", time.Now()), 3, time.Now()))

	_, err = app.Export(ctx, dir)
	require.ErrorIs(t, err, ErrUnsafeUID)
	_, err = os.Stat(filepath.Join(root, "escape"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "index.html"))
	assert.True(t, os.IsNotExist(err), "nothing is written when a uid is rejected")
}

func TestSafeUID(t *testing.T) {
	for uid, want := range map[string]bool{
		"como-utilizar-hooks": true,
		"":                    false,
		".":                   false,
		"..":                  false,
		"../x":                false,
		"a/b":                 false,
		`a\b`:                false,
		"/abs":                false,
	} {
		assert.Equal(t, want, safeUID(uid), uid)
	}
}
