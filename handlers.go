package spacetraveling

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/eringen/spacetraveling/cms"
	"github.com/eringen/spacetraveling/content"
	"github.com/eringen/spacetraveling/internal/logctx"
	"github.com/eringen/spacetraveling/pagination"
	"github.com/eringen/spacetraveling/views"
)

func (a *App) handleHome(c echo.Context) error {
	if cursor := c.QueryParam("after"); cursor != "" {
		return a.handleLoadMore(c, cursor)
	}

	ctx := c.Request().Context()
	ref, preview := a.previewRef(c)

	var page content.Page
	var err error
	if preview {
		page, err = a.Source.FirstPage(ctx, ref)
	} else {
		page, err = a.Cache.Listing(ctx)
	}
	if err != nil {
		return err
	}
	if preview {
		c.Response().Header().Set("Cache-Control", "no-store")
	}

	site := a.Config.Views()
	return Render(c, a.Views.Home(views.Listing{
		Site:     site,
		Meta:     views.HomeMeta(site),
		Posts:    views.NewPostCards(page.Results, site),
		LoadMore: views.NewLoadMore(page.NextPage, ""),
		Preview:  preview,
	}))
}

// handleLoadMore answers the "load more" control. htmx requests get the
// fragment holding the new cards and the next control; plain requests get a
// full page so the listing works without JavaScript.
//
// Each request resumes its own feed from the cursor, so the feed's busy guard
// never fires here. Overlapping clicks are dropped in the browser by hx-sync
// on the control.
func (a *App) handleLoadMore(c echo.Context, cursor string) error {
	site := a.Config.Views()

	if c.QueryParam("dismiss") == "1" {
		return a.renderPosts(c, site, nil, views.NewLoadMore(cursor, ""))
	}

	if !a.loadMoreLimiter.Allow(c.RealIP()) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
	}

	ctx := c.Request().Context()
	page, err := pagination.Resume(cursor).LoadMore(ctx, a.Source)
	switch {
	case err == nil:
		return a.renderPosts(c, site, page.Results, views.NewLoadMore(page.NextPage, ""))
	case errors.Is(err, cms.ErrForeignCursor):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid cursor")
	case ctx.Err() != nil:
		return ctx.Err()
	}

	logctx.From(ctx).Warn("load_more_failed",
		slog.String("cursor", cursor),
		slog.String("err", err.Error()),
	)
	// The control keeps the cursor so "try again" repeats the same request.
	return a.renderPosts(c, site, nil, views.NewLoadMore(cursor, site.Messages().LoadFailed))
}

func (a *App) renderPosts(c echo.Context, site views.SiteConfig, posts []content.PostSummary, lm views.LoadMore) error {
	cards := views.NewPostCards(posts, site)
	if isHTMX(c) {
		return Render(c, a.Views.Posts(views.PostsPage{Site: site, Posts: cards, LoadMore: lm}))
	}
	meta := views.HomeMeta(site)
	return Render(c, a.Views.Home(views.Listing{Site: site, Meta: meta, Posts: cards, LoadMore: lm}))
}

// handlePost serves one post. What happens for a slug missing from the
// snapshot depends on the configured fallback mode.
func (a *App) handlePost(c echo.Context) error {
	uid := c.Param("uid")
	ctx := c.Request().Context()

	if ref, ok := a.previewRef(c); ok {
		post, err := a.Source.Post(ctx, uid, ref)
		if err != nil {
			return a.postError(c, err)
		}
		a.Images.ProbeBanner(ctx, post)
		c.Response().Header().Set("Cache-Control", "no-store")
		return a.renderPost(c, post, true)
	}

	partial := c.QueryParam("partial") == "post"
	post, err := a.Cache.Post(ctx, uid)
	if errors.Is(err, ErrNotGenerated) {
		switch {
		case a.Config.Fallback == FallbackBlocking,
			a.Config.Fallback == FallbackTrue && partial:
			post, err = a.Cache.Generate(ctx, uid)
		case a.Config.Fallback == FallbackTrue:
			return a.renderLoading(c, uid)
		default:
			return echo.NewHTTPError(http.StatusNotFound)
		}
	}
	if err != nil {
		return a.postError(c, err)
	}
	return a.renderPost(c, post, false)
}

func (a *App) renderPost(c echo.Context, post *content.PostDetail, preview bool) error {
	v := views.NewPostView(post, a.Config.Views())
	v.Preview = preview
	if isHTMX(c) && c.QueryParam("partial") == "post" {
		return Render(c, a.Views.PostPartial(v))
	}
	return Render(c, a.Views.Post(v))
}

// renderLoading serves the placeholder for a post that is being generated.
// The page fetches the article from contentURL once it has loaded.
func (a *App) renderLoading(c echo.Context, uid string) error {
	site := a.Config.Views()
	c.Response().Header().Set("Cache-Control", "no-store")
	return Render(c, a.Views.Loading(views.LoadingView{
		Site: site,
		Meta: views.PageMeta{
			Title:  site.Messages().Loading + " | " + site.Name,
			URL:    views.BuildURL(site.URL, "post", uid),
			OGType: "article",
		},
		ContentURL: views.PostPath(uid) + "?partial=post",
	}))
}

// postError maps a failed post lookup to a response. Unknown posts send the
// reader to the listing.
func (a *App) postError(c echo.Context, err error) error {
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	logctx.From(c.Request().Context()).Info("post_not_found_redirect",
		slog.String("uid", c.Param("uid")),
	)
	c.Response().Header().Set("Cache-Control", "no-store")
	if isHTMX(c) {
		c.Response().Header().Set("HX-Redirect", "/")
		return c.NoContent(http.StatusOK)
	}
	return c.Redirect(http.StatusTemporaryRedirect, "/")
}

func handlePostsRedirect(c echo.Context) error {
	return c.Redirect(http.StatusMovedPermanently, "/")
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.Store.ListPosts(c.Request().Context())
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	return writeSitemap(c.Response(), a.Config.URL, posts)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Store.ListPosts(c.Request().Context())
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/rss+xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	return writeRSS(c.Response(), a.Config, posts)
}

func (a *App) handleFavicon(c echo.Context) error {
	return c.File(filepath.Join(a.staticDir, "favicon.svg"))
}

// handleRobots serves robots.txt from the static dir, or a generated one
// pointing at the sitemap.
func (a *App) handleRobots(c echo.Context) error {
	file := filepath.Join(a.staticDir, "robots.txt")
	if _, err := os.Stat(file); err == nil {
		return c.File(file)
	}
	return c.String(http.StatusOK, robotsTxt(a.Config.URL))
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	site := a.Config.Views()
	log := logctx.From(c.Request().Context())

	var decodeErr *content.DecodeError
	if errors.As(err, &decodeErr) {
		log.Error("malformed_document",
			slog.String("uid", decodeErr.UID),
			slog.String("field", decodeErr.Field),
			slog.String("err", err.Error()),
		)
		_ = RenderStatus(c, http.StatusInternalServerError, a.Views.ServerError(site))
		return
	}

	he, ok := err.(*echo.HTTPError)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound(site))
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		log.Error("server_error", slog.String("uri", c.Request().RequestURI), slog.String("err", err.Error()))
		_ = RenderStatus(c, code, a.Views.ServerError(site))
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
