// Package spacetraveling serves a blog whose posts live in a Prismic
// repository. Posts are snapshotted into SQLite by Build, served from that
// snapshot with optional background revalidation, and generated on demand
// when a slug is requested that the snapshot does not know yet.
package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/eringen/spacetraveling/cms"
	"github.com/eringen/spacetraveling/content"
)

// App wires together the content API client, the snapshot store, the cache,
// handlers, middleware and views.
type App struct {
	Config   SiteConfig
	Echo     *echo.Echo
	CMS      *cms.Client
	Source   *Source
	Store    *Store
	Cache    *PostCache
	Images   *ImageProber
	Views    ViewFuncs
	Registry *prometheus.Registry

	log             *slog.Logger
	httpClient      *http.Client
	loadMoreLimiter *RateLimiter
	webhookLimiter  *RateLimiter
	customRoutes    []func(*App)
	staticDir       string

	openOnce  sync.Once
	openErr   error
	routeOnce sync.Once
}

// New creates an App. Nothing is opened until Init, Start, Build or Export.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		Views:     DefaultViews(),
		Registry:  prometheus.NewRegistry(),
		log:       slog.Default(),
		staticDir: "public",
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}
	a.Views = a.Views.withDefaults()
	return a
}

// open sets up the data layer. It is safe to call more than once.
func (a *App) open() error {
	a.openOnce.Do(func() {
		a.openErr = a.openData()
	})
	return a.openErr
}

func (a *App) openData() error {
	const op = "spacetraveling.open"

	if err := a.Config.validate(); err != nil {
		return fmt.Errorf("%s: invalid config: %w", op, err)
	}

	if a.httpClient == nil {
		a.httpClient = &http.Client{Timeout: a.Config.Prismic.Timeout}
	}

	if err := a.Registry.Register(collectors.NewGoCollector()); err != nil {
		return fmt.Errorf("%s: register go collector: %w", op, err)
	}
	if err := a.Registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return fmt.Errorf("%s: register process collector: %w", op, err)
	}
	metrics, err := cms.NewMetrics(a.Registry)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	client, err := cms.New(a.Config.Prismic.Endpoint,
		cms.WithAccessToken(a.Config.Prismic.AccessToken),
		cms.WithHTTPClient(a.httpClient),
		cms.WithRetry(a.Config.Prismic.MaxRetries, 200*time.Millisecond),
		cms.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	a.CMS = client
	a.Source = NewSource(client, a.Config.Prismic.DocumentType, a.Config.Prismic.PageSize)
	a.Images = NewImageProber(a.httpClient)

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("%s: init store: %w", op, err)
	}
	a.Store = store

	a.Cache = NewPostCache(a.Store, a.Config.PostCacheTTL, a.Config.Revalidate, a.fetchPost, a.fetchListing)
	// One request per attempt plus the banner probe.
	a.Cache.generateTimeout = a.Config.Prismic.Timeout * time.Duration(max(a.Config.Prismic.MaxRetries, 0)+2)

	a.loadMoreLimiter = NewRateLimiter(60, time.Minute)
	a.webhookLimiter = NewRateLimiter(10, time.Minute)
	return nil
}

// fetchPost loads a published post and fills in its banner size.
func (a *App) fetchPost(ctx context.Context, uid string) (*content.PostDetail, error) {
	post, err := a.Source.Post(ctx, uid, "")
	if err != nil {
		return nil, err
	}
	a.Images.ProbeBanner(ctx, post)
	return post, nil
}

func (a *App) fetchListing(ctx context.Context) (content.Page, error) {
	return a.Source.FirstPage(ctx, "")
}

// Init opens the data layer and registers middleware and routes. Start calls
// it; tests call it directly and drive a.Echo with httptest.
func (a *App) Init() error {
	if err := a.open(); err != nil {
		return err
	}
	a.routeOnce.Do(func() {
		a.setupMiddleware()
		a.setupRoutes()
		for _, fn := range a.customRoutes {
			fn(a)
		}
	})
	return nil
}

// Start initializes the app and serves HTTP until Shutdown is called.
func (a *App) Start() error {
	if err := a.Init(); err != nil {
		return err
	}
	a.log.Info("server_started", slog.String("addr", a.Config.Addr), slog.String("fallback", string(a.Config.Fallback)))
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server, waiting for in-flight requests until ctx
// is done.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	if a.Config.MetricsEnabled {
		e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
			Gatherer: a.Registry,
		}))
	}

	embeddedFS, _ := fs.Sub(EmbeddedAssets, "embedded")
	embeddedHandler := http.FileServer(http.FS(embeddedFS))
	e.GET("/public/styles.css", echo.WrapHandler(http.StripPrefix("/public/", embeddedHandler)))

	e.Static("/public", a.staticDir)
	e.GET("/favicon.svg", a.handleFavicon)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)

	e.GET("/", a.handleHome)
	e.GET("/post/:uid/", a.handlePost)
	e.GET("/posts", handlePostsRedirect)

	e.POST("/api/revalidate", a.handleRevalidate)
	if a.Config.PreviewEnabled {
		e.GET("/api/preview", a.handlePreview)
		e.GET("/api/exit-preview", a.handleExitPreview)
	}
}

// Close releases the store and stops background goroutines.
func (a *App) Close() error {
	if a.loadMoreLimiter != nil {
		a.loadMoreLimiter.Stop()
	}
	if a.webhookLimiter != nil {
		a.webhookLimiter.Stop()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
