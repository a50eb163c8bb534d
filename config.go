package spacetraveling

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/eringen/spacetraveling/views"
)

// FallbackMode decides what happens when a post is requested that is not in
// the snapshot yet.
type FallbackMode string

const (
	// FallbackTrue serves a loading page that fetches the post on demand.
	FallbackTrue FallbackMode = "true"
	// FallbackBlocking fetches the post before answering.
	FallbackBlocking FallbackMode = "blocking"
	// FallbackFalse answers 404 for posts not generated by build.
	FallbackFalse FallbackMode = "false"
)

// SiteConfig holds all configuration for a spacetraveling site.
//
// Load reads it from, in order of precedence: an explicit file path,
// CONFIG_PATH, ./local.yaml, or the environment alone.
type SiteConfig struct {
	Env         string `yaml:"env"         env:"ENV"              env-default:"local"`
	Name        string `yaml:"name"        env:"SITE_NAME"        env-default:"spacetraveling"`
	URL         string `yaml:"url"         env:"SITE_URL"         env-default:"http://localhost:3000"`
	Description string `yaml:"description" env:"SITE_DESCRIPTION"`
	Locale      string `yaml:"locale"      env:"SITE_LOCALE"      env-default:"pt-BR"`

	Addr         string `yaml:"addr"          env:"ADDR"          env-default:":3000"`
	DatabasePath string `yaml:"database_path" env:"DATABASE_PATH" env-default:"data/spacetraveling.db"`

	Prismic PrismicConfig `yaml:"prismic"`

	PostCacheTTL     time.Duration `yaml:"post_cache_ttl"    env:"POST_CACHE_TTL"    env-default:"5m"`
	Revalidate       time.Duration `yaml:"revalidate"        env:"REVALIDATE"        env-default:"0s"`
	Fallback         FallbackMode  `yaml:"fallback"          env:"FALLBACK"          env-default:"true"`
	BuildConcurrency int           `yaml:"build_concurrency" env:"BUILD_CONCURRENCY" env-default:"4"`

	PreviewEnabled   bool   `yaml:"preview_enabled"   env:"PREVIEW_ENABLED"   env-default:"false"`
	SessionSecret    string `yaml:"session_secret"    env:"SESSION_SECRET"`
	CookieSecure     bool   `yaml:"cookie_secure"     env:"COOKIE_SECURE"     env-default:"false"`
	RevalidateSecret string `yaml:"revalidate_secret" env:"REVALIDATE_SECRET"`

	MetricsEnabled bool   `yaml:"metrics_enabled" env:"METRICS_ENABLED" env-default:"true"`
	HTMXSrc        string `yaml:"htmx_src"        env:"HTMX_SRC"        env-default:"https://unpkg.com/htmx.org@2.0.4"`
}

// PrismicConfig configures the content API client.
type PrismicConfig struct {
	Endpoint     string        `yaml:"endpoint"      env:"PRISMIC_API_ENDPOINT"`
	AccessToken  string        `yaml:"access_token"  env:"PRISMIC_ACCESS_TOKEN"`
	DocumentType string        `yaml:"document_type" env:"PRISMIC_DOCUMENT_TYPE" env-default:"posts"`
	PageSize     int           `yaml:"page_size"     env:"PRISMIC_PAGE_SIZE"     env-default:"1"`
	Timeout      time.Duration `yaml:"timeout"       env:"PRISMIC_TIMEOUT"       env-default:"10s"`
	MaxRetries   int           `yaml:"max_retries"   env:"PRISMIC_MAX_RETRIES"   env-default:"3"`
}

// Views returns the subset of the config templates need.
func (c SiteConfig) Views() views.SiteConfig {
	return views.SiteConfig{
		Name:        c.Name,
		URL:         c.URL,
		Description: c.Description,
		Locale:      c.Locale,
		HTMXSrc:     c.HTMXSrc,
	}
}

// setDefaults fills zero values for configs built in code rather than by Load.
func (c *SiteConfig) setDefaults() {
	if c.Env == "" {
		c.Env = "local"
	}
	if c.Name == "" {
		c.Name = "spacetraveling"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Locale == "" {
		c.Locale = "pt-BR"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/spacetraveling.db"
	}
	if c.Prismic.DocumentType == "" {
		c.Prismic.DocumentType = "posts"
	}
	if c.Prismic.PageSize == 0 {
		c.Prismic.PageSize = 1
	}
	if c.Prismic.Timeout == 0 {
		c.Prismic.Timeout = 10 * time.Second
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = 5 * time.Minute
	}
	if c.Fallback == "" {
		c.Fallback = FallbackTrue
	}
	if c.BuildConcurrency == 0 {
		c.BuildConcurrency = 4
	}
	if c.HTMXSrc == "" {
		c.HTMXSrc = "https://unpkg.com/htmx.org@2.0.4"
	}
}

// validate reports every invalid setting at once.
func (c *SiteConfig) validate() error {
	var errs *multierror.Error

	if c.Prismic.Endpoint == "" {
		errs = multierror.Append(errs, errors.New("prismic.endpoint (PRISMIC_API_ENDPOINT) is required"))
	} else if u, err := url.Parse(c.Prismic.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = multierror.Append(errs, fmt.Errorf("prismic.endpoint must be an absolute http(s) URL, got %q", c.Prismic.Endpoint))
	}
	if u, err := url.Parse(c.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = multierror.Append(errs, fmt.Errorf("url must be absolute, got %q", c.URL))
	}
	if c.Prismic.PageSize < 1 || c.Prismic.PageSize > 100 {
		errs = multierror.Append(errs, fmt.Errorf("prismic.page_size must be between 1 and 100, got %d", c.Prismic.PageSize))
	}
	if c.Prismic.MaxRetries < 0 {
		errs = multierror.Append(errs, errors.New("prismic.max_retries must be >= 0"))
	}
	if c.Prismic.Timeout <= 0 {
		errs = multierror.Append(errs, errors.New("prismic.timeout must be > 0"))
	}
	if c.Revalidate < 0 {
		errs = multierror.Append(errs, errors.New("revalidate must be >= 0"))
	}
	switch c.Fallback {
	case FallbackTrue, FallbackBlocking, FallbackFalse:
	default:
		errs = multierror.Append(errs, fmt.Errorf("fallback must be true, blocking or false, got %q", c.Fallback))
	}
	if c.BuildConcurrency < 1 {
		errs = multierror.Append(errs, errors.New("build_concurrency must be >= 1"))
	}
	if c.PreviewEnabled && c.SessionSecret == "" {
		errs = multierror.Append(errs, errors.New("session_secret (SESSION_SECRET) is required when preview is enabled"))
	}
	if !views.SupportedLocale(c.Locale) {
		errs = multierror.Append(errs, fmt.Errorf("locale %q is not supported (use pt-BR or en)", c.Locale))
	}

	return errs.ErrorOrNil()
}

// MustLoad is Load that panics on error.
func MustLoad(path string) *SiteConfig {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration: 1) explicit path; 2) CONFIG_PATH;
// 3) ./local.yaml; 4) environment only. Environment variables override
// values read from a file.
func Load(path string) (*SiteConfig, error) {
	var cfg SiteConfig

	file := path
	if file == "" {
		file = os.Getenv("CONFIG_PATH")
	}
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", file)
		}
	} else if _, err := os.Stat("local.yaml"); err == nil {
		file = "local.yaml"
	}

	if file != "" {
		if err := cleanenv.ReadConfig(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for user-owned static assets (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithViews replaces the default pages.
func WithViews(v ViewFuncs) Option {
	return func(a *App) {
		a.Views = v
	}
}

// WithHTTPClient sets the HTTP client used for the content API and banner
// probing.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *App) {
		a.httpClient = hc
	}
}

// WithLogger sets the logger used for request and build logs
// (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.log = l
	}
}
