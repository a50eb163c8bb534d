package views

import (
	"html/template"

	"github.com/eringen/spacetraveling/richtext"
)

// SiteConfig holds site-wide settings. Every view model carries it so nothing
// is hardcoded in templates.
type SiteConfig struct {
	Name        string // SITE_NAME
	URL         string // SITE_URL
	Description string // SITE_DESCRIPTION
	Locale      string // SITE_LOCALE ("pt-BR" or "en")
	HTMXSrc     string // HTMX_SRC
}

// Messages returns the UI strings for the site's locale.
func (s SiteConfig) Messages() Messages {
	return MessagesFor(s.Locale)
}

// PageMeta carries per-page OpenGraph and SEO metadata into the <head> template.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
	Image       string
	JSONLD      template.JS
}

// PostCard is one entry of the listing.
type PostCard struct {
	UID      string
	Title    string
	Subtitle string
	Author   string
	Date     string
	URL      string
}

// LoadMore is the state of the "load more" control. An empty Cursor renders
// nothing.
type LoadMore struct {
	Cursor string
	URL    string
	// Error is shown above the control when the last fetch failed.
	Error      string
	DismissURL string
}

// Listing is the home page.
type Listing struct {
	Site     SiteConfig
	Meta     PageMeta
	Posts    []PostCard
	LoadMore LoadMore
	Preview  bool
}

// PostsPage is the fragment answering a "load more" request: the new cards
// followed by a control bound to the next cursor.
type PostsPage struct {
	Site     SiteConfig
	Posts    []PostCard
	LoadMore LoadMore
}

// Section is a headed part of a post body.
type Section struct {
	Heading string
	Body    []richtext.Block
}

// Banner is the post's header image.
type Banner struct {
	URL    string
	Alt    string
	Width  int
	Height int
}

// PostView is the post page.
type PostView struct {
	Site        SiteConfig
	Meta        PageMeta
	UID         string
	Title       string
	Author      string
	Date        string
	ReadingTime int
	Banner      Banner
	Sections    []Section
	Preview     bool
}

// LoadingView is the placeholder served for a post that is not generated yet.
// The page requests ContentURL once loaded and swaps the article in.
type LoadingView struct {
	Site       SiteConfig
	Meta       PageMeta
	ContentURL string
}

// StatusView is used by the not-found and server-error pages.
type StatusView struct {
	Site SiteConfig
	Meta PageMeta
}
