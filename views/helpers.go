package views

import (
	"encoding/json"
	"html/template"
	"net/url"
	"path"
	"strings"

	"github.com/eringen/spacetraveling/content"
)

// BuildURL joins path segments onto a base URL, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// PostPath is the site-relative path of a post.
func PostPath(uid string) string {
	return "/post/" + url.PathEscape(uid) + "/"
}

// LoadMoreURL is the URL the "load more" control requests for cursor.
func LoadMoreURL(cursor string) string {
	if cursor == "" {
		return ""
	}
	return "/?after=" + url.QueryEscape(cursor)
}

// DismissURL clears a load error while keeping the cursor.
func DismissURL(cursor string) string {
	if cursor == "" {
		return ""
	}
	return LoadMoreURL(cursor) + "&dismiss=1"
}

// NewLoadMore builds the control for cursor. errMsg is shown when non-empty.
func NewLoadMore(cursor, errMsg string) LoadMore {
	lm := LoadMore{Cursor: cursor, URL: LoadMoreURL(cursor)}
	if errMsg != "" {
		lm.Error = errMsg
		lm.DismissURL = DismissURL(cursor)
	}
	return lm
}

// NewPostCard shapes a listing entry.
func NewPostCard(s content.PostSummary, site SiteConfig) PostCard {
	return PostCard{
		UID:      s.UID,
		Title:    s.Title,
		Subtitle: s.Subtitle,
		Author:   s.Author,
		Date:     FormatDate(s.FirstPublicationDate, site.Locale),
		URL:      PostPath(s.UID),
	}
}

// NewPostCards shapes a slice of listing entries.
func NewPostCards(in []content.PostSummary, site SiteConfig) []PostCard {
	out := make([]PostCard, 0, len(in))
	for _, s := range in {
		out = append(out, NewPostCard(s, site))
	}
	return out
}

// NewPostView shapes a post page, including its reading time and metadata.
func NewPostView(p *content.PostDetail, site SiteConfig) PostView {
	v := PostView{
		Site:        site,
		UID:         p.UID,
		Title:       p.Title,
		Author:      p.Author,
		Date:        FormatDate(p.FirstPublicationDate, site.Locale),
		ReadingTime: p.ReadingTime(),
		Banner: Banner{
			URL:    p.Banner.URL,
			Alt:    p.Banner.Alt,
			Width:  p.Banner.Width,
			Height: p.Banner.Height,
		},
		Sections: make([]Section, 0, len(p.Content)),
	}
	for _, s := range p.Content {
		v.Sections = append(v.Sections, Section{Heading: s.Heading, Body: s.Body})
	}
	v.Meta = PageMeta{
		Title:       p.Title + " | " + site.Name,
		Description: p.Subtitle,
		URL:         BuildURL(site.URL, "post", p.UID),
		OGType:      "article",
		Image:       p.Banner.URL,
		JSONLD:      BlogPostingJsonLD(site, p),
	}
	return v
}

// HomeMeta is the metadata of the listing page.
func HomeMeta(site SiteConfig) PageMeta {
	return PageMeta{
		Title:       site.Name,
		Description: site.Description,
		URL:         BuildURL(site.URL),
		OGType:      "website",
		JSONLD:      WebsiteJsonLD(site),
	}
}

// WebsiteJsonLD produces a Schema.org WebSite JSON-LD block using cfg values.
func WebsiteJsonLD(cfg SiteConfig) template.JS {
	data := map[string]interface{}{
		"@context": "https://schema.org",
		"@type":    "WebSite",
		"name":     cfg.Name,
		"url":      BuildURL(cfg.URL),
	}
	if cfg.Description != "" {
		data["description"] = cfg.Description
	}
	return marshalJS(data)
}

// BlogPostingJsonLD produces a Schema.org BlogPosting JSON-LD block for a post.
func BlogPostingJsonLD(cfg SiteConfig, p *content.PostDetail) template.JS {
	postURL := BuildURL(cfg.URL, "post", p.UID)
	data := map[string]interface{}{
		"@context": "https://schema.org",
		"@type":    "BlogPosting",
		"headline": p.Title,
		"url":      postURL,
		"author": map[string]string{
			"@type": "Person",
			"name":  p.Author,
		},
		"publisher": map[string]string{
			"@type": "Organization",
			"name":  cfg.Name,
		},
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   postURL,
		},
	}
	if p.Subtitle != "" {
		data["description"] = p.Subtitle
	}
	if d := ISODate(p.FirstPublicationDate); d != "" {
		data["datePublished"] = d
	}
	if p.Banner.URL != "" {
		data["image"] = p.Banner.URL
	}
	return marshalJS(data)
}

// json.Marshal escapes <, > and & so the result is safe inside <script>.
func marshalJS(v any) template.JS {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return template.JS(b)
}
