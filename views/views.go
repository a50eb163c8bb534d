// Package views holds the default pages of the blog. Pages are html/template
// files embedded in the binary and exposed as templ components, so an
// application can swap any of them for its own templ code.
package views

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/a-h/templ"

	"github.com/eringen/spacetraveling/richtext"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"richtext": renderRichText,
	"lower":    strings.ToLower,
}

// renderRichText bridges the rich-text templ component into html/template.
func renderRichText(blocks []richtext.Block) (template.HTML, error) {
	return templ.ToGoHTML(context.Background(), richtext.Component(blocks))
}

var (
	base  = template.Must(template.New("base").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/partials.html"))
	pages = map[string]*template.Template{}
)

func init() {
	for _, name := range []string{"home", "post", "loading", "notfound", "error"} {
		t := template.Must(base.Clone())
		pages[name] = template.Must(t.ParseFS(templateFS, "templates/"+name+".html"))
	}
}

func page(name string, data any) templ.Component {
	t, ok := pages[name]
	if !ok {
		panic(fmt.Sprintf("views: unknown page %q", name))
	}
	return templ.FromGoHTML(t.Lookup("layout"), data)
}

func fragment(name string, data any) templ.Component {
	return templ.FromGoHTML(base.Lookup(name), data)
}

// Home renders the full listing page.
func Home(v Listing) templ.Component {
	return page("home", v)
}

// Posts renders the fragment answering a "load more" request.
func Posts(v PostsPage) templ.Component {
	return fragment("posts_page", v)
}

// Post renders the full post page.
func Post(v PostView) templ.Component {
	return page("post", v)
}

// PostPartial renders only the article, for swapping into a loading page.
func PostPartial(v PostView) templ.Component {
	return fragment("article", v)
}

// Loading renders the placeholder of a post that is still being generated.
func Loading(v LoadingView) templ.Component {
	return page("loading", v)
}

// NotFound renders the 404 page.
func NotFound(site SiteConfig) templ.Component {
	return page("notfound", StatusView{Site: site, Meta: PageMeta{Title: site.Name}})
}

// ServerError renders the 500 page.
func ServerError(site SiteConfig) templ.Component {
	return page("error", StatusView{Site: site, Meta: PageMeta{Title: site.Name}})
}
