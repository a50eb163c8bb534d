package spacetraveling

import (
	"github.com/a-h/templ"

	"github.com/eringen/spacetraveling/views"
)

// ViewFuncs holds the components the App renders pages with. DefaultViews
// returns the built-in pages; applications can replace any of them with their
// own templ components.
type ViewFuncs struct {
	Home        func(v views.Listing) templ.Component
	Posts       func(v views.PostsPage) templ.Component
	Post        func(v views.PostView) templ.Component
	PostPartial func(v views.PostView) templ.Component
	Loading     func(v views.LoadingView) templ.Component
	NotFound    func(site views.SiteConfig) templ.Component
	ServerError func(site views.SiteConfig) templ.Component
}

// DefaultViews returns the built-in pages.
func DefaultViews() ViewFuncs {
	return ViewFuncs{
		Home:        views.Home,
		Posts:       views.Posts,
		Post:        views.Post,
		PostPartial: views.PostPartial,
		Loading:     views.Loading,
		NotFound:    views.NotFound,
		ServerError: views.ServerError,
	}
}

// withDefaults fills any nil view with the built-in one.
func (v ViewFuncs) withDefaults() ViewFuncs {
	d := DefaultViews()
	if v.Home == nil {
		v.Home = d.Home
	}
	if v.Posts == nil {
		v.Posts = d.Posts
	}
	if v.Post == nil {
		v.Post = d.Post
	}
	if v.PostPartial == nil {
		v.PostPartial = d.PostPartial
	}
	if v.Loading == nil {
		v.Loading = d.Loading
	}
	if v.NotFound == nil {
		v.NotFound = d.NotFound
	}
	if v.ServerError == nil {
		v.ServerError = d.ServerError
	}
	return v
}
