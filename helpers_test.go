package spacetraveling

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eringen/spacetraveling/cms"
	"github.com/eringen/spacetraveling/cms/cmstest"
)

// bannerTransport answers requests to images.example.com with a 640x360 PNG
// and sends everything else to the default transport.
type bannerTransport struct {
	png []byte
}

func newBannerTransport(t *testing.T) *bannerTransport {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 640, 360))))
	return &bannerTransport{png: buf.Bytes()}
}

func (tr *bannerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.URL.Host != "images.example.com" {
		return http.DefaultTransport.RoundTrip(r)
	}
	rec := httptest.NewRecorder()
	if strings.HasSuffix(r.URL.Path, ".png") {
		rec.Header().Set("Content-Type", "image/png")
		rec.Write(tr.png)
	} else {
		rec.WriteHeader(http.StatusNotFound)
	}
	return rec.Result(), nil
}

func testPosts() []cms.Document {
	return []cms.Document{
		cmstest.Post("como-utilizar-hooks", "2021-03-15T19:25:28+0000",
			cmstest.PostData("Como utilizar Hooks", "Pensando em sincronização em vez de ciclos de vida", "Joseph Oliveira", "Proin et varius", "Lorem ipsum dolor sit amet")),
		cmstest.Post("criando-um-app-cra-do-zero", "2021-03-25T19:27:35+0000",
			cmstest.PostData("Criando um app CRA do zero", "Tudo sobre como criar a sua primeira aplicação", "Danilo Vieira", "Cras laoreet", "Mauris dapibus")),
		cmstest.Post("react-server-components", "2021-04-02T10:00:00+0000",
			cmstest.PostData("React Server Components", "O que muda", "Ana Souza", "Introdução", "Texto")),
	}
}

// newTestApp starts a fake content API with docs and returns an initialized
// App pointing at it.
func newTestApp(t *testing.T, docs []cms.Document, mutate func(*SiteConfig)) (*App, *cmstest.Server) {
	t.Helper()
	srv := cmstest.NewServer(docs...)
	t.Cleanup(srv.Close)

	cfg := SiteConfig{
		Name:         "spacetraveling",
		URL:          "https://blog.example.com",
		DatabasePath: filepath.Join(t.TempDir(), "site.db"),
		Prismic: PrismicConfig{
			Endpoint: srv.Endpoint(),
		},
		MetricsEnabled: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	app := New(cfg,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithHTTPClient(&http.Client{Transport: newBannerTransport(t)}),
		WithStaticDir(t.TempDir()),
	)
	require.NoError(t, app.Init())
	t.Cleanup(func() { app.Close() })
	return app, srv
}

func doRequest(app *App, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)
	return rec
}

func htmxHeader() http.Header {
	return http.Header{"Hx-Request": []string{"true"}}
}
