package spacetraveling

import (
	"bytes"
	"context"
	"image"
	"image/gif"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/spacetraveling/content"
)

func serveBytes(t *testing.T, data []byte, status int) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/banner"
}

func TestImageProber_Dimensions(t *testing.T) {
	var jpg, gf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, image.NewRGBA(image.Rect(0, 0, 1200, 630)), nil))
	require.NoError(t, gif.Encode(&gf, image.NewRGBA(image.Rect(0, 0, 32, 16)), nil))

	tests := []struct {
		name string
		data []byte
		w, h int
	}{
		{"png", newBannerTransport(t).png, 640, 360},
		{"jpeg", jpg.Bytes(), 1200, 630},
		{"gif", gf.Bytes(), 32, 16},
	}
	p := NewImageProber(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, err := p.Dimensions(context.Background(), serveBytes(t, tt.data, http.StatusOK))
			require.NoError(t, err)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestImageProber_Errors(t *testing.T) {
	p := NewImageProber(nil)

	_, _, err := p.Dimensions(context.Background(), serveBytes(t, []byte("not an image"), http.StatusOK))
	assert.Error(t, err)

	_, _, err = p.Dimensions(context.Background(), serveBytes(t, nil, http.StatusNotFound))
	assert.ErrorContains(t, err, "unexpected status 404")
}

func TestImageProber_ProbeBanner(t *testing.T) {
	p := NewImageProber(&http.Client{Transport: newBannerTransport(t)})

	post := &content.PostDetail{UID: "a", Banner: content.Image{URL: "https://images.example.com/a.png"}}
	p.ProbeBanner(context.Background(), post)
	assert.Equal(t, 640, post.Banner.Width)
	assert.Equal(t, 360, post.Banner.Height)

	// Known sizes are kept.
	post = &content.PostDetail{UID: "b", Banner: content.Image{URL: "https://images.example.com/b.png", Width: 10, Height: 5}}
	p.ProbeBanner(context.Background(), post)
	assert.Equal(t, 10, post.Banner.Width)

	// Failures leave the size unset.
	post = &content.PostDetail{UID: "c", Banner: content.Image{URL: "https://images.example.com/missing"}}
	p.ProbeBanner(context.Background(), post)
	assert.Zero(t, post.Banner.Width)
}
