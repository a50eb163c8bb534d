package spacetraveling

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"

	_ "golang.org/x/image/webp"

	"github.com/eringen/spacetraveling/content"
	"github.com/eringen/spacetraveling/internal/logctx"
)

// maxProbeSize bounds how much of an image is read to find its dimensions.
// Headers of every supported format fit well within it.
const maxProbeSize = 1 << 20 // 1MB

// ImageProber reads image dimensions from their headers.
type ImageProber struct {
	client *http.Client
}

// NewImageProber returns a prober using client.
func NewImageProber(client *http.Client) *ImageProber {
	if client == nil {
		client = http.DefaultClient
	}
	return &ImageProber{client: client}
}

// Dimensions fetches the start of the image at url and decodes its size.
// PNG, JPEG, GIF and WebP are supported.
func (p *ImageProber) Dimensions(ctx context.Context, url string) (int, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("probe image: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("probe image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("probe image: unexpected status %d", resp.StatusCode)
	}

	cfg, format, err := image.DecodeConfig(io.LimitReader(resp.Body, maxProbeSize))
	if err != nil {
		return 0, 0, fmt.Errorf("probe image: decode config: %w", err)
	}
	logctx.From(ctx).Debug("image_probed",
		slog.String("format", format),
		slog.Int("width", cfg.Width),
		slog.Int("height", cfg.Height),
	)
	return cfg.Width, cfg.Height, nil
}

// ProbeBanner fills in the banner size of post when the API did not send it.
// Failures are logged and leave the size unset; the page renders without
// width and height attributes.
func (p *ImageProber) ProbeBanner(ctx context.Context, post *content.PostDetail) {
	if post.Banner.URL == "" || (post.Banner.Width > 0 && post.Banner.Height > 0) {
		return
	}
	w, h, err := p.Dimensions(ctx, post.Banner.URL)
	if err != nil {
		logctx.From(ctx).Warn("banner_probe_failed",
			slog.String("uid", post.UID),
			slog.String("err", err.Error()),
		)
		return
	}
	post.Banner.Width, post.Banner.Height = w, h
}
