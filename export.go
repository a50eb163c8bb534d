package spacetraveling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-h/templ"

	"github.com/eringen/spacetraveling/internal/logctx"
	"github.com/eringen/spacetraveling/views"
)

// ErrEmptySnapshot is returned by Export when Build has not stored any post.
var ErrEmptySnapshot = errors.New("spacetraveling: snapshot is empty, run build first")

// ErrUnsafeUID is returned by Export for a UID that cannot be used as a
// single directory name.
var ErrUnsafeUID = errors.New("spacetraveling: unsafe post uid")

// Export renders the snapshot into dir as a static site: the listing, one
// page per post, the feeds and the assets. The exported listing shows every
// post at once since there is no server to answer "load more".
func (a *App) Export(ctx context.Context, dir string) (int, error) {
	const op = "spacetraveling.Export"

	if err := a.open(); err != nil {
		return 0, err
	}
	posts, err := a.Store.ListPosts(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(posts) == 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrEmptySnapshot)
	}
	for _, s := range posts {
		if !safeUID(s.UID) {
			return 0, fmt.Errorf("%s: %w: %q", op, ErrUnsafeUID, s.UID)
		}
	}

	site := a.Config.Views()
	home := a.Views.Home(views.Listing{
		Site:  site,
		Meta:  views.HomeMeta(site),
		Posts: views.NewPostCards(posts, site),
	})
	if err := writeComponent(ctx, filepath.Join(dir, "index.html"), home); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	for _, s := range posts {
		stored, err := a.Store.GetPost(ctx, s.UID)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		page := a.Views.Post(views.NewPostView(stored.Post, site))
		if err := writeComponent(ctx, filepath.Join(dir, "post", s.UID, "index.html"), page); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}

	var buf bytes.Buffer
	if err := writeSitemap(&buf, a.Config.URL, posts); err != nil {
		return 0, fmt.Errorf("%s: sitemap: %w", op, err)
	}
	if err := writeFile(filepath.Join(dir, "sitemap.xml"), buf.Bytes()); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	buf.Reset()
	if err := writeRSS(&buf, a.Config, posts); err != nil {
		return 0, fmt.Errorf("%s: feed: %w", op, err)
	}
	if err := writeFile(filepath.Join(dir, "feed.xml"), buf.Bytes()); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if err := writeFile(filepath.Join(dir, "robots.txt"), []byte(robotsTxt(a.Config.URL))); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	embedded, _ := fs.Sub(EmbeddedAssets, "embedded")
	if err := copyTree(embedded, filepath.Join(dir, "public")); err != nil {
		return 0, fmt.Errorf("%s: assets: %w", op, err)
	}
	if _, err := os.Stat(a.staticDir); err == nil {
		if err := copyTree(os.DirFS(a.staticDir), filepath.Join(dir, "public")); err != nil {
			return 0, fmt.Errorf("%s: static: %w", op, err)
		}
	}

	logctx.From(ctx).Info("export_finished", slog.String("dir", dir), slog.Int("posts", len(posts)))
	return len(posts), nil
}

// safeUID reports whether uid names exactly one directory below post/.
func safeUID(uid string) bool {
	return filepath.IsLocal(uid) && filepath.Base(uid) == uid && !strings.ContainsAny(uid, `/\`)
}

func writeComponent(ctx context.Context, path string, cmp templ.Component) error {
	var buf bytes.Buffer
	if err := cmp.Render(ctx, &buf); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	return writeFile(path, buf.Bytes())
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// copyTree copies every regular file of src into dst, overwriting.
func copyTree(src fs.FS, dst string) error {
	return fs.WalkDir(src, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(dst, filepath.FromSlash(path))
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		in, err := src.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}
