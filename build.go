package spacetraveling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/eringen/spacetraveling/internal/logctx"
)

// BuildReport summarizes a Build.
type BuildReport struct {
	Posts    int
	Failed   int
	Pruned   int64
	Duration time.Duration
}

// Build snapshots the site: the first listing page and every post, fetched
// with at most BuildConcurrency requests in flight. Posts that fail are
// reported together in the returned error; the rest are still stored. Posts
// no longer listed are pruned only when every post succeeded.
func (a *App) Build(ctx context.Context) (BuildReport, error) {
	const op = "spacetraveling.Build"

	var report BuildReport
	start := time.Now()
	if err := a.open(); err != nil {
		return report, err
	}
	log := logctx.From(ctx)

	first, err := a.fetchListing(ctx)
	if err != nil {
		return report, fmt.Errorf("%s: listing: %w", op, err)
	}
	if err := a.Store.SaveListing(ctx, first, time.Now()); err != nil {
		return report, fmt.Errorf("%s: %w", op, err)
	}

	uids, err := a.Source.Slugs(ctx)
	if err != nil {
		return report, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("build_started", slog.Int("posts", len(uids)), slog.Int("concurrency", a.Config.BuildConcurrency))

	var (
		mu     sync.Mutex
		errs   *multierror.Error
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Config.BuildConcurrency)
	for i, uid := range uids {
		g.Go(func() error {
			post, err := a.fetchPost(gctx, uid)
			if err == nil {
				err = a.Store.SavePost(gctx, post, i, time.Now())
			}
			if err != nil {
				log.Warn("build_post_failed", slog.String("uid", uid), slog.String("err", err.Error()))
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("post %s: %w", uid, err))
				failed++
				mu.Unlock()
			}
			// Per-post failures do not cancel the others.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("%s: %w", op, err)
	}

	report.Failed = failed
	report.Posts = len(uids) - report.Failed
	if report.Failed == 0 {
		pruned, err := a.Store.PrunePosts(ctx, uids)
		if err != nil {
			return report, fmt.Errorf("%s: %w", op, err)
		}
		report.Pruned = pruned
	}
	a.Cache.Invalidate()
	report.Duration = time.Since(start)

	log.Info("build_finished",
		slog.Int("posts", report.Posts),
		slog.Int("failed", report.Failed),
		slog.Int64("pruned", report.Pruned),
		slog.Duration("duration", report.Duration),
	)
	if err := errs.ErrorOrNil(); err != nil {
		return report, fmt.Errorf("%s: %w", op, err)
	}
	return report, nil
}
