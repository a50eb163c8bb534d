package spacetraveling

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/eringen/spacetraveling/content"
)

// Store is the snapshot of generated content, kept in SQLite so the server
// can answer without the content API and survive restarts.
type Store struct {
	db *sql.DB
}

// StoredPost is a post with the time it was fetched from the API.
type StoredPost struct {
	Post      *content.PostDetail
	FetchedAt time.Time
}

// StoredListing is the first listing page with the time it was fetched.
type StoredListing struct {
	Page      content.Page
	FetchedAt time.Time
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the schema.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// busy_timeout in the DSN applies to every pooled connection.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// WAL lets the server read while build writes; busy_timeout makes writers
	// wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
		PRAGMA mmap_size=268435456;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS posts (
    uid TEXT PRIMARY KEY,
    published_at TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    subtitle TEXT NOT NULL,
    author TEXT NOT NULL,
    detail TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    fetched_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS listing (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    page TEXT NOT NULL,
    fetched_at INTEGER NOT NULL
);
`)
	return err
}

func formatPublished(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// SavePost upserts a post. position orders posts in the sitemap and feed;
// an existing position is kept when position is negative.
func (s *Store) SavePost(ctx context.Context, p *content.PostDetail, position int, fetchedAt time.Time) error {
	detail, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: encode post %s: %w", p.UID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO posts (uid, published_at, title, subtitle, author, detail, position, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, max(?, 0), ?)
ON CONFLICT(uid) DO UPDATE SET
    published_at = excluded.published_at,
    title = excluded.title,
    subtitle = excluded.subtitle,
    author = excluded.author,
    detail = excluded.detail,
    position = CASE WHEN ? < 0 THEN posts.position ELSE excluded.position END,
    fetched_at = excluded.fetched_at`,
		p.UID, formatPublished(p.FirstPublicationDate), p.Title, p.Subtitle, p.Author, string(detail), position, fetchedAt.UnixMilli(), position)
	if err != nil {
		return fmt.Errorf("store: save post %s: %w", p.UID, err)
	}
	return nil
}

// GetPost returns a stored post, or ErrNotGenerated if there is none.
func (s *Store) GetPost(ctx context.Context, uid string) (StoredPost, error) {
	var detail string
	var fetched int64
	err := s.db.QueryRowContext(ctx, `SELECT detail, fetched_at FROM posts WHERE uid = ?`, uid).Scan(&detail, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredPost{}, ErrNotGenerated
	}
	if err != nil {
		return StoredPost{}, fmt.Errorf("store: get post %s: %w", uid, err)
	}
	var p content.PostDetail
	if err := json.Unmarshal([]byte(detail), &p); err != nil {
		return StoredPost{}, fmt.Errorf("store: decode post %s: %w", uid, err)
	}
	return StoredPost{Post: &p, FetchedAt: time.UnixMilli(fetched)}, nil
}

// ListPosts returns the summaries of every stored post, in listing order.
func (s *Store) ListPosts(ctx context.Context) ([]content.PostSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid, published_at, title, subtitle, author FROM posts ORDER BY position ASC, published_at DESC, uid ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list posts: %w", err)
	}
	defer rows.Close()

	var posts []content.PostSummary
	for rows.Next() {
		var p content.PostSummary
		var published string
		if err := rows.Scan(&p.UID, &published, &p.Title, &p.Subtitle, &p.Author); err != nil {
			return nil, err
		}
		if published != "" {
			if t, err := time.Parse(time.RFC3339, published); err == nil {
				p.FirstPublicationDate = &t
			}
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// DeletePost removes a post.
func (s *Store) DeletePost(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE uid = ?`, uid)
	return err
}

// PrunePosts deletes every post whose UID is not in keep and returns how
// many were removed.
func (s *Store) PrunePosts(ctx context.Context, keep []string) (int64, error) {
	if len(keep) == 0 {
		res, err := s.db.ExecContext(ctx, `DELETE FROM posts`)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
	args := make([]any, len(keep))
	for i, uid := range keep {
		args[i] = uid
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE uid NOT IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("store: prune posts: %w", err)
	}
	return res.RowsAffected()
}

// SaveListing stores the first listing page.
func (s *Store) SaveListing(ctx context.Context, page content.Page, fetchedAt time.Time) error {
	raw, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("store: encode listing: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO listing (id, page, fetched_at) VALUES (1, ?, ?)`, string(raw), fetchedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: save listing: %w", err)
	}
	return nil
}

// GetListing returns the stored first page, or ErrNotGenerated.
func (s *Store) GetListing(ctx context.Context) (StoredListing, error) {
	var raw string
	var fetched int64
	err := s.db.QueryRowContext(ctx, `SELECT page, fetched_at FROM listing WHERE id = 1`).Scan(&raw, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredListing{}, ErrNotGenerated
	}
	if err != nil {
		return StoredListing{}, fmt.Errorf("store: get listing: %w", err)
	}
	var page content.Page
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		return StoredListing{}, fmt.Errorf("store: decode listing: %w", err)
	}
	return StoredListing{Page: page, FetchedAt: time.UnixMilli(fetched)}, nil
}

// ExpireAll marks every stored entry as stale so the next read refetches it.
func (s *Store) ExpireAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE posts SET fetched_at = 0`); err != nil {
		return fmt.Errorf("store: expire posts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE listing SET fetched_at = 0`); err != nil {
		return fmt.Errorf("store: expire listing: %w", err)
	}
	return tx.Commit()
}
