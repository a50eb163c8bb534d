package spacetraveling

import (
	"context"
	"errors"
	"fmt"

	"github.com/eringen/spacetraveling/cms"
	"github.com/eringen/spacetraveling/content"
	"github.com/eringen/spacetraveling/pagination"
)

// Source reads posts from the content API and validates them.
type Source struct {
	client   *cms.Client
	docType  string
	pageSize int
}

// NewSource returns a Source for documents of docType, listing pageSize
// posts per page.
func NewSource(client *cms.Client, docType string, pageSize int) *Source {
	return &Source{client: client, docType: docType, pageSize: pageSize}
}

func (s *Source) typeQuery(ref string) cms.Query {
	return cms.Query{
		Predicates: []cms.Predicate{cms.At("document.type", s.docType)},
		PageSize:   s.pageSize,
		Ref:        ref,
	}
}

// FirstPage returns the first listing page. An empty ref reads published
// content.
func (s *Source) FirstPage(ctx context.Context, ref string) (content.Page, error) {
	resp, err := s.client.Query(ctx, s.typeQuery(ref))
	if err != nil {
		return content.Page{}, err
	}
	return content.DecodePage(resp)
}

// FetchPage follows a listing cursor. It implements pagination.Fetcher.
func (s *Source) FetchPage(ctx context.Context, cursor string) (content.Page, error) {
	resp, err := s.client.FetchPage(ctx, cursor)
	if err != nil {
		return content.Page{}, err
	}
	return content.DecodePage(resp)
}

// Post returns the post with the given UID, or ErrNotFound.
func (s *Source) Post(ctx context.Context, uid, ref string) (*content.PostDetail, error) {
	doc, err := s.client.GetByUID(ctx, s.docType, uid, ref)
	if errors.Is(err, cms.ErrNotFound) {
		return nil, fmt.Errorf("post %q: %w", uid, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return content.DecodeDetail(*doc)
}

// UIDByID resolves a document ID (as sent by preview links) to its UID.
func (s *Source) UIDByID(ctx context.Context, id, ref string) (string, error) {
	doc, err := s.client.GetByID(ctx, id, ref)
	if errors.Is(err, cms.ErrNotFound) {
		return "", fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	if doc.Type != s.docType || doc.UID == "" {
		return "", fmt.Errorf("document %q is not a %s: %w", id, s.docType, ErrNotFound)
	}
	return doc.UID, nil
}

// slugPageSize is the API's maximum page size; enumeration does not need to
// follow the listing's page size.
const slugPageSize = 100

// Slugs walks every page of posts and returns all UIDs in listing order.
// Repeated UIDs across pages are dropped.
func (s *Source) Slugs(ctx context.Context) ([]string, error) {
	q := s.typeQuery("")
	q.PageSize = slugPageSize
	resp, err := s.client.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("slugs: first page: %w", err)
	}
	first, err := content.DecodePage(resp)
	if err != nil {
		return nil, fmt.Errorf("slugs: first page: %w", err)
	}
	feed := pagination.New(first, pagination.WithDedupe())
	all, err := feed.Drain(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("slugs: %w", err)
	}
	uids := make([]string, len(all))
	for i, p := range all {
		uids[i] = p.UID
	}
	return uids, nil
}
