// Package content turns raw API documents into typed posts. Validation happens
// once, here: a value returned by this package has every field the pages need,
// otherwise the caller gets a *DecodeError naming the missing field.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eringen/spacetraveling/cms"
	"github.com/eringen/spacetraveling/richtext"
)

// ErrMalformed is matched by every DecodeError.
var ErrMalformed = errors.New("content: malformed document")

// DecodeError reports which field of which document failed validation.
type DecodeError struct {
	UID   string
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	uid := e.UID
	if uid == "" {
		uid = "<no uid>"
	}
	if e.Err != nil {
		return fmt.Sprintf("content: document %s: field %s: %v", uid, e.Field, e.Err)
	}
	return fmt.Sprintf("content: document %s: field %s is missing", uid, e.Field)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformed, e.Err}
	}
	return []error{ErrMalformed}
}

// PostSummary is what the listing shows for one post.
type PostSummary struct {
	UID                  string     `json:"uid"`
	FirstPublicationDate *time.Time `json:"first_publication_date"`
	Title                string     `json:"title"`
	Subtitle             string     `json:"subtitle"`
	Author               string     `json:"author"`
}

// Image is a banner image. Width and Height are zero until probed.
type Image struct {
	URL    string `json:"url"`
	Alt    string `json:"alt"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Section is one headed block of a post body.
type Section struct {
	Heading string           `json:"heading"`
	Body    []richtext.Block `json:"body"`
}

// PostDetail is a full post.
type PostDetail struct {
	UID                  string     `json:"uid"`
	FirstPublicationDate *time.Time `json:"first_publication_date"`
	Title                string     `json:"title"`
	Subtitle             string     `json:"subtitle,omitempty"`
	Banner               Image      `json:"banner"`
	Author               string     `json:"author"`
	Content              []Section  `json:"content"`
}

// Summary returns the listing view of the post.
func (p *PostDetail) Summary() PostSummary {
	return PostSummary{
		UID:                  p.UID,
		FirstPublicationDate: p.FirstPublicationDate,
		Title:                p.Title,
		Subtitle:             p.Subtitle,
		Author:               p.Author,
	}
}

// Page is one page of the listing: its posts and the cursor of the next page.
type Page struct {
	Results  []PostSummary `json:"results"`
	NextPage string        `json:"next_page,omitempty"`
}

// HasMore reports whether another page can be fetched.
func (p Page) HasMore() bool {
	return p.NextPage != ""
}

type rawImage struct {
	URL        *string              `json:"url"`
	Alt        *string              `json:"alt"`
	Dimensions *richtext.Dimensions `json:"dimensions"`
}

type rawSection struct {
	Heading *string           `json:"heading"`
	Body    *[]richtext.Block `json:"body"`
}

type rawPost struct {
	Title    *string       `json:"title"`
	Subtitle *string       `json:"subtitle"`
	Author   *string       `json:"author"`
	Banner   *rawImage     `json:"banner"`
	Content  *[]rawSection `json:"content"`
}

func decodeRaw(doc cms.Document) (*rawPost, *time.Time, error) {
	if strings.TrimSpace(doc.UID) == "" {
		return nil, nil, &DecodeError{Field: "uid"}
	}
	published, err := parseDate(doc.FirstPublicationDate)
	if err != nil {
		return nil, nil, &DecodeError{UID: doc.UID, Field: "first_publication_date", Err: err}
	}
	if len(doc.Data) == 0 || string(doc.Data) == "null" {
		return nil, nil, &DecodeError{UID: doc.UID, Field: "data"}
	}
	var raw rawPost
	if err := json.Unmarshal(doc.Data, &raw); err != nil {
		return nil, nil, &DecodeError{UID: doc.UID, Field: "data", Err: err}
	}
	return &raw, published, nil
}

func required(uid, field string, v *string) (string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "", &DecodeError{UID: uid, Field: field}
	}
	return *v, nil
}

// DecodeSummary validates doc as a listing entry. Title, subtitle and author
// are required.
func DecodeSummary(doc cms.Document) (PostSummary, error) {
	raw, published, err := decodeRaw(doc)
	if err != nil {
		return PostSummary{}, err
	}
	s := PostSummary{UID: doc.UID, FirstPublicationDate: published}
	if s.Title, err = required(doc.UID, "data.title", raw.Title); err != nil {
		return PostSummary{}, err
	}
	if s.Subtitle, err = required(doc.UID, "data.subtitle", raw.Subtitle); err != nil {
		return PostSummary{}, err
	}
	if s.Author, err = required(doc.UID, "data.author", raw.Author); err != nil {
		return PostSummary{}, err
	}
	return s, nil
}

// DecodeDetail validates doc as a full post. Subtitle is optional here; the
// banner URL, every section heading and every section body are required.
func DecodeDetail(doc cms.Document) (*PostDetail, error) {
	raw, published, err := decodeRaw(doc)
	if err != nil {
		return nil, err
	}
	p := &PostDetail{UID: doc.UID, FirstPublicationDate: published}
	if p.Title, err = required(doc.UID, "data.title", raw.Title); err != nil {
		return nil, err
	}
	if p.Author, err = required(doc.UID, "data.author", raw.Author); err != nil {
		return nil, err
	}
	if raw.Subtitle != nil {
		p.Subtitle = *raw.Subtitle
	}

	if raw.Banner == nil {
		return nil, &DecodeError{UID: doc.UID, Field: "data.banner"}
	}
	if p.Banner.URL, err = required(doc.UID, "data.banner.url", raw.Banner.URL); err != nil {
		return nil, err
	}
	if raw.Banner.Alt != nil {
		p.Banner.Alt = *raw.Banner.Alt
	}
	if d := raw.Banner.Dimensions; d != nil {
		p.Banner.Width, p.Banner.Height = d.Width, d.Height
	}

	if raw.Content == nil {
		return nil, &DecodeError{UID: doc.UID, Field: "data.content"}
	}
	p.Content = make([]Section, 0, len(*raw.Content))
	for i, sec := range *raw.Content {
		field := fmt.Sprintf("data.content[%d]", i)
		if sec.Heading == nil {
			return nil, &DecodeError{UID: doc.UID, Field: field + ".heading"}
		}
		if sec.Body == nil {
			return nil, &DecodeError{UID: doc.UID, Field: field + ".body"}
		}
		for j, b := range *sec.Body {
			if b.Type == "" {
				return nil, &DecodeError{UID: doc.UID, Field: fmt.Sprintf("%s.body[%d].type", field, j)}
			}
		}
		p.Content = append(p.Content, Section{Heading: *sec.Heading, Body: *sec.Body})
	}
	return p, nil
}

// DecodePage validates every result of resp. One malformed entry fails the
// whole page.
func DecodePage(resp *cms.Response) (Page, error) {
	if resp == nil {
		return Page{}, &DecodeError{Field: "response"}
	}
	page := Page{
		Results:  make([]PostSummary, 0, len(resp.Results)),
		NextPage: resp.Next(),
	}
	for i, doc := range resp.Results {
		s, err := DecodeSummary(doc)
		if err != nil {
			return Page{}, fmt.Errorf("results[%d]: %w", i, err)
		}
		page.Results = append(page.Results, s)
	}
	return page, nil
}

// The API writes offsets without a colon ("+0000"); accept RFC 3339 too.
var dateLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
}

func parseDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised timestamp %q", *s)
}
