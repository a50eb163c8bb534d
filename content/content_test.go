package content_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eringen/spacetraveling/cms"
	"github.com/eringen/spacetraveling/cms/cmstest"
	"github.com/eringen/spacetraveling/content"
	"github.com/eringen/spacetraveling/richtext"
)

func TestDecodeSummary(t *testing.T) {
	doc := cmstest.Post("hello", "2021-03-15T19:25:28+0000", cmstest.PostData("Hello", "Sub", "Ana", "H", "body"))

	s, err := content.DecodeSummary(doc)
	require.NoError(t, err)
	require.Equal(t, "hello", s.UID)
	require.Equal(t, "Hello", s.Title)
	require.Equal(t, "Sub", s.Subtitle)
	require.Equal(t, "Ana", s.Author)
	require.NotNil(t, s.FirstPublicationDate)
	require.Equal(t, 2021, s.FirstPublicationDate.Year())
	require.Equal(t, 15, s.FirstPublicationDate.Day())
}

func TestDecodeSummary_UnpublishedHasNilDate(t *testing.T) {
	doc := cmstest.Post("draft", "", cmstest.PostData("T", "S", "A", "H"))

	s, err := content.DecodeSummary(doc)
	require.NoError(t, err)
	require.Nil(t, s.FirstPublicationDate)
}

func TestDecodeSummary_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		drop  string
		field string
	}{
		{"title", "title", "data.title"},
		{"subtitle", "subtitle", "data.subtitle"},
		{"author", "author", "data.author"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := cmstest.PostData("T", "S", "A", "H")
			delete(data, tt.drop)
			_, err := content.DecodeSummary(cmstest.Post("p", "", data))

			var de *content.DecodeError
			require.True(t, errors.As(err, &de))
			require.Equal(t, "p", de.UID)
			require.Equal(t, tt.field, de.Field)
			require.ErrorIs(t, err, content.ErrMalformed)
			require.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDecode_BadDocument(t *testing.T) {
	_, err := content.DecodeSummary(cms.Document{Data: []byte(`{}`)})
	var de *content.DecodeError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "uid", de.Field)

	bad := "yesterday"
	_, err = content.DecodeSummary(cms.Document{UID: "x", FirstPublicationDate: &bad, Data: []byte(`{}`)})
	require.True(t, errors.As(err, &de))
	require.Equal(t, "first_publication_date", de.Field)

	_, err = content.DecodeDetail(cms.Document{UID: "x"})
	require.True(t, errors.As(err, &de))
	require.Equal(t, "data", de.Field)
}

func TestDecodeDetail(t *testing.T) {
	doc := cmstest.Post("hello", "2021-03-15T19:25:28Z", cmstest.PostData("Hello", "Sub", "Ana", "Intro", "one two", "three"))

	p, err := content.DecodeDetail(doc)
	require.NoError(t, err)
	require.Equal(t, "Hello", p.Title)
	require.Equal(t, "https://images.example.com/hello.png", p.Banner.URL)
	require.Len(t, p.Content, 1)
	require.Equal(t, "Intro", p.Content[0].Heading)
	require.Len(t, p.Content[0].Body, 2)
	require.Equal(t, "Hello", p.Summary().Title)
}

func TestDecodeDetail_NestedFieldPath(t *testing.T) {
	data := cmstest.PostData("T", "S", "A", "H", "x")
	data["content"] = []map[string]any{
		{"heading": "ok", "body": []any{}},
		{"body": []any{}},
	}
	_, err := content.DecodeDetail(cmstest.Post("p", "", data))

	var de *content.DecodeError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "data.content[1].heading", de.Field)

	data = cmstest.PostData("T", "S", "A", "H", "x")
	data["banner"] = map[string]any{"alt": "no url"}
	_, err = content.DecodeDetail(cmstest.Post("p", "", data))
	require.True(t, errors.As(err, &de))
	require.Equal(t, "data.banner.url", de.Field)
}

func TestDecodePage(t *testing.T) {
	next := "https://repo.example.com/api/v2/documents/search?page=2"
	resp := &cms.Response{
		NextPage: &next,
		Results: []cms.Document{
			cmstest.Post("a", "", cmstest.PostData("A", "s", "x", "h")),
			cmstest.Post("b", "", cmstest.PostData("B", "s", "x", "h")),
		},
	}
	page, err := content.DecodePage(resp)
	require.NoError(t, err)
	require.True(t, page.HasMore())
	require.Equal(t, next, page.NextPage)
	require.Len(t, page.Results, 2)

	resp.NextPage = nil
	page, err = content.DecodePage(resp)
	require.NoError(t, err)
	require.False(t, page.HasMore())

	resp.Results = append(resp.Results, cms.Document{UID: "broken", Data: []byte(`{"title":"t"}`)})
	_, err = content.DecodePage(resp)
	require.ErrorIs(t, err, content.ErrMalformed)
	require.Contains(t, err.Error(), "results[2]")
}

func paragraph(text string) richtext.Block {
	return richtext.Block{Type: richtext.TypeParagraph, Text: text}
}

func TestWordCount_HeadingsAndBodies(t *testing.T) {
	p := &content.PostDetail{Content: []content.Section{
		{Heading: "A", Body: []richtext.Block{paragraph("one two")}},
		{Heading: "B", Body: []richtext.Block{paragraph("three")}},
	}}
	require.Equal(t, 5, p.WordCount())
	require.Equal(t, []string{"A", "one", "two", "B", "three"}, p.Words())
	require.Equal(t, 1, p.ReadingTime())
}

func TestWordCount_IgnoresImagesAndExtraSpace(t *testing.T) {
	p := &content.PostDetail{Content: []content.Section{
		{Heading: "  Multi   word heading ", Body: []richtext.Block{
			paragraph("end."),
			{Type: richtext.TypeImage, URL: "https://x/y.png", Alt: "ignored alt"},
			paragraph("\tnext\nline"),
		}},
	}}
	require.Equal(t, 6, p.WordCount())
}

func TestReadingTime(t *testing.T) {
	tests := []struct {
		words int
		want  int
	}{
		{-3, 0},
		{0, 0},
		{1, 1},
		{199, 1},
		{200, 1},
		{201, 2},
		{400, 2},
		{401, 3},
	}
	for _, tt := range tests {
		if got := content.ReadingTime(tt.words); got != tt.want {
			t.Errorf("ReadingTime(%d) = %d, want %d", tt.words, got, tt.want)
		}
	}
}

func TestReadingTime_Monotonic(t *testing.T) {
	prev := 0
	for n := 0; n <= 2000; n++ {
		got := content.ReadingTime(n)
		if got < prev {
			t.Fatalf("ReadingTime(%d) = %d < ReadingTime(%d) = %d", n, got, n-1, prev)
		}
		prev = got
	}
}

func TestReadingTime_LongPost(t *testing.T) {
	p := &content.PostDetail{Content: []content.Section{
		{Heading: "H", Body: []richtext.Block{paragraph(strings.Repeat("word ", 450))}},
	}}
	require.Equal(t, 451, p.WordCount())
	require.Equal(t, 3, p.ReadingTime())
}
