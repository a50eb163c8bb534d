// Package richtext models structured rich text as delivered by the content API
// and renders it to HTML as a templ component.
package richtext

import (
	"bytes"
	"context"
	"html"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/a-h/templ"
)

// Block types understood by the renderer. Unknown types render as paragraphs.
const (
	TypeParagraph    = "paragraph"
	TypePreformatted = "preformatted"
	TypeListItem     = "list-item"
	TypeOListItem    = "o-list-item"
	TypeImage        = "image"
)

// Span types.
const (
	SpanStrong    = "strong"
	SpanEm        = "em"
	SpanHyperlink = "hyperlink"
)

// Block is a single rich-text element (paragraph, heading, list item, image...).
type Block struct {
	Type       string      `json:"type"`
	Text       string      `json:"text"`
	Spans      []Span      `json:"spans,omitempty"`
	URL        string      `json:"url,omitempty"`
	Alt        string      `json:"alt,omitempty"`
	Dimensions *Dimensions `json:"dimensions,omitempty"`
}

// Span marks a formatted range of a block's text. Start and End are offsets in
// UTF-16 code units, the way the API counts them.
type Span struct {
	Start int       `json:"start"`
	End   int       `json:"end"`
	Type  string    `json:"type"`
	Data  *SpanData `json:"data,omitempty"`
}

// SpanData carries the link target of a hyperlink span.
type SpanData struct {
	URL    string `json:"url"`
	Target string `json:"target,omitempty"`
}

// Dimensions of an image block.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// AsText concatenates the text of every textual block, separated by sep.
// Image blocks contribute nothing.
func AsText(blocks []Block, sep string) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == TypeImage {
			continue
		}
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, sep)
}

// Component returns a templ.Component that renders blocks as HTML.
func Component(blocks []Block) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		Render(&buf, blocks)
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// HTML returns the rendered HTML of blocks.
func HTML(blocks []Block) string {
	var buf bytes.Buffer
	Render(&buf, blocks)
	return buf.String()
}

// Render writes the HTML representation of blocks to buf. Consecutive list
// items are grouped into a single <ul> or <ol>.
func Render(buf *bytes.Buffer, blocks []Block) {
	imageCount := 0
	inList := false
	inOrderedList := false

	flushList := func() {
		if inList {
			buf.WriteString("</ul>")
			inList = false
		}
	}
	flushOrderedList := func() {
		if inOrderedList {
			buf.WriteString("</ol>")
			inOrderedList = false
		}
	}

	for _, b := range blocks {
		switch {
		case b.Type == TypeListItem:
			flushOrderedList()
			if !inList {
				buf.WriteString("<ul>")
				inList = true
			}
			buf.WriteString("<li>")
			buf.WriteString(FormatSpans(b.Text, b.Spans))
			buf.WriteString("</li>")
		case b.Type == TypeOListItem:
			flushList()
			if !inOrderedList {
				buf.WriteString("<ol>")
				inOrderedList = true
			}
			buf.WriteString("<li>")
			buf.WriteString(FormatSpans(b.Text, b.Spans))
			buf.WriteString("</li>")
		case headingLevel(b.Type) > 0:
			flushList()
			flushOrderedList()
			tag := "h" + strconv.Itoa(headingLevel(b.Type))
			buf.WriteString("<" + tag + ">")
			buf.WriteString(FormatSpans(b.Text, b.Spans))
			buf.WriteString("</" + tag + ">")
		case b.Type == TypePreformatted:
			flushList()
			flushOrderedList()
			buf.WriteString("<pre class=\"code-block\"><code>")
			buf.WriteString(html.EscapeString(b.Text))
			buf.WriteString("</code></pre>")
		case b.Type == TypeImage:
			flushList()
			flushOrderedList()
			writeImage(buf, b, &imageCount)
		default:
			flushList()
			flushOrderedList()
			if strings.TrimSpace(b.Text) == "" {
				continue
			}
			buf.WriteString("<p>")
			buf.WriteString(FormatSpans(b.Text, b.Spans))
			buf.WriteString("</p>")
		}
	}
	flushList()
	flushOrderedList()
}

func headingLevel(typ string) int {
	if len(typ) != len("heading1") || !strings.HasPrefix(typ, "heading") {
		return 0
	}
	n := int(typ[len(typ)-1] - '0')
	if n < 1 || n > 6 {
		return 0
	}
	return n
}

func writeImage(buf *bytes.Buffer, b Block, imageCount *int) {
	src := SafeURL(b.URL)
	if src == "" {
		return
	}
	width, height := "1024", "768"
	if b.Dimensions != nil && b.Dimensions.Width > 0 && b.Dimensions.Height > 0 {
		width = strconv.Itoa(b.Dimensions.Width)
		height = strconv.Itoa(b.Dimensions.Height)
	}
	*imageCount++
	loadAttr := `loading="lazy"`
	if *imageCount == 1 {
		loadAttr = `fetchpriority="high"`
	}
	buf.WriteString(`<img ` + loadAttr + ` width="` + width + `" height="` + height + `" alt="` + html.EscapeString(b.Alt) + `" src="` + src + `" decoding="async"/>`)
}

// FormatSpans escapes text and wraps the ranges covered by spans in their
// inline tags. Overlapping spans are split at every boundary so the output is
// always well nested. Newlines become <br/>.
func FormatSpans(text string, spans []Span) string {
	units := utf16.Encode([]rune(text))
	n := len(units)

	valid := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Start < 0 {
			s.Start = 0
		}
		if s.End > n {
			s.End = n
		}
		if s.Start >= s.End || openTag(s) == "" {
			continue
		}
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		return escapeText(text)
	}
	// Outer spans first: earlier start, then longer.
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		return valid[i].End > valid[j].End
	})

	points := []int{0, n}
	for _, s := range valid {
		points = append(points, s.Start, s.End)
	}
	sort.Ints(points)

	var b strings.Builder
	for i := 0; i < len(points)-1; i++ {
		from, to := points[i], points[i+1]
		if from == to {
			continue
		}
		var active []Span
		for _, s := range valid {
			if s.Start <= from && s.End >= to {
				active = append(active, s)
			}
		}
		for _, s := range active {
			b.WriteString(openTag(s))
		}
		b.WriteString(escapeText(string(utf16.Decode(units[from:to]))))
		for k := len(active) - 1; k >= 0; k-- {
			b.WriteString(closeTag(active[k]))
		}
	}
	return b.String()
}

func escapeText(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br/>")
}

func openTag(s Span) string {
	switch s.Type {
	case SpanStrong:
		return "<strong>"
	case SpanEm:
		return "<em>"
	case SpanHyperlink:
		if s.Data == nil {
			return ""
		}
		href := SafeURL(s.Data.URL)
		if href == "" {
			return ""
		}
		attrs := ""
		if s.Data.Target == "_blank" {
			attrs = ` target="_blank" rel="noopener noreferrer"`
		}
		return `<a href="` + href + `"` + attrs + `>`
	default:
		return ""
	}
}

func closeTag(s Span) string {
	switch s.Type {
	case SpanStrong:
		return "</strong>"
	case SpanEm:
		return "</em>"
	case SpanHyperlink:
		return "</a>"
	default:
		return ""
	}
}

// SafeURL validates and sanitizes a URL for use in HTML attributes.
func SafeURL(raw string) string {
	val := strings.TrimSpace(html.UnescapeString(raw))
	if val == "" {
		return ""
	}
	if strings.HasPrefix(val, "/") || strings.HasPrefix(val, "#") {
		return html.EscapeString(val)
	}
	parsed, err := url.Parse(val)
	if err != nil || parsed.Scheme == "" {
		return ""
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "mailto", "tel":
		return html.EscapeString(val)
	default:
		return ""
	}
}
