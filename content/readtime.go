package content

import (
	"strings"

	"github.com/eringen/spacetraveling/richtext"
)

// WordsPerMinute is the reading speed used for ReadingTime.
const WordsPerMinute = 200

// Words returns every whitespace-separated token of the post: each section's
// heading followed by the plain text of its body, in order.
func (p *PostDetail) Words() []string {
	var words []string
	for _, sec := range p.Content {
		words = append(words, strings.Fields(sec.Heading)...)
		words = append(words, strings.Fields(richtext.AsText(sec.Body, " "))...)
	}
	return words
}

// WordCount returns the number of words in the post.
func (p *PostDetail) WordCount() int {
	return len(p.Words())
}

// ReadingTime returns the minutes needed to read words words, rounded up.
// Zero (or fewer) words read in zero minutes.
func ReadingTime(words int) int {
	if words <= 0 {
		return 0
	}
	return (words + WordsPerMinute - 1) / WordsPerMinute
}

// ReadingTime returns the post's estimated reading time in minutes.
func (p *PostDetail) ReadingTime() int {
	return ReadingTime(p.WordCount())
}
