package cms

import (
	"strconv"
	"strings"
)

// Predicate is a single query condition in the API's query language.
type Predicate struct {
	name  string
	path  string
	value string
}

// At matches documents whose field at path equals value,
// e.g. At("document.type", "posts").
func At(path, value string) Predicate {
	return Predicate{name: "at", path: path, value: value}
}

// String renders the predicate as `[at(document.type, "posts")]`.
func (p Predicate) String() string {
	return "[" + p.name + "(" + p.path + ", " + strconv.Quote(p.value) + ")]"
}

// encodePredicates renders the q parameter: the predicates wrapped in one
// more pair of brackets.
func encodePredicates(preds []Predicate) string {
	var b strings.Builder
	b.WriteByte('[')
	for _, p := range preds {
		b.WriteString(p.String())
	}
	b.WriteByte(']')
	return b.String()
}
