// Package cmstest provides an in-process fake of the content API for tests.
package cmstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eringen/spacetraveling/cms"
)

// MasterRef is the ref the fake server publishes as master.
const MasterRef = "master-ref-1"

var rePredicate = regexp.MustCompile(`at\(([^,]+),\s*("(?:[^"\\]|\\.)*")\)`)

// Server is a fake content API serving a fixed set of documents.
type Server struct {
	*httptest.Server

	// Token, if set, must be present as access_token on every request.
	Token string

	mu        sync.Mutex
	docs      []cms.Document
	failures  []int
	rootHits  int
	searches  int
	lastQuery url.Values
	delay     time.Duration
}

// NewServer starts a fake API serving docs in the given order.
func NewServer(docs ...cms.Document) *Server {
	s := &Server{docs: docs}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2", s.handleRoot)
	mux.HandleFunc("/api/v2/documents/search", s.handleSearch)
	s.Server = httptest.NewServer(mux)
	return s
}

// Endpoint returns the API endpoint to configure a cms.Client with.
func (s *Server) Endpoint() string {
	return s.URL + "/api/v2"
}

// SetDocuments replaces the served documents.
func (s *Server) SetDocuments(docs ...cms.Document) {
	s.mu.Lock()
	s.docs = docs
	s.mu.Unlock()
}

// FailNext makes the next len(codes) search requests answer with the given
// status codes, in order.
func (s *Server) FailNext(codes ...int) {
	s.mu.Lock()
	s.failures = append(s.failures, codes...)
	s.mu.Unlock()
}

// SetDelay makes every search request wait d before answering.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// Searches returns how many search requests were received.
func (s *Server) Searches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches
}

// RootHits returns how many API root (ref) requests were received.
func (s *Server) RootHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootHits
}

// LastQuery returns the query parameters of the last search request.
func (s *Server) LastQuery() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

func (s *Server) authorized(r *http.Request) bool {
	return s.Token == "" || r.URL.Query().Get("access_token") == s.Token
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.rootHits++
	s.mu.Unlock()
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{
		"refs": []cms.Ref{{ID: "master", Ref: MasterRef, Label: "Master", IsMasterRef: true}},
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.searches++
	s.lastQuery = r.URL.Query()
	delay := s.delay
	var failure int
	if len(s.failures) > 0 {
		failure = s.failures[0]
		s.failures = s.failures[1:]
	}
	docs := append([]cms.Document(nil), s.docs...)
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if failure != 0 {
		http.Error(w, http.StatusText(failure), failure)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	if q.Get("ref") == "" {
		http.Error(w, "missing ref", http.StatusBadRequest)
		return
	}

	matched := filter(docs, q.Get("q"))
	pageSize := atoiDefault(q.Get("pageSize"), 20)
	page := atoiDefault(q.Get("page"), 1)
	totalPages := (len(matched) + pageSize - 1) / pageSize
	from := min((page-1)*pageSize, len(matched))
	to := min(from+pageSize, len(matched))

	var next *string
	if page < totalPages {
		nq := url.Values{}
		for k, v := range q {
			nq[k] = v
		}
		nq.Set("page", strconv.Itoa(page+1))
		nq.Set("pageSize", strconv.Itoa(pageSize))
		u := s.URL + "/api/v2/documents/search?" + nq.Encode()
		next = &u
	}

	writeJSON(w, cms.Response{
		Page:             page,
		ResultsPerPage:   pageSize,
		ResultsSize:      to - from,
		TotalResultsSize: len(matched),
		TotalPages:       totalPages,
		NextPage:         next,
		Results:          matched[from:to],
	})
}

func filter(docs []cms.Document, q string) []cms.Document {
	matches := rePredicate.FindAllStringSubmatch(q, -1)
	out := make([]cms.Document, 0, len(docs))
	for _, d := range docs {
		ok := true
		for _, m := range matches {
			path := strings.TrimSpace(m[1])
			value, err := strconv.Unquote(m[2])
			if err != nil || !matchField(d, path, value) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, d)
		}
	}
	return out
}

func matchField(d cms.Document, path, value string) bool {
	switch {
	case path == "document.type":
		return d.Type == value
	case path == "document.id":
		return d.ID == value
	case strings.HasPrefix(path, "my.") && strings.HasSuffix(path, ".uid"):
		typ := strings.TrimSuffix(strings.TrimPrefix(path, "my."), ".uid")
		return d.Type == typ && d.UID == value
	default:
		return false
	}
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Post builds a "posts" document. data is marshalled as the document data;
// published may be empty for a never-published document.
func Post(uid, published string, data any) cms.Document {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	doc := cms.Document{
		ID:   "id-" + uid,
		UID:  uid,
		Type: "posts",
		Lang: "pt-br",
		Data: raw,
	}
	if published != "" {
		doc.FirstPublicationDate = &published
	}
	return doc
}

// PostData returns document data with every field a post needs: one content
// section holding body.
func PostData(title, subtitle, author, heading string, body ...string) map[string]any {
	blocks := make([]map[string]any, 0, len(body))
	for _, text := range body {
		blocks = append(blocks, map[string]any{"type": "paragraph", "text": text, "spans": []any{}})
	}
	return map[string]any{
		"title":    title,
		"subtitle": subtitle,
		"author":   author,
		"banner":   map[string]any{"url": "https://images.example.com/" + strings.ToLower(strings.ReplaceAll(title, " ", "-")) + ".png", "alt": title},
		"content": []map[string]any{
			{"heading": heading, "body": blocks},
		},
	}
}
