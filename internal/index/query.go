package index

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/microcosm-cc/bluemonday"
)

// Excerpt formatting. Matched terms are wrapped in a private-use marker
// pair while the text is still untrusted, everything is HTML-escaped,
// and only then are the markers turned into <mark> tags. Document
// content can never inject markup into the results page.
const (
	excerptWords = 20

	markerOpen  = "\uE000"
	markerClose = "\uE001"
)

// Hit is one search result.
type Hit struct {
	URL     string
	Title   string
	Excerpt string
}

// Searcher executes ranked queries against whatever slot is currently
// active. Any number of concurrent searches may proceed while a reindex
// writes to staging.
type Searcher struct {
	roles     *RoleSet
	limit     int
	sanitizer *bluemonday.Policy
}

// NewSearcher creates a Searcher returning at most limit hits.
func NewSearcher(roles *RoleSet, limit int) *Searcher {
	policy := bluemonday.NewPolicy()
	policy.AllowElements("mark")

	return &Searcher{
		roles:     roles,
		limit:     limit,
		sanitizer: policy,
	}
}

// Search runs a relevance-ranked query and formats highlighted
// excerpts. The empty query returns no hits.
func (s *Searcher) Search(ctx context.Context, query string) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Hit{}, nil
	}

	titleQuery := bleve.NewMatchQuery(query)
	titleQuery.SetField(fieldTitle)
	titleQuery.SetBoost(2.0)

	bodyQuery := bleve.NewMatchQuery(query)
	bodyQuery.SetField(fieldBody)

	tagsQuery := bleve.NewMatchQuery(query)
	tagsQuery.SetField(fieldTags)

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(titleQuery, bodyQuery, tagsQuery))
	req.Size = s.limit
	req.IncludeLocations = true
	req.Fields = []string{fieldTitle, fieldBody, fieldURL}

	result, err := s.roles.SearchActive(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, match := range result.Hits {
		hits = append(hits, Hit{
			URL:     stringField(match, fieldURL),
			Title:   stringField(match, fieldTitle),
			Excerpt: s.formatExcerpt(stringField(match, fieldBody), matchedTerms(match)),
		})
	}
	return hits, nil
}

// stringField extracts a stored string field from a hit.
func stringField(match *search.DocumentMatch, field string) string {
	if v, ok := match.Fields[field].(string); ok {
		return v
	}
	return ""
}

// matchedTerms collects the analyzed terms that matched, across fields.
func matchedTerms(match *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for _, locations := range match.Locations {
		for term := range locations {
			seen[term] = struct{}{}
		}
	}

	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	return terms
}

// formatExcerpt crops ~excerptWords words around the first match and
// wraps matched words in <mark>, sanitized for embedding in HTML.
func (s *Searcher) formatExcerpt(body string, terms []string) string {
	words := strings.Fields(body)
	if len(words) == 0 {
		return ""
	}

	first := -1
	for i, word := range words {
		if wordMatches(word, terms) {
			first = i
			break
		}
	}

	// Center the crop on the first match; fall back to the leading words
	// when the match was in the title or tags only.
	start := 0
	if first > excerptWords/3 {
		start = first - excerptWords/3
	}
	end := start + excerptWords
	if end > len(words) {
		end = len(words)
		if end-excerptWords > 0 {
			start = end - excerptWords
		} else {
			start = 0
		}
	}

	cropped := make([]string, 0, end-start+2)
	if start > 0 {
		cropped = append(cropped, "…")
	}
	for _, word := range words[start:end] {
		if wordMatches(word, terms) {
			word = markerOpen + word + markerClose
		}
		cropped = append(cropped, word)
	}
	if end < len(words) {
		cropped = append(cropped, "…")
	}

	escaped := html.EscapeString(strings.Join(cropped, " "))
	marked := strings.ReplaceAll(escaped, markerOpen, "<mark>")
	marked = strings.ReplaceAll(marked, markerClose, "</mark>")
	return s.sanitizer.Sanitize(marked)
}

// wordMatches reports whether a body word corresponds to one of the
// matched analyzed terms (which are lowercased tokens).
func wordMatches(word string, terms []string) bool {
	norm := strings.ToLower(strings.Trim(word, `.,;:!?"'()[]{}<>`))
	if norm == "" {
		return false
	}
	for _, term := range terms {
		if norm == term || strings.HasPrefix(norm, term) {
			return true
		}
	}
	return false
}
