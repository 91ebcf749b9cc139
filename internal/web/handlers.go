package web

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quietpage/quietpage/internal/page"
)

// cachedPage is one rendered page in the LRU cache. Entries are
// validated against the file's modification time, so edits show up
// without an explicit invalidation path.
type cachedPage struct {
	modified time.Time
	doc      *page.Document
}

// handleSearch serves the search results page.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	hits, err := s.searcher.Search(r.Context(), query)
	if err != nil {
		slog.Error("search failed",
			slog.String("query", query),
			slog.String("error", err.Error()))
		hits = nil
	}

	renderSearchResults(w, s.cfg.Title, query, hits)
}

// handlePage renders a markdown page.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	urlPath := r.URL.Path
	if urlPath == "/" {
		urlPath = "/index"
	}

	filePath, ok := s.resolvePagePath(urlPath)
	if !ok {
		http.NotFound(w, r)
		return
	}

	info, err := os.Stat(filePath)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	doc, err := s.loadPage(filePath, info.ModTime())
	if err != nil {
		slog.Error("page render failed",
			slog.String("path", filePath),
			slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	renderPage(w, s.cfg.Title, doc)
}

// loadPage returns the rendered page, from cache when the file is
// unchanged.
func (s *Server) loadPage(filePath string, modified time.Time) (*page.Document, error) {
	if cached, ok := s.cache.Get(filePath); ok && cached.modified.Equal(modified) {
		return cached.doc, nil
	}

	doc, err := page.Read(s.cfg.PagesPath(), filePath)
	if err != nil {
		return nil, err
	}
	s.cache.Add(filePath, cachedPage{modified: modified, doc: doc})
	return doc, nil
}

// resolvePagePath maps a URL path to a markdown file under the pages
// root, rejecting traversal outside it.
func (s *Server) resolvePagePath(urlPath string) (string, bool) {
	root := s.cfg.PagesPath()

	clean := filepath.Clean("/" + strings.TrimPrefix(urlPath, "/"))
	candidate := filepath.Join(root, clean+".md")

	rel, err := filepath.Rel(root, candidate)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return candidate, true
}

// assetHandler serves static assets with long-lived cache headers.
func (s *Server) assetHandler() http.Handler {
	fs := http.StripPrefix("/assets/", http.FileServer(http.Dir(s.cfg.AssetsPath())))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		fs.ServeHTTP(w, r)
	})
}
