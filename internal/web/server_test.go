package web

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietpage/quietpage/internal/config"
	"github.com/quietpage/quietpage/internal/index"
	"github.com/quietpage/quietpage/internal/page"
)

// newTestServer builds a server over a temp data directory with an
// optional set of pre-indexed documents for the search endpoint.
func newTestServer(t *testing.T, docs ...*page.Document) *Server {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Title = "Test Site"
	cfg.DataPath = t.TempDir()
	require.NoError(t, os.MkdirAll(cfg.PagesPath(), 0o755))
	require.NoError(t, os.MkdirAll(cfg.AssetsPath(), 0o755))

	rs, err := index.Open(cfg.SearchPath())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })

	if len(docs) > 0 {
		require.NoError(t, rs.UpsertStaging(docs))
		require.NoError(t, rs.Swap())
	}

	srv, err := New(cfg, index.NewSearcher(rs, cfg.SearchLimit))
	require.NoError(t, err)
	return srv
}

func writeTestPage(t *testing.T, srv *Server, rel, content string) string {
	t.Helper()
	path := filepath.Join(srv.cfg.PagesPath(), rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func get(srv *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServer_RendersPage(t *testing.T) {
	srv := newTestServer(t)
	writeTestPage(t, srv, "about.md", "---\ntitle: About\n---\nSome **content** here.\n")

	rec := get(srv, "/about")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>About - Test Site</title>")
	assert.Contains(t, rec.Body.String(), "<strong>content</strong>")
}

func TestServer_RootServesIndexPage(t *testing.T) {
	srv := newTestServer(t)
	writeTestPage(t, srv, "index.md", "# Welcome home\n")

	rec := get(srv, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome home")
}

func TestServer_MissingPageRendersErrorPage(t *testing.T) {
	srv := newTestServer(t)

	rec := get(srv, "/no-such-page")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "404 Not Found")
	assert.Contains(t, rec.Body.String(), `<a href="/">To start page</a>`)
}

func TestServer_SecurityHeadersOnEveryResponse(t *testing.T) {
	srv := newTestServer(t)
	writeTestPage(t, srv, "index.md", "# Home\n")

	for _, target := range []string{"/", "/search?q=x", "/no-such-page"} {
		rec := get(srv, target)
		h := rec.Header()
		assert.NotEmpty(t, h.Get("Content-Security-Policy"), "CSP missing on %s", target)
		assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"), target)
		assert.Equal(t, "DENY", h.Get("X-Frame-Options"), target)
		assert.Equal(t, "no-referrer", h.Get("Referrer-Policy"), target)
	}
}

func TestServer_SearchReturnsResultsPage(t *testing.T) {
	srv := newTestServer(t, &page.Document{
		ID:    "roadmap",
		Title: "Project Roadmap",
		Body:  "plans for the next quarter",
		URL:   "/project-roadmap",
	})

	rec := get(srv, "/search?q=roadmap")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Found 1 results")
	assert.Contains(t, body, `<a href="/project-roadmap">Project Roadmap</a>`)
}

func TestServer_SearchEmptyQueryShowsNoResults(t *testing.T) {
	srv := newTestServer(t)

	rec := get(srv, "/search")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Found 0 results")
}

func TestServer_SearchQueryIsEscapedInOutput(t *testing.T) {
	srv := newTestServer(t)

	rec := get(srv, "/search?q="+"%3Cscript%3E")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>")
}

func TestServer_AssetsServedWithImmutableCaching(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(srv.cfg.AssetsPath(), "styles.css"), []byte("body {}"), 0o644))

	rec := get(srv, "/assets/styles.css")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")
	assert.Equal(t, "body {}", rec.Body.String())
}

func TestServer_PageCacheInvalidatesOnModification(t *testing.T) {
	// Given: a page that has been served (and cached) once
	srv := newTestServer(t)
	path := writeTestPage(t, srv, "note.md", "# First version\n")
	assert.Contains(t, get(srv, "/note").Body.String(), "First version")

	// When: the file changes with a new modification time
	require.NoError(t, os.WriteFile(path, []byte("# Second version\n"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	// Then: the next request serves the new content
	assert.Contains(t, get(srv, "/note").Body.String(), "Second version")
}

func TestResolvePagePath_NeverEscapesPagesRoot(t *testing.T) {
	srv := newTestServer(t)
	root := srv.cfg.PagesPath()

	// Traversal attempts clamp at the root instead of escaping it.
	for _, p := range []string{"/../secrets", "/../../etc/passwd", "/notes/../../x"} {
		got, ok := srv.resolvePagePath(p)
		if !ok {
			continue
		}
		rel, err := filepath.Rel(root, got)
		require.NoError(t, err)
		assert.NotContains(t, rel, "..", "path %q resolved outside the pages root: %s", p, got)
	}

	got, ok := srv.resolvePagePath("/notes/daily")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "notes", "daily.md"), got)
}

func TestChain_FirstMiddlewareRunsOutermost(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestErrorPages_PassesThroughSuccess(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom", "kept")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("fine"))
	}), ErrorPages("Test Site"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fine", rec.Body.String())
	assert.Equal(t, "kept", rec.Header().Get("X-Custom"))
}

func TestErrorPages_ReplacesErrorBody(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ugly plain text", http.StatusInternalServerError)
	}), ErrorPages("Test Site"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "ugly plain text")
	assert.Contains(t, rec.Body.String(), "500 Internal Server Error")
}
