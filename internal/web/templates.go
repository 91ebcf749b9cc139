package web

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/quietpage/quietpage/internal/index"
	"github.com/quietpage/quietpage/internal/page"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
	<head>
		<meta charset="utf-8">
		<meta name="viewport" content="width=device-width,initial-scale=1">
		<title>{{.Title}} - {{.SiteTitle}}</title>
		<link rel="stylesheet" href="/assets/styles.css">
	</head>
	<body>
		<main>
			<search>
				<form method="get" action="/search">
					<label for="search">Search</label>
					<input id="search" type="search" name="q">
					<button>Search</button>
				</form>
			</search>
			<article>
{{.Body}}
			</article>
		</main>
	</body>
</html>
`))

var searchTemplate = template.Must(template.New("search").Parse(`<!DOCTYPE html>
<html>
	<head>
		<meta charset="utf-8">
		<meta name="viewport" content="width=device-width,initial-scale=1">
		<title>Search results for: {{.Query}} - {{.SiteTitle}}</title>
		<link rel="stylesheet" href="/assets/styles.css">
	</head>
	<body>
		<main>
			<search>
				<form method="get" action="/search">
					<label for="search">Search</label>
					<input id="search" type="search" name="q" value="{{.Query}}">
					<button>Search</button>
				</form>
			</search>
			<h1>Search results for: {{.Query}}</h1>
			<p>Found {{len .Hits}} results</p>
			{{range .Hits}}
			<article class="search-result">
				<h3><a href="{{.URL}}">{{.Title}}</a></h3>
				<p>{{.Excerpt}}</p>
			</article>
			{{end}}
		</main>
	</body>
</html>
`))

var errorTemplate = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
	<head>
		<meta charset="utf-8">
		<meta name="viewport" content="width=device-width,initial-scale=1">
		<title>{{.Status}} {{.Reason}} - {{.SiteTitle}}</title>
		<link rel="stylesheet" href="/assets/styles.css">
	</head>
	<body>
		<main class="error-page error-page--{{.Status}}">
			<h1>{{.Status}} {{.Reason}}</h1>
			<p><a href="/">To start page</a></p>
		</main>
	</body>
</html>
`))

// searchHit is a Hit with its excerpt marked as trusted markup; the
// excerpt was sanitized down to bare text plus <mark> by the searcher.
type searchHit struct {
	URL     string
	Title   string
	Excerpt template.HTML
}

func renderPage(w http.ResponseWriter, siteTitle string, doc *page.Document) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := pageTemplate.Execute(w, struct {
		SiteTitle string
		Title     string
		Body      template.HTML
	}{
		SiteTitle: siteTitle,
		Title:     doc.Title,
		Body:      template.HTML(doc.HTML),
	})
	if err != nil {
		slog.Warn("page template failed", slog.String("error", err.Error()))
	}
}

func renderSearchResults(w http.ResponseWriter, siteTitle, query string, hits []index.Hit) {
	rendered := make([]searchHit, len(hits))
	for i, hit := range hits {
		rendered[i] = searchHit{
			URL:     hit.URL,
			Title:   hit.Title,
			Excerpt: template.HTML(hit.Excerpt),
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := searchTemplate.Execute(w, struct {
		SiteTitle string
		Query     string
		Hits      []searchHit
	}{
		SiteTitle: siteTitle,
		Query:     query,
		Hits:      rendered,
	})
	if err != nil {
		slog.Warn("search template failed", slog.String("error", err.Error()))
	}
}

func renderErrorPage(w http.ResponseWriter, status int, siteTitle string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	err := errorTemplate.Execute(w, struct {
		SiteTitle string
		Status    int
		Reason    string
	}{
		SiteTitle: siteTitle,
		Status:    status,
		Reason:    http.StatusText(status),
	})
	if err != nil {
		slog.Warn("error template failed", slog.String("error", err.Error()))
	}
}
