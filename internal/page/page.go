// Package page provides the markdown page model for quietpage.
// A page is a markdown file with optional YAML frontmatter. Pages are
// immutable once produced; the indexing pipeline and the web layer both
// consume the same Document value.
package page

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// idNamespace is the quietpage-specific UUIDv5 namespace for
// deterministically derived page ids. Re-ingesting unchanged content
// always yields the same id.
var idNamespace = uuid.MustParse("3f0c8dd5-6b2a-4c81-9d4e-f51f0f7e2a6b")

// Document is one indexable page.
type Document struct {
	// ID is the stable page identifier: the frontmatter id when present,
	// otherwise derived by hashing title and markdown.
	ID string

	// Title from frontmatter; falls back to the file name.
	Title string

	// Body is the plain text extracted from the markdown, used for
	// indexing and excerpts.
	Body string

	// Markdown is the raw markdown source without frontmatter.
	Markdown string

	// HTML is the rendered page body.
	HTML string

	// Modified is the file modification time.
	Modified time.Time

	// URL is the site-relative path of the page ("/notes/example").
	URL string

	// Tags from frontmatter, deduplicated and sorted.
	Tags []string
}

// frontmatter is the YAML header of a page.
type frontmatter struct {
	ID    string   `yaml:"id"`
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags"`
}

var (
	renderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

	// [[Wiki Link]] syntax, rewritten to internal anchors after rendering.
	wikiLinkRe = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)
)

// Read loads and renders the page at path. root is the pages root used to
// derive the page URL.
func Read(root, path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat page: %w", err)
	}

	fm, markdown, err := splitFrontmatter(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse frontmatter in %s: %w", path, err)
	}

	html, err := renderMarkdown(markdown)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", path, err)
	}

	title := fm.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	id := fm.ID
	if id == "" {
		id = DeriveID(title, markdown)
	}

	return &Document{
		ID:       id,
		Title:    title,
		Body:     plainText(markdown),
		Markdown: markdown,
		HTML:     html,
		Modified: info.ModTime(),
		URL:      pathToURL(root, path),
		Tags:     normalizeTags(fm.Tags),
	}, nil
}

// DeriveID returns the deterministic id for the given title and markdown.
func DeriveID(title, markdown string) string {
	return uuid.NewSHA1(idNamespace, []byte(title+"\x00"+markdown)).String()
}

// splitFrontmatter separates the YAML frontmatter from the markdown body.
// Content without a leading "---" fence is all body.
func splitFrontmatter(content string) (frontmatter, string, error) {
	var fm frontmatter

	rest, found := strings.CutPrefix(content, "---\n")
	if !found {
		return fm, content, nil
	}

	head, body, found := strings.Cut(rest, "\n---\n")
	if !found {
		// Unterminated fence: treat the whole file as body.
		return fm, content, nil
	}

	if err := yaml.Unmarshal([]byte(head), &fm); err != nil {
		return fm, "", err
	}
	return fm, body, nil
}

// renderMarkdown converts markdown to HTML and rewrites wiki links.
func renderMarkdown(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := renderer.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}

	html := wikiLinkRe.ReplaceAllStringFunc(buf.String(), func(match string) string {
		title := wikiLinkRe.FindStringSubmatch(match)[1]
		slug := strings.ToLower(strings.ReplaceAll(title, " ", "-"))
		return fmt.Sprintf(`<a href="/%s">%s</a>`, slug, title)
	})
	return html, nil
}

// plainText extracts the text content from the markdown AST.
func plainText(markdown string) string {
	source := []byte(markdown)
	doc := renderer.Parser().Parse(text.NewReader(source))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.CodeSpan:
			// Children are Text nodes, handled above.
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			block := n.(interface {
				Lines() *text.Segments
			})
			lines := block.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(source))
			}
			sb.WriteByte(' ')
		case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.Blockquote:
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(sb.String()), " ")
}

// pathToURL maps a page file path to its site-relative URL.
func pathToURL(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return "/" + filepath.ToSlash(rel)
}

// normalizeTags deduplicates and sorts tags.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
