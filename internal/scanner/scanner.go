// Package scanner discovers and parses markdown pages under the pages
// root. Discovery walks the tree on the calling goroutine while a worker
// pool does the disk- and CPU-heavy parsing, streaming documents into the
// caller's channel. Unreadable or unparseable pages are logged and
// skipped; they never fail a scan.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/quietpage/quietpage/internal/page"
)

// Options configures a scan.
type Options struct {
	// Workers is the number of concurrent parse workers (0 = NumCPU).
	Workers int
}

// Scanner streams parsed pages from a content root.
type Scanner struct {
	root string
	opts Options
}

// New creates a Scanner for the given pages root.
func New(root string, opts Options) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Scanner{root: root, opts: opts}
}

// Stream parses every current markdown page under the root and sends the
// resulting documents to out. Arrival order is unspecified. Stream blocks
// when out is full, which is how the indexing pipeline applies
// backpressure. The out channel is not closed by Stream.
func (s *Scanner) Stream(ctx context.Context, out chan<- *page.Document) error {
	absRoot, err := filepath.Abs(s.root)
	if err != nil {
		return fmt.Errorf("resolve pages root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return fmt.Errorf("stat pages root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("pages root is not a directory: %s", absRoot)
	}

	paths := make(chan string)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(paths)
		return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				slog.Warn("scan error, skipping entry",
					slog.String("path", path),
					slog.String("error", err.Error()))
				return nil
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != absRoot {
					return filepath.SkipDir
				}
				return nil
			}
			if !isMarkdown(path) {
				return nil
			}
			select {
			case paths <- path:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})

	for i := 0; i < s.opts.Workers; i++ {
		g.Go(func() error {
			for path := range paths {
				doc, err := page.Read(absRoot, path)
				if err != nil {
					slog.Warn("skipping unreadable page",
						slog.String("path", path),
						slog.String("error", err.Error()))
					continue
				}
				select {
				case out <- doc:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// isMarkdown reports whether the path is a markdown page.
func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
