// Package web serves the quietpage site: rendered markdown pages, the
// search endpoint and static assets.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quietpage/quietpage/internal/config"
	"github.com/quietpage/quietpage/internal/index"
)

// Server is the quietpage HTTP server.
type Server struct {
	cfg      *config.Config
	searcher *index.Searcher
	cache    *lru.Cache[string, cachedPage]
	httpSrv  *http.Server
}

// New creates the server and wires its routes.
func New(cfg *config.Config, searcher *index.Searcher) (*Server, error) {
	cache, err := lru.New[string, cachedPage](cfg.PageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create page cache: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		searcher: searcher,
		cache:    cache,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.Handle("GET /assets/", s.assetHandler())
	mux.HandleFunc("GET /", s.handlePage)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      Chain(mux, RequestLog, SecurityHeaders, ErrorPages(cfg.Title)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting website server", slog.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}
