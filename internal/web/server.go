package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/cjeanneret/lifelog/internal/debug"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownGrace = 5 * time.Second

// Deps are the read-only views the status server exposes.
type Deps struct {
	Broadcaster *StatusBroadcaster
	Stats       StatsSource
	Artifacts   ArtifactStore
	Run         RunConfig
}

// Server is the status HTTP server.
type Server struct {
	addr     string
	handlers *Handlers
}

func NewServer(addr string, deps Deps) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: static fs: %w", err)
	}
	handlers, err := NewHandlers(deps, subFS)
	if err != nil {
		return nil, fmt.Errorf("web: handlers: %w", err)
	}
	return &Server{addr: addr, handlers: handlers}, nil
}

// Router returns the HTTP handler with every route registered.
func (s *Server) Router() http.Handler {
	h := s.handlers
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", h.ServeIndex)
	r.Get("/health", h.HandleHealth)
	r.Get("/config", h.HandleConfig)
	r.Get("/stats", h.HandleStats)
	r.Get("/artifacts", h.HandleArtifacts)
	r.Get("/artifacts/{id}/thumbnail", h.HandleThumbnail)
	r.Get("/status/stream", h.HandleStatusStream)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	// Request contexts end with ctx so open event streams let Shutdown finish.
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Status server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
