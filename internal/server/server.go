// Package server exposes the question-answering HTTP API: a query endpoint
// backed by the chunk index and language model, and corpus file management
// endpoints whose effects the change watcher picks up.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/corpusd/corpusd/internal/embed"
	"github.com/corpusd/corpusd/internal/index"
	"github.com/corpusd/corpusd/internal/llm"
	"github.com/corpusd/corpusd/internal/qlog"
)

// SearchK is how many chunks are retrieved per query.
const SearchK = 5

// Searcher retrieves the chunks nearest a query vector. *index.Index
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]index.Result, error)
}

// Server is the HTTP API. It tracks two pieces of session state carried into
// every log record: whether a query is the first since startup, and whether
// the corpus was changed through the file endpoints.
type Server struct {
	dataDir   string
	searcher  Searcher
	embedder  embed.Embedder
	generator llm.Generator
	queryLog  *qlog.Log
	log       *slog.Logger

	mu           sync.Mutex
	firstRequest bool
	changeMade   bool
}

// Options configures New.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New creates a server over the given collaborators.
func New(dataDir string, searcher Searcher, embedder embed.Embedder, generator llm.Generator, queryLog *qlog.Log, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		dataDir:      dataDir,
		searcher:     searcher,
		embedder:     embedder,
		generator:    generator,
		queryLog:     queryLog,
		log:          opts.Logger,
		firstRequest: true,
	}
}

// Router builds the HTTP route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/query", s.handleQuery)

	r.Route("/files", func(r chi.Router) {
		r.Get("/", s.handleListFiles)
		r.Post("/", s.handleUploadFile)
		r.Get("/download/{filename}", s.handleDownloadFile)
		r.Put("/{filename}", s.handleRenameFile)
		r.Delete("/{filename}", s.handleDeleteFile)
	})
	return r
}

// ListenAndServe runs the server until ctx is cancelled, then drains with a
// short grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// consumeFirstRequest returns the first-request flag and clears it.
func (s *Server) consumeFirstRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := s.firstRequest
	s.firstRequest = false
	return first
}

// noteCorpusChange marks that a file endpoint mutated the corpus.
func (s *Server) noteCorpusChange() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeMade = true
}

func (s *Server) corpusChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changeMade
}
