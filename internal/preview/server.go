// Package preview serves the rendered book locally, rebuilding on source
// changes while keeping the last good output on screen.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/mdpress/mdpress/internal/config"
	"github.com/mdpress/mdpress/internal/logfields"
	"github.com/mdpress/mdpress/internal/metrics"
	"github.com/mdpress/mdpress/internal/site"
)

// debounceWindow batches rapid editor save bursts into one rebuild.
const debounceWindow = 300 * time.Millisecond

// Server watches the book source, rebuilds on change, and serves the output.
type Server struct {
	cfg       *config.Config
	generator *site.Generator
	registry  *prom.Registry

	mu        sync.RWMutex
	lastError error
}

// NewServer creates a preview server. The generator builds into the
// configured output directory, which the HTTP handler serves.
func NewServer(cfg *config.Config) *Server {
	registry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)
	return &Server{
		cfg:       cfg,
		generator: site.NewGenerator(cfg, site.WithRecorder(recorder)),
		registry:  registry,
	}
}

// Run builds once, then serves until ctx is canceled. A failed rebuild keeps
// the previous output in place; the error is surfaced on /healthz and in the
// log, never as a broken site.
func (s *Server) Run(ctx context.Context) error {
	s.rebuild(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := addDirsRecursive(watcher, s.cfg.Book.Src); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              s.cfg.Preview.Addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	slog.Info("Preview server listening", "addr", s.cfg.Preview.Addr)

	rebuildReq := make(chan struct{}, 1)
	trigger := newDebouncer(rebuildReq)
	go s.rebuildWorker(ctx, rebuildReq)

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-serveErr:
			return fmt.Errorf("preview server: %w", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if shouldIgnoreEvent(ev.Name) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = addDirsRecursive(watcher, ev.Name)
				}
			}
			slog.Debug("Source change detected", logfields.Path(ev.Name), "op", ev.Op.String())
			trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", "error", err)
		}
	}
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(s.cfg.Build.Output)))
	mux.Handle("/metrics", metrics.Handler(s.registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.RLock()
		lastErr := s.lastError
		s.mu.RUnlock()
		if lastErr != nil {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, "last build failed: %v\n", lastErr)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	return mux
}

func (s *Server) rebuildWorker(ctx context.Context, rebuildReq <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-rebuildReq:
			s.rebuild(ctx)
		}
	}
}

func (s *Server) rebuild(ctx context.Context) {
	buildID := uuid.NewString()
	_, err := s.generator.Build(ctx, buildID)
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
	if err != nil {
		slog.Warn("Rebuild failed; serving previous output", logfields.BuildID(buildID), "error", err)
	}
}

// newDebouncer returns a trigger that coalesces calls within debounceWindow
// into a single send on req.
func newDebouncer(req chan<- struct{}) func() {
	var mu sync.Mutex
	var timer *time.Timer
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceWindow, func() {
			select {
			case req <- struct{}{}:
			default:
			}
		})
	}
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				slog.Warn("Watch add failed", logfields.Path(path), "error", err)
			}
		}
		return nil
	})
}

// shouldIgnoreEvent filters out editor temp files and hidden paths.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return false
}
