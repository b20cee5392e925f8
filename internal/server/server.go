// Package server exposes the daemon over HTTP: the viewer websocket, live
// previews, uploaded files, the status snapshot and prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tiroq/dualcap/internal/logging"
	"github.com/tiroq/dualcap/internal/resource"
	"github.com/tiroq/dualcap/internal/source"
)

// ResourceResolver resolves the id part of a resource URL to a local file.
type ResourceResolver interface {
	ResolveID(id string) (resource.Entry, bool)
}

// StreamLookup finds a held live stream by id.
type StreamLookup interface {
	Lookup(id string) (source.Stream, bool)
}

// Options configures the router.
type Options struct {
	Viewer             http.Handler
	Resources          ResourceResolver
	Streams            StreamLookup
	Status             func() any
	MediaType          string
	RateLimitPerMinute int // 0 disables rate limiting
}

const shutdownTimeout = 5 * time.Second

// NewRouter builds the HTTP routes. Live previews are exempt from the rate
// limit since each one is a single long-lived request.
func NewRouter(opts Options) http.Handler {
	log := logging.WithComponent("http")
	r := chi.NewRouter()
	r.Use(recoverer(log))

	r.Get("/live/{id}", liveHandler(opts.Streams, opts.MediaType, log))

	r.Group(func(r chi.Router) {
		if opts.RateLimitPerMinute > 0 {
			r.Use(rateLimit(opts.RateLimitPerMinute, time.Minute))
		}
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/status", statusHandler(opts.Status))
		r.Get("/resources/{id}", resourceHandler(opts.Resources))
		if opts.Viewer != nil {
			r.Handle("/ws/viewer", opts.Viewer)
		}
	})
	return r
}

func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
		}),
	)
}

func recoverer(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func statusHandler(status func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if status == nil {
			http.Error(w, "status unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(status())
	}
}

func resourceHandler(res ResourceResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if res == nil {
			http.NotFound(w, r)
			return
		}
		entry, ok := res.ResolveID(chi.URLParam(r, "id"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, entry.Path)
	}
}

// Server runs the router until its context is cancelled.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// New creates a server on addr.
func New(addr string, h http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logging.WithComponent("http"),
	}
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")

	// Live previews watch the request context, so they end with ctx.
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("http shutdown")
		_ = s.srv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
