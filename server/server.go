// Package server exposes the samplers and estimators as a JSON over
// HTTP service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzip"
	"github.com/op/go-logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bitbucket.org/stratsel/stratsel/encompass"
	"bitbucket.org/stratsel/stratsel/polytope"
	"bitbucket.org/stratsel/stratsel/sampler"
)

// log is the global logging variable.
var log = logging.MustGetLogger("server")

// DefaultAddr is the default listening address.
const DefaultAddr = ":5809"

// Server is the HTTP host.
type Server struct {
	router   chi.Router
	server   *http.Server
	registry *prometheus.Registry
	metrics  *metrics
}

// New creates a server listening on addr.
func New(addr string) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		registry: prometheus.NewRegistry(),
	}
	s.metrics = newMetrics(s.registry)
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logRequests)
	r.Use(gzipResponse)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/inside", s.instrument("inside", s.inside))
		r.Post("/count-samples", s.instrument("count-samples", s.countSamples))
		r.Post("/start", s.instrument("start", s.start))
		r.Post("/sample", s.instrument("sample", s.sample))
		r.Post("/hitandrun", s.instrument("hitandrun", s.hitAndRun))
		r.Post("/count", s.instrument("count", s.count))
		r.Post("/stepwise", s.instrument("stepwise", s.stepwise))
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		log.Noticef("Listening on %s", s.server.Addr)
		errc <- s.server.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Notice("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// logRequests logs every request at debug level.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debugf("%s %s [%s] %v", r.Method, r.URL.Path, middleware.GetReqID(r.Context()), time.Since(start))
	})
}

// gzipWriter compresses the response body.
type gzipWriter struct {
	http.ResponseWriter
	zw *gzip.Writer
}

func (g *gzipWriter) Write(b []byte) (int, error) {
	return g.zw.Write(b)
}

// gzipResponse compresses JSON responses for clients accepting gzip.
func gzipResponse(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		zw := gzip.NewWriter(w)
		defer zw.Close()
		next.ServeHTTP(&gzipWriter{ResponseWriter: w, zw: zw}, r)
	})
}

// errorResponse is the body of failed requests.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Error encoding response:", err)
	}
}

// statusOf maps errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, polytope.ErrDimensionMismatch),
		errors.Is(err, polytope.ErrInvalidRows),
		errors.Is(err, sampler.ErrInvalidArgument),
		errors.Is(err, encompass.ErrInvalidSteps),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, polytope.ErrNoStartingPoint):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error(err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
