// Package server exposes a hub over HTTP and as an MCP server.
//
// HTTP routes:
//
//	GET  /v1/tools                 every registered tool
//	POST /v1/query                 {"query": ..., "k": 5} → ranked matches
//	POST /v1/tools/{name}/invoke   {"arguments": {...}} → result
//	GET  /healthz, /readyz         probes
//	GET  /metrics                  Prometheus scrape endpoint
//
// Errors are {"error": "..."} with the status chosen by [statusFor].
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/toolhub/internal/health"
	"github.com/MrWong99/toolhub/internal/hub"
	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/pkg/tool"
)

// DefaultK is the number of matches returned when a query names none.
const DefaultK = 5

const (
	maxRequestBytes = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Hub is the part of [hub.Hub] the server needs.
type Hub interface {
	ListAll() []tool.Summary
	Query(ctx context.Context, text string, k int) ([]hub.Match, error)
	Invoke(ctx context.Context, name string, args tool.Arguments) (any, error)
}

var _ Hub = (*hub.Hub)(nil)

// Server routes HTTP requests to a [Hub].
type Server struct {
	hub      Hub
	metrics  *observe.Metrics
	checkers []health.Checker
	scrape   http.Handler
	handler  http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics records request metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCheckers adds readiness checks to /readyz.
func WithCheckers(cs ...health.Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, cs...) }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.scrape = h }
}

// New builds the routes for h.
func New(h Hub, opts ...Option) *Server {
	s := &Server{hub: h}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/tools", s.listTools)
	mux.HandleFunc("POST /v1/query", s.query)
	mux.HandleFunc("POST /v1/tools/{name}/invoke", s.invoke)
	health.New(s.checkers...).Register(mux)
	if s.scrape != nil {
		mux.Handle("GET /metrics", s.scrape)
	}
	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is [Server.ListenAndServe] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// ─── handlers ────────────────────────────────────────────────────────────────

type queryRequest struct {
	Query any  `json:"query"`
	K     *int `json:"k"`
}

type queryResponse struct {
	Query   string      `json:"query"`
	Matches []hub.Match `json:"matches"`
}

type invokeRequest struct {
	Arguments tool.Arguments `json:"arguments"`
}

type invokeResponse struct {
	Tool   string `json:"tool"`
	Result any    `json:"result"`
}

func (s *Server) listTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.hub.ListAll()})
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	k := DefaultK
	if req.K != nil {
		k = *req.K
	}
	if k < 0 {
		writeError(w, r, badRequest("k must not be negative"))
		return
	}
	text := hub.NormalizeQuery(req.Query)

	matches, err := s.hub.Query(r.Context(), text, k)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{Query: text, Matches: matches})
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req invokeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.hub.Invoke(r.Context(), name, req.Arguments)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invokeResponse{Tool: name, Result: v})
}

// ─── encoding ────────────────────────────────────────────────────────────────

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// statusFor maps hub errors to HTTP status codes.
func statusFor(err error) int {
	var bad *badRequestError
	var inv *tool.InvocationError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, tool.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tool.ErrInvocationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, tool.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &inv):
		return http.StatusBadGateway
	case errors.Is(err, hub.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Warn("request failed", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeJSON encodes v before writing the header so an unencodable value is
// reported as a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Warn("server: encode response", "err", err)
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(map[string]string{"error": fmt.Sprintf("server: encode response: %v", err)})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
