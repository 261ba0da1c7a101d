// Package app wires toolhub's subsystems into a running application.
//
// New builds the pgvector store, the configured tool sources and the hub;
// Serve and ServeMCP expose the hub; Shutdown tears everything down.
//
// For testing, inject doubles via functional options (WithEmbeddingProvider,
// WithSources, …). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/toolhub/internal/config"
	"github.com/MrWong99/toolhub/internal/embedding"
	"github.com/MrWong99/toolhub/internal/embedding/pgstore"
	"github.com/MrWong99/toolhub/internal/health"
	"github.com/MrWong99/toolhub/internal/hub"
	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/internal/server"
	"github.com/MrWong99/toolhub/internal/sources/builtin/mathtools"
	"github.com/MrWong99/toolhub/internal/sources/mcpsource"
	"github.com/MrWong99/toolhub/internal/sources/openapi"
	"github.com/MrWong99/toolhub/pkg/provider/embeddings"
	"github.com/MrWong99/toolhub/pkg/tool"
)

// DefaultListenAddr is used when server.listen_addr is empty.
const DefaultListenAddr = ":8080"

// DefaultRegistry returns a registry holding every builtin toolset.
func DefaultRegistry() *config.Registry {
	r := config.NewRegistry()
	r.RegisterToolset(mathtools.Origin, func(config.BuiltinSourceConfig) (tool.Source, error) {
		return mathtools.Source(), nil
	})
	return r
}

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	registry *config.Registry
	version  string
	metrics  *observe.Metrics
	getenv   func(string) string

	provider embeddings.Provider
	variant  embedding.Variant
	extra    []tool.Source

	hub      *hub.Hub
	store    *pgstore.Store
	loadErrs error

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry resolves builtin toolsets through r instead of [DefaultRegistry].
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithSources loads srcs after the configured sources.
func WithSources(srcs ...tool.Source) Option {
	return func(a *App) { a.extra = append(a.extra, srcs...) }
}

// WithEmbeddingProvider skips backend selection and embeds with p.
func WithEmbeddingProvider(p embeddings.Provider, v embedding.Variant) Option {
	return func(a *App) { a.provider, a.variant = p, v }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithVersion is reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithGetenv replaces os.Getenv for the remote credential lookup.
func WithGetenv(fn func(string) string) Option {
	return func(a *App) { a.getenv = fn }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New builds the application from cfg. Sources that fail to load are logged
// and reported by [App.LoadErrors]; they do not fail New.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, version: "dev"}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = DefaultRegistry()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Description vector store ─────────────────────────────────────
	if dsn := cfg.Embeddings.StoreDSN; dsn != "" {
		store, err := pgstore.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("app: init store: %w", err)
		}
		a.store = store
	}

	// ── 2. Sources ──────────────────────────────────────────────────────
	srcs, errs := a.buildSources()

	// ── 3. Hub ──────────────────────────────────────────────────────────
	hubOpts := []hub.Option{
		hub.WithMetrics(a.metrics),
		hub.WithTimeout(cfg.Invocation.Timeout),
		hub.WithSources(srcs...),
	}
	if a.provider != nil {
		hubOpts = append(hubOpts, hub.WithEmbeddingProvider(a.provider, a.variant))
	} else {
		hubOpts = append(hubOpts, hub.WithSelectConfig(a.selectConfig()))
	}
	if a.store != nil {
		hubOpts = append(hubOpts, hub.WithStore(a.store))
	}
	if w := cfg.Ranking.BoostWeight; w != nil {
		hubOpts = append(hubOpts, hub.WithBoostWeight(*w))
	}

	h, err := hub.New(ctx, hubOpts...)
	if h == nil {
		return nil, fmt.Errorf("app: init hub: %w", err)
	}
	if err != nil {
		errs = append(errs, err)
	}
	a.hub = h
	a.closers = append(a.closers, h.Close)

	a.loadErrs = errors.Join(errs...)
	if a.loadErrs != nil {
		slog.Warn("some tool sources failed to load", "err", a.loadErrs)
	}
	slog.Info("toolhub ready",
		"tools", h.Len(),
		"embedding_backend", h.Backend(),
		"embedding_model", h.ModelID(),
		"store", a.store != nil,
	)
	return a, nil
}

// buildSources turns the config into sources. Builtin toolsets that cannot
// be created are reported as load errors.
func (a *App) buildSources() ([]tool.Source, []error) {
	var (
		srcs []tool.Source
		errs []error
	)
	for _, b := range a.cfg.Sources.Builtin {
		src, err := a.registry.CreateToolset(b)
		if err != nil {
			errs = append(errs, &tool.LoadError{Source: "builtin:" + b.Name, Err: err})
			continue
		}
		srcs = append(srcs, src)
	}
	for _, o := range a.cfg.Sources.OpenAPI {
		srcs = append(srcs, openapi.New(o.URL, openapi.WithTimeout(o.Timeout)))
	}
	for _, m := range a.cfg.Sources.MCP {
		srcs = append(srcs, mcpsource.New(mcpsource.Config{
			Name:      m.Name,
			Transport: string(m.Transport),
			Command:   m.Command,
			URL:       m.URL,
			Token:     m.Token,
			Env:       m.Env,
		}))
	}
	return append(srcs, a.extra...), errs
}

func (a *App) selectConfig() embedding.SelectConfig {
	e := a.cfg.Embeddings
	return embedding.SelectConfig{
		APIKey:             e.OpenAI.APIKey,
		RemoteBaseURL:      e.OpenAI.BaseURL,
		RemoteModel:        e.OpenAI.Model,
		RemoteTimeout:      e.OpenAI.Timeout,
		LocalURL:           e.Ollama.BaseURL,
		LocalModel:         e.Ollama.Model,
		LocalTimeout:       e.Ollama.Timeout,
		FallbackDimensions: e.Dimensions,
		ProbeTimeout:       e.ProbeTimeout,
		Getenv:             a.getenv,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Hub returns the assembled hub.
func (a *App) Hub() *hub.Hub { return a.hub }

// LoadErrors returns the joined source failures seen by New, or nil.
func (a *App) LoadErrors() error { return a.loadErrs }

// Checkers returns the readiness checks of the running application.
func (a *App) Checkers() []health.Checker {
	cs := []health.Checker{health.NonEmpty("tools", a.hub.Len)}
	if a.store != nil {
		cs = append(cs, health.Ping("store", a.store))
	}
	return cs
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Serve runs the HTTP API until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = DefaultListenAddr
	}
	srv := server.New(a.hub,
		server.WithMetrics(a.metrics),
		server.WithCheckers(a.Checkers()...),
		server.WithMetricsHandler(observe.MetricsHandler()),
	)
	return srv.ListenAndServe(ctx, addr)
}

// ServeMCP runs the MCP surface on t until the client disconnects or ctx is
// cancelled.
func (a *App) ServeMCP(ctx context.Context, t mcpsdk.Transport) error {
	return server.ServeMCP(ctx, a.hub, a.version, t)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown runs every closer in order. If ctx expires first, the remaining
// closers are skipped and the context error is returned with any closer
// failures.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			if err := ctx.Err(); err != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, err)
				return
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
				errs = append(errs, err)
			}
		}
		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}
