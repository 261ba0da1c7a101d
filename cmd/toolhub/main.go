// Command toolhub serves a semantic tool registry over HTTP or MCP and offers
// one-shot subcommands for querying and invoking tools from the shell.
//
// Usage:
//
//	toolhub [-config path] serve
//	toolhub [-config path] mcp
//	toolhub [-config path] list
//	toolhub [-config path] query <text> [-k n]
//	toolhub [-config path] invoke <name> [json-arguments]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/toolhub/internal/app"
	"github.com/MrWong99/toolhub/internal/config"
	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/internal/server"
	"github.com/MrWong99/toolhub/pkg/tool"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	fs := flag.NewFlagSet("toolhub", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file (defaults apply when empty)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: toolhub [-config path] serve|mcp|list|query <text> [-k n]|invoke <name> [json]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cmd, rest := "serve", fs.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}
	switch cmd {
	case "serve", "mcp", "list", "query", "invoke":
	default:
		fmt.Fprintf(os.Stderr, "toolhub: unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "toolhub: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "toolhub: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	application, err := app.New(ctx, cfg, app.WithVersion(version))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	switch cmd {
	case "serve":
		err = serve(ctx, application, cfg)
	case "mcp":
		err = application.ServeMCP(ctx, &mcpsdk.StdioTransport{})
	case "list":
		err = printJSON(stdout, application.Hub().ListAll())
	case "query":
		err = query(ctx, application, rest, stdout)
	case "invoke":
		err = invoke(ctx, application, rest, stdout)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error(cmd+" failed", "err", err)
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// ── Subcommands ───────────────────────────────────────────────────────────────

func serve(ctx context.Context, a *app.App, cfg *config.Config) error {
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = app.DefaultListenAddr
	}
	slog.Info("server ready, press Ctrl+C to shut down", "listen_addr", addr, "tools", a.Hub().Len())
	return a.Serve(ctx)
}

// query accepts -k before or after the query text.
func query(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	k := fs.Int("k", server.DefaultK, "number of matches to return")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("query: text is required")
	}
	text := fs.Arg(0)
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return err
	}
	if *k < 0 {
		return fmt.Errorf("query: k must be non-negative, got %d", *k)
	}

	matches, err := a.Hub().Query(ctx, text, *k)
	if err != nil {
		return err
	}
	return printJSON(out, matches)
}

func invoke(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("invoke: tool name is required")
	}
	var arguments tool.Arguments
	if len(args) > 1 {
		if err := json.Unmarshal([]byte(args[1]), &arguments); err != nil {
			return fmt.Errorf("invoke: arguments must be a JSON object: %w", err)
		}
	}
	result, err := a.Hub().Invoke(ctx, args[0], arguments)
	if err != nil {
		return err
	}
	if s, ok := result.(string); ok {
		_, err = fmt.Fprintln(out, s)
		return err
	}
	return printJSON(out, result)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
