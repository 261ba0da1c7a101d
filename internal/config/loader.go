package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the zero Config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	emb := cfg.Embeddings
	if emb.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("embeddings.dimensions %d must not be negative", emb.Dimensions))
	}
	for name, d := range map[string]int64{
		"embeddings.openai.timeout": int64(emb.OpenAI.Timeout),
		"embeddings.ollama.timeout": int64(emb.Ollama.Timeout),
		"embeddings.probe_timeout":  int64(emb.ProbeTimeout),
		"invocation.timeout":        int64(cfg.Invocation.Timeout),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if emb.Ollama.BaseURL != "" && emb.Ollama.Model == "" {
		slog.Warn("embeddings.ollama.base_url is set but embeddings.ollama.model is empty; the local backend will not be probed")
	}

	if w := cfg.Ranking.BoostWeight; w != nil && *w < 0 {
		errs = append(errs, fmt.Errorf("ranking.boost_weight %g must not be negative", *w))
	}

	builtinSeen := make(map[string]int, len(cfg.Sources.Builtin))
	for i, b := range cfg.Sources.Builtin {
		prefix := fmt.Sprintf("sources.builtin[%d]", i)
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := builtinSeen[b.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of sources.builtin[%d]", prefix, b.Name, prev))
		}
		builtinSeen[b.Name] = i
	}

	for i, o := range cfg.Sources.OpenAPI {
		prefix := fmt.Sprintf("sources.openapi[%d]", i)
		if o.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required", prefix))
		}
		if o.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout must not be negative", prefix))
		}
	}

	mcpSeen := make(map[string]int, len(cfg.Sources.MCP))
	for i, srv := range cfg.Sources.MCP {
		prefix := fmt.Sprintf("sources.mcp[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := mcpSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of sources.mcp[%d]", prefix, srv.Name, prev))
			}
			mcpSeen[srv.Name] = i
		}
		if !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
		if srv.Transport == TransportStdio && srv.Token != "" {
			slog.Warn("token is ignored for stdio MCP servers; use env instead", "server", srv.Name)
		}
	}

	return errors.Join(errs...)
}
