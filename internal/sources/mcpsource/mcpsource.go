// Package mcpsource loads the tools of an external MCP server through the
// official Go SDK and exposes them as asynchronous descriptors.
//
// The server is reached over stdio (a spawned command) or streamable HTTP;
// tests inject an in-memory transport with [WithTransport]. The session is
// opened by the first Load and lives until Close.
package mcpsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/toolhub/internal/sources/builtin"
	"github.com/MrWong99/toolhub/pkg/eventloop"
	"github.com/MrWong99/toolhub/pkg/tool"
)

// SourceKind is the provenance source of every MCP descriptor.
const SourceKind = "mcp"

// Transport names accepted in [Config].
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

// clientVersion is reported to servers during the handshake.
const clientVersion = "0.1.0"

// Config describes one MCP server.
type Config struct {
	// Name identifies the server and prefixes its tool names.
	Name string

	// Transport is TransportStdio or TransportStreamableHTTP.
	Transport string

	// Command is the stdio executable and its arguments, split on spaces.
	Command string

	// URL is the streamable HTTP endpoint.
	URL string

	// Token is sent as a Bearer token to streamable HTTP servers.
	Token string

	// Env is added to the stdio process environment.
	Env map[string]string
}

// Validate reports configuration problems.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("mcpsource: server name must not be empty")
	}
	switch c.Transport {
	case TransportStdio:
		if strings.TrimSpace(c.Command) == "" {
			return fmt.Errorf("mcpsource: stdio server %q requires a command", c.Name)
		}
	case TransportStreamableHTTP:
		if c.URL == "" {
			return fmt.Errorf("mcpsource: streamable-http server %q requires a url", c.Name)
		}
	default:
		return fmt.Errorf("mcpsource: unknown transport %q for server %q", c.Transport, c.Name)
	}
	return nil
}

// Source is one MCP server.
type Source struct {
	cfg       Config
	transport mcpsdk.Transport

	mu      sync.Mutex
	session *mcpsdk.ClientSession
}

var _ tool.Source = (*Source)(nil)

// Option configures a [Source].
type Option func(*Source)

// WithTransport connects over t instead of the configured transport.
func WithTransport(t mcpsdk.Transport) Option {
	return func(s *Source) { s.transport = t }
}

// New creates a source for the server described by cfg. Nothing is
// connected until Load.
func New(cfg Config, opts ...Option) *Source {
	s := &Source{cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name implements [tool.Source].
func (s *Source) Name() string { return SourceKind + ":" + s.cfg.Name }

// Load connects to the server if needed and lists its tools.
func (s *Source) Load(ctx context.Context) ([]tool.Descriptor, error) {
	session, err := s.connect(ctx)
	if err != nil {
		return nil, &tool.LoadError{Source: s.Name(), Err: err}
	}

	prefix := builtin.Sanitize(s.cfg.Name) + "_"
	var descs []tool.Descriptor
	for t, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, &tool.LoadError{Source: s.Name(), Err: fmt.Errorf("mcpsource: list tools of %q: %w", s.cfg.Name, err)}
		}
		name := builtin.Sanitize(t.Name)
		if !strings.HasPrefix(name, prefix) {
			name = prefix + name
		}
		descs = append(descs, tool.Descriptor{
			Name:        name,
			Description: t.Description,
			InputSchema: schemaToMap(t.InputSchema),
			Kind:        tool.KindAsync,
			Async:       s.caller(t.Name),
			Provenance:  tool.Provenance{Source: SourceKind, Origin: s.cfg.Name},
		})
	}
	return descs, nil
}

func (s *Source) connect(ctx context.Context) (*mcpsdk.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return s.session, nil
	}

	transport := s.transport
	if transport == nil {
		if err := s.cfg.Validate(); err != nil {
			return nil, err
		}
		transport = s.cfg.transport()
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "toolhub", Version: clientVersion}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpsource: connect to %q: %w", s.cfg.Name, err)
	}
	s.session = session
	return session, nil
}

func (c Config) transport() mcpsdk.Transport {
	if c.Transport == TransportStreamableHTTP {
		t := &mcpsdk.StreamableClientTransport{Endpoint: c.URL}
		if c.Token != "" {
			t.HTTPClient = &http.Client{Transport: &bearerTransport{token: c.Token, base: http.DefaultTransport}}
		}
		return t
	}
	executable, args := splitCommand(c.Command)
	// The process outlives Load, so it is not bound to the load context.
	cmd := exec.Command(executable, args...)
	if len(c.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	return &mcpsdk.CommandTransport{Command: cmd}
}

func (s *Source) caller(remoteName string) tool.AsyncFunc {
	return func(ctx context.Context, args tool.Arguments) *eventloop.Future {
		return eventloop.Go(ctx, func(ctx context.Context) (any, error) {
			s.mu.Lock()
			session := s.session
			s.mu.Unlock()
			if session == nil {
				return nil, fmt.Errorf("mcpsource: server %q is not connected", s.cfg.Name)
			}

			res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: remoteName, Arguments: map[string]any(args)})
			if err != nil {
				return nil, fmt.Errorf("mcpsource: call %q on %q: %w", remoteName, s.cfg.Name, err)
			}
			return decodeResult(res)
		})
	}
}

// decodeResult returns the concatenated text content, or the structured
// content when there is no text. A result flagged IsError becomes an error
// carrying its text.
func decodeResult(res *mcpsdk.CallToolResult) (any, error) {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return nil, errors.New(sb.String())
	}
	if sb.Len() == 0 && res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	return sb.String(), nil
}

// Close ends the session. It is safe to call on a source that never
// connected and more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()
	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		return fmt.Errorf("mcpsource: close %q: %w", s.cfg.Name, err)
	}
	return nil
}

// bearerTransport adds an Authorization header to every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

// schemaToMap converts an SDK schema value to a plain map.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits "/bin/foo --bar baz" into ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
