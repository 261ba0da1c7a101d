// Package openapi exposes every operation of an OpenAPI 3 document as a
// synchronous tool that performs the HTTP request.
//
// Documents may be JSON or YAML and are fetched over HTTP(S) or read from a
// local path. Operations keep document order. Each tool accepts four optional
// arguments:
//
//	path_params  values substituted into {templated} path segments
//	query        query string parameters
//	json         request body, sent as application/json
//	headers      extra request headers
//
// A 2xx JSON response is decoded and returned; any other 2xx body is
// returned as a string. Non-2xx responses are errors.
package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/toolhub/internal/sources/builtin"
	"github.com/MrWong99/toolhub/pkg/tool"
)

const (
	// SourceKind is the provenance source of every OpenAPI descriptor.
	SourceKind = "openapi"

	// DefaultTimeout bounds the document fetch and each operation call.
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 8 << 20
)

var methods = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true,
	"patch": true, "head": true, "options": true,
}

// Source loads tools from one OpenAPI document.
type Source struct {
	specURL string
	timeout time.Duration
	client  *http.Client
}

var _ tool.Source = (*Source)(nil)

// Option configures a [Source].
type Option func(*Source)

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client used for fetching and calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.client = c }
}

// New creates a source for the document at specURL, which is an http(s)
// URL, a file:// URL or a filesystem path.
func New(specURL string, opts ...Option) *Source {
	s := &Source{specURL: specURL, timeout: DefaultTimeout}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		s.client = &http.Client{}
	}
	return s
}

// Name implements [tool.Source].
func (s *Source) Name() string { return SourceKind + ":" + s.specURL }

// Load fetches and parses the document and returns one descriptor per
// operation.
func (s *Source) Load(ctx context.Context) ([]tool.Descriptor, error) {
	raw, err := s.fetch(ctx)
	if err != nil {
		return nil, &tool.LoadError{Source: s.Name(), Err: err}
	}
	ops, baseURL, err := parse(raw)
	if err != nil {
		return nil, &tool.LoadError{Source: s.Name(), Err: err}
	}
	if baseURL == "" {
		baseURL = originOf(s.specURL)
	}

	used := make(map[string]bool, len(ops))
	descs := make([]tool.Descriptor, 0, len(ops))
	for _, op := range ops {
		name := builtin.UniqueName(used, builtin.Sanitize(op.rawName()))
		ep := &endpoint{
			method:  strings.ToUpper(op.method),
			baseURL: baseURL,
			path:    op.path,
			client:  s.client,
		}
		descs = append(descs, tool.Descriptor{
			Name:        name,
			Description: op.describe(),
			InputSchema: op.inputSchema(),
			Kind:        tool.KindSync,
			Sync:        ep.call,
			Provenance:  tool.Provenance{Source: SourceKind, Origin: s.specURL},
			Timeout:     s.timeout,
		})
	}
	return descs, nil
}

func (s *Source) fetch(ctx context.Context) ([]byte, error) {
	u, err := url.Parse(s.specURL)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.specURL, nil)
		if err != nil {
			return nil, fmt.Errorf("openapi: build request: %w", err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("openapi: fetch document: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("openapi: read document: %w", err)
		}
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("openapi: fetch document: status %d", resp.StatusCode)
		}
		return body, nil
	}

	path := s.specURL
	if err == nil && u.Scheme == "file" {
		path = u.Path
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("openapi: read document: %w", err)
	}
	return body, nil
}

func originOf(specURL string) string {
	u, err := url.Parse(specURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// ─── invocation ──────────────────────────────────────────────────────────────

type endpoint struct {
	method  string
	baseURL string
	path    string
	client  *http.Client
}

func (e *endpoint) url(pathParams map[string]any) string {
	p := e.path
	for k, v := range pathParams {
		p = strings.ReplaceAll(p, "{"+k+"}", url.PathEscape(fmt.Sprint(v)))
	}
	switch {
	case strings.HasSuffix(e.baseURL, "/") && strings.HasPrefix(p, "/"):
		return e.baseURL + p[1:]
	case !strings.HasSuffix(e.baseURL, "/") && !strings.HasPrefix(p, "/"):
		return e.baseURL + "/" + p
	default:
		return e.baseURL + p
	}
}

func (e *endpoint) call(ctx context.Context, args tool.Arguments) (any, error) {
	pathParams, err := objectArg(args, "path_params")
	if err != nil {
		return nil, err
	}
	query, err := objectArg(args, "query")
	if err != nil {
		return nil, err
	}
	headers, err := objectArg(args, "headers")
	if err != nil {
		return nil, err
	}

	target := e.url(pathParams)
	if len(query) > 0 {
		q := url.Values{}
		for k, v := range query {
			if list, ok := v.([]any); ok {
				for _, item := range list {
					q.Add(k, fmt.Sprint(item))
				}
				continue
			}
			q.Set(k, fmt.Sprint(v))
		}
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + q.Encode()
	}

	var body io.Reader
	if v, ok := args["json"]; ok && v != nil {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("openapi: encode json body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, e.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("openapi: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, fmt.Sprint(v))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openapi: %s %s: %w", e.method, target, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("openapi: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{Method: e.method, URL: target, Status: resp.StatusCode, Body: snippet(raw)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return string(raw), nil
	}
	return out, nil
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openapi: %s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

func snippet(b []byte) string {
	const n = 256
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = s[:n] + "…"
	}
	return s
}

var errNotObject = errors.New("must be an object")

func objectArg(args tool.Arguments, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("openapi: argument %q %w, got %T", key, errNotObject, v)
	}
}

// ─── document parsing ────────────────────────────────────────────────────────

type parameter struct {
	name     string
	in       string
	required bool
	schema   map[string]any
}

type operation struct {
	method      string
	path        string
	operationID string
	summary     string
	description string
	params      []parameter
	hasBody     bool
}

func (o operation) rawName() string {
	if o.operationID != "" {
		return o.operationID
	}
	return o.method + "_" + o.path
}

func (o operation) describe() string {
	switch {
	case o.summary != "":
		return o.summary
	case o.description != "":
		return o.description
	default:
		return strings.ToUpper(o.method) + " " + o.path
	}
}

func (o operation) inputSchema() map[string]any {
	group := func(in string) map[string]any {
		props := map[string]any{}
		var required []string
		for _, p := range o.params {
			if p.in != in {
				continue
			}
			s := p.schema
			if s == nil {
				s = map[string]any{}
			}
			props[p.name] = s
			if p.required {
				required = append(required, p.name)
			}
		}
		g := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			g["required"] = required
		}
		return g
	}

	props := map[string]any{
		"path_params": group("path"),
		"query":       group("query"),
		"headers":     group("header"),
	}
	if o.hasBody {
		props["json"] = map[string]any{"type": "object", "description": "JSON request body"}
	}
	return map[string]any{"type": "object", "properties": props}
}

// parse walks the document through yaml.Node so paths and methods keep
// their document order.
func parse(raw []byte) ([]operation, string, error) {
	// Tabs are only legal as whitespace in JSON but are rejected as YAML
	// indentation.
	if t := bytes.TrimSpace(raw); len(t) > 0 && t[0] == '{' {
		raw = bytes.ReplaceAll(raw, []byte{'\t'}, []byte{' '})
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, "", fmt.Errorf("openapi: parse document: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, "", errors.New("openapi: document is not an object")
	}
	root := doc.Content[0]

	var baseURL string
	if servers := lookup(root, "servers"); servers != nil && servers.Kind == yaml.SequenceNode && len(servers.Content) > 0 {
		if u := lookup(servers.Content[0], "url"); u != nil {
			baseURL = u.Value
		}
	}

	paths := lookup(root, "paths")
	if paths == nil || paths.Kind != yaml.MappingNode {
		return nil, baseURL, nil
	}

	var ops []operation
	for i := 0; i+1 < len(paths.Content); i += 2 {
		path, item := paths.Content[i].Value, paths.Content[i+1]
		if item.Kind != yaml.MappingNode {
			continue
		}
		shared := parameters(lookup(item, "parameters"))
		for j := 0; j+1 < len(item.Content); j += 2 {
			method := strings.ToLower(item.Content[j].Value)
			if !methods[method] {
				continue
			}
			node := item.Content[j+1]
			op := operation{method: method, path: path}
			if node.Kind == yaml.MappingNode {
				op.operationID = scalar(node, "operationId")
				op.summary = scalar(node, "summary")
				op.description = scalar(node, "description")
				op.params = append(append([]parameter(nil), shared...), parameters(lookup(node, "parameters"))...)
				op.hasBody = lookup(node, "requestBody") != nil
			}
			ops = append(ops, op)
		}
	}
	return ops, baseURL, nil
}

func lookup(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func scalar(n *yaml.Node, key string) string {
	if v := lookup(n, key); v != nil && v.Kind == yaml.ScalarNode {
		return v.Value
	}
	return ""
}

func parameters(n *yaml.Node) []parameter {
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	var out []parameter
	for _, p := range n.Content {
		name := scalar(p, "name")
		if name == "" {
			continue
		}
		param := parameter{name: name, in: scalar(p, "in"), required: scalar(p, "required") == "true"}
		if s := lookup(p, "schema"); s != nil {
			var m map[string]any
			if err := s.Decode(&m); err == nil {
				param.schema = m
			}
		}
		if d := scalar(p, "description"); d != "" {
			if param.schema == nil {
				param.schema = map[string]any{}
			}
			param.schema["description"] = d
		}
		out = append(out, param)
	}
	return out
}
