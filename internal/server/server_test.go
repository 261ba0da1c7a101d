package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/toolhub/internal/embedding"
	"github.com/MrWong99/toolhub/internal/health"
	"github.com/MrWong99/toolhub/internal/hub"
	"github.com/MrWong99/toolhub/internal/sources/builtin/mathtools"
	"github.com/MrWong99/toolhub/pkg/provider/embeddings/hashed"
	"github.com/MrWong99/toolhub/pkg/tool"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

type fakeHub struct {
	mu       sync.Mutex
	queries  []string
	ks       []int
	queryErr error
}

var _ Hub = (*fakeHub)(nil)

func (f *fakeHub) ListAll() []tool.Summary {
	return []tool.Summary{
		{Name: "math__sin", Description: "sine", Source: "builtin", Origin: "math"},
		{Name: "listPets", Description: "List all pets", Source: "openapi", Origin: "pets.yaml"},
	}
}

func (f *fakeHub) Query(_ context.Context, text string, k int) ([]hub.Match, error) {
	f.mu.Lock()
	f.queries = append(f.queries, text)
	f.ks = append(f.ks, k)
	f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return []hub.Match{{Name: "math__sin", Description: "sine", Score: 0.9}}, nil
}

func (f *fakeHub) Invoke(_ context.Context, name string, args tool.Arguments) (any, error) {
	switch name {
	case "math__sin":
		return fmt.Sprintf("sin(%v)", args["x"]), nil
	case "slow":
		return nil, fmt.Errorf("bridge: %w", tool.ErrInvocationTimeout)
	case "overflow":
		return math.Inf(1), nil
	case "broken":
		return nil, &tool.InvocationError{Tool: name, Err: errors.New("kaboom")}
	default:
		return nil, fmt.Errorf("hub: %w", tool.ErrNotFound)
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return rec.Code, out
}

// ─── HTTP API ────────────────────────────────────────────────────────────────

func TestListTools(t *testing.T) {
	t.Parallel()
	code, body := do(t, New(&fakeHub{}).Handler(), http.MethodGet, "/v1/tools", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	tools := body["tools"].([]any)
	if len(tools) != 2 || tools[1].(map[string]any)["source"] != "openapi" {
		t.Errorf("tools = %v", tools)
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()
	fh := &fakeHub{}
	h := New(fh).Handler()

	code, body := do(t, h, http.MethodPost, "/v1/query", `{"query": "sine of an angle", "k": 2}`)
	if code != http.StatusOK || body["query"] != "sine of an angle" {
		t.Fatalf("query = %d %v", code, body)
	}
	if m := body["matches"].([]any); len(m) != 1 || m[0].(map[string]any)["name"] != "math__sin" {
		t.Errorf("matches = %v", body["matches"])
	}

	do(t, h, http.MethodPost, "/v1/query", `{"query": {"messages": [{"content": "a"}, {"content": "b"}]}}`)
	if fh.queries[1] != "b" || fh.ks[1] != DefaultK {
		t.Errorf("normalised query = %q k=%d, want b k=%d", fh.queries[1], fh.ks[1], DefaultK)
	}

	do(t, h, http.MethodPost, "/v1/query", `{"query": "x", "k": 0}`)
	if fh.ks[2] != 0 {
		t.Errorf("explicit k=0 became %d", fh.ks[2])
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	h := New(&fakeHub{queryErr: fmt.Errorf("ranking: %w", tool.ErrBackendUnavailable)}).Handler()

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"backend down", http.MethodPost, "/v1/query", `{"query": "x"}`, http.StatusServiceUnavailable},
		{"negative k", http.MethodPost, "/v1/query", `{"query": "x", "k": -1}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/v1/query", `{"query": `, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/tools/math__sin/invoke", `{"args": {}}`, http.StatusBadRequest},
		{"not found", http.MethodPost, "/v1/tools/nope/invoke", `{}`, http.StatusNotFound},
		{"timeout", http.MethodPost, "/v1/tools/slow/invoke", ``, http.StatusGatewayTimeout},
		{"tool failed", http.MethodPost, "/v1/tools/broken/invoke", `{"arguments": {}}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, h, tt.method, tt.path, tt.body)
			if code != tt.want {
				t.Errorf("status = %d, want %d (%v)", code, tt.want, body)
			}
			if _, ok := body["error"].(string); !ok {
				t.Errorf("body = %v, want an error message", body)
			}
		})
	}
}

func TestInvoke(t *testing.T) {
	t.Parallel()
	code, body := do(t, New(&fakeHub{}).Handler(), http.MethodPost, "/v1/tools/math__sin/invoke", `{"arguments": {"x": 1}}`)
	if code != http.StatusOK || body["tool"] != "math__sin" || body["result"] != "sin(1)" {
		t.Errorf("invoke = %d %v", code, body)
	}
}

func TestInvoke_UnencodableResult(t *testing.T) {
	t.Parallel()
	code, body := do(t, New(&fakeHub{}).Handler(), http.MethodPost, "/v1/tools/overflow/invoke", `{}`)
	if code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", code)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "encode response") {
		t.Errorf("error = %v, want an encode failure", body)
	}
}

func TestInvoke_MathOverflowIsToolError(t *testing.T) {
	t.Parallel()
	h, err := hub.New(context.Background(),
		hub.WithEmbeddingProvider(hashed.New(32), embedding.VariantFallback),
		hub.WithSources(mathtools.Source()),
	)
	if err != nil {
		t.Fatalf("hub.New: %v", err)
	}
	defer h.Close()

	code, body := do(t, New(h).Handler(), http.MethodPost, "/v1/tools/math__exp/invoke", `{"arguments": {"x": 1000}}`)
	if code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", code)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "overflows") {
		t.Errorf("error = %v, want overflow", body)
	}
}

func TestProbesAndMetrics(t *testing.T) {
	t.Parallel()
	scrape := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# metrics\n")
	})
	h := New(&fakeHub{},
		WithCheckers(health.NonEmpty("tools", func() int { return 0 })),
		WithMetricsHandler(scrape),
	).Handler()

	code, body := do(t, h, http.MethodGet, "/readyz", "")
	if code != http.StatusServiceUnavailable || body["status"] != "fail" {
		t.Errorf("readyz = %d %v", code, body)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# metrics") {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body.String())
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(&fakeHub{}).Serve(ctx, ln) }()

	resp, err := http.Post("http://"+ln.Addr().String()+"/v1/query", "application/json", bytes.NewBufferString(`{"query":"x"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
