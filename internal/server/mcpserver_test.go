package server

import (
	"context"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func connectMCP(t *testing.T, h Hub) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientT, serverT := mcpsdk.NewInMemoryTransports()

	ss, err := NewMCPServer(h, "test").Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func text(res *mcpsdk.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func TestMCP_ListsTwoTools(t *testing.T) {
	cs := connectMCP(t, &fakeHub{})
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := map[string]bool{}
	for _, tl := range res.Tools {
		names[tl.Name] = true
	}
	if len(names) != 2 || !names["find_tools"] || !names["call_tool"] {
		t.Errorf("tools = %v", names)
	}
}

func TestMCP_FindAndCall(t *testing.T) {
	fh := &fakeHub{}
	cs := connectMCP(t, fh)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "find_tools",
		Arguments: map[string]any{"query": "sine"},
	})
	if err != nil {
		t.Fatalf("find_tools: %v", err)
	}
	if res.IsError || !strings.Contains(text(res), `"name":"math__sin"`) {
		t.Errorf("find_tools = %q (error=%v)", text(res), res.IsError)
	}
	if fh.ks[0] != DefaultK {
		t.Errorf("k = %d, want default %d", fh.ks[0], DefaultK)
	}

	res, err = cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "call_tool",
		Arguments: map[string]any{"name": "math__sin", "arguments": map[string]any{"x": 2}},
	})
	if err != nil {
		t.Fatalf("call_tool: %v", err)
	}
	if res.IsError || text(res) != "sin(2)" {
		t.Errorf("call_tool = %q (error=%v)", text(res), res.IsError)
	}
}

func TestMCP_FindToolsExplicitK(t *testing.T) {
	fh := &fakeHub{}
	cs := connectMCP(t, fh)
	ctx := context.Background()

	for _, k := range []int{0, 2} {
		res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      "find_tools",
			Arguments: map[string]any{"query": "sine", "k": k},
		})
		if err != nil {
			t.Fatalf("find_tools k=%d: %v", k, err)
		}
		if res.IsError {
			t.Fatalf("find_tools k=%d: %q", k, text(res))
		}
	}
	if len(fh.ks) != 2 || fh.ks[0] != 0 || fh.ks[1] != 2 {
		t.Errorf("ks = %v, want [0 2]", fh.ks)
	}

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "find_tools",
		Arguments: map[string]any{"query": "sine", "k": -1},
	})
	if err != nil {
		t.Fatalf("find_tools k=-1: %v", err)
	}
	if !res.IsError || len(fh.ks) != 2 {
		t.Errorf("negative k: error=%v, ks=%v", res.IsError, fh.ks)
	}
}

func TestMCP_CallUnknownToolIsError(t *testing.T) {
	cs := connectMCP(t, &fakeHub{})
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "call_tool",
		Arguments: map[string]any{"name": "nope"},
	})
	if err != nil {
		t.Fatalf("call_tool: %v", err)
	}
	if !res.IsError || !strings.Contains(text(res), "not found") {
		t.Errorf("call_tool = %q (error=%v), want not-found error result", text(res), res.IsError)
	}
}
