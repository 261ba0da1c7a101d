package server

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/toolhub/internal/hub"
	"github.com/MrWong99/toolhub/pkg/tool"
)

type findToolsArgs struct {
	Query string `json:"query" jsonschema:"natural-language description of the task to find tools for"`
	K     *int   `json:"k,omitempty" jsonschema:"maximum number of tools to return, 5 when omitted"`
}

type findToolsResult struct {
	Tools []hub.Match `json:"tools"`
}

type callToolArgs struct {
	Name      string         `json:"name" jsonschema:"tool name as returned by find_tools"`
	Arguments map[string]any `json:"arguments,omitempty" jsonschema:"tool arguments"`
}

// NewMCPServer exposes h as two MCP tools: find_tools ranks the hub's tools
// for a query and call_tool invokes one by name.
func NewMCPServer(h Hub, version string) *mcpsdk.Server {
	s := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "toolhub", Version: version}, nil)

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "find_tools",
		Description: "Find the tools most relevant to a task, best first.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, in findToolsArgs) (*mcpsdk.CallToolResult, any, error) {
		k := DefaultK
		if in.K != nil {
			k = *in.K
		}
		if k < 0 {
			return errorResult(fmt.Errorf("k must not be negative, got %d", k)), nil, nil
		}
		matches, err := h.Query(ctx, in.Query, k)
		if err != nil {
			return errorResult(err), nil, nil
		}
		return textResult(findToolsResult{Tools: matches}), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "call_tool",
		Description: "Invoke a tool found with find_tools.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, in callToolArgs) (*mcpsdk.CallToolResult, any, error) {
		v, err := h.Invoke(ctx, in.Name, tool.Arguments(in.Arguments))
		if err != nil {
			return errorResult(err), nil, nil
		}
		return textResult(v), nil, nil
	})

	return s
}

// ServeMCP runs the MCP surface of h on t until the client disconnects or
// ctx is cancelled.
func ServeMCP(ctx context.Context, h Hub, version string, t mcpsdk.Transport) error {
	if err := NewMCPServer(h, version).Run(ctx, t); err != nil {
		return fmt.Errorf("server: mcp: %w", err)
	}
	return nil
}

func textResult(v any) *mcpsdk.CallToolResult {
	var text string
	if s, ok := v.(string); ok {
		text = s
	} else if raw, err := json.Marshal(v); err == nil {
		text = string(raw)
	} else {
		text = fmt.Sprint(v)
	}
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}}}
}

func errorResult(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		IsError: true,
	}
}
