package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/toolhub/pkg/tool"
)

// Tool is a descriptor bound to a bridge: the blocking callable handed to
// callers of a hub.
type Tool struct {
	desc   tool.Descriptor
	bridge *Bridge
}

// Wrap binds d to b.
func (b *Bridge) Wrap(d tool.Descriptor) *Tool {
	return &Tool{desc: d, bridge: b}
}

// Name returns the registered tool name.
func (t *Tool) Name() string { return t.desc.Name }

// Description returns the tool description.
func (t *Tool) Description() string { return t.desc.Description }

// InputSchema returns the JSON Schema of accepted arguments.
func (t *Tool) InputSchema() map[string]any { return t.desc.InputSchema }

// Descriptor returns the underlying descriptor.
func (t *Tool) Descriptor() tool.Descriptor { return t.desc }

// Call invokes the tool and blocks until it completes.
func (t *Tool) Call(ctx context.Context, args tool.Arguments) (any, error) {
	return t.bridge.Invoke(ctx, t.desc, args)
}

// CallJSON decodes raw as a JSON object and invokes the tool. Empty input is
// treated as no arguments.
func (t *Tool) CallJSON(ctx context.Context, raw []byte) (any, error) {
	var args tool.Arguments
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("bridge: %q: decode arguments: %w", t.desc.Name, err)
		}
	}
	return t.Call(ctx, args)
}
