// Package builtin turns Go functions into tool descriptors and groups them
// into a [tool.Source].
//
// Argument decoding goes through JSON: the call's [tool.Arguments] are
// marshalled and unmarshalled into the function's input type, so struct tags
// decide field names, and the input schema is reflected from the same type.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/MrWong99/toolhub/pkg/eventloop"
	"github.com/MrWong99/toolhub/pkg/tool"
)

// SourceKind is the provenance source of every builtin descriptor.
const SourceKind = "builtin"

// Func builds a synchronous descriptor around fn.
func Func[In, Out any](name, description string, fn func(ctx context.Context, in In) (Out, error)) tool.Descriptor {
	return tool.Descriptor{
		Name:        name,
		Description: description,
		InputSchema: SchemaFor[In](),
		Kind:        tool.KindSync,
		Sync: func(ctx context.Context, args tool.Arguments) (any, error) {
			in, err := decode[In](args)
			if err != nil {
				return nil, err
			}
			return fn(ctx, in)
		},
		Provenance: tool.Provenance{Source: SourceKind},
	}
}

// AsyncFunc builds an asynchronous descriptor around fn. The function runs on
// its own goroutine and its result is delivered through the caller's loop.
func AsyncFunc[In, Out any](name, description string, fn func(ctx context.Context, in In) (Out, error)) tool.Descriptor {
	return tool.Descriptor{
		Name:        name,
		Description: description,
		InputSchema: SchemaFor[In](),
		Kind:        tool.KindAsync,
		Async: func(ctx context.Context, args tool.Arguments) *eventloop.Future {
			in, err := decode[In](args)
			if err != nil {
				return eventloop.Resolved(nil, err)
			}
			return eventloop.Go(ctx, func(ctx context.Context) (any, error) {
				return fn(ctx, in)
			})
		},
		Provenance: tool.Provenance{Source: SourceKind},
	}
}

func decode[In any](args tool.Arguments) (In, error) {
	var in In
	if args == nil {
		args = tool.Arguments{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return in, fmt.Errorf("builtin: encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("builtin: decode arguments: %w", err)
	}
	return in, nil
}

// SchemaFor reflects the JSON Schema of T as a plain map. Non-struct types
// and reflection failures yield an empty object schema.
func SchemaFor[T any]() map[string]any {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	s := r.ReflectFromType(reflect.TypeFor[T]())

	raw, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// Source is a fixed set of builtin descriptors.
type Source struct {
	origin string
	descs  []tool.Descriptor
}

var _ tool.Source = (*Source)(nil)

// NewSource groups descs under origin. Every name becomes origin__name,
// restricted to [a-zA-Z0-9_-]; names that collide after sanitising get a
// numeric suffix. Order is preserved.
func NewSource(origin string, descs ...tool.Descriptor) *Source {
	prefix := Sanitize(origin)
	used := make(map[string]bool, len(descs))
	out := make([]tool.Descriptor, 0, len(descs))
	for _, d := range descs {
		name := Sanitize(d.Name)
		if prefix != "" {
			name = prefix + "__" + name
		}
		d.Name = UniqueName(used, name)
		d.Provenance = tool.Provenance{Source: SourceKind, Origin: origin}
		out = append(out, d)
	}
	return &Source{origin: origin, descs: out}
}

// Name implements [tool.Source].
func (s *Source) Name() string { return SourceKind + ":" + s.origin }

// Load implements [tool.Source].
func (s *Source) Load(ctx context.Context) ([]tool.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]tool.Descriptor(nil), s.descs...), nil
}

// UniqueName returns base, or base_2, base_3, ... when taken, and marks the
// result as used.
func UniqueName(used map[string]bool, base string) string {
	name := base
	for i := 2; used[name]; i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	used[name] = true
	return name
}

// Sanitize replaces every rune outside [a-zA-Z0-9_-] with an underscore.
func Sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}
