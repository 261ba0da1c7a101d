package builtin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/toolhub/internal/sources/builtin"
	"github.com/MrWong99/toolhub/pkg/eventloop"
	"github.com/MrWong99/toolhub/pkg/tool"
)

type greetArgs struct {
	Name  string `json:"name" jsonschema:"required,description=Who to greet"`
	Times int    `json:"times,omitempty"`
}

func greet(_ context.Context, a greetArgs) (string, error) {
	if a.Name == "" {
		return "", errors.New("name required")
	}
	return "hello " + a.Name, nil
}

// ─── Func ────────────────────────────────────────────────────────────────────

func TestFunc_DecodesArguments(t *testing.T) {
	t.Parallel()
	d := builtin.Func("greet", "Greet someone.", greet)
	if d.Kind != tool.KindSync || d.Sync == nil {
		t.Fatalf("descriptor = %+v, want sync", d)
	}
	v, err := d.Sync(context.Background(), tool.Arguments{"name": "ada"})
	if err != nil || v != "hello ada" {
		t.Errorf("Sync = %v, %v", v, err)
	}
}

func TestFunc_BadArguments(t *testing.T) {
	t.Parallel()
	d := builtin.Func("greet", "Greet someone.", greet)
	if _, err := d.Sync(context.Background(), tool.Arguments{"name": 12}); err == nil {
		t.Error("expected decode error for numeric name")
	}
	if _, err := d.Sync(context.Background(), nil); err == nil {
		t.Error("expected function error for missing name")
	}
}

func TestFunc_SchemaReflected(t *testing.T) {
	t.Parallel()
	s := builtin.Func("greet", "Greet someone.", greet).InputSchema
	if s["type"] != "object" {
		t.Fatalf("schema type = %v, want object", s["type"])
	}
	props, ok := s["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties = %T", s["properties"])
	}
	name, ok := props["name"].(map[string]any)
	if !ok || name["type"] != "string" || name["description"] != "Who to greet" {
		t.Errorf("name property = %v", props["name"])
	}
	if _, ok := props["times"]; !ok {
		t.Error("times property missing")
	}
	req, _ := s["required"].([]any)
	if len(req) != 1 || req[0] != "name" {
		t.Errorf("required = %v, want [name]", s["required"])
	}
	if _, ok := s["$schema"]; ok {
		t.Error("$schema should be stripped")
	}
}

// ─── AsyncFunc ───────────────────────────────────────────────────────────────

func TestAsyncFunc_ResolvesOnLoop(t *testing.T) {
	t.Parallel()
	d := builtin.AsyncFunc("greet", "Greet someone.", greet)
	if d.Kind != tool.KindAsync {
		t.Fatalf("Kind = %v, want async", d.Kind)
	}

	loop := eventloop.New()
	defer loop.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := loop.RunUntilComplete(ctx, func(ctx context.Context) *eventloop.Future {
		return d.Async(ctx, tool.Arguments{"name": "bob"})
	})
	if err != nil || v != "hello bob" {
		t.Errorf("RunUntilComplete = %v, %v", v, err)
	}
}

func TestAsyncFunc_DecodeErrorResolvesImmediately(t *testing.T) {
	t.Parallel()
	d := builtin.AsyncFunc("greet", "Greet someone.", greet)
	f := d.Async(context.Background(), tool.Arguments{"name": []int{1}})
	select {
	case <-f.Done():
	default:
		t.Fatal("future should already be resolved")
	}
	if _, err := f.Result(); err == nil {
		t.Error("expected decode error")
	}
}

// ─── Source ──────────────────────────────────────────────────────────────────

func TestNewSource_PrefixesAndSanitises(t *testing.T) {
	t.Parallel()
	src := builtin.NewSource("my tools", builtin.Func("a.b", "x", greet),
		builtin.Func("a b", "y", greet),
		builtin.Func("plain", "z", greet),
	)
	descs, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"my_tools__a_b", "my_tools__a_b_2", "my_tools__plain"}
	if len(descs) != len(want) {
		t.Fatalf("got %d descriptors, want %d", len(descs), len(want))
	}
	for i, d := range descs {
		if d.Name != want[i] {
			t.Errorf("descs[%d].Name = %q, want %q", i, d.Name, want[i])
		}
		if d.Provenance.Source != builtin.SourceKind || d.Provenance.Origin != "my tools" {
			t.Errorf("descs[%d].Provenance = %+v", i, d.Provenance)
		}
	}
	if src.Name() != "builtin:my tools" {
		t.Errorf("Name = %q", src.Name())
	}
}

func TestNewSource_SuffixDoesNotCollideWithLaterName(t *testing.T) {
	t.Parallel()
	descs, err := builtin.NewSource("x",
		builtin.Func("a", "first", greet),
		builtin.Func("a", "second", greet),
		builtin.Func("a_2", "third", greet),
	).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"x__a", "x__a_2", "x__a_2_2"}
	for i, d := range descs {
		if d.Name != want[i] {
			t.Errorf("descs[%d].Name = %q, want %q", i, d.Name, want[i])
		}
	}
}

func TestUniqueName(t *testing.T) {
	t.Parallel()
	used := map[string]bool{}
	got := []string{
		builtin.UniqueName(used, "search"),
		builtin.UniqueName(used, "search"),
		builtin.UniqueName(used, "search_2"),
		builtin.UniqueName(used, "search"),
	}
	want := []string{"search", "search_2", "search_2_2", "search_3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("UniqueName #%d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"ok_name-1": "ok_name-1",
		"a/b.c":     "a_b_c",
		"ünïcode":   "_n_code",
		"":          "",
	}
	for in, want := range tests {
		if got := builtin.Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
