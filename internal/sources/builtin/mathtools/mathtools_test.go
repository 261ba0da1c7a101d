package mathtools

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/MrWong99/toolhub/pkg/tool"
)

func call(t *testing.T, name string, args tool.Arguments) (float64, error) {
	t.Helper()
	for _, d := range Tools() {
		if d.Name == name {
			v, err := d.Sync(context.Background(), args)
			if err != nil {
				return 0, err
			}
			return v.(float64), nil
		}
	}
	t.Fatalf("tool %q not found", name)
	return 0, nil
}

func TestTools_Values(t *testing.T) {
	t.Parallel()
	tests := []struct {
		tool string
		args tool.Arguments
		want float64
	}{
		{"sin", tool.Arguments{"x": math.Pi / 2}, 1},
		{"cos", tool.Arguments{"x": 0.0}, 1},
		{"tan", tool.Arguments{"x": math.Pi / 4}, 1},
		{"sqrt", tool.Arguments{"x": 16}, 4},
		{"pow", tool.Arguments{"base": 2, "exponent": 10}, 1024},
		{"hypot", tool.Arguments{"x": 3, "y": 4}, 5},
		{"degrees", tool.Arguments{"x": math.Pi}, 180},
		{"radians", tool.Arguments{"degrees": 180}, math.Pi},
		{"log", tool.Arguments{"x": math.E}, 1},
		{"log", tool.Arguments{"x": 1000, "base": 10}, 3},
		{"exp", tool.Arguments{"x": 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			got, err := call(t, tt.tool, tt.args)
			if err != nil {
				t.Fatalf("%s: %v", tt.tool, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("%s = %v, want %v", tt.tool, got, tt.want)
			}
		})
	}
}

func TestTools_DomainErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		tool string
		args tool.Arguments
	}{
		{"sqrt", tool.Arguments{"x": -1}},
		{"log", tool.Arguments{"x": 0}},
		{"log", tool.Arguments{"x": 10, "base": 1}},
		{"pow", tool.Arguments{"base": -8, "exponent": 0.5}},
		{"pow", tool.Arguments{"base": 10, "exponent": 400}},
		{"exp", tool.Arguments{"x": 1000}},
		{"hypot", tool.Arguments{"x": 1e308, "y": 1e308}},
		{"degrees", tool.Arguments{"x": 1e307}},
	}
	for _, c := range cases {
		_, err := call(t, c.tool, c.args)
		if err == nil {
			t.Errorf("%s(%v): expected error", c.tool, c.args)
			continue
		}
		if !strings.HasPrefix(err.Error(), "mathtools:") {
			t.Errorf("error %q should be prefixed with 'mathtools:'", err)
		}
	}
}

func TestSource_Names(t *testing.T) {
	t.Parallel()
	descs, err := Source().Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(descs) != 10 {
		t.Fatalf("got %d tools, want 10", len(descs))
	}
	for _, d := range descs {
		if !strings.HasPrefix(d.Name, "math__") {
			t.Errorf("name %q lacks math__ prefix", d.Name)
		}
		if err := d.Validate(); err != nil {
			t.Errorf("%s: %v", d.Name, err)
		}
	}
}
