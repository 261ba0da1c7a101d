package hashed

import (
	"context"
	"math"
	"slices"
	"testing"

	"github.com/cespare/xxhash/v2"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestVector_Deterministic(t *testing.T) {
	t.Parallel()
	a := New(0).Vector("List all S3 buckets in the account")
	b := New(0).Vector("List all S3 buckets in the account")
	if !slices.Equal(a, b) {
		t.Fatal("identical text must produce identical vectors across instances")
	}
	if len(a) != DefaultDimensions {
		t.Errorf("len = %d, want %d", len(a), DefaultDimensions)
	}
}

// The bucket layout is part of the persisted format: vectors stored by one
// process are compared with vectors computed by another.
func TestVector_Golden(t *testing.T) {
	t.Parallel()
	third := float32(1 / math.Sqrt(3))
	tests := []struct {
		text string
		want map[int]float32
	}{
		{"sine of angle", map[int]float32{4: third, 12: third, 14: third}},
		{"the sine of the angle of the sine", map[int]float32{
			4:  float32(2 / math.Sqrt(18)),
			6:  float32(3 / math.Sqrt(18)),
			12: float32(2 / math.Sqrt(18)),
			14: float32(1 / math.Sqrt(18)),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			v := New(16).Vector(tt.text)
			for i, x := range v {
				want := tt.want[i]
				if math.Abs(float64(x-want)) > 1e-6 {
					t.Errorf("bucket %d = %v, want %v", i, x, want)
				}
			}
		})
	}
}

func TestXXH64_Golden(t *testing.T) {
	t.Parallel()
	for tok, want := range map[string]uint64{
		"sine":  0xb035ff9436463a84,
		"angle": 0x331c6bced81773de,
		"of":    0x603544dcdce1961c,
		"the":   0x4b1b03a21f8b5f26,
	} {
		if got := xxhash.Sum64String(tok); got != want {
			t.Errorf("xxh64(%q) = %#x, want %#x", tok, got, want)
		}
	}
}

func TestVector_Normalised(t *testing.T) {
	t.Parallel()
	v := New(64).Vector("sine sine cosine tangent")
	if n := norm(v); math.Abs(n-1) > 1e-5 {
		t.Errorf("norm = %v, want 1", n)
	}
}

func TestVector_EmptyTextIsZero(t *testing.T) {
	t.Parallel()
	v := New(32).Vector("  ,, ")
	if n := norm(v); n != 0 {
		t.Errorf("norm of empty text = %v, want 0", n)
	}
}

func TestVector_CaseInsensitive(t *testing.T) {
	t.Parallel()
	p := New(128)
	if !slices.Equal(p.Vector("Sine Angle"), p.Vector("sine ANGLE")) {
		t.Error("tokenization must be case-insensitive")
	}
}

func TestEmbedBatch(t *testing.T) {
	t.Parallel()
	p := New(16)
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if !slices.Equal(vecs[0], p.Vector("a")) || !slices.Equal(vecs[1], p.Vector("b")) {
		t.Error("EmbedBatch must match Vector per element")
	}
}

func TestEmbed_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(0).Embed(ctx, "x"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestModelID(t *testing.T) {
	t.Parallel()
	if got := New(256).ModelID(); got != "hashed-xxh64-256" {
		t.Errorf("ModelID = %q", got)
	}
}
