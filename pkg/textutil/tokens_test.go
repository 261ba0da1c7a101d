package textutil

import (
	"slices"
	"testing"
)

func TestTokenize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"Compute the SINE of an angle", []string{"compute", "the", "sine", "of", "an", "angle"}},
		{"list_buckets(region=eu-west-1)", []string{"list", "buckets", "region", "eu", "west", "1"}},
		{"Café au lait", []string{"caf", "au", "lait"}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSharedCount(t *testing.T) {
	t.Parallel()
	a := DistinctTokens("sine sine of angle")
	b := DistinctTokens("Return the sine of x")
	if got := SharedCount(a, b); got != 2 {
		t.Errorf("SharedCount = %d, want 2", got)
	}
	if got := SharedCount(b, a); got != 2 {
		t.Errorf("SharedCount is not symmetric: %d", got)
	}
	if got := SharedCount(DistinctTokens(""), b); got != 0 {
		t.Errorf("SharedCount with empty set = %d, want 0", got)
	}
}
