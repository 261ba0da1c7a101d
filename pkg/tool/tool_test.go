package tool

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/MrWong99/toolhub/pkg/eventloop"
)

func TestDescriptorValidate(t *testing.T) {
	t.Parallel()

	syncFn := func(context.Context, Arguments) (any, error) { return nil, nil }
	asyncFn := func(context.Context, Arguments) *eventloop.Future { return eventloop.Resolved(nil, nil) }

	tests := []struct {
		name    string
		d       Descriptor
		wantErr bool
	}{
		{"sync ok", Descriptor{Name: "a", Kind: KindSync, Sync: syncFn}, false},
		{"async ok", Descriptor{Name: "a", Kind: KindAsync, Async: asyncFn}, false},
		{"empty name", Descriptor{Kind: KindSync, Sync: syncFn}, true},
		{"sync missing callable", Descriptor{Name: "a", Kind: KindSync, Async: asyncFn}, true},
		{"async missing callable", Descriptor{Name: "a", Kind: KindAsync, Sync: syncFn}, true},
		{"unknown kind", Descriptor{Name: "a", Kind: Kind(9), Sync: syncFn}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.d.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRankingText(t *testing.T) {
	t.Parallel()
	if got := (Descriptor{Name: "n", Description: "d"}).RankingText(); got != "d" {
		t.Errorf("RankingText = %q, want %q", got, "d")
	}
	if got := (Descriptor{Name: "n"}).RankingText(); got != "n" {
		t.Errorf("RankingText without description = %q, want %q", got, "n")
	}
}

func TestErrorsUnwrap(t *testing.T) {
	t.Parallel()

	inv := error(&InvocationError{Tool: "sin", Err: io.ErrUnexpectedEOF})
	if !errors.Is(inv, io.ErrUnexpectedEOF) {
		t.Error("InvocationError must unwrap to its cause")
	}
	var ie *InvocationError
	if !errors.As(inv, &ie) || ie.Tool != "sin" {
		t.Errorf("errors.As InvocationError = %v", ie)
	}

	load := error(&LoadError{Source: "openapi", Err: ErrNotFound})
	if !errors.Is(load, ErrNotFound) {
		t.Error("LoadError must unwrap to its cause")
	}
}
