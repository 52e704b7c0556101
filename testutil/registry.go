package testutil

import (
	"testing"

	"github.com/skosovsky/fncall"
)

// NewTestRegistry returns a Registry of fns with panic recovery applied to local functions.
// It fails the test if the registry cannot be built.
func NewTestRegistry(tb testing.TB, fns ...fncall.Function) *fncall.Registry {
	tb.Helper()
	reg, err := fncall.NewRegistry(fns, fncall.WithMiddleware(fncall.WithRecovery()))
	if err != nil {
		tb.Fatalf("testutil: build registry: %v", err)
	}
	return reg
}
