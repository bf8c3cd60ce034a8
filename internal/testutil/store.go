package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sfcpath/internal/model"
	"github.com/roach88/sfcpath/internal/store"
)

// OpenStore opens a fresh store in a temp directory and closes it when the
// test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "sfcpath.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Catalog is a set of records to seed into a store.
type Catalog struct {
	FunctionTypes []model.FunctionType
	Functions     []model.Function
	Forwarders    []model.Forwarder
}

// ExampleCatalog returns the two-forwarder catalog used across tests:
// firewall fw1 on F1 and nat nat1 on F2.
func ExampleCatalog() Catalog {
	return Catalog{
		FunctionTypes: []model.FunctionType{
			{Name: "firewall", Candidates: []string{"fw1"}},
			{Name: "nat", Candidates: []string{"nat1"}},
		},
		Functions: []model.Function{
			{Name: "fw1", Type: "firewall", Forwarder: "F1", Locator: "10.0.1.1"},
			{Name: "nat1", Type: "nat", Forwarder: "F2", Locator: "10.0.2.1"},
		},
		Forwarders: []model.Forwarder{
			{Name: "F1", Locator: "192.0.2.1"},
			{Name: "F2", Locator: "192.0.2.2"},
		},
	}
}

// ExampleChain returns chain C1: firewall then nat.
func ExampleChain() model.Chain {
	return model.Chain{
		Name: "C1",
		Steps: []model.ChainStep{
			{Name: "s1", Type: "firewall"},
			{Name: "s2", Type: "nat"},
		},
	}
}

// Seed writes every record of c into s. Forwarders must not exist yet.
func Seed(t testing.TB, s *store.Store, c Catalog) {
	t.Helper()
	ctx := context.Background()
	for _, ft := range c.FunctionTypes {
		require.NoError(t, s.WriteFunctionType(ctx, ft))
	}
	for _, fn := range c.Functions {
		require.NoError(t, s.WriteFunction(ctx, fn))
	}
	for _, f := range c.Forwarders {
		_, err := s.WriteForwarderIf(ctx, f, "")
		require.NoError(t, err)
	}
}
