package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sfcpath/internal/model"
	"github.com/roach88/sfcpath/internal/registry"
	"github.com/roach88/sfcpath/internal/store"
	"github.com/roach88/sfcpath/internal/testutil"
)

type fixture struct {
	store    *testutil.FaultStore
	registry *registry.Registry
	resolver *Resolver
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s := testutil.OpenStore(t)
	testutil.Seed(t, s, testutil.ExampleCatalog())
	fs := testutil.NewFaultStore(s)
	reg := registry.New(fs)
	return &fixture{store: fs, registry: reg, resolver: New(fs, reg, opts...)}
}

func (f *fixture) forwarder(t *testing.T, name string) model.Forwarder {
	t.Helper()
	fwd, found, err := f.registry.Lookup(context.Background(), name)
	require.NoError(t, err)
	require.True(t, found, "forwarder %s", name)
	return fwd
}

func (f *fixture) sequence(t *testing.T) int64 {
	t.Helper()
	v, err := f.store.CurrentSequence(context.Background(), store.SequencePathID)
	require.NoError(t, err)
	return v
}

func TestResolveEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path, err := f.resolver.Resolve(ctx, testutil.ExampleChain())
	require.NoError(t, err)

	assert.Equal(t, "C1-Path", path.Name)
	assert.Equal(t, int64(1), path.PathID)
	assert.Equal(t, 3, path.ServiceIndex)
	assert.Equal(t, []model.Hop{
		{Function: "fw1", Forwarder: "F1"},
		{Function: "nat1", Forwarder: "F2"},
	}, path.Hops)

	stored, found, err := f.resolver.Lookup(ctx, "C1-Path")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, path, stored)

	f1 := f.forwarder(t, "F1")
	assert.Equal(t, []string{"fw1"}, f1.EntryNames())
	assert.Equal(t, int64(1), f1.PathID)
	assert.Equal(t, "F1", f1.Dictionary["fw1"].Forwarder)

	f2 := f.forwarder(t, "F2")
	assert.Equal(t, []string{"nat1"}, f2.EntryNames())
	assert.Equal(t, int64(1), f2.PathID)
}

func TestResolvePreservesStepOrder(t *testing.T) {
	f := newFixture(t)

	chain := model.Chain{Name: "C2", Steps: []model.ChainStep{
		{Type: "nat"}, {Type: "firewall"}, {Type: "nat"},
	}}
	path, err := f.resolver.Resolve(context.Background(), chain)
	require.NoError(t, err)

	require.Len(t, path.Hops, len(chain.Steps))
	assert.Equal(t, len(chain.Steps)+1, path.ServiceIndex)
	assert.Equal(t, "nat1", path.Hops[0].Function)
	assert.Equal(t, "fw1", path.Hops[1].Function)
	assert.Equal(t, "nat1", path.Hops[2].Function)
}

func TestResolveTwiceAllocatesNewPathID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.resolver.Resolve(ctx, testutil.ExampleChain())
	require.NoError(t, err)
	second, err := f.resolver.Resolve(ctx, testutil.ExampleChain())
	require.NoError(t, err)

	assert.Equal(t, first.Name, second.Name)
	assert.NotEqual(t, first.PathID, second.PathID)
	assert.Equal(t, second.PathID, f.forwarder(t, "F1").PathID)
}

func TestResolveMissingFunctionType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.WriteFunctionType(ctx, model.FunctionType{Name: "dpi"}))

	for _, typ := range []string{"dpi", "absent"} {
		chain := model.Chain{Name: "C-" + typ, Steps: []model.ChainStep{{Type: "firewall"}, {Type: typ}}}

		_, err := f.resolver.Resolve(ctx, chain)
		require.Error(t, err)
		assert.True(t, model.IsMissingFunctionType(err), "type %s: %v", typ, err)

		_, found, err := f.resolver.Lookup(ctx, chain.PathName())
		require.NoError(t, err)
		assert.False(t, found, "no path may be written for %s", typ)
	}

	assert.Zero(t, f.sequence(t))
	assert.Empty(t, f.forwarder(t, "F1").Dictionary, "nothing is bound")
}

func TestResolveEmptyChain(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.Resolve(context.Background(), model.Chain{Name: "C0"})
	require.Error(t, err)
	assert.Equal(t, model.ErrCodeEmptyChain, model.CodeOf(err))
	assert.Zero(t, f.sequence(t))
}

type emptyPolicy struct{}

func (emptyPolicy) Select(context.Context, model.FunctionType, model.ChainStep) (string, error) {
	return "", nil
}

func TestResolveDanglingReference(t *testing.T) {
	f := newFixture(t, WithPolicy(emptyPolicy{}))

	_, err := f.resolver.Resolve(context.Background(), testutil.ExampleChain())
	require.Error(t, err)
	assert.True(t, model.IsDanglingReference(err))
	assert.Zero(t, f.sequence(t))
}

func TestResolveMissingFunctionKeepsHop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.WriteFunctionType(ctx, model.FunctionType{Name: "dpi", Candidates: []string{"ghost"}}))

	chain := model.Chain{Name: "C3", Steps: []model.ChainStep{{Type: "firewall"}, {Type: "dpi"}}}
	path, err := f.resolver.Resolve(ctx, chain)

	require.Error(t, err)
	assert.True(t, model.IsBindError(err))
	assert.True(t, model.IsUnknownForwarder(err))

	assert.Equal(t, []model.Hop{{Function: "fw1", Forwarder: "F1"}, {Function: "ghost"}}, path.Hops)
	assert.Equal(t, 3, path.ServiceIndex)
	_, found, err := f.resolver.Lookup(ctx, "C3-Path")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, f.forwarder(t, "F1").HasEntry("fw1"), "other hops are still bound")
}

func TestResolveCommitFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailCommitPath(errors.New("disk full"))

	_, err := f.resolver.Resolve(context.Background(), testutil.ExampleChain())
	require.Error(t, err)
	assert.True(t, model.IsStoreCommit(err))

	assert.Zero(t, f.sequence(t), "failed commit must not consume a path id")
	assert.Empty(t, f.forwarder(t, "F1").Dictionary, "no binding after a failed commit")
	assert.Empty(t, f.forwarder(t, "F2").Dictionary)
}

func TestResolveBindFailureKeepsPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.FailWriteForwarder("F2", errors.New("locked"))

	path, err := f.resolver.Resolve(ctx, testutil.ExampleChain())
	require.Error(t, err)

	var bindErr *model.BindError
	require.ErrorAs(t, err, &bindErr)
	require.Len(t, bindErr.Failures, 1)
	assert.Equal(t, "F2", bindErr.Failures[0].Forwarder)
	assert.Equal(t, "C1-Path", bindErr.Failures[0].Path)
	assert.True(t, model.IsStoreCommit(err))

	stored, found, err := f.resolver.Lookup(ctx, "C1-Path")
	require.NoError(t, err)
	require.True(t, found, "path stays committed")
	assert.Equal(t, path.PathID, stored.PathID)

	assert.True(t, f.forwarder(t, "F1").HasEntry("fw1"))
	assert.False(t, f.forwarder(t, "F2").HasEntry("nat1"))
}

func TestUnresolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, testutil.ExampleChain())
	require.NoError(t, err)

	require.NoError(t, f.resolver.Unresolve(ctx, "C1"))

	_, found, err := f.resolver.Lookup(ctx, "C1-Path")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, f.forwarder(t, "F1").Dictionary)
	assert.Empty(t, f.forwarder(t, "F2").Dictionary)
}

func TestUnresolveAbsentPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.resolver.Unresolve(ctx, "never"))

	_, found, err := f.resolver.Lookup(ctx, "never-Path")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUnresolveKeepsSharedBindings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, testutil.ExampleChain())
	require.NoError(t, err)
	_, err = f.resolver.Resolve(ctx, model.Chain{Name: "C2", Steps: []model.ChainStep{{Type: "firewall"}}})
	require.NoError(t, err)

	require.NoError(t, f.resolver.Unresolve(ctx, "C1"))

	assert.True(t, f.forwarder(t, "F1").HasEntry("fw1"), "C2 still routes fw1 through F1")
	assert.False(t, f.forwarder(t, "F2").HasEntry("nat1"))
}

func TestUnresolveReleaseFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, testutil.ExampleChain())
	require.NoError(t, err)

	f.store.FailWriteForwarder("F1", errors.New("locked"))
	err = f.resolver.Unresolve(ctx, "C1")
	require.Error(t, err)
	assert.True(t, model.IsBindError(err))

	_, found, err := f.resolver.Lookup(ctx, "C1-Path")
	require.NoError(t, err)
	assert.False(t, found, "path stays deleted")
	assert.False(t, f.forwarder(t, "F2").HasEntry("nat1"))
}

// addSecondFirewall puts fw2 on F1 next to fw1 as a firewall candidate.
func (f *fixture) addSecondFirewall(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.WriteFunction(ctx, model.Function{Name: "fw2", Type: "firewall", Forwarder: "F1"}))
	require.NoError(t, f.store.WriteFunctionType(ctx, model.FunctionType{Name: "firewall", Candidates: []string{"fw1", "fw2"}}))
}

func TestResolveAgainReleasesReplacedHops(t *testing.T) {
	f := newFixture(t, WithPolicy(NewRoundRobin()))
	f.addSecondFirewall(t)
	ctx := context.Background()
	chain := model.Chain{Name: "C1", Steps: []model.ChainStep{{Type: "firewall"}}}

	first, err := f.resolver.Resolve(ctx, chain)
	require.NoError(t, err)
	assert.Equal(t, []model.Hop{{Function: "fw1", Forwarder: "F1"}}, first.Hops)

	second, err := f.resolver.Resolve(ctx, chain)
	require.NoError(t, err)
	assert.Equal(t, []model.Hop{{Function: "fw2", Forwarder: "F1"}}, second.Hops)

	fwd := f.forwarder(t, "F1")
	assert.Equal(t, []string{"fw2"}, fwd.EntryNames(), "fw1 is no longer routed by any path")
	assert.Equal(t, second.PathID, fwd.PathID)

	require.NoError(t, f.resolver.Unresolve(ctx, "C1"))
	assert.Empty(t, f.forwarder(t, "F1").Dictionary)
}

func TestResolveAgainKeepsHopsRoutedElsewhere(t *testing.T) {
	f := newFixture(t, WithPolicy(NewRoundRobin()))
	f.addSecondFirewall(t)
	ctx := context.Background()

	// C2 takes fw1 first, then C1 takes fw2 and fw1 on its two resolutions.
	_, err := f.resolver.Resolve(ctx, model.Chain{Name: "C2", Steps: []model.ChainStep{{Type: "firewall"}}})
	require.NoError(t, err)
	chain := model.Chain{Name: "C1", Steps: []model.ChainStep{{Type: "firewall"}}}
	_, err = f.resolver.Resolve(ctx, chain)
	require.NoError(t, err)
	_, err = f.resolver.Resolve(ctx, chain)
	require.NoError(t, err)

	assert.Equal(t, []string{"fw1"}, f.forwarder(t, "F1").EntryNames())
}

func TestResolveAgainAfterCatalogChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, testutil.ExampleChain())
	require.NoError(t, err)

	f.addSecondFirewall(t)
	require.NoError(t, f.store.WriteFunctionType(ctx, model.FunctionType{Name: "firewall", Candidates: []string{"fw2"}}))

	path, err := f.resolver.Resolve(ctx, testutil.ExampleChain())
	require.NoError(t, err)
	assert.Equal(t, "fw2", path.Hops[0].Function)
	assert.Equal(t, []string{"fw2"}, f.forwarder(t, "F1").EntryNames())
	assert.Equal(t, []string{"nat1"}, f.forwarder(t, "F2").EntryNames())
}

func TestResolveAgainReleaseFailure(t *testing.T) {
	f := newFixture(t, WithPolicy(NewRoundRobin()))
	f.addSecondFirewall(t)
	ctx := context.Background()
	chain := model.Chain{Name: "C1", Steps: []model.ChainStep{{Type: "firewall"}}}

	_, err := f.resolver.Resolve(ctx, chain)
	require.NoError(t, err)

	// The bind of fw2 goes through; the fault applies from the next write,
	// which is the release of fw1.
	f.store.BeforeWriteForwarder(func(name string) {
		f.store.FailWriteForwarder(name, errors.New("locked"))
	})
	path, err := f.resolver.Resolve(ctx, chain)
	require.Error(t, err)
	assert.True(t, model.IsBindError(err))
	assert.Equal(t, "C1-Path", path.Name, "the new path stays committed")
	fwd := f.forwarder(t, "F1")
	assert.True(t, fwd.HasEntry("fw2"))
	assert.True(t, fwd.HasEntry("fw1"), "failed release leaves the entry")
}

// The release check and the unbind are separate store operations. A Resolve
// that binds the same hop in between loses its entry.
func TestUnresolveReleaseRacesConcurrentBind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, model.Chain{Name: "C1", Steps: []model.ChainStep{{Type: "firewall"}}})
	require.NoError(t, err)

	var once sync.Once
	f.store.BeforeWriteForwarder(func(string) {
		once.Do(func() {
			_, err := f.resolver.Resolve(ctx, model.Chain{Name: "C2", Steps: []model.ChainStep{{Type: "firewall"}}})
			require.NoError(t, err)
		})
	})
	require.NoError(t, f.resolver.Unresolve(ctx, "C1"))

	_, found, err := f.resolver.Lookup(ctx, "C2-Path")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, f.forwarder(t, "F1").HasEntry("fw1"), "accepted race: C2's binding was released")
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, model.Chain{Name: "B", Steps: []model.ChainStep{{Type: "nat"}}})
	require.NoError(t, err)
	_, err = f.resolver.Resolve(ctx, model.Chain{Name: "A", Steps: []model.ChainStep{{Type: "firewall"}}})
	require.NoError(t, err)

	paths, err := f.resolver.List(ctx)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "A-Path", paths[0].Name)
	assert.Equal(t, "B-Path", paths[1].Name)
}
