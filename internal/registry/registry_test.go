package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sfcpath/internal/model"
	"github.com/roach88/sfcpath/internal/store"
	"github.com/roach88/sfcpath/internal/testutil"
)

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *testutil.FaultStore) {
	t.Helper()
	s := testutil.OpenStore(t)
	testutil.Seed(t, s, testutil.ExampleCatalog())
	fs := testutil.NewFaultStore(s)
	return New(fs, opts...), fs
}

func TestBindInsertsEntryAndStampsPathID(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Bind(ctx, "F1", "fw1", 7))

	f, found, err := r.Lookup(ctx, "F1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(7), f.PathID)
	assert.Equal(t, model.DictionaryEntry{Name: "fw1", Type: "firewall", Forwarder: "F1", Locator: "10.0.1.1"}, f.Dictionary["fw1"])
	assert.Equal(t, "192.0.2.1", f.Locator, "unrelated fields are kept")
}

func TestBindKeepsExistingEntries(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Bind(ctx, "F1", "fw1", 1))
	require.NoError(t, r.Bind(ctx, "F1", "nat1", 2))

	f, _, err := r.Lookup(ctx, "F1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fw1", "nat1"}, f.EntryNames())
	assert.Equal(t, int64(2), f.PathID)
	assert.Equal(t, "F1", f.Dictionary["nat1"].Forwarder, "entry is owned by the forwarder it sits in")
}

func TestBindUnknownForwarder(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	err := r.Bind(ctx, "F9", "fw1", 1)
	require.Error(t, err)
	assert.True(t, model.IsUnknownForwarder(err))

	_, found, err := r.Lookup(ctx, "F9")
	require.NoError(t, err)
	assert.False(t, found, "bind must not create forwarders")
}

func TestBindMissingFunctionStillBinds(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Bind(ctx, "F1", "ghost", 3))

	f, _, err := r.Lookup(ctx, "F1")
	require.NoError(t, err)
	assert.Equal(t, model.DictionaryEntry{Name: "ghost", Forwarder: "F1"}, f.Dictionary["ghost"])
}

func TestBindRetriesOnConflict(t *testing.T) {
	r, fs := newTestRegistry(t)
	ctx := context.Background()

	fs.ConflictWriteForwarder("F1", 2)
	require.NoError(t, r.Bind(ctx, "F1", "fw1", 1))

	f, _, err := r.Lookup(ctx, "F1")
	require.NoError(t, err)
	assert.True(t, f.HasEntry("fw1"))
}

func TestBindGivesUpAfterRetries(t *testing.T) {
	r, fs := newTestRegistry(t, WithRetries(1))
	ctx := context.Background()

	fs.ConflictWriteForwarder("F1", 3)
	err := r.Bind(ctx, "F1", "fw1", 1)
	require.Error(t, err)
	assert.True(t, model.IsStoreCommit(err))
	assert.ErrorIs(t, err, store.ErrConflict)

	f, _, err := r.Lookup(ctx, "F1")
	require.NoError(t, err)
	assert.False(t, f.HasEntry("fw1"))
	assert.Zero(t, f.PathID)
}

func TestBindWriteFailureLeavesRecordIntact(t *testing.T) {
	r, fs := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Bind(ctx, "F1", "fw1", 1))
	before, _, err := r.Lookup(ctx, "F1")
	require.NoError(t, err)

	fs.FailWriteForwarder("F1", errors.New("disk full"))
	err = r.Bind(ctx, "F1", "nat1", 2)
	require.Error(t, err)
	assert.True(t, model.IsStoreCommit(err))

	after, _, err := r.Lookup(ctx, "F1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBindInterleavedWritersConverge(t *testing.T) {
	r, fs := newTestRegistry(t)
	ctx := context.Background()

	// The first write of F1 is preceded by a competing bind, so the first
	// writer's etag is stale and it must re-read and retry.
	var interleaved atomic.Bool
	fs.BeforeWriteForwarder(func(name string) {
		if interleaved.CompareAndSwap(false, true) {
			require.NoError(t, r.Bind(ctx, "F1", "nat1", 2))
		}
	})

	require.NoError(t, r.Bind(ctx, "F1", "fw1", 1))

	f, _, err := r.Lookup(ctx, "F1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fw1", "nat1"}, f.EntryNames())
	assert.Equal(t, int64(1), f.PathID, "last successful writer wins")
}

func TestBindConcurrent(t *testing.T) {
	r, _ := newTestRegistry(t, WithRetries(50))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, fn := range []string{"fw1", "nat1"} {
		wg.Add(1)
		go func(i int, fn string) {
			defer wg.Done()
			errs[i] = r.Bind(ctx, "F1", fn, int64(i+1))
		}(i, fn)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	f, _, err := r.Lookup(ctx, "F1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fw1", "nat1"}, f.EntryNames())
	assert.Contains(t, []int64{1, 2}, f.PathID)
}

func TestUnbind(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Bind(ctx, "F1", "fw1", 4))
	require.NoError(t, r.Unbind(ctx, "F1", "fw1"))

	f, _, err := r.Lookup(ctx, "F1")
	require.NoError(t, err)
	assert.False(t, f.HasEntry("fw1"))
	assert.Equal(t, int64(4), f.PathID, "unbind leaves the path id stamp")
}

func TestUnbindNoop(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	assert.NoError(t, r.Unbind(ctx, "F9", "fw1"), "missing forwarder")
	assert.NoError(t, r.Unbind(ctx, "F1", "fw1"), "missing entry")
}

func TestUpsert(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, model.Forwarder{Name: "F3", Locator: "192.0.2.3"}))
	f, found, err := r.Lookup(ctx, "F3")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "192.0.2.3", f.Locator)

	require.NoError(t, r.Bind(ctx, "F1", "fw1", 9))
	require.NoError(t, r.Upsert(ctx, model.Forwarder{Name: "F1", Locator: "198.51.100.1"}))

	f, _, err = r.Lookup(ctx, "F1")
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.1", f.Locator)
	assert.True(t, f.HasEntry("fw1"), "upsert keeps the dictionary")
	assert.Equal(t, int64(9), f.PathID)
}

func TestList(t *testing.T) {
	r, _ := newTestRegistry(t)

	fwds, err := r.List(context.Background())
	require.NoError(t, err)
	require.Len(t, fwds, 2)
	assert.Equal(t, "F1", fwds[0].Name)
	assert.Equal(t, "F2", fwds[1].Name)
}
