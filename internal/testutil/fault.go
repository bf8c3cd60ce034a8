package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/sfcpath/internal/model"
	"github.com/roach88/sfcpath/internal/store"
)

// FaultStore wraps a real store and injects failures into writes.
// Reads always pass through.
//
// Thread-safety: all methods are safe for concurrent use.
type FaultStore struct {
	*store.Store

	mu            sync.Mutex
	commitPathErr error
	forwarderErr  map[string]error
	conflicts     map[string]int
	beforeWrite   func(name string)
}

// NewFaultStore wraps s with no faults configured.
func NewFaultStore(s *store.Store) *FaultStore {
	return &FaultStore{
		Store:        s,
		forwarderErr: make(map[string]error),
		conflicts:    make(map[string]int),
	}
}

// FailCommitPath makes every CommitPath fail with err until cleared with nil.
func (f *FaultStore) FailCommitPath(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitPathErr = err
}

// FailWriteForwarder makes writes of the named forwarder fail with err until
// cleared with nil.
func (f *FaultStore) FailWriteForwarder(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.forwarderErr, name)
		return
	}
	f.forwarderErr[name] = err
}

// ConflictWriteForwarder makes the next n writes of the named forwarder
// report store.ErrConflict without writing.
func (f *FaultStore) ConflictWriteForwarder(name string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conflicts[name] = n
}

// BeforeWriteForwarder installs a hook called before every forwarder write.
// Tests use it to interleave a competing writer.
func (f *FaultStore) BeforeWriteForwarder(hook func(name string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeWrite = hook
}

// CommitPath fails if a commit fault is set, otherwise delegates.
func (f *FaultStore) CommitPath(ctx context.Context, p model.Path) (model.Path, error) {
	f.mu.Lock()
	err := f.commitPathErr
	f.mu.Unlock()
	if err != nil {
		return model.Path{}, fmt.Errorf("commit path: %w", err)
	}
	return f.Store.CommitPath(ctx, p)
}

// WriteForwarderIf applies any configured fault for fwd.Name, otherwise delegates.
func (f *FaultStore) WriteForwarderIf(ctx context.Context, fwd model.Forwarder, etag string) (string, error) {
	f.mu.Lock()
	hook := f.beforeWrite
	err := f.forwarderErr[fwd.Name]
	conflict := f.conflicts[fwd.Name] > 0
	if conflict {
		f.conflicts[fwd.Name]--
	}
	f.mu.Unlock()

	if hook != nil {
		hook(fwd.Name)
	}
	if err != nil {
		return "", fmt.Errorf("write forwarder %q: %w", fwd.Name, err)
	}
	if conflict {
		return "", fmt.Errorf("write forwarder %q: %w", fwd.Name, store.ErrConflict)
	}
	return f.Store.WriteForwarderIf(ctx, fwd, etag)
}
