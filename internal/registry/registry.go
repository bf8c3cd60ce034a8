// Package registry maintains forwarder dictionaries: which functions are
// bound onto which forwarder, and the path id most recently bound there.
//
// Every change is a read-modify-write guarded by the record etag. A write
// that loses the race re-reads and retries, so concurrent binds on one
// forwarder converge instead of overwriting each other.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/sfcpath/internal/logging"
	"github.com/roach88/sfcpath/internal/metrics"
	"github.com/roach88/sfcpath/internal/model"
	"github.com/roach88/sfcpath/internal/store"
)

// DefaultRetries is the number of extra attempts after an etag conflict.
const DefaultRetries = 5

// Store is the subset of the record store the registry needs.
type Store interface {
	ReadForwarder(ctx context.Context, name string) (model.Forwarder, bool, error)
	ReadFunction(ctx context.Context, name string) (model.Function, bool, error)
	WriteForwarderIf(ctx context.Context, f model.Forwarder, etag string) (string, error)
	ListForwarders(ctx context.Context) ([]model.Forwarder, error)
}

// Registry binds functions onto forwarders.
type Registry struct {
	store   Store
	retries int
}

// Option configures a Registry.
type Option func(*Registry)

// WithRetries sets how many times a conflicting write is retried.
// Negative values are treated as zero.
func WithRetries(n int) Option {
	return func(r *Registry) {
		if n < 0 {
			n = 0
		}
		r.retries = n
	}
}

// New creates a Registry over s.
func New(s Store, opts ...Option) *Registry {
	r := &Registry{store: s, retries: DefaultRetries}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bind records that function is reachable through forwarder and stamps the
// forwarder with pathID. The existing dictionary is kept; only the entry for
// function is inserted or replaced.
//
// Returns an UNKNOWN_FORWARDER error if the forwarder does not exist, and a
// STORE_COMMIT error if the write fails. On failure the stored record is
// unchanged.
func (r *Registry) Bind(ctx context.Context, forwarder, function string, pathID int64) error {
	log := logging.FromContext(ctx).With("forwarder", forwarder, "function", function, "path_id", pathID)

	entry := model.DictionaryEntry{Name: function, Forwarder: forwarder}
	fn, found, err := r.store.ReadFunction(ctx, function)
	if err != nil {
		metrics.ObserveBind("bind", metrics.OutcomeError)
		return storeError("read function", forwarder, function, err)
	}
	if found {
		entry = model.EntryFor(fn)
	} else {
		log.Warn("binding function missing from catalog")
	}

	err = r.update(ctx, forwarder, function, func(cur model.Forwarder, exists bool) (model.Forwarder, bool, error) {
		if !exists {
			return cur, false, model.NewUnknownForwarder(forwarder, function)
		}
		changed := cur.PutEntry(entry)
		if cur.PathID != pathID {
			cur.PathID = pathID
			changed = true
		}
		return cur, changed, nil
	})
	if err != nil {
		metrics.ObserveBind("bind", metrics.OutcomeError)
		log.Error("bind failed", "error", err)
		return err
	}

	metrics.ObserveBind("bind", metrics.OutcomeOK)
	log.Debug("function bound")
	return nil
}

// Unbind removes the dictionary entry for function from forwarder.
// A missing forwarder or entry is not an error. The forwarder's path id is
// left as it is.
func (r *Registry) Unbind(ctx context.Context, forwarder, function string) error {
	log := logging.FromContext(ctx).With("forwarder", forwarder, "function", function)

	removed := false
	err := r.update(ctx, forwarder, function, func(cur model.Forwarder, exists bool) (model.Forwarder, bool, error) {
		if !exists {
			return cur, false, nil
		}
		removed = cur.RemoveEntry(function)
		return cur, removed, nil
	})
	if err != nil {
		metrics.ObserveBind("unbind", metrics.OutcomeError)
		log.Error("unbind failed", "error", err)
		return err
	}

	if !removed {
		metrics.ObserveBind("unbind", metrics.OutcomeNoop)
		return nil
	}
	metrics.ObserveBind("unbind", metrics.OutcomeOK)
	log.Debug("function unbound")
	return nil
}

// Upsert creates f if it does not exist, or updates the locator of the
// existing forwarder. Only Name and Locator are taken from f; dictionaries
// and path ids are owned by Bind and Unbind.
func (r *Registry) Upsert(ctx context.Context, f model.Forwarder) error {
	err := r.update(ctx, f.Name, "", func(cur model.Forwarder, exists bool) (model.Forwarder, bool, error) {
		if !exists {
			return model.Forwarder{Name: f.Name, Locator: f.Locator}, true, nil
		}
		if cur.Locator == f.Locator {
			return cur, false, nil
		}
		cur.Locator = f.Locator
		return cur, true, nil
	})
	if err != nil {
		metrics.ObserveBind("upsert", metrics.OutcomeError)
		logging.FromContext(ctx).Error("upsert forwarder failed", "forwarder", f.Name, "error", err)
		return err
	}
	metrics.ObserveBind("upsert", metrics.OutcomeOK)
	return nil
}

// Lookup returns the named forwarder. Absence is reported by the bool.
func (r *Registry) Lookup(ctx context.Context, name string) (model.Forwarder, bool, error) {
	f, found, err := r.store.ReadForwarder(ctx, name)
	if err != nil {
		return model.Forwarder{}, false, storeError("read forwarder", name, "", err)
	}
	return f, found, nil
}

// List returns every forwarder ordered by name.
func (r *Registry) List(ctx context.Context) ([]model.Forwarder, error) {
	fwds, err := r.store.ListForwarders(ctx)
	if err != nil {
		return nil, storeError("list forwarders", "", "", err)
	}
	return fwds, nil
}

// mutation computes the next revision of a forwarder. exists is false when
// no record is stored under the name. Returning write=false ends the update
// without writing.
type mutation func(cur model.Forwarder, exists bool) (next model.Forwarder, write bool, err error)

// update runs mutate against the latest stored revision and writes the result
// conditionally, retrying on etag conflicts.
func (r *Registry) update(ctx context.Context, forwarder, function string, mutate mutation) error {
	log := logging.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		cur, exists, err := r.store.ReadForwarder(ctx, forwarder)
		if err != nil {
			return storeError("read forwarder", forwarder, function, err)
		}
		if !exists {
			cur = model.Forwarder{Name: forwarder}
		}

		next, write, err := mutate(cur, exists)
		if err != nil {
			return err
		}
		if !write {
			return nil
		}

		etag := ""
		if exists {
			etag = cur.ETag
		}
		if _, err := r.store.WriteForwarderIf(ctx, next, etag); err != nil {
			if !errors.Is(err, store.ErrConflict) {
				return storeError("write forwarder", forwarder, function, err)
			}
			lastErr = err
			metrics.ObserveConflict()
			log.Debug("forwarder changed concurrently, retrying",
				"forwarder", forwarder,
				"attempt", attempt+1,
			)
			if ctx.Err() != nil {
				return storeError("write forwarder", forwarder, function, ctx.Err())
			}
			continue
		}
		return nil
	}

	return storeError(fmt.Sprintf("write forwarder: gave up after %d attempts", r.retries+1), forwarder, function, lastErr)
}

func storeError(message, forwarder, function string, err error) *model.Error {
	e := model.NewStoreError(message, err)
	e.Forwarder = forwarder
	e.Function = function
	return e
}
