// Package resolver turns chains of function types into paths of concrete
// functions, persists them, and binds every hop onto its forwarder.
//
// A path is a snapshot: it is resolved once against the catalog and is not
// revisited when the catalog changes. Binding happens after the path is
// committed, so a binding failure leaves a committed, partially bound path
// and is reported as a *model.BindError.
package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/sfcpath/internal/logging"
	"github.com/roach88/sfcpath/internal/metrics"
	"github.com/roach88/sfcpath/internal/model"
)

// Store is the subset of the record store the resolver needs.
type Store interface {
	FunctionReader
	ReadFunctionType(ctx context.Context, name string) (model.FunctionType, bool, error)
	ReadPath(ctx context.Context, name string) (model.Path, bool, error)
	ListPaths(ctx context.Context) ([]model.Path, error)
	CommitPath(ctx context.Context, p model.Path) (model.Path, error)
	DeletePath(ctx context.Context, name string) (bool, error)
}

// Binder records hops on forwarders.
type Binder interface {
	Bind(ctx context.Context, forwarder, function string, pathID int64) error
	Unbind(ctx context.Context, forwarder, function string) error
}

// Resolver resolves chains into paths.
type Resolver struct {
	store  Store
	binder Binder
	policy Policy
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPolicy replaces the default first-match selection policy.
func WithPolicy(p Policy) Option {
	return func(r *Resolver) {
		if p != nil {
			r.policy = p
		}
	}
}

// New creates a Resolver.
func New(s Store, b Binder, opts ...Option) *Resolver {
	r := &Resolver{store: s, binder: b, policy: FirstMatch{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve builds the path for chain, commits it under a fresh path id and
// binds each hop onto its forwarder.
//
// If any step cannot be resolved, nothing is written. If the commit fails,
// no binding is attempted. If some bindings fail, the committed path is
// returned together with a *model.BindError.
//
// When the commit replaces an earlier path for the same chain, hops of the
// earlier path that the new one no longer routes are released the way
// Unresolve releases them. Release failures join the *model.BindError.
func (r *Resolver) Resolve(ctx context.Context, chain model.Chain) (model.Path, error) {
	start := time.Now()
	log := logging.FromContext(ctx).With("chain", chain.Name)

	path, prior, err := r.resolve(ctx, chain)
	if err != nil {
		metrics.ObserveResolve(metrics.OutcomeError, time.Since(start))
		log.Error("resolve failed", "error", err)
		return model.Path{}, err
	}

	log.Info("path committed",
		"path", path.Name,
		"path_id", path.PathID,
		"service_index", path.ServiceIndex,
	)

	bindErr := r.bindHops(ctx, path)
	if prior != nil {
		log.Debug("releasing hops of replaced path", "path", path.Name, "prior_path_id", prior.PathID)
		bindErr = joinBindErrors(path.Name, bindErr, r.releaseHops(ctx, *prior))
	}
	if bindErr != nil {
		metrics.ObserveResolve(metrics.OutcomePartial, time.Since(start))
		log.Warn("path committed with binding failures", "path", path.Name, "error", bindErr)
		return path, bindErr
	}

	metrics.ObserveResolve(metrics.OutcomeOK, time.Since(start))
	return path, nil
}

// resolve commits the path for chain. prior is the path it replaced, or nil.
func (r *Resolver) resolve(ctx context.Context, chain model.Chain) (path model.Path, prior *model.Path, err error) {
	if len(chain.Steps) == 0 {
		return model.Path{}, nil, model.NewEmptyChain(chain.Name)
	}

	hops := make([]model.Hop, 0, len(chain.Steps))
	for _, step := range chain.Steps {
		hop, err := r.resolveStep(ctx, chain.Name, step)
		if err != nil {
			return model.Path{}, nil, err
		}
		hops = append(hops, hop)
	}

	old, found, err := r.store.ReadPath(ctx, chain.PathName())
	if err != nil {
		return model.Path{}, nil, pathStoreError("read path", chain.Name, err)
	}
	if found {
		prior = &old
	}

	path, err = r.store.CommitPath(ctx, model.NewPath(chain.Name, hops))
	if err != nil {
		return model.Path{}, nil, pathStoreError("commit path", chain.Name, err)
	}
	return path, prior, nil
}

// resolveStep picks the function instance for one step. A selected function
// missing from the catalog still yields a hop, with no forwarder.
func (r *Resolver) resolveStep(ctx context.Context, chain string, step model.ChainStep) (model.Hop, error) {
	ft, found, err := r.store.ReadFunctionType(ctx, step.Type)
	if err != nil {
		e := model.NewStoreError("read function type", err)
		e.Chain = chain
		return model.Hop{}, e
	}
	if !found || len(ft.Candidates) == 0 {
		return model.Hop{}, model.NewMissingFunctionType(chain, step.Type)
	}

	name, err := r.policy.Select(ctx, ft, step)
	if err != nil || name == "" {
		return model.Hop{}, model.NewDanglingReference(chain, step.Type, err)
	}

	fn, found, err := r.store.ReadFunction(ctx, name)
	if err != nil {
		e := model.NewStoreError("read function", err)
		e.Chain = chain
		e.Function = name
		return model.Hop{}, e
	}
	if !found {
		logging.FromContext(ctx).Warn("selected function missing from catalog",
			"chain", chain,
			"type", step.Type,
			"function", name,
		)
		return model.Hop{Function: name}, nil
	}
	return model.Hop{Function: fn.Name, Forwarder: fn.Forwarder}, nil
}

// bindHops binds every hop in order. Each failure is recorded and binding
// continues with the next hop.
func (r *Resolver) bindHops(ctx context.Context, path model.Path) error {
	var failures []*model.Error
	for _, hop := range path.Hops {
		if hop.Forwarder == "" {
			e := model.NewUnknownForwarder("", hop.Function)
			e.Path = path.Name
			failures = append(failures, e)
			continue
		}
		if err := r.binder.Bind(ctx, hop.Forwarder, hop.Function, path.PathID); err != nil {
			failures = append(failures, asModelError(err, path.Name))
		}
	}
	if len(failures) > 0 {
		return &model.BindError{Path: path.Name, Failures: failures}
	}
	return nil
}

// Unresolve deletes the path realizing chainName and releases its bindings.
// Deleting a path that does not exist succeeds.
//
// A binding is released only if no remaining path routes the same function
// through the same forwarder. Release failures never restore the path; they
// are returned as a *model.BindError.
func (r *Resolver) Unresolve(ctx context.Context, chainName string) error {
	pathName := model.PathName(chainName)
	log := logging.FromContext(ctx).With("chain", chainName, "path", pathName)

	path, found, err := r.store.ReadPath(ctx, pathName)
	if err != nil {
		metrics.ObserveUnresolve(metrics.OutcomeError)
		return pathStoreError("read path", chainName, err)
	}
	if !found {
		metrics.ObserveUnresolve(metrics.OutcomeNoop)
		log.Debug("path absent, nothing to delete")
		return nil
	}

	deleted, err := r.store.DeletePath(ctx, pathName)
	if err != nil {
		metrics.ObserveUnresolve(metrics.OutcomeError)
		log.Error("delete path failed", "error", err)
		return pathStoreError("delete path", chainName, err)
	}
	if !deleted {
		metrics.ObserveUnresolve(metrics.OutcomeNoop)
		return nil
	}
	log.Info("path deleted", "path_id", path.PathID)

	if err := r.releaseHops(ctx, path); err != nil {
		metrics.ObserveUnresolve(metrics.OutcomePartial)
		log.Warn("path deleted with release failures", "error", err)
		return err
	}
	metrics.ObserveUnresolve(metrics.OutcomeOK)
	return nil
}

// releaseHops unbinds the hops of path that no stored path routes. The
// check and the unbinds are not atomic: a concurrent Resolve that binds the
// same hop in between can lose its entry.
func (r *Resolver) releaseHops(ctx context.Context, path model.Path) error {
	remaining, err := r.store.ListPaths(ctx)
	if err != nil {
		e := pathStoreError("list paths", path.Chain, err)
		return &model.BindError{Path: path.Name, Failures: []*model.Error{e}}
	}

	var failures []*model.Error
	released := make(map[model.Hop]bool)
	for _, hop := range path.Hops {
		if hop.Forwarder == "" || released[hop] || routedElsewhere(remaining, hop) {
			continue
		}
		released[hop] = true
		if err := r.binder.Unbind(ctx, hop.Forwarder, hop.Function); err != nil {
			failures = append(failures, asModelError(err, path.Name))
		}
	}
	if len(failures) > 0 {
		return &model.BindError{Path: path.Name, Failures: failures}
	}
	return nil
}

// joinBindErrors merges the failures of every *model.BindError in errs
// into one reported against pathName. It returns nil when there are none.
func joinBindErrors(pathName string, errs ...error) error {
	var failures []*model.Error
	for _, err := range errs {
		var be *model.BindError
		if errors.As(err, &be) {
			failures = append(failures, be.Failures...)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &model.BindError{Path: pathName, Failures: failures}
}

func routedElsewhere(paths []model.Path, hop model.Hop) bool {
	for _, p := range paths {
		if p.Routes(hop.Function, hop.Forwarder) {
			return true
		}
	}
	return false
}

// Lookup returns the named path. Absence is reported by the bool.
func (r *Resolver) Lookup(ctx context.Context, pathName string) (model.Path, bool, error) {
	p, found, err := r.store.ReadPath(ctx, pathName)
	if err != nil {
		e := model.NewStoreError("read path", err)
		e.Path = pathName
		return model.Path{}, false, e
	}
	return p, found, nil
}

// List returns every path ordered by name.
func (r *Resolver) List(ctx context.Context) ([]model.Path, error) {
	paths, err := r.store.ListPaths(ctx)
	if err != nil {
		return nil, model.NewStoreError("list paths", err)
	}
	return paths, nil
}

func pathStoreError(message, chain string, err error) *model.Error {
	e := model.NewStoreError(message, err)
	e.Chain = chain
	e.Path = model.PathName(chain)
	return e
}

// asModelError returns err as a *model.Error tagged with path, wrapping
// foreign errors as store failures.
func asModelError(err error, path string) *model.Error {
	var e *model.Error
	if errors.As(err, &e) {
		tagged := *e
		tagged.Path = path
		return &tagged
	}
	e = model.NewStoreError("bind", err)
	e.Path = path
	return e
}
