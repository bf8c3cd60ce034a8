// Package dispatch runs path creations and deletions as independent units of
// work on a bounded pool of workers.
//
// Requests are queued in submission order. Each unit runs to completion or
// failure on its own; there is no retry and no ordering between units for
// the same chain. Callers that need ordering must wait for a Result before
// submitting the next request.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/sfcpath/internal/logging"
	"github.com/roach88/sfcpath/internal/metrics"
	"github.com/roach88/sfcpath/internal/model"
)

// DefaultWorkers bounds concurrent units when no option is given.
const DefaultWorkers = 4

// DefaultRetainedStates is how many finished units State still reports.
const DefaultRetainedStates = 1024

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("dispatch: closed")

// Handler executes units of work.
type Handler interface {
	Resolve(ctx context.Context, chain model.Chain) (model.Path, error)
	Unresolve(ctx context.Context, chainName string) error
}

// Dispatcher queues requests and executes them with a Handler.
type Dispatcher struct {
	handler Handler
	ids     IDGenerator
	workers int64
	queue   *requestQueue
	results chan Result

	mu       sync.Mutex
	states   map[string]State
	finished []string // finished ids, oldest first
	retain   int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the maximum number of concurrent units. Values below 1
// are treated as 1.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n < 1 {
			n = 1
		}
		d.workers = int64(n)
	}
}

// WithIDGenerator replaces the UUIDv7 request id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(d *Dispatcher) {
		d.ids = g
	}
}

// WithRetainedStates sets how many finished units keep their final state.
// Older finished units are forgotten by State. Pending and running units are
// always tracked.
func WithRetainedStates(n int) Option {
	return func(d *Dispatcher) {
		if n < 0 {
			n = 0
		}
		d.retain = n
	}
}

// WithResultBuffer sets the capacity of the Results channel.
func WithResultBuffer(n int) Option {
	return func(d *Dispatcher) {
		if n < 0 {
			n = 0
		}
		d.results = make(chan Result, n)
	}
}

// New creates a Dispatcher. Call Run to start executing.
func New(h Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handler: h,
		ids:     UUIDv7Generator{},
		workers: DefaultWorkers,
		queue:   newRequestQueue(),
		results: make(chan Result, 64),
		states:  make(map[string]State),
		retain:  DefaultRetainedStates,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit validates and queues req, returning its id.
func (d *Dispatcher) Submit(req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.ID == "" {
		req.ID = d.ids.Generate()
	}

	d.setState(req.ID, StatePending)
	if !d.queue.Enqueue(req) {
		d.mu.Lock()
		delete(d.states, req.ID)
		d.mu.Unlock()
		return "", ErrClosed
	}
	return req.ID, nil
}

// CreatePath queues resolution of chain.
func (d *Dispatcher) CreatePath(chain model.Chain) (string, error) {
	return d.Submit(Request{Op: OpCreatePath, Chain: chain})
}

// DeletePath queues deletion of the path realizing chainName.
func (d *Dispatcher) DeletePath(chainName string) (string, error) {
	return d.Submit(Request{Op: OpDeletePath, ChainName: chainName})
}

// State returns the current state of a submitted request. Finished requests
// are reported until DefaultRetainedStates (or WithRetainedStates) newer
// ones have finished.
func (d *Dispatcher) State(id string) (State, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.states[id]
	return s, ok
}

// Results delivers one Result per executed request. It is closed when Run
// returns.
func (d *Dispatcher) Results() <-chan Result {
	return d.results
}

// Close stops accepting requests. Run finishes the queued ones and returns.
func (d *Dispatcher) Close() {
	d.queue.Close()
}

// Run executes queued requests until the dispatcher is closed and drained,
// or ctx is cancelled. In-flight units always finish before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Debug("dispatcher starting", "workers", d.workers)

	g := new(errgroup.Group)
	sem := semaphore.NewWeighted(d.workers)

	runErr := d.loop(ctx, g, sem)

	_ = g.Wait()
	close(d.results)

	if n := d.queue.Len(); n > 0 {
		log.Warn("dispatcher stopped with queued requests", "queued", n)
	}
	log.Debug("dispatcher stopped")
	return runErr
}

func (d *Dispatcher) loop(ctx context.Context, g *errgroup.Group, sem *semaphore.Weighted) error {
	for {
		req, ok := d.queue.TryDequeue()
		if ok {
			if err := sem.Acquire(ctx, 1); err != nil {
				d.queue.Close()
				return err
			}
			g.Go(func() error {
				defer sem.Release(1)
				d.execute(ctx, req)
				return nil
			})
			continue
		}

		select {
		case <-ctx.Done():
			d.queue.Close()
			return ctx.Err()
		case <-d.queue.Wait():
			// The signal channel is closed with the queue, so a closed and
			// drained queue ends the loop here.
			if d.queue.Drained() {
				return nil
			}
		}
	}
}

// execute runs one unit: Pending → Running → Committed | Failed.
func (d *Dispatcher) execute(ctx context.Context, req Request) {
	log := logging.FromContext(ctx).With(
		"request_id", req.ID,
		"op", req.Op.String(),
		"chain", req.target(),
	)
	ctx = logging.WithLogger(ctx, log)

	d.setState(req.ID, StateRunning)
	metrics.UnitStarted()
	defer metrics.UnitFinished()

	res := Result{ID: req.ID, Op: req.Op, Chain: req.target()}

	switch req.Op {
	case OpCreatePath:
		path, err := d.handler.Resolve(ctx, req.Chain)
		if path.Name != "" {
			res.Path = &path
		}
		res.Err = err
	case OpDeletePath:
		res.Err = d.handler.Unresolve(ctx, req.ChainName)
	default:
		res.Err = fmt.Errorf("unknown op %d", int(req.Op))
	}

	res.State = StateCommitted
	if res.Err != nil {
		res.State = StateFailed
		log.Error("unit failed", "error", res.Err)
	} else {
		log.Info("unit committed")
	}
	d.finish(req.ID, res.State)

	// Only a full buffer can drop the result once ctx is done.
	select {
	case d.results <- res:
		return
	default:
	}
	select {
	case d.results <- res:
	case <-ctx.Done():
		log.Warn("result dropped: context cancelled")
	}
}

func (d *Dispatcher) setState(id string, s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states[id] = s
}

// finish records the final state of id and forgets the oldest finished
// units beyond the retention bound.
func (d *Dispatcher) finish(id string, s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states[id] = s
	d.finished = append(d.finished, id)
	for len(d.finished) > d.retain {
		delete(d.states, d.finished[0])
		d.finished = d.finished[1:]
	}
}
