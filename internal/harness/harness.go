package harness

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/sfcpath/internal/catalog"
	"github.com/roach88/sfcpath/internal/logging"
	"github.com/roach88/sfcpath/internal/model"
	"github.com/roach88/sfcpath/internal/registry"
	"github.com/roach88/sfcpath/internal/resolver"
	"github.com/roach88/sfcpath/internal/store"
	"github.com/roach88/sfcpath/internal/testutil"
)

// Harness is the scenario execution engine.
type Harness struct {
	store    *store.Store
	registry *registry.Registry
	resolver *resolver.Resolver
	chains   map[string]model.Chain
	ids      *testutil.SequentialIDs
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Seed the scenario catalog through the registry
// 3. Execute flow steps with expect validation
// 4. Read back every path and forwarder
// 5. Evaluate assertions
//
// Run returns an error only when the scenario cannot be executed at all;
// failed expectations and assertions are reported in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	policyName := scenario.Policy
	if policyName == "" {
		policyName = resolver.PolicyFirstMatch
	}
	policy, err := resolver.PolicyByName(policyName, scenario.PolicyExpression, st)
	if err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	reg := registry.New(st)
	h := &Harness{
		store:    st,
		registry: reg,
		resolver: resolver.New(st, reg, resolver.WithPolicy(policy)),
		chains:   make(map[string]model.Chain),
		ids:      testutil.NewSequentialIDs("step"),
	}

	ctx = logging.WithLogger(ctx, logging.Discard())

	if err := h.seed(ctx, scenario.Catalog); err != nil {
		return nil, fmt.Errorf("failed to seed catalog: %w", err)
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	if result.Paths, err = h.resolver.List(ctx); err != nil {
		return nil, fmt.Errorf("failed to list paths: %w", err)
	}
	if result.Forwarders, err = h.registry.List(ctx); err != nil {
		return nil, fmt.Errorf("failed to list forwarders: %w", err)
	}
	if result.Paths == nil {
		result.Paths = []model.Path{}
	}
	if result.Forwarders == nil {
		result.Forwarders = []model.Forwarder{}
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

func (h *Harness) seed(ctx context.Context, c catalog.Catalog) error {
	if _, err := c.Apply(ctx, h.store, h.registry); err != nil {
		return err
	}
	for _, ch := range c.Chains {
		h.chains[ch.Name] = ch
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		ev := TraceEvent{ID: h.ids.Generate(), Op: step.op()}

		var stepErr error
		switch ev.Op {
		case OpResolve:
			ev.Chain = step.Resolve
			chain, ok := h.chains[step.Resolve]
			if !ok {
				return fmt.Errorf("flow step %d: chain %q is not in the catalog", i, step.Resolve)
			}
			var path model.Path
			path, stepErr = h.resolver.Resolve(ctx, chain)
			ev.PathID = path.PathID
		case OpUnresolve:
			ev.Chain = step.Unresolve
			stepErr = h.resolver.Unresolve(ctx, step.Unresolve)
		case OpSeed:
			if err := h.seed(ctx, *step.Seed); err != nil {
				return fmt.Errorf("flow step %d: %w", i, err)
			}
		default:
			return fmt.Errorf("flow step %d: nothing to do", i)
		}

		ev.Outcome = outcomeOf(stepErr)
		ev.Codes = errorCodes(stepErr)
		result.AddTrace(ev)

		if step.Expect != nil {
			if step.Expect.Outcome != ev.Outcome {
				result.AddError(fmt.Sprintf("flow[%d] %s %s: expected outcome %s, got %s (%v)",
					i, ev.Op, ev.Chain, step.Expect.Outcome, ev.Outcome, stepErr))
			}
			for _, code := range step.Expect.Codes {
				if !model.HasCode(stepErr, model.ErrorCode(code)) {
					result.AddError(fmt.Sprintf("flow[%d] %s %s: expected error code %s, got %v",
						i, ev.Op, ev.Chain, code, ev.Codes))
				}
			}
		}
	}
	return nil
}

// outcomeOf classifies a step error.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case model.IsBindError(err):
		return OutcomePartial
	default:
		return OutcomeError
	}
}

// errorCodes returns every distinct code in err's tree, sorted.
func errorCodes(err error) []string {
	var codes []string
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if e, ok := err.(*model.Error); ok {
			codes = append(codes, string(e.Code))
		}
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)

	slices.Sort(codes)
	return slices.Compact(codes)
}
