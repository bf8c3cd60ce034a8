package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/roach88/sfcpath/internal/model"
)

// Policy names accepted by PolicyByName.
const (
	PolicyFirstMatch = "first-match"
	PolicyRoundRobin = "round-robin"
	PolicyExpression = "expression"
)

// Policy chooses one candidate function name for a chain step.
// Returning "" with a nil error means no candidate was acceptable.
type Policy interface {
	Select(ctx context.Context, ft model.FunctionType, step model.ChainStep) (string, error)
}

// FunctionReader reads functions by name.
type FunctionReader interface {
	ReadFunction(ctx context.Context, name string) (model.Function, bool, error)
}

// PolicyByName builds the named policy. expr is only used by the expression
// policy; functions is the catalog it evaluates candidates against.
func PolicyByName(name, expr string, functions FunctionReader) (Policy, error) {
	switch name {
	case "", PolicyFirstMatch:
		return FirstMatch{}, nil
	case PolicyRoundRobin:
		return NewRoundRobin(), nil
	case PolicyExpression:
		return NewExpression(expr, functions)
	default:
		return nil, fmt.Errorf("unknown selection policy %q", name)
	}
}

// FirstMatch always selects the first candidate.
type FirstMatch struct{}

var _ Policy = FirstMatch{}

// Select returns the first candidate.
func (FirstMatch) Select(_ context.Context, ft model.FunctionType, _ model.ChainStep) (string, error) {
	if len(ft.Candidates) == 0 {
		return "", nil
	}
	return ft.Candidates[0], nil
}

// RoundRobin rotates through each type's candidates, one step per selection.
//
// Thread-safety: safe for concurrent use.
type RoundRobin struct {
	mu     sync.Mutex
	cursor map[string]int
}

var _ Policy = (*RoundRobin)(nil)

// NewRoundRobin creates a RoundRobin starting at each type's first candidate.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{cursor: make(map[string]int)}
}

// Select returns the next candidate for ft.
func (p *RoundRobin) Select(_ context.Context, ft model.FunctionType, _ model.ChainStep) (string, error) {
	if len(ft.Candidates) == 0 {
		return "", nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.cursor[ft.Name] % len(ft.Candidates)
	p.cursor[ft.Name] = i + 1
	return ft.Candidates[i], nil
}

// Expression selects the first candidate whose function satisfies a CEL
// predicate. The predicate sees two string maps:
//
//	function: name, type, forwarder, locator
//	step:     name, type
//
// Candidates missing from the catalog are skipped.
type Expression struct {
	source    string
	program   cel.Program
	functions FunctionReader
}

var _ Policy = (*Expression)(nil)

// NewExpression compiles expr. It must evaluate to a bool.
func NewExpression(expr string, functions FunctionReader) (*Expression, error) {
	if expr == "" {
		return nil, fmt.Errorf("expression policy: empty expression")
	}
	if functions == nil {
		return nil, fmt.Errorf("expression policy: no function reader")
	}

	env, err := cel.NewEnv(
		cel.Variable("function", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("step", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("expression policy: environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("expression policy: compile %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression policy: %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("expression policy: program: %w", err)
	}

	return &Expression{source: expr, program: program, functions: functions}, nil
}

// Select evaluates the predicate against each candidate in order.
func (p *Expression) Select(ctx context.Context, ft model.FunctionType, step model.ChainStep) (string, error) {
	stepVars := map[string]string{"name": step.Name, "type": step.Type}

	for _, name := range ft.Candidates {
		fn, found, err := p.functions.ReadFunction(ctx, name)
		if err != nil {
			return "", fmt.Errorf("read candidate %q: %w", name, err)
		}
		if !found {
			continue
		}

		out, _, err := p.program.Eval(map[string]any{
			"function": map[string]string{
				"name":      fn.Name,
				"type":      fn.Type,
				"forwarder": fn.Forwarder,
				"locator":   fn.Locator,
			},
			"step": stepVars,
		})
		if err != nil {
			return "", fmt.Errorf("evaluate %q for %q: %w", p.source, name, err)
		}
		if ok, _ := out.Value().(bool); ok {
			return name, nil
		}
	}
	return "", nil
}
