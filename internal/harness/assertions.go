package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/sfcpath/internal/model"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%s] %s %s -> %s", event.ID, event.Op, event.Chain, event.Outcome)
			if len(event.Codes) > 0 {
				fmt.Fprintf(&buf, " %v", event.Codes)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// FormatHop renders a hop the way assertions spell it: "function@forwarder".
func FormatHop(h model.Hop) string {
	return h.Function + "@" + h.Forwarder
}

// assertPath checks that the path exists with exactly the expected hops.
func assertPath(result *Result, a Assertion) error {
	p, ok := result.Path(a.Path)
	if !ok {
		return &AssertionError{
			Type:     AssertPath,
			Expected: fmt.Sprintf("path %s with hops %v", a.Path, a.Hops),
			Actual:   "path not found",
			Trace:    result.Trace,
		}
	}

	got := make([]string, len(p.Hops))
	for i, h := range p.Hops {
		got[i] = FormatHop(h)
	}
	if !slices.Equal(got, a.Hops) {
		return &AssertionError{
			Type:     AssertPath,
			Expected: fmt.Sprintf("path %s hops %v", a.Path, a.Hops),
			Actual:   fmt.Sprintf("hops %v", got),
			Trace:    result.Trace,
		}
	}
	if p.ServiceIndex != len(p.Hops)+1 {
		return &AssertionError{
			Type:     AssertPath,
			Expected: fmt.Sprintf("path %s service index %d", a.Path, len(p.Hops)+1),
			Actual:   fmt.Sprintf("service index %d", p.ServiceIndex),
			Trace:    result.Trace,
		}
	}
	if a.PathID != 0 && p.PathID != a.PathID {
		return &AssertionError{
			Type:     AssertPath,
			Expected: fmt.Sprintf("path %s id %d", a.Path, a.PathID),
			Actual:   fmt.Sprintf("id %d", p.PathID),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertPathAbsent checks that no path has the given name.
func assertPathAbsent(result *Result, a Assertion) error {
	if p, ok := result.Path(a.Path); ok {
		return &AssertionError{
			Type:     AssertPathAbsent,
			Expected: fmt.Sprintf("no path %s", a.Path),
			Actual:   fmt.Sprintf("path %s exists with id %d", p.Name, p.PathID),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertPathCount checks the number of committed paths.
func assertPathCount(result *Result, a Assertion) error {
	if len(result.Paths) != a.Count {
		names := make([]string, len(result.Paths))
		for i, p := range result.Paths {
			names[i] = p.Name
		}
		return &AssertionError{
			Type:     AssertPathCount,
			Expected: fmt.Sprintf("%d path(s)", a.Count),
			Actual:   fmt.Sprintf("%d path(s) %v", len(result.Paths), names),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertDictionary checks that a forwarder holds exactly the expected
// functions and that every entry names the forwarder as its owner.
func assertDictionary(result *Result, a Assertion) error {
	f, ok := result.Forwarder(a.Forwarder)
	if !ok {
		return &AssertionError{
			Type:     AssertDictionary,
			Expected: fmt.Sprintf("forwarder %s with functions %v", a.Forwarder, a.Functions),
			Actual:   "forwarder not found",
			Trace:    result.Trace,
		}
	}

	want := slices.Clone(a.Functions)
	slices.Sort(want)
	got := f.EntryNames()
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertDictionary,
			Expected: fmt.Sprintf("forwarder %s functions %v", a.Forwarder, want),
			Actual:   fmt.Sprintf("functions %v", got),
			Trace:    result.Trace,
		}
	}
	for _, name := range got {
		if owner := f.Dictionary[name].Forwarder; owner != f.Name {
			return &AssertionError{
				Type:     AssertDictionary,
				Expected: fmt.Sprintf("entry %s owned by %s", name, f.Name),
				Actual:   fmt.Sprintf("owned by %q", owner),
				Trace:    result.Trace,
			}
		}
	}
	if a.PathID != 0 && f.PathID != a.PathID {
		return &AssertionError{
			Type:     AssertDictionary,
			Expected: fmt.Sprintf("forwarder %s path id %d", a.Forwarder, a.PathID),
			Actual:   fmt.Sprintf("path id %d", f.PathID),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertTraceCount checks how many steps ended with the given outcome.
func assertTraceCount(result *Result, a Assertion) error {
	count := 0
	for _, event := range result.Trace {
		if event.Outcome == a.Outcome {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d step(s) with outcome %s", a.Count, a.Outcome),
			Actual:   fmt.Sprintf("%d step(s)", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertPath:
			err = assertPath(result, assertion)
		case AssertPathAbsent:
			err = assertPathAbsent(result, assertion)
		case AssertPathCount:
			err = assertPathCount(result, assertion)
		case AssertDictionary:
			err = assertDictionary(result, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
