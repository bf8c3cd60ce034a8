package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sfcpath/internal/catalog"
)

// Scenario defines a conformance scenario.
// A scenario seeds a catalog into a fresh store, runs a flow of resolve and
// unresolve steps, and asserts on the resulting paths and forwarders.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is seeded before the flow runs.
	Catalog catalog.Catalog `yaml:"catalog"`

	// CatalogDir names a catalog directory, relative to the scenario file,
	// merged into Catalog on load.
	CatalogDir string `yaml:"catalog_dir,omitempty"`

	// Policy and PolicyExpression select the candidate selection policy.
	// Empty means first-match.
	Policy           string `yaml:"policy,omitempty"`
	PolicyExpression string `yaml:"policy_expression,omitempty"`

	// Flow runs in order. Each step does exactly one thing.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the trace and the final store contents.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is one step of the flow. Exactly one of Resolve, Unresolve and
// Seed is set.
type FlowStep struct {
	// Resolve names a catalog chain to resolve into a path.
	Resolve string `yaml:"resolve,omitempty"`

	// Unresolve names a chain whose path is deleted.
	Unresolve string `yaml:"unresolve,omitempty"`

	// Seed applies more records mid-flow. Its chains become resolvable.
	Seed *catalog.Catalog `yaml:"seed,omitempty"`

	// Expect validates the step's outcome. If nil, no validation is performed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// op names the step's action for the trace.
func (s FlowStep) op() string {
	switch {
	case s.Resolve != "":
		return OpResolve
	case s.Unresolve != "":
		return OpUnresolve
	case s.Seed != nil:
		return OpSeed
	default:
		return ""
	}
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Outcome is ok, partial (path committed, some bindings failed) or error.
	Outcome string `yaml:"outcome"`

	// Codes lists error codes that must all appear in the step's error.
	Codes []string `yaml:"codes,omitempty"`
}

// Assertion validates the trace or the final store contents.
type Assertion struct {
	// Type specifies the assertion type:
	// - "path": the path exists with exactly these hops
	// - "path_absent": no path with this name exists
	// - "path_count": exactly Count paths exist
	// - "dictionary": the forwarder holds exactly these functions
	// - "trace_count": exactly Count steps ended with Outcome
	Type string `yaml:"type"`

	// Path is the path name (used by path, path_absent).
	Path string `yaml:"path,omitempty"`

	// Hops are "function@forwarder" in order; "function@" for an unbound hop
	// (used by path).
	Hops []string `yaml:"hops,omitempty"`

	// PathID is checked when non-zero (used by path, dictionary).
	PathID int64 `yaml:"path_id,omitempty"`

	// Forwarder is the forwarder name (used by dictionary).
	Forwarder string `yaml:"forwarder,omitempty"`

	// Functions are the bound function names, in any order (used by dictionary).
	Functions []string `yaml:"functions,omitempty"`

	// Outcome is the step outcome to count (used by trace_count).
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number (used by path_count, trace_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertPath       = "path"
	AssertPathAbsent = "path_absent"
	AssertPathCount  = "path_count"
	AssertDictionary = "dictionary"
	AssertTraceCount = "trace_count"
)

// Step outcomes.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeError   = "error"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.CatalogDir != "" {
		dir := scenario.CatalogDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(path), dir)
		}
		cat, err := catalog.Load(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog_dir: %w", err)
		}
		scenario.Catalog.Merge(cat)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if err := s.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	for i, step := range s.Flow {
		set := 0
		if step.Resolve != "" {
			set++
		}
		if step.Unresolve != "" {
			set++
		}
		if step.Seed != nil {
			set++
		}
		if set != 1 {
			return fmt.Errorf("flow[%d]: exactly one of resolve, unresolve or seed is required", i)
		}
		if step.Expect != nil {
			switch step.Expect.Outcome {
			case OutcomeOK, OutcomePartial, OutcomeError:
			default:
				return fmt.Errorf("flow[%d].expect: outcome must be ok, partial or error", i)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertPath:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for path", index)
		}
	case AssertPathAbsent:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for path_absent", index)
		}
	case AssertPathCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for path_count", index)
		}
	case AssertDictionary:
		if a.Forwarder == "" {
			return fmt.Errorf("assertions[%d]: forwarder is required for dictionary", index)
		}
	case AssertTraceCount:
		switch a.Outcome {
		case OutcomeOK, OutcomePartial, OutcomeError:
		default:
			return fmt.Errorf("assertions[%d]: outcome must be ok, partial or error for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
