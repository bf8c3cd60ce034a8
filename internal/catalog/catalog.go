// Package catalog loads seed documents describing function types,
// functions, forwarders and chains, and applies them to the store.
//
// A catalog directory may mix three formats:
//
//	*.cue         one CUE package, loaded together
//	*.hcl         HCL blocks; attributes may read env.NAME
//	*.yaml, *.yml YAML documents, unknown keys rejected
//
// Only files directly inside the directory are read.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/sfcpath/internal/logging"
	"github.com/roach88/sfcpath/internal/model"
)

// Catalog is the merged content of one or more seed documents.
type Catalog struct {
	FunctionTypes []model.FunctionType `yaml:"function_types"`
	Functions     []model.Function     `yaml:"functions"`
	Forwarders    []model.Forwarder    `yaml:"forwarders"`
	Chains        []model.Chain        `yaml:"chains"`
}

// Merge appends other's records to c.
func (c *Catalog) Merge(other Catalog) {
	c.FunctionTypes = append(c.FunctionTypes, other.FunctionTypes...)
	c.Functions = append(c.Functions, other.Functions...)
	c.Forwarders = append(c.Forwarders, other.Forwarders...)
	c.Chains = append(c.Chains, other.Chains...)
}

// Chain returns the named chain.
func (c Catalog) Chain(name string) (model.Chain, bool) {
	for _, ch := range c.Chains {
		if ch.Name == name {
			return ch, true
		}
	}
	return model.Chain{}, false
}

// Validate reports every structural problem: missing names, duplicate
// names within a kind, functions without a type or forwarder, and chain
// steps without a type. References between records are not checked; the
// resolver reports them when a chain is resolved.
func (c Catalog) Validate() error {
	var errs []error

	seen := make(map[string]bool)
	check := func(kind, name string) {
		if name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", kind))
			return
		}
		k := kind + "/" + name
		if seen[k] {
			errs = append(errs, fmt.Errorf("%s %q: defined more than once", kind, name))
		}
		seen[k] = true
	}

	for _, ft := range c.FunctionTypes {
		check("function_type", ft.Name)
	}
	for _, fn := range c.Functions {
		check("function", fn.Name)
		if fn.Type == "" {
			errs = append(errs, fmt.Errorf("function %q: type is required", fn.Name))
		}
		if fn.Forwarder == "" {
			errs = append(errs, fmt.Errorf("function %q: forwarder is required", fn.Name))
		}
	}
	for _, f := range c.Forwarders {
		check("forwarder", f.Name)
	}
	for _, ch := range c.Chains {
		check("chain", ch.Name)
		for i, step := range ch.Steps {
			if step.Type == "" {
				errs = append(errs, fmt.Errorf("chain %q: step %d: type is required", ch.Name, i+1))
			}
		}
	}

	return errors.Join(errs...)
}

// Store receives function types and functions.
type Store interface {
	WriteFunctionType(ctx context.Context, ft model.FunctionType) error
	WriteFunction(ctx context.Context, fn model.Function) error
}

// Forwarders receives forwarders. Existing dictionaries must be kept.
type Forwarders interface {
	Upsert(ctx context.Context, f model.Forwarder) error
}

// Summary counts what Apply wrote.
type Summary struct {
	FunctionTypes int `json:"function_types"`
	Functions     int `json:"functions"`
	Forwarders    int `json:"forwarders"`
	Chains        int `json:"chains"`
}

// Apply validates c and writes its function types, functions and
// forwarders. Chains are not written; callers resolve them.
// Apply stops at the first failed write.
func (c Catalog) Apply(ctx context.Context, s Store, fwds Forwarders) (Summary, error) {
	var sum Summary
	if err := c.Validate(); err != nil {
		return sum, fmt.Errorf("invalid catalog: %w", err)
	}

	for _, f := range c.Forwarders {
		if err := fwds.Upsert(ctx, f); err != nil {
			return sum, fmt.Errorf("apply forwarder %q: %w", f.Name, err)
		}
		sum.Forwarders++
	}
	for _, ft := range c.FunctionTypes {
		if err := s.WriteFunctionType(ctx, ft); err != nil {
			return sum, fmt.Errorf("apply function type %q: %w", ft.Name, err)
		}
		sum.FunctionTypes++
	}
	for _, fn := range c.Functions {
		if err := s.WriteFunction(ctx, fn); err != nil {
			return sum, fmt.Errorf("apply function %q: %w", fn.Name, err)
		}
		sum.Functions++
	}
	sum.Chains = len(c.Chains)

	logging.FromContext(ctx).Info("catalog applied",
		"function_types", sum.FunctionTypes,
		"functions", sum.Functions,
		"forwarders", sum.Forwarders,
		"chains", sum.Chains,
	)
	return sum, nil
}
