package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sfcpath/internal/model"
)

// ErrNoDocuments is returned when a directory holds no seed documents.
var ErrNoDocuments = errors.New("no .cue, .hcl or .yaml files found")

// Load reads every seed document directly inside dir and returns the merged,
// validated catalog. CUE files are merged first, then HCL and YAML files in
// name order.
func Load(dir string) (Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog directory: %w", err)
	}
	if !info.IsDir() {
		return Catalog{}, fmt.Errorf("catalog directory: not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Catalog{}, fmt.Errorf("scan catalog directory: %w", err)
	}

	var cueCount int
	var others []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".cue":
			cueCount++
		case ".hcl", ".yaml", ".yml":
			others = append(others, filepath.Join(dir, e.Name()))
		}
	}
	if cueCount == 0 && len(others) == 0 {
		return Catalog{}, fmt.Errorf("%s: %w", dir, ErrNoDocuments)
	}
	sort.Strings(others)

	var c Catalog
	if cueCount > 0 {
		part, err := loadCUE(dir)
		if err != nil {
			return Catalog{}, err
		}
		c.Merge(part)
	}

	parser := hclparse.NewParser()
	evalCtx := envEvalContext()
	for _, path := range others {
		var part Catalog
		var err error
		if strings.EqualFold(filepath.Ext(path), ".hcl") {
			part, err = loadHCL(parser, evalCtx, path)
		} else {
			part, err = loadYAML(path)
		}
		if err != nil {
			return Catalog{}, err
		}
		c.Merge(part)
	}

	if err := c.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("invalid catalog in %s: %w", dir, err)
	}
	return c, nil
}

// LoadYAML decodes one YAML seed document from r.
func LoadYAML(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, err
	}
	return c, nil
}

func loadYAML(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read %s: %w", path, err)
	}
	c, err := LoadYAML(bytes.NewReader(data))
	if err != nil {
		return Catalog{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// HCL document shape.
type hclDocument struct {
	FunctionTypes []hclFunctionType `hcl:"function_type,block"`
	Functions     []hclFunction     `hcl:"function,block"`
	Forwarders    []hclForwarder    `hcl:"forwarder,block"`
	Chains        []hclChain        `hcl:"chain,block"`
}

type hclFunctionType struct {
	Name       string   `hcl:"name,label"`
	Candidates []string `hcl:"candidates,optional"`
}

type hclFunction struct {
	Name      string `hcl:"name,label"`
	Type      string `hcl:"type"`
	Forwarder string `hcl:"forwarder"`
	Locator   string `hcl:"locator,optional"`
}

type hclForwarder struct {
	Name    string `hcl:"name,label"`
	Locator string `hcl:"locator,optional"`
}

type hclChain struct {
	Name  string    `hcl:"name,label"`
	Steps []hclStep `hcl:"step,block"`
}

type hclStep struct {
	Name string `hcl:"name,optional"`
	Type string `hcl:"type"`
}

// envEvalContext exposes the process environment as env.NAME.
func envEvalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !validIdentifier(name) {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(vars)},
	}
}

// validIdentifier reports whether name can be used as an HCL attribute name.
func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r == '-' || r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}

func loadHCL(parser *hclparse.Parser, evalCtx *hcl.EvalContext, path string) (Catalog, error) {
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return Catalog{}, fmt.Errorf("parse %s: %w", path, diags)
	}

	var doc hclDocument
	if diags := gohcl.DecodeBody(file.Body, evalCtx, &doc); diags.HasErrors() {
		return Catalog{}, fmt.Errorf("decode %s: %w", path, diags)
	}

	var c Catalog
	for _, ft := range doc.FunctionTypes {
		c.FunctionTypes = append(c.FunctionTypes, model.FunctionType{Name: ft.Name, Candidates: ft.Candidates})
	}
	for _, fn := range doc.Functions {
		c.Functions = append(c.Functions, model.Function{
			Name:      fn.Name,
			Type:      fn.Type,
			Forwarder: fn.Forwarder,
			Locator:   fn.Locator,
		})
	}
	for _, f := range doc.Forwarders {
		c.Forwarders = append(c.Forwarders, model.Forwarder{Name: f.Name, Locator: f.Locator})
	}
	for _, ch := range doc.Chains {
		chain := model.Chain{Name: ch.Name}
		for _, s := range ch.Steps {
			chain.Steps = append(chain.Steps, model.ChainStep{Name: s.Name, Type: s.Type})
		}
		c.Chains = append(c.Chains, chain)
	}
	return c, nil
}

// loadCUE builds the CUE package in dir. Records are keyed by name under
// the top-level fields function_type, function, forwarder and chain; the
// key becomes the record name.
func loadCUE(dir string) (Catalog, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return Catalog{}, fmt.Errorf("load CUE in %s: no instances", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return Catalog{}, fmt.Errorf("load CUE in %s: %w", dir, inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return Catalog{}, fmt.Errorf("build CUE in %s: %w", dir, err)
	}

	var c Catalog
	err := eachField(value, "function_type", func(name string, v cue.Value) error {
		var ft model.FunctionType
		if err := v.Decode(&ft); err != nil {
			return err
		}
		ft.Name = name
		c.FunctionTypes = append(c.FunctionTypes, ft)
		return nil
	})
	if err == nil {
		err = eachField(value, "function", func(name string, v cue.Value) error {
			var fn model.Function
			if err := v.Decode(&fn); err != nil {
				return err
			}
			fn.Name = name
			c.Functions = append(c.Functions, fn)
			return nil
		})
	}
	if err == nil {
		err = eachField(value, "forwarder", func(name string, v cue.Value) error {
			var f model.Forwarder
			if err := v.Decode(&f); err != nil {
				return err
			}
			c.Forwarders = append(c.Forwarders, model.Forwarder{Name: name, Locator: f.Locator})
			return nil
		})
	}
	if err == nil {
		err = eachField(value, "chain", func(name string, v cue.Value) error {
			var ch model.Chain
			if err := v.Decode(&ch); err != nil {
				return err
			}
			ch.Name = name
			c.Chains = append(c.Chains, ch)
			return nil
		})
	}
	if err != nil {
		return Catalog{}, fmt.Errorf("decode CUE in %s: %w", dir, err)
	}
	return c, nil
}

// eachField calls fn for every field of the struct at path, in order.
// A missing path is not an error.
func eachField(root cue.Value, path string, fn func(name string, v cue.Value) error) error {
	v := root.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		if err := fn(name, iter.Value()); err != nil {
			return fmt.Errorf("%s.%s: %w", path, name, err)
		}
	}
	return nil
}
