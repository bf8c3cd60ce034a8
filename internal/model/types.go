package model

import "sort"

// PathSuffix is appended to a chain name to derive its path name.
const PathSuffix = "-Path"

// Record kinds as stored in the keyed store.
const (
	KindFunctionType = "function_type"
	KindFunction     = "function"
	KindForwarder    = "forwarder"
	KindPath         = "path"
)

// FunctionType is a named category of functions with an ordered list of
// candidate function names believed to implement it.
type FunctionType struct {
	Name       string   `json:"name" yaml:"name"`
	Candidates []string `json:"candidates,omitempty" yaml:"candidates"`
}

// Function is a concrete service instance hosted on one forwarder.
type Function struct {
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"`
	Forwarder string `json:"forwarder" yaml:"forwarder"`
	Locator   string `json:"locator,omitempty" yaml:"locator,omitempty"`
}

// DictionaryEntry is the forwarder-side record of a function bound onto it.
type DictionaryEntry struct {
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type,omitempty" yaml:"type,omitempty"`
	Forwarder string `json:"forwarder" yaml:"forwarder"`
	Locator   string `json:"locator,omitempty" yaml:"locator,omitempty"`
}

// EntryFor builds the dictionary entry describing fn.
func EntryFor(fn Function) DictionaryEntry {
	return DictionaryEntry{
		Name:      fn.Name,
		Type:      fn.Type,
		Forwarder: fn.Forwarder,
		Locator:   fn.Locator,
	}
}

// Forwarder is a data-plane node tracked through a dictionary of the
// functions bound onto it.
type Forwarder struct {
	Name       string                     `json:"name" yaml:"name"`
	Locator    string                     `json:"locator,omitempty" yaml:"locator,omitempty"`
	PathID     int64                      `json:"path_id,omitempty" yaml:"-"`
	Dictionary map[string]DictionaryEntry `json:"dictionary,omitempty" yaml:"-"`

	// ETag identifies the stored revision this value was read from.
	// Empty for records that have not been read from a store.
	ETag string `json:"-" yaml:"-"`
}

// PutEntry inserts or replaces the entry keyed by e.Name.
// The entry is re-owned by f so the dictionary invariant always holds.
// Returns false if the dictionary already held an identical entry.
func (f *Forwarder) PutEntry(e DictionaryEntry) bool {
	e.Forwarder = f.Name
	if f.Dictionary == nil {
		f.Dictionary = make(map[string]DictionaryEntry)
	}
	if prev, ok := f.Dictionary[e.Name]; ok && prev == e {
		return false
	}
	f.Dictionary[e.Name] = e
	return true
}

// RemoveEntry deletes the entry for the named function.
// Returns false if no such entry existed.
func (f *Forwarder) RemoveEntry(function string) bool {
	if _, ok := f.Dictionary[function]; !ok {
		return false
	}
	delete(f.Dictionary, function)
	if len(f.Dictionary) == 0 {
		f.Dictionary = nil
	}
	return true
}

// HasEntry reports whether the named function is bound onto f.
func (f Forwarder) HasEntry(function string) bool {
	_, ok := f.Dictionary[function]
	return ok
}

// EntryNames returns the bound function names in sorted order.
func (f Forwarder) EntryNames() []string {
	names := make([]string, 0, len(f.Dictionary))
	for name := range f.Dictionary {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ChainStep is one required function type in a chain.
type ChainStep struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Type string `json:"type" yaml:"type"`
}

// Chain is an ordered list of required function types.
type Chain struct {
	Name  string      `json:"name" yaml:"name"`
	Steps []ChainStep `json:"steps,omitempty" yaml:"steps"`
}

// PathName returns the name of the path realizing this chain.
func (c Chain) PathName() string {
	return PathName(c.Name)
}

// PathName derives a path name from a chain name.
func PathName(chain string) string {
	return chain + PathSuffix
}

// Hop is one resolved function instance in a path.
// Forwarder is empty when the function was missing from the catalog at
// resolution time.
type Hop struct {
	Function  string `json:"function" yaml:"function"`
	Forwarder string `json:"forwarder,omitempty" yaml:"forwarder,omitempty"`
}

// Path is the concrete realization of a chain at resolution time.
// It is a snapshot and is not re-resolved when the catalog changes.
type Path struct {
	Name         string `json:"name" yaml:"name"`
	Chain        string `json:"chain" yaml:"chain"`
	PathID       int64  `json:"path_id" yaml:"path_id"`
	Hops         []Hop  `json:"hops,omitempty" yaml:"hops"`
	ServiceIndex int    `json:"service_index" yaml:"service_index"`
}

// NewPath builds an unnumbered path for chain from its resolved hops.
// PathID is assigned by the store when the path is committed.
func NewPath(chain string, hops []Hop) Path {
	copied := make([]Hop, len(hops))
	copy(copied, hops)
	return Path{
		Name:         PathName(chain),
		Chain:        chain,
		Hops:         copied,
		ServiceIndex: len(copied) + 1,
	}
}

// Routes reports whether p sends traffic for function through forwarder.
func (p Path) Routes(function, forwarder string) bool {
	for _, hop := range p.Hops {
		if hop.Function == function && hop.Forwarder == forwarder {
			return true
		}
	}
	return false
}
