package harness

import "github.com/roach88/sfcpath/internal/model"

// Trace operations.
const (
	OpResolve   = "resolve"
	OpUnresolve = "unresolve"
	OpSeed      = "seed"
)

// TraceEvent records one executed flow step.
type TraceEvent struct {
	ID      string   `json:"id"`
	Op      string   `json:"op"`
	Chain   string   `json:"chain,omitempty"`
	Outcome string   `json:"outcome"`
	Codes   []string `json:"codes,omitempty"`
	PathID  int64    `json:"path_id,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Paths and Forwarders are the store contents after the flow, by name.
	Paths      []model.Path      `json:"paths"`
	Forwarders []model.Forwarder `json:"forwarders"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Trace:      []TraceEvent{},
		Errors:     []string{},
		Paths:      []model.Path{},
		Forwarders: []model.Forwarder{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends ev to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// Path returns the named path from the final contents.
func (r *Result) Path(name string) (model.Path, bool) {
	for _, p := range r.Paths {
		if p.Name == name {
			return p, true
		}
	}
	return model.Path{}, false
}

// Forwarder returns the named forwarder from the final contents.
func (r *Result) Forwarder(name string) (model.Forwarder, bool) {
	for _, f := range r.Forwarders {
		if f.Name == name {
			return f, true
		}
	}
	return model.Forwarder{}, false
}
