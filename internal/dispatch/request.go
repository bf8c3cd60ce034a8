package dispatch

import (
	"fmt"

	"github.com/roach88/sfcpath/internal/model"
)

// Op distinguishes between units of work.
type Op int

const (
	// OpCreatePath resolves a chain into a path.
	OpCreatePath Op = iota + 1
	// OpDeletePath deletes the path realizing a chain.
	OpDeletePath
)

// String returns the wire name of the op.
func (o Op) String() string {
	switch o {
	case OpCreatePath:
		return "create"
	case OpDeletePath:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// MarshalText encodes the op by name.
func (o Op) MarshalText() ([]byte, error) {
	switch o {
	case OpCreatePath, OpDeletePath:
		return []byte(o.String()), nil
	default:
		return nil, fmt.Errorf("unknown op %d", int(o))
	}
}

// UnmarshalText decodes "create" or "delete".
func (o *Op) UnmarshalText(text []byte) error {
	switch string(text) {
	case "create":
		*o = OpCreatePath
	case "delete":
		*o = OpDeletePath
	default:
		return fmt.Errorf("unknown op %q", text)
	}
	return nil
}

// State is the lifecycle position of a unit of work.
type State int

const (
	StatePending State = iota + 1
	StateRunning
	StateCommitted
	StateFailed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Request is one unit of work. Chain is used by OpCreatePath, ChainName by
// OpDeletePath. ID is assigned on submit when empty.
type Request struct {
	ID        string      `json:"id,omitempty"`
	Op        Op          `json:"op"`
	Chain     model.Chain `json:"chain"`
	ChainName string      `json:"chain_name,omitempty"`
}

// Validate checks that the request carries what its op needs.
func (r Request) Validate() error {
	switch r.Op {
	case OpCreatePath:
		if r.Chain.Name == "" {
			return fmt.Errorf("create request: chain name is required")
		}
	case OpDeletePath:
		if r.ChainName == "" {
			return fmt.Errorf("delete request: chain_name is required")
		}
	default:
		return fmt.Errorf("request: unknown op %d", int(r.Op))
	}
	return nil
}

// target returns the chain name the request acts on.
func (r Request) target() string {
	if r.Op == OpDeletePath {
		return r.ChainName
	}
	return r.Chain.Name
}

// Result is the outcome of one unit of work. Path is set whenever a path
// was committed, including when binding partly failed.
type Result struct {
	ID    string
	Op    Op
	Chain string
	State State
	Path  *model.Path
	Err   error
}
