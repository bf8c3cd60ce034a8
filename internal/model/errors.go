package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes resolution and binding errors.
type ErrorCode string

const (
	// ErrCodeMissingFunctionType indicates a step's function type is absent
	// from the catalog or has no candidates.
	ErrCodeMissingFunctionType ErrorCode = "MISSING_FUNCTION_TYPE"

	// ErrCodeDanglingReference indicates the selected candidate name is empty.
	ErrCodeDanglingReference ErrorCode = "DANGLING_FUNCTION_REFERENCE"

	// ErrCodeUnknownForwarder indicates a hop names a forwarder that does not exist.
	ErrCodeUnknownForwarder ErrorCode = "UNKNOWN_FORWARDER"

	// ErrCodeStoreCommit indicates the store failed to read or commit a record.
	// Timeouts and cancellation surface here as well.
	ErrCodeStoreCommit ErrorCode = "STORE_COMMIT"

	// ErrCodeEmptyChain indicates a chain without steps.
	ErrCodeEmptyChain ErrorCode = "EMPTY_CHAIN"
)

// Error is a failure local to one unit of work. It names the chain, path,
// forwarder and function involved so callers and logs can identify it.
type Error struct {
	Code      ErrorCode
	Message   string
	Chain     string
	Path      string
	Forwarder string
	Function  string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)

	var ctx []string
	if e.Chain != "" {
		ctx = append(ctx, "chain="+e.Chain)
	}
	if e.Path != "" {
		ctx = append(ctx, "path="+e.Path)
	}
	if e.Forwarder != "" {
		ctx = append(ctx, "forwarder="+e.Forwarder)
	}
	if e.Function != "" {
		ctx = append(ctx, "function="+e.Function)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewMissingFunctionType reports a step whose type cannot be resolved.
func NewMissingFunctionType(chain, functionType string) *Error {
	return &Error{
		Code:    ErrCodeMissingFunctionType,
		Message: fmt.Sprintf("function type %q has no candidates", functionType),
		Chain:   chain,
	}
}

// NewDanglingReference reports a selected candidate with no name.
func NewDanglingReference(chain, functionType string, cause error) *Error {
	return &Error{
		Code:    ErrCodeDanglingReference,
		Message: fmt.Sprintf("function type %q selected an empty function name", functionType),
		Chain:   chain,
		Err:     cause,
	}
}

// NewUnknownForwarder reports a binding against a forwarder that does not exist.
func NewUnknownForwarder(forwarder, function string) *Error {
	return &Error{
		Code:      ErrCodeUnknownForwarder,
		Message:   "forwarder not found",
		Forwarder: forwarder,
		Function:  function,
	}
}

// NewStoreError wraps a store failure.
func NewStoreError(message string, err error) *Error {
	return &Error{
		Code:    ErrCodeStoreCommit,
		Message: message,
		Err:     err,
	}
}

// NewEmptyChain reports a chain with no steps.
func NewEmptyChain(chain string) *Error {
	return &Error{
		Code:    ErrCodeEmptyChain,
		Message: "chain has no steps",
		Chain:   chain,
	}
}

// CodeOf returns the code of the first *Error in err's tree, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsMissingFunctionType returns true if err is, or carries, a missing function type error.
func IsMissingFunctionType(err error) bool {
	return HasCode(err, ErrCodeMissingFunctionType)
}

// IsDanglingReference returns true if err is, or carries, a dangling reference error.
func IsDanglingReference(err error) bool {
	return HasCode(err, ErrCodeDanglingReference)
}

// IsUnknownForwarder returns true if err is, or carries, an unknown forwarder error.
func IsUnknownForwarder(err error) bool {
	return HasCode(err, ErrCodeUnknownForwarder)
}

// IsStoreCommit returns true if err is, or carries, a store failure.
func IsStoreCommit(err error) bool {
	return HasCode(err, ErrCodeStoreCommit)
}

// HasCode walks err's whole tree, including joined errors, looking for code.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok && e.Code == code {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return HasCode(u.Unwrap(), code)
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if HasCode(inner, code) {
				return true
			}
		}
	}
	return false
}

// BindError collects per-hop binding failures for a path that was committed.
// The path itself stays in the store; readers see it partially bound.
type BindError struct {
	Path     string
	Failures []*Error
}

// Error implements the error interface.
func (e *BindError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("path %s: %d binding(s) failed: %s", e.Path, len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes each failure to errors.Is and errors.As.
func (e *BindError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// IsBindError returns true if err carries per-hop binding failures.
func IsBindError(err error) bool {
	var be *BindError
	return errors.As(err, &be)
}
