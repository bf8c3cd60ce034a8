package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageCarriesContext(t *testing.T) {
	err := NewUnknownForwarder("F9", "fw1")
	assert.Equal(t, "UNKNOWN_FORWARDER: forwarder not found (forwarder=F9, function=fw1)", err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStoreError("commit path", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStoreCommit(err))
	assert.True(t, IsStoreCommit(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsUnknownForwarder(err))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsMissingFunctionType(NewMissingFunctionType("C1", "firewall")))
	assert.True(t, IsDanglingReference(NewDanglingReference("C1", "firewall", nil)))
	assert.True(t, IsUnknownForwarder(NewUnknownForwarder("F1", "fw1")))
	assert.Equal(t, ErrCodeEmptyChain, CodeOf(NewEmptyChain("C0")))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.False(t, IsStoreCommit(nil))
}

func TestBindErrorExposesEveryFailure(t *testing.T) {
	err := &BindError{
		Path: "C1-Path",
		Failures: []*Error{
			NewUnknownForwarder("F9", "fw1"),
			NewStoreError("bind", errors.New("locked")),
		},
	}

	assert.True(t, IsBindError(err))
	assert.True(t, IsUnknownForwarder(err))
	assert.True(t, IsStoreCommit(err), "second failure must be reachable")
	assert.Contains(t, err.Error(), "2 binding(s) failed")

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, ErrCodeUnknownForwarder, e.Code)
}
