package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sfcpath/internal/model"
)

func sampleResult() *Result {
	r := NewResult()
	r.AddTrace(TraceEvent{ID: "step-0001", Op: OpResolve, Chain: "C1", Outcome: OutcomeOK, PathID: 1})
	r.AddTrace(TraceEvent{ID: "step-0002", Op: OpResolve, Chain: "C3", Outcome: OutcomePartial, PathID: 2,
		Codes: []string{"UNKNOWN_FORWARDER"}})
	r.Paths = []model.Path{
		{Name: "C1-Path", Chain: "C1", PathID: 1, ServiceIndex: 3,
			Hops: []model.Hop{{Function: "fw1", Forwarder: "F1"}, {Function: "nat1", Forwarder: "F2"}}},
		{Name: "C3-Path", Chain: "C3", PathID: 2, ServiceIndex: 2,
			Hops: []model.Hop{{Function: "fw9"}}},
	}
	r.Forwarders = []model.Forwarder{
		{Name: "F1", PathID: 1, Dictionary: map[string]model.DictionaryEntry{
			"fw1": {Name: "fw1", Forwarder: "F1"},
		}},
		{Name: "F2", PathID: 1, Dictionary: map[string]model.DictionaryEntry{
			"nat1": {Name: "nat1", Forwarder: "F2"},
		}},
		{Name: "F3"},
	}
	return r
}

func TestAssertPath(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertPath(r, Assertion{Path: "C1-Path", Hops: []string{"fw1@F1", "nat1@F2"}, PathID: 1}))
	assert.NoError(t, assertPath(r, Assertion{Path: "C3-Path", Hops: []string{"fw9@"}}))

	err := assertPath(r, Assertion{Path: "C1-Path", Hops: []string{"nat1@F2", "fw1@F1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hops [fw1@F1 nat1@F2]")

	err = assertPath(r, Assertion{Path: "C1-Path", Hops: []string{"fw1@F1", "nat1@F2"}, PathID: 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id 1")

	err = assertPath(r, Assertion{Path: "C9-Path"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path not found")
}

func TestAssertPath_ServiceIndex(t *testing.T) {
	r := sampleResult()
	r.Paths[0].ServiceIndex = 2

	err := assertPath(r, Assertion{Path: "C1-Path", Hops: []string{"fw1@F1", "nat1@F2"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service index 3")
}

func TestAssertPathAbsent(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertPathAbsent(r, Assertion{Path: "C2-Path"}))

	err := assertPathAbsent(r, Assertion{Path: "C1-Path"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exists with id 1")
}

func TestAssertPathCount(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertPathCount(r, Assertion{Count: 2}))

	err := assertPathCount(r, Assertion{Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 path(s) [C1-Path C3-Path]")
}

func TestAssertDictionary(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertDictionary(r, Assertion{Forwarder: "F1", Functions: []string{"fw1"}, PathID: 1}))
	assert.NoError(t, assertDictionary(r, Assertion{Forwarder: "F3"}))

	err := assertDictionary(r, Assertion{Forwarder: "F1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "functions [fw1]")

	err = assertDictionary(r, Assertion{Forwarder: "F2", Functions: []string{"nat1"}, PathID: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path id 1")

	err = assertDictionary(r, Assertion{Forwarder: "F9"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forwarder not found")
}

func TestAssertDictionary_Ownership(t *testing.T) {
	r := sampleResult()
	r.Forwarders[0].Dictionary["fw1"] = model.DictionaryEntry{Name: "fw1", Forwarder: "F2"}

	err := assertDictionary(r, Assertion{Forwarder: "F1", Functions: []string{"fw1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `owned by "F2"`)
}

func TestAssertTraceCount(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertTraceCount(r, Assertion{Outcome: OutcomeOK, Count: 1}))
	assert.NoError(t, assertTraceCount(r, Assertion{Outcome: OutcomeError, Count: 0}))

	err := assertTraceCount(r, Assertion{Outcome: OutcomePartial, Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 step(s)")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	r := sampleResult()

	err := assertPathAbsent(r, Assertion{Path: "C3-Path"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Full trace:")
	assert.Contains(t, err.Error(), "[step-0002] resolve C3 -> partial [UNKNOWN_FORWARDER]")
}

func TestEvaluateAssertions(t *testing.T) {
	r := sampleResult()

	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertPathCount, Count: 2},
		{Type: AssertPathAbsent, Path: "C1-Path"},
		{Type: "final_state"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "path_absent")
	assert.Contains(t, errs[1], `unknown assertion type "final_state"`)
}
