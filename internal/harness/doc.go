// Package harness runs conformance scenarios against the resolver and the
// forwarder registry.
//
// Each scenario runs in a fresh in-memory store with the real resolver,
// registry and selection policy wired together, so a passing scenario means
// the production code produced the asserted paths and dictionaries.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	catalog:
//	  function_types: [{name: firewall, candidates: [fw1]}]
//	  functions: [{name: fw1, type: firewall, forwarder: F1}]
//	  forwarders: [{name: F1}]
//	  chains: [{name: C1, steps: [{type: firewall}]}]
//	flow:
//	  - resolve: C1
//	    expect: {outcome: ok}
//	  - unresolve: C1
//	assertions:
//	  - type: path_absent
//	    path: C1-Path
//	  - type: dictionary
//	    forwarder: F1
//	    functions: []
//
// catalog_dir may name a catalog directory, relative to the scenario file,
// whose records are merged into catalog. A flow step may also seed more
// records mid-flow with seed.
//
// # Assertion Types
//
//   - path: the path exists with exactly the listed "function@forwarder" hops
//   - path_absent: no path has the name
//   - path_count: exactly count paths exist
//   - dictionary: the forwarder holds exactly the listed functions
//   - trace_count: exactly count steps ended with the given outcome
//
// # Deterministic Testing
//
// Trace ids are sequential and path ids start at 1 in every run, so the
// canonical JSON snapshot of a scenario is stable and can be compared
// against a golden file.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/c1.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
