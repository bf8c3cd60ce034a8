// Package testutil provides shared fixtures for sfcpath tests: temporary
// stores, a fault-injecting store wrapper, catalog seeds and deterministic
// request ids.
package testutil
