// Package model provides the record types shared by every sfcpath package.
//
// This package contains type definitions, canonical encoding and the typed
// errors reported by the resolver and the forwarder registry. All other
// internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - Path identity is derived from the chain name (chain + "-Path")
//   - ServiceIndex is always len(Hops) + 1
//   - Every dictionary entry's Forwarder equals its owning forwarder's Name
//   - No float types anywhere; canonical JSON rejects them
//   - All JSON tags use snake_case
package model
