// Package store provides SQLite-backed transactional storage for the
// sfcpath catalog, forwarders and paths.
//
// Every entity is one row in the records table, keyed by (kind, name):
//   - function_type: candidate lists, read-only to the resolver
//   - function: concrete function instances
//   - forwarder: data-plane nodes and their dictionaries
//   - path: resolved chains
//
// # Record Rules
//
// Bodies are canonical JSON
//   - Produced by model.MarshalCanonical
//   - Identical content always yields identical bytes
//
// Etags are content digests
//   - etag = model.ETag(kind, body)
//   - Conditional writes compare the stored etag, never a counter
//
// Keys are NFC normalized
//   - Names that differ only in Unicode composition address one record
//
// Absence is not an error
//   - Reads return (zero, false, nil) for a missing key
//
// # Sequences
//
// Path ids come from the path_id row of the sequences table. The next value
// is allocated inside the transaction that writes the path, so a failed
// commit leaves the sequence unchanged and ids survive restarts.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
