// Package store provides the SQLite-backed result cache of the engine.
//
// Entries are keyed by the content hash of a compiled query and its
// inputs, so equal queries share entries across requests. Entries are
// immutable: a second write for a key is ignored.
//
// # Encoding
//
// Columns and rows are stored as canonical JSON. Every value keeps its type
// ({"lit": ..., "type": ...}), so integers, floats and strings read back
// exactly as they were written.
//
// # Eviction
//
// With a maximum entry count, the entries with the lowest seq (the logical
// insertion order, never wall time) are deleted after each write.
package store
