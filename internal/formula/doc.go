// Package formula provides the formula AST shared by every compilation stage.
//
// The AST is a closed tagged union. Node and Value are sealed interfaces:
// only types in this package implement them, so every pass can switch over
// the full set of kinds and the compiler flags a missing case when a kind is
// added.
//
// Trees are immutable. Rewrites build new nodes and reuse every subtree they
// do not touch, so a pass that changes one leaf allocates only the path from
// that leaf to the root.
//
// Structural identity is defined by the canonical encoding (Encode followed
// by MarshalCanonical) and exposed as Hash. Two subtrees with the same hash
// are interchangeable; slicing relies on this to deduplicate extracted
// expressions and the engine relies on it for cache keys.
package formula
