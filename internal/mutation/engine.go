// Package mutation rewrites formula trees with ordered passes.
//
// A pass is a pair of Matches/Replace functions. Apply runs one full
// traversal of the tree per pass, in the order given, and never interleaves
// passes. Traversal is post-order: a node's children are rewritten (left to
// right) before the node itself is offered to the pass, so a fold sees
// already folded operands. parents always holds the ancestors as they were
// before the current pass touched them, root first.
package mutation

import (
	"fmt"
	"log/slog"

	"github.com/roach88/lens/internal/formula"
)

// Pass is one tree rewrite.
type Pass interface {
	// Name identifies the pass in logs and errors.
	Name() string

	// Matches reports whether Replace should be called for n.
	Matches(n formula.Node, parents []formula.Node) bool

	// Replace returns the node that takes n's place.
	Replace(n formula.Node, parents []formula.Node) (formula.Node, error)
}

// DefaultMaxRounds bounds ApplyUntilStable.
const DefaultMaxRounds = 8

// Apply runs passes over tree in order, one traversal per pass, and returns
// the rewritten tree. The input tree is never modified.
func Apply(tree formula.Node, passes ...Pass) (formula.Node, error) {
	current := tree
	for _, p := range passes {
		next, err := applyPass(current, nil, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name(), err)
		}
		current = next
	}
	return current, nil
}

// ApplyUntilStable repeats Apply until a round leaves the tree structurally
// unchanged or maxRounds is reached. Folding passes enable each other (a
// pruned branch can expose a comparison of literals), so running them to a
// fixpoint makes a second application a no-op.
func ApplyUntilStable(tree formula.Node, maxRounds int, passes ...Pass) (formula.Node, error) {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	current := tree
	hash := formula.Hash(current)
	for round := 0; round < maxRounds; round++ {
		next, err := Apply(current, passes...)
		if err != nil {
			return nil, err
		}
		nextHash := formula.Hash(next)
		if nextHash == hash {
			return next, nil
		}
		slog.Debug("mutation round changed tree", "round", round, "hash", nextHash[:12])
		current, hash = next, nextHash
	}
	return current, nil
}

func applyPass(n formula.Node, parents []formula.Node, p Pass) (formula.Node, error) {
	if n == nil {
		// Malformed blocks are reported by the desugaring passes.
		return nil, nil
	}
	children := formula.Children(n)
	if len(children) > 0 {
		// Full slice expression forces a copy so siblings never share backing arrays.
		childParents := append(parents[:len(parents):len(parents)], n)
		replaced := make([]formula.Node, len(children))
		for i, child := range children {
			out, err := applyPass(child, childParents, p)
			if err != nil {
				return nil, err
			}
			replaced[i] = out
		}
		n = formula.WithChildren(n, replaced)
	}

	if !p.Matches(n, parents) {
		return n, nil
	}
	out, err := p.Replace(n, parents)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, formula.NewCompileError(formula.ErrCodeMalformed, "pass %s replaced a node with nothing", p.Name())
	}
	return out, nil
}

// passFunc adapts plain functions to Pass.
type passFunc struct {
	name    string
	matches func(formula.Node, []formula.Node) bool
	replace func(formula.Node, []formula.Node) (formula.Node, error)
}

func (p passFunc) Name() string { return p.name }

func (p passFunc) Matches(n formula.Node, parents []formula.Node) bool {
	return p.matches(n, parents)
}

func (p passFunc) Replace(n formula.Node, parents []formula.Node) (formula.Node, error) {
	return p.replace(n, parents)
}

// NewPass builds a pass from functions.
func NewPass(
	name string,
	matches func(n formula.Node, parents []formula.Node) bool,
	replace func(n formula.Node, parents []formula.Node) (formula.Node, error),
) Pass {
	return passFunc{name: name, matches: matches, replace: replace}
}
