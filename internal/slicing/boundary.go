// Package slicing cuts formula trees into per-level pieces.
//
// A Boundary decides, node by node, what must be computed above the level
// being cut. A Schema lists one boundary per execution level; the Slicer
// walks it from the leaf up, extracting at each level the largest subtrees
// that can be computed there and replacing them with field references for
// the levels above.
package slicing

import (
	"github.com/roach88/lens/internal/formula"
)

// Decision is a boundary's verdict on one node.
type Decision int

const (
	// MaintainLevel keeps the node at the current level unless one of its
	// descendants is raised.
	MaintainLevel Decision = iota

	// Neutral lets the node follow its parent: it is computed wherever the
	// parent is.
	Neutral

	// RaiseLevel moves the node above the current level.
	RaiseLevel
)

func (d Decision) String() string {
	switch d {
	case MaintainLevel:
		return "maintain"
	case Neutral:
		return "neutral"
	case RaiseLevel:
		return "raise"
	default:
		return "unknown"
	}
}

// InspectionEnv answers questions about function names.
type InspectionEnv struct {
	Registry *formula.Registry
}

// NewInspectionEnv builds an env over the default function registry.
func NewInspectionEnv() *InspectionEnv {
	return &InspectionEnv{Registry: formula.DefaultRegistry()}
}

// IsAggregate reports whether n is an aggregate call.
func (e *InspectionEnv) IsAggregate(n formula.Node) bool {
	return e.Registry.IsAggregateCall(n)
}

// IsWindow reports whether n is a window call.
func (e *InspectionEnv) IsWindow(n formula.Node) bool {
	return formula.IsWindowCall(n)
}

// ContainsAggregate reports whether n has an aggregate call anywhere.
func (e *InspectionEnv) ContainsAggregate(n formula.Node) bool {
	return e.Registry.ContainsAggregate(n)
}

// ContainsWindow reports whether n has a window call anywhere.
func (e *InspectionEnv) ContainsWindow(n formula.Node) bool {
	return formula.ContainsWindow(n)
}

// Boundary classifies nodes relative to one level cut.
type Boundary interface {
	// Name identifies the boundary in logs and explain output.
	Name() string

	// CheckNode classifies n. parents holds n's ancestors, root first.
	CheckNode(n formula.Node, env *InspectionEnv, parents []formula.Node) Decision
}

// AggregateBoundary raises aggregate calls. Constant subexpressions are
// neutral.
type AggregateBoundary struct{}

func (AggregateBoundary) Name() string { return "aggregate" }

func (AggregateBoundary) CheckNode(n formula.Node, env *InspectionEnv, _ []formula.Node) Decision {
	if env.IsAggregate(n) {
		return RaiseLevel
	}
	if formula.IsConstant(n) {
		return Neutral
	}
	return MaintainLevel
}

// WindowBoundary raises window calls. Constant subexpressions are neutral.
type WindowBoundary struct{}

func (WindowBoundary) Name() string { return "window" }

func (WindowBoundary) CheckNode(n formula.Node, env *InspectionEnv, _ []formula.Node) Decision {
	if env.IsWindow(n) {
		return RaiseLevel
	}
	if formula.IsConstant(n) {
		return Neutral
	}
	return MaintainLevel
}

// NonFieldsBoundary raises everything except bare field references, so
// only column reads stay at the current level.
type NonFieldsBoundary struct{}

func (NonFieldsBoundary) Name() string { return "non_fields" }

func (NonFieldsBoundary) CheckNode(n formula.Node, _ *InspectionEnv, _ []formula.Node) Decision {
	if _, ok := n.(*formula.Field); ok {
		return MaintainLevel
	}
	return RaiseLevel
}

// TopBoundary raises nothing. It closes every schema.
type TopBoundary struct{}

func (TopBoundary) Name() string { return "top" }

func (TopBoundary) CheckNode(formula.Node, *InspectionEnv, []formula.Node) Decision {
	return MaintainLevel
}

// LevelTagBoundary cuts by level tag. A node whose resolved tag is below Cut
// is raised. A node whose tag equals Cut is raised only when it bears the tag
// itself; descendants that inherit the tag stay at this level.
// Untagged constants are neutral. Other untagged nodes and nodes with tags
// incomparable to Cut are maintained.
type LevelTagBoundary struct {
	Cut *formula.LevelTag
}

func (b LevelTagBoundary) Name() string { return "level_tag" + b.Cut.String() }

func (b LevelTagBoundary) CheckNode(n formula.Node, env *InspectionEnv, parents []formula.Node) Decision {
	tag, bearer := ResolveTag(n, env, parents)
	if tag == nil {
		if formula.IsConstant(n) {
			return Neutral
		}
		return MaintainLevel
	}
	c, ok := tag.Compare(b.Cut)
	switch {
	case !ok:
		return MaintainLevel
	case c < 0:
		return RaiseLevel
	case c == 0 && bearer:
		return RaiseLevel
	default:
		return MaintainLevel
	}
}

// ResolveTag returns the level tag that applies to n and whether n carries
// it itself.
//
//   - query forks and tagged parens bear their own tag;
//   - an aggregate call directly wrapped by a fork inherits the fork's tag;
//   - a window call inherits the tag of its nearest tag-bearing ancestor;
//   - everything else is untagged.
func ResolveTag(n formula.Node, env *InspectionEnv, parents []formula.Node) (*formula.LevelTag, bool) {
	if tag := formula.TagOf(n); tag != nil {
		return tag, true
	}
	if env.IsAggregate(n) && len(parents) > 0 {
		if fork, ok := parents[len(parents)-1].(*formula.QueryFork); ok && fork.Tag != nil {
			return fork.Tag, false
		}
		return nil, false
	}
	if env.IsWindow(n) {
		for i := len(parents) - 1; i >= 0; i-- {
			if tag := formula.TagOf(parents[i]); tag != nil {
				return tag, false
			}
		}
	}
	return nil, false
}

// CollectTags returns every tag that applies to a window call or a forked
// aggregate in n, deduplicated.
func CollectTags(n formula.Node, env *InspectionEnv) []*formula.LevelTag {
	var out []*formula.LevelTag
	formula.Walk(n, func(node formula.Node, parents []formula.Node) bool {
		if !env.IsWindow(node) && !env.IsAggregate(node) {
			return true
		}
		tag, _ := ResolveTag(node, env, parents)
		if tag == nil {
			return true
		}
		for _, seen := range out {
			if seen.Equal(tag) {
				return true
			}
		}
		out = append(out, tag)
		return true
	})
	return out
}

// Schema is the ordered list of boundaries for one formula, leaf level
// first. The last entry is the top boundary.
type Schema []Boundary

// Names returns the boundary names, for logs.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, b := range s {
		out[i] = b.Name()
	}
	return out
}
