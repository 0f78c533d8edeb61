package slicing

import (
	"fmt"
	"log/slog"

	"github.com/roach88/lens/internal/formula"
)

// Piece is one expression computed at a level, selected under Alias.
type Piece struct {
	Alias string
	Expr  formula.Node
}

// LevelSlice is the set of pieces a formula contributes to one level, in
// order of first appearance.
type LevelSlice struct {
	Pieces []Piece
}

// SlicedFormula is a formula cut into one slice per schema level. The last
// slice holds exactly one piece, aliased like the formula.
type SlicedFormula struct {
	Alias  string
	Slices []LevelSlice
}

// Top returns the top-level piece.
func (s SlicedFormula) Top() Piece {
	return s.Slices[len(s.Slices)-1].Pieces[0]
}

// Slicer cuts formulas according to a schema.
type Slicer struct {
	env *InspectionEnv
}

// NewSlicer creates a slicer. A nil env uses the default registry.
func NewSlicer(env *InspectionEnv) *Slicer {
	if env == nil {
		env = NewInspectionEnv()
	}
	return &Slicer{env: env}
}

// Slice cuts expr into len(schema) levels.
//
// At every level but the last, a node is upper when the level's boundary
// raises it or one of its descendants is upper; neutral nodes follow their
// parent. Maximal non-upper subtrees are extracted into the level's slice
// and replaced by placeholder fields (avatar left empty) named after the
// extracted piece. A non-upper root is extracted whole under the formula's
// own alias. The remaining expression goes to the next level.
func (s *Slicer) Slice(alias string, expr formula.Node, schema Schema) (SlicedFormula, error) {
	if len(schema) == 0 {
		return SlicedFormula{}, fmt.Errorf("slice %s: empty schema", alias)
	}
	if expr == nil {
		return SlicedFormula{}, formula.WithAlias(formula.NewCompileError(formula.ErrCodeMalformed, "empty expression"), alias)
	}

	out := SlicedFormula{Alias: alias, Slices: make([]LevelSlice, len(schema))}
	current := expr
	for level, boundary := range schema[:len(schema)-1] {
		if _, ok := boundary.(TopBoundary); ok {
			return SlicedFormula{}, fmt.Errorf("slice %s: top boundary at level %d is not last", alias, level)
		}
		c := &cut{env: s.env, boundary: boundary, alias: alias, seen: make(map[string]bool)}
		current = c.run(current)
		out.Slices[level] = LevelSlice{Pieces: c.pieces}
	}
	out.Slices[len(schema)-1] = LevelSlice{Pieces: []Piece{{Alias: alias, Expr: current}}}

	slog.Debug("formula sliced", "alias", alias, "levels", len(schema), "schema", schema.Names())
	return out, nil
}

// Placeholder returns the field that stands for an extracted piece on the
// levels above.
func Placeholder(alias string) *formula.Field {
	return &formula.Field{Name: alias}
}

// IsPlaceholder reports whether n is an unbound placeholder field.
func IsPlaceholder(n formula.Node) bool {
	f, ok := n.(*formula.Field)
	return ok && f.Avatar == ""
}

// PieceAlias is the stable alias of an extracted subtree. Placeholders keep
// their name so a column passes through intermediate levels unchanged.
func PieceAlias(n formula.Node) string {
	if f, ok := n.(*formula.Field); ok && f.Avatar == "" {
		return f.Name
	}
	return "s_" + formula.Hash(n)[:16]
}

// cut performs one level of slicing.
type cut struct {
	env      *InspectionEnv
	boundary Boundary
	alias    string

	pieces []Piece
	seen   map[string]bool
}

// classified is a node with its decision and whether its subtree contains
// a raised node.
type classified struct {
	node     formula.Node
	decision Decision
	raised   bool
	children []*classified
}

func (c *cut) run(root formula.Node) formula.Node {
	tree := c.classify(root, nil)
	if !c.isUpper(tree, false) {
		c.add(c.alias, root)
		return Placeholder(c.alias)
	}
	return c.rebuild(tree)
}

// classify runs the boundary on every node, using the original ancestors.
func (c *cut) classify(n formula.Node, parents []formula.Node) *classified {
	out := &classified{node: n, decision: c.boundary.CheckNode(n, c.env, parents)}
	out.raised = out.decision == RaiseLevel
	children := formula.Children(n)
	if len(children) > 0 {
		childParents := append(parents[:len(parents):len(parents)], n)
		out.children = make([]*classified, len(children))
		for i, child := range children {
			out.children[i] = c.classify(child, childParents)
			if out.children[i].raised {
				out.raised = true
			}
		}
	}
	return out
}

func (c *cut) isUpper(n *classified, parentUpper bool) bool {
	return n.raised || (n.decision == Neutral && parentUpper)
}

// rebuild keeps an upper node and extracts its non-upper children.
func (c *cut) rebuild(n *classified) formula.Node {
	if len(n.children) == 0 {
		return n.node
	}
	replaced := make([]formula.Node, len(n.children))
	for i, child := range n.children {
		if c.isUpper(child, true) {
			replaced[i] = c.rebuild(child)
			continue
		}
		alias := PieceAlias(child.node)
		c.add(alias, child.node)
		replaced[i] = Placeholder(alias)
	}
	return formula.WithChildren(n.node, replaced)
}

func (c *cut) add(alias string, expr formula.Node) {
	if c.seen[alias] {
		return
	}
	c.seen[alias] = true
	c.pieces = append(c.pieces, Piece{Alias: alias, Expr: expr})
}
