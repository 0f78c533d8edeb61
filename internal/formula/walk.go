package formula

import (
	"fmt"
	"slices"
)

// Children returns the direct children of n in evaluation order.
//
// Order per kind:
//   - FuncCall: args
//   - BinaryOp: left, right
//   - WindowFuncCall: args, partition, order-by expressions
//   - IfBlock: cond1, then1, cond2, then2, ..., else (when present)
//   - CaseBlock: subject, value1, then1, ..., else (when present)
//   - Paren, QueryFork: the wrapped expression
func Children(n Node) []Node {
	switch node := n.(type) {
	case *Literal, *Field:
		return nil
	case *FuncCall:
		return node.Args
	case *BinaryOp:
		return []Node{node.Left, node.Right}
	case *WindowFuncCall:
		out := make([]Node, 0, len(node.Args)+len(node.Partition)+len(node.OrderBy))
		out = append(out, node.Args...)
		out = append(out, node.Partition...)
		for _, o := range node.OrderBy {
			out = append(out, o.Expr)
		}
		return out
	case *IfBlock:
		out := make([]Node, 0, 2*len(node.Branches)+1)
		for _, b := range node.Branches {
			out = append(out, b.Cond, b.Then)
		}
		if node.Else != nil {
			out = append(out, node.Else)
		}
		return out
	case *CaseBlock:
		out := make([]Node, 0, 2*len(node.Whens)+2)
		out = append(out, node.Subject)
		for _, w := range node.Whens {
			out = append(out, w.Value, w.Then)
		}
		if node.Else != nil {
			out = append(out, node.Else)
		}
		return out
	case *Paren:
		return []Node{node.Expr}
	case *QueryFork:
		return []Node{node.Expr}
	default:
		panic(fmt.Sprintf("formula: unknown node type %T", n))
	}
}

// WithChildren returns n with its children replaced, in the order Children
// reports them. When every child is identical to the current one, n itself
// is returned so untouched subtrees stay shared.
func WithChildren(n Node, children []Node) Node {
	current := Children(n)
	if len(current) != len(children) {
		panic(fmt.Sprintf("formula: %T has %d children, got %d", n, len(current), len(children)))
	}
	if sameNodes(current, children) {
		return n
	}

	switch node := n.(type) {
	case *FuncCall:
		return &FuncCall{Name: node.Name, Args: slices.Clone(children)}
	case *BinaryOp:
		return &BinaryOp{Op: node.Op, Left: children[0], Right: children[1]}
	case *WindowFuncCall:
		na, np := len(node.Args), len(node.Partition)
		order := make([]WindowOrder, len(node.OrderBy))
		for i, o := range node.OrderBy {
			order[i] = WindowOrder{Expr: children[na+np+i], Desc: o.Desc}
		}
		return &WindowFuncCall{
			Name:      node.Name,
			Args:      slices.Clone(children[:na]),
			Partition: slices.Clone(children[na : na+np]),
			OrderBy:   order,
		}
	case *IfBlock:
		branches := make([]IfBranch, len(node.Branches))
		for i := range node.Branches {
			branches[i] = IfBranch{Cond: children[2*i], Then: children[2*i+1]}
		}
		var elseNode Node
		if node.Else != nil {
			elseNode = children[len(children)-1]
		}
		return &IfBlock{Branches: branches, Else: elseNode}
	case *CaseBlock:
		whens := make([]CaseWhen, len(node.Whens))
		for i := range node.Whens {
			whens[i] = CaseWhen{Value: children[1+2*i], Then: children[2+2*i]}
		}
		var elseNode Node
		if node.Else != nil {
			elseNode = children[len(children)-1]
		}
		return &CaseBlock{Subject: children[0], Whens: whens, Else: elseNode}
	case *Paren:
		return &Paren{Expr: children[0], Tag: node.Tag}
	case *QueryFork:
		return &QueryFork{Expr: children[0], Tag: node.Tag}
	default:
		// Leaves have no children; the length check above already matched.
		return n
	}
}

func sameNodes(a, b []Node) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Walk visits n and its descendants in pre-order. parents holds the
// ancestors of the visited node, root first. Returning false from fn skips
// the node's children.
func Walk(n Node, fn func(n Node, parents []Node) bool) {
	walk(n, nil, fn)
}

func walk(n Node, parents []Node, fn func(Node, []Node) bool) {
	if !fn(n, parents) {
		return
	}
	parents = append(parents, n)
	for _, child := range Children(n) {
		walk(child, parents, fn)
	}
}

// Fields returns every field reference in n, in pre-order.
func Fields(n Node) []*Field {
	var out []*Field
	Walk(n, func(node Node, _ []Node) bool {
		if f, ok := node.(*Field); ok {
			out = append(out, f)
		}
		return true
	})
	return out
}

// AvatarIDs returns the sorted set of non-empty avatar ids referenced by n.
func AvatarIDs(n Node) []string {
	var out []string
	for _, f := range Fields(n) {
		if f.Avatar != "" {
			out = append(out, f.Avatar)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// IsConstant reports whether n references no fields and no window calls.
func IsConstant(n Node) bool {
	constant := true
	Walk(n, func(node Node, _ []Node) bool {
		switch node.(type) {
		case *Field, *WindowFuncCall:
			constant = false
		}
		return constant
	})
	return constant
}

// Contains reports whether pred holds for n or any descendant.
func Contains(n Node, pred func(Node) bool) bool {
	found := false
	Walk(n, func(node Node, _ []Node) bool {
		if found {
			return false
		}
		if pred(node) {
			found = true
			return false
		}
		return true
	})
	return found
}
