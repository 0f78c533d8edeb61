package formula

// Node is a sealed interface over formula AST nodes.
//
// Node kinds:
//   - *Literal: constant value
//   - *Field: reference to a column of an avatar (or of a lower level)
//   - *FuncCall: scalar or aggregate function call
//   - *BinaryOp: infix operator (comparisons, arithmetic, and/or)
//   - *WindowFuncCall: window function with partition and ordering
//   - *IfBlock, *CaseBlock: control blocks, desugared into calls by mutation
//   - *Paren: parenthesised expression, optionally carrying a level tag
//   - *QueryFork: marker forcing evaluation at another grouping level
//
// Nodes must not be modified after construction.
type Node interface {
	node()
}

// Literal is a constant.
type Literal struct {
	Value Value
}

// Field references a column. Avatar is the id of the avatar (or, above the
// leaf level, of the lower-level query) that produces it. Avatar is empty for
// placeholders created by slicing until the separator binds them.
type Field struct {
	Name   string
	Avatar string
}

// FuncCall is a function call. Name is lowercase.
type FuncCall struct {
	Name string
	Args []Node
}

// BinaryOp is an infix operator such as "==", "<", "+" or "and".
type BinaryOp struct {
	Op    string
	Left  Node
	Right Node
}

// WindowOrder is one ORDER BY item of a window call.
type WindowOrder struct {
	Expr Node
	Desc bool
}

// WindowFuncCall is a window function call.
type WindowFuncCall struct {
	Name      string
	Args      []Node
	Partition []Node
	OrderBy   []WindowOrder
}

// IfBranch is one condition/result pair of an IfBlock.
type IfBranch struct {
	Cond Node
	Then Node
}

// IfBlock is IF c1 THEN r1 ELSEIF c2 THEN r2 ... ELSE e END.
// Else is nil when the source had no ELSE branch.
type IfBlock struct {
	Branches []IfBranch
	Else     Node
}

// CaseWhen is one WHEN value THEN result pair of a CaseBlock.
type CaseWhen struct {
	Value Node
	Then  Node
}

// CaseBlock is CASE subject WHEN v1 THEN r1 ... ELSE e END.
// Else is nil when the source had no ELSE branch.
type CaseBlock struct {
	Subject Node
	Whens   []CaseWhen
	Else    Node
}

// Paren wraps an expression. A Paren without a tag is semantically inert.
type Paren struct {
	Expr Node
	Tag  *LevelTag
}

// QueryFork marks an expression that is evaluated at the grouping level
// described by its tag.
type QueryFork struct {
	Expr Node
	Tag  *LevelTag
}

func (*Literal) node()        {}
func (*Field) node()          {}
func (*FuncCall) node()       {}
func (*BinaryOp) node()       {}
func (*WindowFuncCall) node() {}
func (*IfBlock) node()        {}
func (*CaseBlock) node()      {}
func (*Paren) node()          {}
func (*QueryFork) node()      {}

// Lit builds a literal node from a Go scalar. It panics on unsupported types
// and is meant for tests and fixtures.
func Lit(v any) *Literal {
	val, err := FromNative(v)
	if err != nil {
		panic(err)
	}
	return &Literal{Value: val}
}

// Ref builds a field reference.
func Ref(avatar, name string) *Field {
	return &Field{Name: name, Avatar: avatar}
}

// Call builds a function call.
func Call(name string, args ...Node) *FuncCall {
	return &FuncCall{Name: name, Args: args}
}

// Op builds a binary operator node.
func Op(op string, left, right Node) *BinaryOp {
	return &BinaryOp{Op: op, Left: left, Right: right}
}

// Window builds a window call without ordering.
func Window(name string, args []Node, partition ...Node) *WindowFuncCall {
	return &WindowFuncCall{Name: name, Args: args, Partition: partition}
}

// Fork builds a query fork with the given tag.
func Fork(tag *LevelTag, expr Node) *QueryFork {
	return &QueryFork{Expr: expr, Tag: tag}
}

// TagOf returns the tag carried by n itself, if any.
// Only Paren and QueryFork carry tags.
func TagOf(n Node) *LevelTag {
	switch node := n.(type) {
	case *Paren:
		return node.Tag
	case *QueryFork:
		return node.Tag
	default:
		return nil
	}
}

// LiteralValue returns the literal value of n when n is a Literal.
func LiteralValue(n Node) (Value, bool) {
	if lit, ok := n.(*Literal); ok {
		return lit.Value, true
	}
	return nil, false
}
