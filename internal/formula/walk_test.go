package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildren_Order(t *testing.T) {
	c1, t1, e := Lit(true), Lit(1), Lit(2)
	ifBlock := &IfBlock{Branches: []IfBranch{{Cond: c1, Then: t1}}, Else: e}

	assert.Equal(t, []Node{c1, t1, e}, Children(ifBlock))

	subject, v, r := Ref("t", "x"), Lit("a"), Lit(10)
	caseBlock := &CaseBlock{Subject: subject, Whens: []CaseWhen{{Value: v, Then: r}}}
	assert.Equal(t, []Node{subject, v, r}, Children(caseBlock))

	arg, part, ord := Ref("t", "a"), Ref("t", "p"), Ref("t", "o")
	w := &WindowFuncCall{Name: "rank", Args: []Node{arg}, Partition: []Node{part}, OrderBy: []WindowOrder{{Expr: ord, Desc: true}}}
	assert.Equal(t, []Node{arg, part, ord}, Children(w))
}

func TestWithChildren_SharesUnchanged(t *testing.T) {
	left := Ref("t", "a")
	right := Lit(1)
	op := Op("+", left, right)

	same := WithChildren(op, []Node{left, right})
	assert.Same(t, op, same)

	replaced := WithChildren(op, []Node{left, Lit(2)})
	require.NotSame(t, op, replaced)
	assert.Same(t, left, replaced.(*BinaryOp).Left)
	assert.Equal(t, "+", replaced.(*BinaryOp).Op)
}

func TestWithChildren_Window(t *testing.T) {
	w := &WindowFuncCall{
		Name:      "rank",
		Args:      []Node{Ref("t", "a")},
		Partition: []Node{Ref("t", "p")},
		OrderBy:   []WindowOrder{{Expr: Ref("t", "o"), Desc: true}},
	}
	newOrder := Ref("t", "z")

	out := WithChildren(w, []Node{w.Args[0], w.Partition[0], newOrder}).(*WindowFuncCall)

	assert.Same(t, newOrder, out.OrderBy[0].Expr)
	assert.True(t, out.OrderBy[0].Desc)
	assert.Same(t, w.Partition[0], out.Partition[0])
}

func TestWithChildren_WrongArity(t *testing.T) {
	assert.Panics(t, func() {
		WithChildren(Call("sum", Lit(1)), []Node{Lit(1), Lit(2)})
	})
}

func TestWalk_ParentsAndSkip(t *testing.T) {
	inner := Call("sum", Ref("t", "x"))
	root := Op("+", inner, Lit(1))

	var visited []string
	Walk(root, func(n Node, parents []Node) bool {
		visited = append(visited, Format(n))
		if n == inner {
			assert.Equal(t, []Node{root}, parents)
			return false
		}
		return true
	})

	assert.Equal(t, []string{"(SUM([t].[x]) + 1)", "SUM([t].[x])", "1"}, visited)
}

func TestAvatarIDs(t *testing.T) {
	n := Op("+", Ref("b", "x"), Call("sum", Ref("a", "y"), Ref("b", "z"), Ref("", "placeholder")))

	assert.Equal(t, []string{"a", "b"}, AvatarIDs(n))
}

func TestIsConstant(t *testing.T) {
	assert.True(t, IsConstant(Op("+", Lit(1), Lit(2))))
	assert.False(t, IsConstant(Op("+", Lit(1), Ref("t", "x"))))
	assert.False(t, IsConstant(Window("row_number", nil)))
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.True(t, r.IsAggregate("SUM"))
	assert.False(t, r.IsAggregate("upper"))
	assert.True(t, r.ContainsAggregate(Op("+", Call("count", Ref("t", "x")), Lit(1))))
	assert.True(t, ContainsWindow(Op("*", Window("rank", nil), Lit(2))))
}
