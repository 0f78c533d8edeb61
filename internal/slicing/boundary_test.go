package slicing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/lens/internal/formula"
)

func TestAggregateBoundary(t *testing.T) {
	env := NewInspectionEnv()
	b := AggregateBoundary{}

	assert.Equal(t, RaiseLevel, b.CheckNode(formula.Call("sum", formula.Ref("t", "x")), env, nil))
	assert.Equal(t, RaiseLevel, b.CheckNode(formula.Call("SUM", formula.Ref("t", "x")), env, nil))
	assert.Equal(t, Neutral, b.CheckNode(formula.Op("+", formula.Lit(1), formula.Lit(2)), env, nil))
	assert.Equal(t, MaintainLevel, b.CheckNode(formula.Call("abs", formula.Ref("t", "x")), env, nil))
}

func TestWindowBoundary(t *testing.T) {
	env := NewInspectionEnv()
	b := WindowBoundary{}

	assert.Equal(t, RaiseLevel, b.CheckNode(formula.Window("rank", nil), env, nil))
	assert.Equal(t, Neutral, b.CheckNode(formula.Lit("x"), env, nil))
	assert.Equal(t, MaintainLevel, b.CheckNode(formula.Call("sum", formula.Ref("t", "x")), env, nil))
}

func TestNonFieldsBoundary(t *testing.T) {
	env := NewInspectionEnv()
	b := NonFieldsBoundary{}

	assert.Equal(t, MaintainLevel, b.CheckNode(formula.Ref("t", "x"), env, nil))
	assert.Equal(t, RaiseLevel, b.CheckNode(formula.Lit(1), env, nil))
	assert.Equal(t, RaiseLevel, b.CheckNode(formula.Call("upper", formula.Ref("t", "x")), env, nil))
}

func TestResolveTag(t *testing.T) {
	env := NewInspectionEnv()
	tag := formula.NewLevelTag(0, "city")

	sum := formula.Call("sum", formula.Ref("t", "x"))
	fork := formula.Fork(tag, sum)

	got, bearer := ResolveTag(fork, env, nil)
	assert.Same(t, tag, got)
	assert.True(t, bearer)

	got, bearer = ResolveTag(sum, env, []formula.Node{fork})
	assert.Same(t, tag, got)
	assert.False(t, bearer)

	// Not directly under the fork.
	wrapped := formula.Call("abs", sum)
	got, _ = ResolveTag(sum, env, []formula.Node{formula.Fork(tag, wrapped), wrapped})
	assert.Nil(t, got)

	win := formula.Window("rsum", []formula.Node{formula.Ref("t", "x")})
	paren := &formula.Paren{Expr: formula.Call("abs", win), Tag: tag}
	got, bearer = ResolveTag(win, env, []formula.Node{paren, paren.Expr})
	assert.Same(t, tag, got)
	assert.False(t, bearer)

	got, _ = ResolveTag(win, env, nil)
	assert.Nil(t, got, "window without a tagged wrapper is untagged")
}

func TestLevelTagBoundary(t *testing.T) {
	env := NewInspectionEnv()
	cut := formula.NewLevelTag(0, "a")
	b := LevelTagBoundary{Cut: cut}

	below := formula.NewLevelTag(-1, "a")
	above := formula.NewLevelTag(0, "a", "b")
	other := formula.NewLevelTag(0, "c")

	win := formula.Window("rsum", nil)

	tests := []struct {
		name    string
		node    formula.Node
		parents []formula.Node
		want    Decision
	}{
		{"bearer below cut", &formula.Paren{Expr: win, Tag: below}, nil, RaiseLevel},
		{"bearer equal to cut", &formula.Paren{Expr: win, Tag: cut}, nil, RaiseLevel},
		{"inherited equal to cut", win, []formula.Node{&formula.Paren{Expr: win, Tag: cut}}, MaintainLevel},
		{"inherited below cut", win, []formula.Node{&formula.Paren{Expr: win, Tag: below}}, RaiseLevel},
		{"bearer above cut", &formula.Paren{Expr: win, Tag: above}, nil, MaintainLevel},
		{"incomparable", &formula.Paren{Expr: win, Tag: other}, nil, MaintainLevel},
		{"untagged window", win, nil, MaintainLevel},
		{"plain field", formula.Ref("t", "x"), nil, MaintainLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.CheckNode(tt.node, env, tt.parents))
		})
	}
}

func TestCollectTags(t *testing.T) {
	env := NewInspectionEnv()
	a := formula.NewLevelTag(0, "a")
	ab := formula.NewLevelTag(0, "a", "b")

	expr := formula.Op("+",
		&formula.Paren{Tag: a, Expr: formula.Window("rsum", []formula.Node{formula.Ref("t", "x")})},
		formula.Op("*",
			formula.Fork(ab, formula.Call("sum", formula.Ref("t", "y"))),
			&formula.Paren{Tag: formula.NewLevelTag(0, "a"), Expr: formula.Window("rank", nil)},
		),
	)

	tags := CollectTags(expr, env)

	assert.Len(t, tags, 2)
	assert.True(t, tags[0].Equal(a))
	assert.True(t, tags[1].Equal(ab))
}

func TestSchemaNames(t *testing.T) {
	s := Schema{WindowBoundary{}, LevelTagBoundary{Cut: formula.NewLevelTag(1, "a")}, TopBoundary{}}

	assert.Equal(t, []string{"window", "level_tag({a},1)", "top"}, s.Names())
}
