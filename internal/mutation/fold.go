package mutation

import (
	"math"

	"github.com/roach88/lens/internal/dialect"
	"github.com/roach88/lens/internal/formula"
)

// invertedComparison maps a comparison operator to its negation.
var invertedComparison = map[string]string{
	">":     "<=",
	">=":    "<",
	"<":     ">=",
	"<=":    ">",
	"==":    "!=",
	"!=":    "==",
	"in":    "notin",
	"notin": "in",
}

// FoldConstComparison folds == and != between two literals of the same
// concrete type. Literals of different types, and NULL literals, are left
// alone.
func FoldConstComparison() Pass {
	return NewPass("fold_const_comparison",
		func(n formula.Node, _ []formula.Node) bool {
			op, ok := n.(*formula.BinaryOp)
			if !ok || (op.Op != "==" && op.Op != "!=") {
				return false
			}
			left, lok := formula.LiteralValue(op.Left)
			right, rok := formula.LiteralValue(op.Right)
			if !lok || !rok || !formula.SameType(left, right) {
				return false
			}
			_, null := left.(formula.Null)
			return !null
		},
		func(n formula.Node, _ []formula.Node) (formula.Node, error) {
			op := n.(*formula.BinaryOp)
			left, _ := formula.LiteralValue(op.Left)
			right, _ := formula.LiteralValue(op.Right)
			equal := left == right
			if op.Op == "!=" {
				equal = !equal
			}
			return &formula.Literal{Value: formula.Boolean(equal)}, nil
		},
	)
}

// FoldConstAndOr folds and/or when at least one operand is a boolean
// literal: and(false, x) = false, and(true, x) = x, or(true, x) = true,
// or(false, x) = x, in either operand order.
func FoldConstAndOr() Pass {
	return NewPass("fold_const_and_or",
		func(n formula.Node, _ []formula.Node) bool {
			op, ok := n.(*formula.BinaryOp)
			if !ok || (op.Op != "and" && op.Op != "or") {
				return false
			}
			_, lok := boolLiteral(op.Left)
			_, rok := boolLiteral(op.Right)
			return lok || rok
		},
		func(n formula.Node, _ []formula.Node) (formula.Node, error) {
			op := n.(*formula.BinaryOp)
			lit, other := op.Left, op.Right
			value, ok := boolLiteral(lit)
			if !ok {
				lit, other = op.Right, op.Left
				value, _ = boolLiteral(lit)
			}
			// and: true is neutral, false absorbs. or: the reverse.
			absorbing := op.Op == "or"
			if value == absorbing {
				return lit, nil
			}
			return other, nil
		},
	)
}

// FoldUnaryPredicate folds single-argument predicates on a literal argument
// using the fold table entry for the target dialect.
func FoldUnaryPredicate(table FoldTable, d dialect.Dialect) Pass {
	return NewPass("fold_unary_predicate",
		func(n formula.Node, _ []formula.Node) bool {
			call, ok := n.(*formula.FuncCall)
			if !ok || len(call.Args) != 1 {
				return false
			}
			if _, ok := call.Args[0].(*formula.Literal); !ok {
				return false
			}
			_, ok = table.Lookup(call.Name, d)
			return ok
		},
		func(n formula.Node, _ []formula.Node) (formula.Node, error) {
			call := n.(*formula.FuncCall)
			fn, _ := table.Lookup(call.Name, d)
			value, ok := fn(call.Args[0].(*formula.Literal).Value)
			if !ok {
				return n, nil
			}
			return &formula.Literal{Value: value}, nil
		},
	)
}

// FoldConstMath folds + - * / between numeric literals. Integer + - * stay
// integers, everything else becomes a float. Division by zero and integer
// overflow are left for the backend to report.
func FoldConstMath() Pass {
	return NewPass("fold_const_math",
		func(n formula.Node, _ []formula.Node) bool {
			_, ok := foldMath(n)
			return ok
		},
		func(n formula.Node, _ []formula.Node) (formula.Node, error) {
			value, _ := foldMath(n)
			return &formula.Literal{Value: value}, nil
		},
	)
}

func foldMath(n formula.Node) (formula.Value, bool) {
	op, ok := n.(*formula.BinaryOp)
	if !ok {
		return nil, false
	}
	left, lok := formula.LiteralValue(op.Left)
	right, rok := formula.LiteralValue(op.Right)
	if !lok || !rok {
		return nil, false
	}

	li, lInt := left.(formula.Integer)
	ri, rInt := right.(formula.Integer)
	if lInt && rInt && op.Op != "/" {
		a, b := int64(li), int64(ri)
		switch op.Op {
		case "+":
			if s := a + b; (s > a) == (b > 0) {
				return formula.Integer(s), true
			}
		case "-":
			if d := a - b; (d < a) == (b > 0) {
				return formula.Integer(d), true
			}
		case "*":
			if a == 0 || b == 0 {
				return formula.Integer(0), true
			}
			if p := a * b; p/b == a && !(a == -1 && b == math.MinInt64) && !(b == -1 && a == math.MinInt64) {
				return formula.Integer(p), true
			}
		}
		return nil, false
	}

	a, aok := numeric(left)
	b, bok := numeric(right)
	if !aok || !bok {
		return nil, false
	}
	switch op.Op {
	case "+":
		return formula.Float(a + b), true
	case "-":
		return formula.Float(a - b), true
	case "*":
		return formula.Float(a * b), true
	case "/":
		if b == 0 {
			return nil, false
		}
		return formula.Float(a / b), true
	}
	return nil, false
}

// FoldComparisonOfComparison removes comparisons of a comparison with a
// boolean: (a < b) == true becomes a < b and (a < b) == false becomes a >= b.
// Integer 1 and 0 count as true and false.
func FoldComparisonOfComparison() Pass {
	isComparison := func(inner formula.Node) bool {
		b, ok := inner.(*formula.BinaryOp)
		if !ok {
			return false
		}
		_, known := invertedComparison[b.Op]
		return known
	}
	return NewPass("fold_comparison_of_comparison",
		func(n formula.Node, _ []formula.Node) bool {
			_, _, ok := comparedWithBool(n, isComparison)
			return ok
		},
		func(n formula.Node, _ []formula.Node) (formula.Node, error) {
			inner, keep, _ := comparedWithBool(n, isComparison)
			cmp := inner.(*formula.BinaryOp)
			if keep {
				return cmp, nil
			}
			return formula.Op(invertedComparison[cmp.Op], cmp.Left, cmp.Right), nil
		},
	)
}

// FoldNegatedAndOr rewrites (a and b) == false as not(a and b) and
// (a and b) == true as a and b. The same holds for or and for != with the
// opposite literal.
func FoldNegatedAndOr() Pass {
	isAndOr := func(inner formula.Node) bool {
		b, ok := inner.(*formula.BinaryOp)
		return ok && (b.Op == "and" || b.Op == "or")
	}
	return NewPass("fold_negated_and_or",
		func(n formula.Node, _ []formula.Node) bool {
			_, _, ok := comparedWithBool(n, isAndOr)
			return ok
		},
		func(n formula.Node, _ []formula.Node) (formula.Node, error) {
			inner, keep, _ := comparedWithBool(n, isAndOr)
			if keep {
				return inner, nil
			}
			return formula.Call("not", inner), nil
		},
	)
}

// comparedWithBool matches "inner ==/!= bool" in either operand order, where
// accept(inner) holds. keep reports whether the comparison is equivalent to
// inner itself (true) or to its negation (false).
func comparedWithBool(n formula.Node, accept func(formula.Node) bool) (inner formula.Node, keep bool, ok bool) {
	op, isOp := n.(*formula.BinaryOp)
	if !isOp || (op.Op != "==" && op.Op != "!=") {
		return nil, false, false
	}
	for _, pair := range [][2]formula.Node{{op.Left, op.Right}, {op.Right, op.Left}} {
		value, isBool := truthLiteral(pair[1])
		if !isBool || !accept(pair[0]) {
			continue
		}
		keep = value
		if op.Op == "!=" {
			keep = !keep
		}
		return pair[0], keep, true
	}
	return nil, false, false
}

// FoldConstBranches prunes if/case calls whose conditions are literals.
// It expects the desugared call form.
func FoldConstBranches() Pass {
	return NewPass("fold_const_branches",
		func(n formula.Node, _ []formula.Node) bool {
			call, ok := n.(*formula.FuncCall)
			if !ok {
				return false
			}
			switch call.Name {
			case "if":
				for i := 0; i+1 < len(call.Args); i += 2 {
					if _, ok := conditionLiteral(call.Args[i]); ok {
						return true
					}
				}
			case "case":
				return caseFoldable(call)
			}
			return false
		},
		func(n formula.Node, _ []formula.Node) (formula.Node, error) {
			call := n.(*formula.FuncCall)
			if call.Name == "if" {
				return pruneIf(call)
			}
			return pruneCase(call)
		},
	)
}

func pruneIf(call *formula.FuncCall) (formula.Node, error) {
	if len(call.Args) < 3 || len(call.Args)%2 == 0 {
		return nil, formula.NewCompileError(formula.ErrCodeArgumentCount,
			"if expects condition/result pairs and an else argument, got %d arguments", len(call.Args))
	}
	elseNode := call.Args[len(call.Args)-1]
	var kept []formula.Node
	for i := 0; i+1 < len(call.Args); i += 2 {
		cond, then := call.Args[i], call.Args[i+1]
		value, ok := conditionLiteral(cond)
		if !ok {
			kept = append(kept, cond, then)
			continue
		}
		if value {
			// Everything after a true condition is unreachable.
			elseNode = then
			break
		}
	}
	if len(kept) == 0 {
		return elseNode, nil
	}
	return formula.Call("if", append(kept, elseNode)...), nil
}

func caseFoldable(call *formula.FuncCall) bool {
	if len(call.Args) < 3 {
		return false
	}
	subject, ok := formula.LiteralValue(call.Args[0])
	if !ok {
		return false
	}
	if _, null := subject.(formula.Null); null {
		return false
	}
	for i := 1; i+1 < len(call.Args); i += 2 {
		value, ok := formula.LiteralValue(call.Args[i])
		if !ok || !formula.SameType(subject, value) {
			return false
		}
	}
	return true
}

func pruneCase(call *formula.FuncCall) (formula.Node, error) {
	if len(call.Args) < 3 {
		return nil, formula.NewCompileError(formula.ErrCodeArgumentCount,
			"case expects a subject and at least one value/result pair, got %d arguments", len(call.Args))
	}
	subject, _ := formula.LiteralValue(call.Args[0])
	pairsEnd := len(call.Args)
	var elseNode formula.Node = &formula.Literal{Value: formula.Null{}}
	if (len(call.Args)-1)%2 == 1 {
		pairsEnd--
		elseNode = call.Args[pairsEnd]
	}
	for i := 1; i+1 < pairsEnd; i += 2 {
		value, _ := formula.LiteralValue(call.Args[i])
		if value == subject {
			return call.Args[i+1], nil
		}
	}
	return elseNode, nil
}

// conditionLiteral treats boolean literals as themselves and NULL as false.
func conditionLiteral(n formula.Node) (bool, bool) {
	value, ok := formula.LiteralValue(n)
	if !ok {
		return false, false
	}
	switch v := value.(type) {
	case formula.Boolean:
		return bool(v), true
	case formula.Null:
		return false, true
	default:
		return false, false
	}
}

func boolLiteral(n formula.Node) (bool, bool) {
	value, ok := formula.LiteralValue(n)
	if !ok {
		return false, false
	}
	b, ok := value.(formula.Boolean)
	return bool(b), ok
}

// truthLiteral accepts boolean literals and the integers 1 and 0.
func truthLiteral(n formula.Node) (bool, bool) {
	value, ok := formula.LiteralValue(n)
	if !ok {
		return false, false
	}
	switch v := value.(type) {
	case formula.Boolean:
		return bool(v), true
	case formula.Integer:
		if v == 0 || v == 1 {
			return v == 1, true
		}
	}
	return false, false
}

func numeric(v formula.Value) (float64, bool) {
	switch n := v.(type) {
	case formula.Integer:
		return float64(n), true
	case formula.Float:
		return float64(n), true
	default:
		return 0, false
	}
}

// DefaultPasses returns the normalisation passes in canonical order: parens
// and control blocks first, then the folds, each fold ahead of the folds its
// output can enable.
func DefaultPasses(table FoldTable, d dialect.Dialect) []Pass {
	return []Pass{
		RemoveParens(),
		DesugarIf(),
		DesugarCase(),
		FoldConstMath(),
		FoldConstComparison(),
		FoldComparisonOfComparison(),
		FoldNegatedAndOr(),
		FoldUnaryPredicate(table, d),
		FoldConstAndOr(),
		FoldConstBranches(),
	}
}
