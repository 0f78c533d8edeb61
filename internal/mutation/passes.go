package mutation

import (
	"github.com/roach88/lens/internal/formula"
)

// RemoveParens unwraps parentheses that carry no level tag.
func RemoveParens() Pass {
	return NewPass("remove_parens",
		func(n formula.Node, _ []formula.Node) bool {
			p, ok := n.(*formula.Paren)
			return ok && p.Tag == nil
		},
		func(n formula.Node, _ []formula.Node) (formula.Node, error) {
			return n.(*formula.Paren).Expr, nil
		},
	)
}

// DesugarIf turns an IfBlock into if(c1, r1, c2, r2, ..., else).
// The else argument is always present; a missing ELSE becomes NULL.
func DesugarIf() Pass {
	return NewPass("desugar_if",
		func(n formula.Node, _ []formula.Node) bool {
			_, ok := n.(*formula.IfBlock)
			return ok
		},
		func(n formula.Node, _ []formula.Node) (formula.Node, error) {
			block := n.(*formula.IfBlock)
			if len(block.Branches) == 0 {
				return nil, formula.NewCompileError(formula.ErrCodeMalformed, "IF block without branches")
			}
			args := make([]formula.Node, 0, 2*len(block.Branches)+1)
			for i, b := range block.Branches {
				if b.Cond == nil || b.Then == nil {
					return nil, formula.NewCompileError(formula.ErrCodeMalformed, "IF branch %d is missing its condition or result", i)
				}
				args = append(args, b.Cond, b.Then)
			}
			elseNode := block.Else
			if elseNode == nil {
				elseNode = &formula.Literal{Value: formula.Null{}}
			}
			args = append(args, elseNode)
			return formula.Call("if", args...), nil
		},
	)
}

// DesugarCase turns a CaseBlock into case(subject, v1, r1, ..., [else]).
// Without an ELSE branch only the matched pairs are kept.
func DesugarCase() Pass {
	return NewPass("desugar_case",
		func(n formula.Node, _ []formula.Node) bool {
			_, ok := n.(*formula.CaseBlock)
			return ok
		},
		func(n formula.Node, _ []formula.Node) (formula.Node, error) {
			block := n.(*formula.CaseBlock)
			if block.Subject == nil {
				return nil, formula.NewCompileError(formula.ErrCodeMalformed, "CASE block without subject")
			}
			if len(block.Whens) == 0 {
				return nil, formula.NewCompileError(formula.ErrCodeMalformed, "CASE block without WHEN arms")
			}
			args := make([]formula.Node, 0, 2*len(block.Whens)+2)
			args = append(args, block.Subject)
			for i, w := range block.Whens {
				if w.Value == nil || w.Then == nil {
					return nil, formula.NewCompileError(formula.ErrCodeMalformed, "CASE arm %d is missing its value or result", i)
				}
				args = append(args, w.Value, w.Then)
			}
			if block.Else != nil {
				args = append(args, block.Else)
			}
			return formula.Call("case", args...), nil
		},
	)
}
