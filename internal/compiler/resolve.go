package compiler

import (
	"github.com/roach88/lens/internal/formula"
)

// resolver expands dataset field references into avatar expressions.
type resolver struct {
	dataset *Dataset
	params  map[string]formula.Value
	done    map[string]formula.Node
	active  map[string]bool
}

func newResolver(d *Dataset, params map[string]formula.Value) *resolver {
	return &resolver{
		dataset: d,
		params:  params,
		done:    make(map[string]formula.Node),
		active:  make(map[string]bool),
	}
}

// field returns the expanded expression of a dataset field.
func (r *resolver) field(id string) (formula.Node, error) {
	if v, ok := r.params[id]; ok {
		return &formula.Literal{Value: v}, nil
	}
	if expr, ok := r.done[id]; ok {
		return expr, nil
	}
	if r.active[id] {
		return nil, formula.NewCompileError(formula.ErrCodeMalformed, "field %q references itself", id)
	}
	f, ok := r.dataset.Field(id)
	if !ok {
		return nil, formula.NewCompileError(formula.ErrCodeUnknownField, "unknown field %q", id)
	}
	if f.Expr == nil {
		return nil, formula.NewCompileError(formula.ErrCodeMalformed, "field %q has no expression", id)
	}

	r.active[id] = true
	expr, err := r.expand(f.Expr)
	delete(r.active, id)
	if err != nil {
		return nil, err
	}
	r.done[id] = expr
	return expr, nil
}

// expand replaces every dataset field reference in n.
func (r *resolver) expand(n formula.Node) (formula.Node, error) {
	if id, ok := fieldRef(n); ok {
		return r.field(id)
	}
	children := formula.Children(n)
	if len(children) == 0 {
		return n, nil
	}
	out := make([]formula.Node, len(children))
	for i, c := range children {
		if c == nil {
			continue
		}
		expanded, err := r.expand(c)
		if err != nil {
			return nil, err
		}
		out[i] = expanded
	}
	return formula.WithChildren(n, out), nil
}
