package engine

import (
	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/query"
)

// cacheKey is the content identity of q within namespace. Query ids are
// left out: every subquery input is renamed after the key of the query it
// reads, so equal plans compiled by different requests share cache entries.
func cacheKey(namespace string, q *query.CompiledQuery, inputKeys map[string]string) (string, error) {
	renamed := make(map[string]string)
	froms := make([]any, 0, len(q.From.Froms))
	for _, f := range q.From.Froms {
		switch from := f.(type) {
		case query.AvatarFrom:
			froms = append(froms, map[string]any{"id": from.ID, "table": from.Table})
		case query.SubqueryFrom:
			renamed[from.ID] = "input:" + inputKeys[from.QueryID]
			froms = append(froms, map[string]any{"id": renamed[from.ID]})
		}
	}
	root := q.From.RootID
	if to, ok := renamed[root]; ok {
		root = to
	}

	v := map[string]any{
		"namespace": namespace,
		"level":     string(q.LevelType),
		"root":      root,
		"from":      froms,
		"select":    formulaKeys(q.Select, renamed),
		"group_by":  formulaKeys(q.GroupBy, renamed),
		"order_by":  formulaKeys(q.OrderBy, renamed),
		"filters":   formulaKeys(q.Filters, renamed),
		"join_on":   formulaKeys(q.JoinOn, renamed),
		"limit":     optionalInt(q.Limit),
		"offset":    optionalInt(q.Offset),
	}
	return formula.HashCanonical(formula.DomainQuery, v)
}

func formulaKeys(formulas []query.CompiledFormula, renamed map[string]string) []any {
	out := make([]any, len(formulas))
	for i, f := range formulas {
		m := map[string]any{"alias": f.Alias, "expr": formula.Encode(rename(f.Expr, renamed))}
		if f.Direction != "" {
			m["direction"] = string(f.Direction)
		}
		if f.Join != nil {
			m["join"] = []any{f.Join.LeftID, f.Join.RightID, string(f.Join.JoinType)}
		}
		out[i] = m
	}
	return out
}

// rename replaces the avatars of fields found in renamed.
func rename(n formula.Node, renamed map[string]string) formula.Node {
	if len(renamed) == 0 || n == nil {
		return n
	}
	if f, ok := n.(*formula.Field); ok {
		if to, ok := renamed[f.Avatar]; ok {
			return formula.Ref(to, f.Name)
		}
		return f
	}
	children := formula.Children(n)
	if len(children) == 0 {
		return n
	}
	out := make([]formula.Node, len(children))
	for i, c := range children {
		out[i] = rename(c, renamed)
	}
	return formula.WithChildren(n, out)
}

func optionalInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
