package query

import (
	"fmt"
	"strings"

	"github.com/roach88/lens/internal/formula"
)

// Explain renders m as indented text, leaf level first. The output is
// deterministic and used for golden snapshots.
func Explain(m *MultiLevelQuery) string {
	var b strings.Builder
	for idx, level := range m.Levels {
		fmt.Fprintf(&b, "level %d %s\n", idx, level.LevelType)
		for _, q := range level.Queries {
			explainQuery(&b, q)
		}
	}
	return b.String()
}

func explainQuery(b *strings.Builder, q *CompiledQuery) {
	fmt.Fprintf(b, "  query %s\n", q.ID)
	for _, f := range q.From.Froms {
		switch from := f.(type) {
		case AvatarFrom:
			fmt.Fprintf(b, "    from %s: table %s\n", from.ID, from.Table)
		case SubqueryFrom:
			fmt.Fprintf(b, "    from %s: query %s\n", from.ID, from.QueryID)
		}
	}
	explainFormulas(b, "select", q.Select)
	explainFormulas(b, "join on", q.JoinOn)
	explainFormulas(b, "where", q.Filters)
	explainFormulas(b, "group by", q.GroupBy)
	explainFormulas(b, "order by", q.OrderBy)
	if q.Limit != nil {
		fmt.Fprintf(b, "    limit %d\n", *q.Limit)
	}
	if q.Offset != nil {
		fmt.Fprintf(b, "    offset %d\n", *q.Offset)
	}
}

func explainFormulas(b *strings.Builder, part string, formulas []CompiledFormula) {
	for _, f := range formulas {
		fmt.Fprintf(b, "    %s %s := %s", part, f.Alias, formula.Format(f.Expr))
		if f.Direction != "" {
			fmt.Fprintf(b, " %s", strings.ToUpper(string(f.Direction)))
		}
		b.WriteByte('\n')
	}
}
