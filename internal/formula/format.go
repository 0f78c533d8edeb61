package formula

import (
	"fmt"
	"strings"
)

// Format renders n as a compact human-readable expression for explain
// output and logs. It is not meant to be parsed back.
func Format(n Node) string {
	var b strings.Builder
	format(&b, n)
	return b.String()
}

func format(b *strings.Builder, n Node) {
	switch node := n.(type) {
	case *Literal:
		b.WriteString(FormatValue(node.Value))
	case *Field:
		if node.Avatar != "" {
			fmt.Fprintf(b, "[%s].[%s]", node.Avatar, node.Name)
		} else {
			fmt.Fprintf(b, "[%s]", node.Name)
		}
	case *FuncCall:
		b.WriteString(strings.ToUpper(node.Name))
		formatArgs(b, node.Args)
	case *BinaryOp:
		b.WriteByte('(')
		format(b, node.Left)
		fmt.Fprintf(b, " %s ", strings.ToUpper(node.Op))
		format(b, node.Right)
		b.WriteByte(')')
	case *WindowFuncCall:
		b.WriteString(strings.ToUpper(node.Name))
		formatArgs(b, node.Args)
		b.WriteString(" OVER (")
		if len(node.Partition) > 0 {
			b.WriteString("PARTITION ")
			formatArgs(b, node.Partition)
		}
		if len(node.OrderBy) > 0 {
			if len(node.Partition) > 0 {
				b.WriteByte(' ')
			}
			b.WriteString("ORDER BY ")
			for i, o := range node.OrderBy {
				if i > 0 {
					b.WriteString(", ")
				}
				format(b, o.Expr)
				if o.Desc {
					b.WriteString(" DESC")
				}
			}
		}
		b.WriteByte(')')
	case *IfBlock:
		for i, br := range node.Branches {
			if i == 0 {
				b.WriteString("IF ")
			} else {
				b.WriteString(" ELSEIF ")
			}
			format(b, br.Cond)
			b.WriteString(" THEN ")
			format(b, br.Then)
		}
		if node.Else != nil {
			b.WriteString(" ELSE ")
			format(b, node.Else)
		}
		b.WriteString(" END")
	case *CaseBlock:
		b.WriteString("CASE ")
		format(b, node.Subject)
		for _, w := range node.Whens {
			b.WriteString(" WHEN ")
			format(b, w.Value)
			b.WriteString(" THEN ")
			format(b, w.Then)
		}
		if node.Else != nil {
			b.WriteString(" ELSE ")
			format(b, node.Else)
		}
		b.WriteString(" END")
	case *Paren:
		b.WriteByte('(')
		format(b, node.Expr)
		b.WriteByte(')')
		if node.Tag != nil {
			b.WriteString(node.Tag.String())
		}
	case *QueryFork:
		fmt.Fprintf(b, "FORK%s{", node.Tag.String())
		format(b, node.Expr)
		b.WriteByte('}')
	default:
		fmt.Fprintf(b, "<%T>", n)
	}
}

func formatArgs(b *strings.Builder, args []Node) {
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		format(b, a)
	}
	b.WriteByte(')')
}
