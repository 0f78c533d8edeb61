package querysql

import (
	"strconv"
	"strings"

	"github.com/roach88/lens/internal/formula"
)

var binaryOps = map[string]string{
	"==":    "=",
	"!=":    "<>",
	"<":     "<",
	"<=":    "<=",
	">":     ">",
	">=":    ">=",
	"+":     "+",
	"-":     "-",
	"*":     "*",
	"%":     "%",
	"and":   "AND",
	"or":    "OR",
	"in":    "IN",
	"notin": "NOT IN",
	"like":  "LIKE",
}

// scalarFuncs maps formula functions to SQLite functions with the same
// argument list.
var scalarFuncs = map[string]string{
	"abs":      "ABS",
	"round":    "ROUND",
	"upper":    "UPPER",
	"lower":    "LOWER",
	"trim":     "TRIM",
	"ltrim":    "LTRIM",
	"rtrim":    "RTRIM",
	"len":      "LENGTH",
	"length":   "LENGTH",
	"substr":   "SUBSTR",
	"replace":  "REPLACE",
	"coalesce": "COALESCE",
	"ifnull":   "IFNULL",
	"greatest": "MAX",
	"least":    "MIN",
	"sum":      "SUM",
	"count":    "COUNT",
	"avg":      "AVG",
	"min":      "MIN",
	"max":      "MAX",
	"any":      "MIN",
}

var casts = map[string]string{
	"str":   "TEXT",
	"int":   "INTEGER",
	"float": "REAL",
}

var dateParts = map[string]string{
	"year":   "%Y",
	"month":  "%m",
	"day":    "%d",
	"hour":   "%H",
	"minute": "%M",
	"second": "%S",
}

var windowFuncs = map[string]string{
	"sum":         "SUM",
	"count":       "COUNT",
	"avg":         "AVG",
	"min":         "MIN",
	"max":         "MAX",
	"rank":        "RANK",
	"dense_rank":  "DENSE_RANK",
	"row_number":  "ROW_NUMBER",
	"ntile":       "NTILE",
	"lag":         "LAG",
	"lead":        "LEAD",
	"first_value": "FIRST_VALUE",
	"last_value":  "LAST_VALUE",
}

// renderer writes one expression. Literals become ? parameters, or SQL
// literals when inline is set.
type renderer struct {
	b      strings.Builder
	args   []any
	inline bool
}

func render(n formula.Node, inline bool) (string, []any, error) {
	r := &renderer{inline: inline}
	if err := r.node(n); err != nil {
		return "", nil, err
	}
	return r.b.String(), r.args, nil
}

func (r *renderer) node(n formula.Node) error {
	switch node := n.(type) {
	case *formula.Literal:
		r.literal(node.Value)
		return nil
	case *formula.Field:
		if node.Avatar == "" {
			return newGenerateError(ErrCodeUnboundField, "field %q has no avatar", node.Name)
		}
		r.b.WriteString(quoteIdent(node.Avatar))
		r.b.WriteByte('.')
		r.b.WriteString(quoteIdent(node.Name))
		return nil
	case *formula.BinaryOp:
		return r.binary(node)
	case *formula.FuncCall:
		return r.call(node)
	case *formula.WindowFuncCall:
		return r.window(node)
	case *formula.IfBlock:
		r.b.WriteString("CASE")
		for _, br := range node.Branches {
			r.b.WriteString(" WHEN ")
			if err := r.node(br.Cond); err != nil {
				return err
			}
			r.b.WriteString(" THEN ")
			if err := r.node(br.Then); err != nil {
				return err
			}
		}
		return r.caseEnd(node.Else)
	case *formula.CaseBlock:
		r.b.WriteString("CASE ")
		if err := r.node(node.Subject); err != nil {
			return err
		}
		for _, w := range node.Whens {
			r.b.WriteString(" WHEN ")
			if err := r.node(w.Value); err != nil {
				return err
			}
			r.b.WriteString(" THEN ")
			if err := r.node(w.Then); err != nil {
				return err
			}
		}
		return r.caseEnd(node.Else)
	case *formula.Paren:
		r.b.WriteByte('(')
		if err := r.node(node.Expr); err != nil {
			return err
		}
		r.b.WriteByte(')')
		return nil
	case *formula.QueryFork:
		return newGenerateError(ErrCodeMisplaced, "query fork %s was not separated", node.Tag)
	default:
		return newGenerateError(ErrCodeUnsupported, "node %T", n)
	}
}

func (r *renderer) literal(v formula.Value) {
	if _, ok := v.(formula.Null); ok {
		r.b.WriteString("NULL")
		return
	}
	if !r.inline {
		r.b.WriteByte('?')
		r.args = append(r.args, formula.Native(v))
		return
	}
	switch val := v.(type) {
	case formula.String:
		r.b.WriteString(quoteString(string(val)))
	case formula.Integer:
		r.b.WriteString(strconv.FormatInt(int64(val), 10))
	case formula.Float:
		s := strconv.FormatFloat(float64(val), 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEIN") {
			s += ".0"
		}
		r.b.WriteString(s)
	case formula.Boolean:
		if val {
			r.b.WriteByte('1')
		} else {
			r.b.WriteByte('0')
		}
	}
}

func (r *renderer) binary(n *formula.BinaryOp) error {
	if n.Op == "/" {
		// Division of integers is integer division in SQLite.
		r.b.WriteString("(CAST(")
		if err := r.node(n.Left); err != nil {
			return err
		}
		r.b.WriteString(" AS REAL) / ")
		if err := r.node(n.Right); err != nil {
			return err
		}
		r.b.WriteByte(')')
		return nil
	}
	op, ok := binaryOps[n.Op]
	if !ok {
		return newGenerateError(ErrCodeUnsupported, "operator %q", n.Op)
	}
	r.b.WriteByte('(')
	if err := r.node(n.Left); err != nil {
		return err
	}
	r.b.WriteString(" " + op + " ")
	if err := r.node(n.Right); err != nil {
		return err
	}
	r.b.WriteByte(')')
	return nil
}

func (r *renderer) call(n *formula.FuncCall) error {
	name := strings.ToLower(n.Name)
	switch name {
	case "if":
		if len(n.Args) < 3 || len(n.Args)%2 == 0 {
			return newGenerateError(ErrCodeUnsupported, "if takes condition/result pairs and an else value, got %d arguments", len(n.Args))
		}
		r.b.WriteString("CASE")
		last := len(n.Args) - 1
		for i := 0; i < last; i += 2 {
			if err := r.pair(" WHEN ", n.Args[i], " THEN ", n.Args[i+1]); err != nil {
				return err
			}
		}
		return r.caseEnd(n.Args[last])
	case "case":
		if len(n.Args) < 3 {
			return newGenerateError(ErrCodeUnsupported, "case needs a subject and a when arm, got %d arguments", len(n.Args))
		}
		r.b.WriteString("CASE ")
		if err := r.node(n.Args[0]); err != nil {
			return err
		}
		rest := n.Args[1:]
		for len(rest) >= 2 {
			if err := r.pair(" WHEN ", rest[0], " THEN ", rest[1]); err != nil {
				return err
			}
			rest = rest[2:]
		}
		var elseNode formula.Node
		if len(rest) == 1 {
			elseNode = rest[0]
		}
		return r.caseEnd(elseNode)
	case "not":
		return r.unary(name, "(NOT ", ")", n.Args)
	case "isnull":
		return r.unary(name, "(", " IS NULL)", n.Args)
	case "isnotnull":
		return r.unary(name, "(", " IS NOT NULL)", n.Args)
	case "between":
		if err := arity(name, n.Args, 3); err != nil {
			return err
		}
		r.b.WriteByte('(')
		if err := r.node(n.Args[0]); err != nil {
			return err
		}
		if err := r.pair(" BETWEEN ", n.Args[1], " AND ", n.Args[2]); err != nil {
			return err
		}
		r.b.WriteByte(')')
		return nil
	case "contains":
		if err := arity(name, n.Args, 2); err != nil {
			return err
		}
		return r.pair("(INSTR(", n.Args[0], ", ", n.Args[1], ") > 0)")
	case "startswith":
		if err := arity(name, n.Args, 2); err != nil {
			return err
		}
		if err := r.pair("(SUBSTR(", n.Args[0], ", 1, LENGTH(", n.Args[1]); err != nil {
			return err
		}
		return r.pair(")) = ", n.Args[1], ")")
	case "tuple":
		return r.list("(", n.Args, ")")
	case "concat":
		if len(n.Args) == 0 {
			return newGenerateError(ErrCodeUnsupported, "concat without arguments")
		}
		r.b.WriteByte('(')
		for i, a := range n.Args {
			if i > 0 {
				r.b.WriteString(" || ")
			}
			if err := r.node(a); err != nil {
				return err
			}
		}
		r.b.WriteByte(')')
		return nil
	case "countd":
		return r.unary(name, "COUNT(DISTINCT ", ")", n.Args)
	case "count":
		if len(n.Args) == 0 {
			r.b.WriteString("COUNT(*)")
			return nil
		}
	case "sum_if", "avg_if":
		if err := arity(name, n.Args, 2); err != nil {
			return err
		}
		fn := "SUM"
		if name == "avg_if" {
			fn = "AVG"
		}
		return r.pair(fn+"(CASE WHEN ", n.Args[1], " THEN ", n.Args[0], " END)")
	case "count_if":
		return r.unary(name, "COUNT(CASE WHEN ", " THEN 1 END)", n.Args)
	}

	if to, ok := casts[name]; ok {
		return r.unary(name, "CAST(", " AS "+to+")", n.Args)
	}
	if format, ok := dateParts[name]; ok {
		return r.unary(name, "CAST(STRFTIME('"+format+"', ", ") AS INTEGER)", n.Args)
	}
	fn, ok := scalarFuncs[name]
	if !ok {
		return newGenerateError(ErrCodeUnsupported, "function %q", n.Name)
	}
	return r.list(fn+"(", n.Args, ")")
}

// Running and moving aggregates accumulate over the window ordering.
var (
	runningFuncs = map[string]string{"rsum": "SUM", "ravg": "AVG", "rmin": "MIN", "rmax": "MAX", "rcount": "COUNT"}
	movingFuncs  = map[string]string{"msum": "SUM", "mavg": "AVG", "mmin": "MIN", "mmax": "MAX", "mcount": "COUNT"}
)

func (r *renderer) window(n *formula.WindowFuncCall) error {
	name := strings.ToLower(n.Name)
	args := n.Args
	var frame string
	fn, ok := windowFuncs[name]
	if !ok {
		fn, ok = runningFuncs[name]
		frame = " ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW"
	}
	if !ok {
		if fn, ok = movingFuncs[name]; ok {
			if len(args) != 2 {
				return newGenerateError(ErrCodeUnsupported, "%s takes a value and a window size, got %d arguments", name, len(args))
			}
			size, isInt := literalInt(args[1])
			if !isInt || size < 1 {
				return newGenerateError(ErrCodeUnsupported, "%s window size must be a positive integer literal", name)
			}
			frame = " ROWS BETWEEN " + strconv.FormatInt(size-1, 10) + " PRECEDING AND CURRENT ROW"
			args = args[:1]
		}
	}
	if !ok {
		return newGenerateError(ErrCodeUnsupported, "window function %q", n.Name)
	}

	if err := r.list(fn+"(", args, ")"); err != nil {
		return err
	}
	r.b.WriteString(" OVER (")
	if len(n.Partition) > 0 {
		if err := r.list("PARTITION BY ", n.Partition, ""); err != nil {
			return err
		}
	}
	for i, o := range n.OrderBy {
		switch {
		case i > 0:
			r.b.WriteString(", ")
		case len(n.Partition) > 0:
			r.b.WriteString(" ORDER BY ")
		default:
			r.b.WriteString("ORDER BY ")
		}
		if err := r.node(o.Expr); err != nil {
			return err
		}
		if o.Desc {
			r.b.WriteString(" DESC")
		}
	}
	if frame != "" && len(n.OrderBy) > 0 {
		r.b.WriteString(frame)
	}
	r.b.WriteByte(')')
	return nil
}

func literalInt(n formula.Node) (int64, bool) {
	v, ok := formula.LiteralValue(n)
	if !ok {
		return 0, false
	}
	i, ok := v.(formula.Integer)
	return int64(i), ok
}

func (r *renderer) caseEnd(elseNode formula.Node) error {
	if elseNode != nil {
		r.b.WriteString(" ELSE ")
		if err := r.node(elseNode); err != nil {
			return err
		}
	}
	r.b.WriteString(" END")
	return nil
}

// pair writes text and nodes alternately, starting with text.
func (r *renderer) pair(parts ...any) error {
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			r.b.WriteString(v)
		case formula.Node:
			if err := r.node(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *renderer) unary(name, open, close string, args []formula.Node) error {
	if err := arity(name, args, 1); err != nil {
		return err
	}
	return r.list(open, args, close)
}

func (r *renderer) list(open string, args []formula.Node, close string) error {
	r.b.WriteString(open)
	for i, a := range args {
		if i > 0 {
			r.b.WriteString(", ")
		}
		if err := r.node(a); err != nil {
			return err
		}
	}
	r.b.WriteString(close)
	return nil
}

func arity(name string, args []formula.Node, n int) error {
	if len(args) != n {
		return newGenerateError(ErrCodeUnsupported, "%s takes %d arguments, got %d", name, n, len(args))
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
