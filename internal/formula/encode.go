package formula

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Encode converts n into its structural form: nested map[string]any and
// []any values with string, int64, float64, bool and nil leaves.
//
// The structural form is what request files contain and what
// MarshalCanonical hashes. Decode is its inverse.
func Encode(n Node) map[string]any {
	switch node := n.(type) {
	case *Literal:
		return map[string]any{"lit": encodeLiteral(node.Value), "type": TypeName(node.Value)}
	case *Field:
		out := map[string]any{"field": node.Name}
		if node.Avatar != "" {
			out["avatar"] = node.Avatar
		}
		return out
	case *FuncCall:
		return map[string]any{"call": node.Name, "args": encodeList(node.Args)}
	case *BinaryOp:
		return map[string]any{"op": node.Op, "left": Encode(node.Left), "right": Encode(node.Right)}
	case *WindowFuncCall:
		order := make([]any, len(node.OrderBy))
		for i, o := range node.OrderBy {
			order[i] = map[string]any{"expr": Encode(o.Expr), "desc": o.Desc}
		}
		return map[string]any{
			"window":    node.Name,
			"args":      encodeList(node.Args),
			"partition": encodeList(node.Partition),
			"order":     order,
		}
	case *IfBlock:
		branches := make([]any, len(node.Branches))
		for i, b := range node.Branches {
			branches[i] = map[string]any{"cond": Encode(b.Cond), "then": Encode(b.Then)}
		}
		out := map[string]any{"if": branches}
		if node.Else != nil {
			out["else"] = Encode(node.Else)
		}
		return out
	case *CaseBlock:
		whens := make([]any, len(node.Whens))
		for i, w := range node.Whens {
			whens[i] = map[string]any{"value": Encode(w.Value), "then": Encode(w.Then)}
		}
		out := map[string]any{"case": Encode(node.Subject), "when": whens}
		if node.Else != nil {
			out["else"] = Encode(node.Else)
		}
		return out
	case *Paren:
		out := map[string]any{"paren": Encode(node.Expr)}
		if node.Tag != nil {
			out["tag"] = encodeTag(node.Tag)
		}
		return out
	case *QueryFork:
		out := map[string]any{"fork": Encode(node.Expr)}
		if node.Tag != nil {
			out["tag"] = encodeTag(node.Tag)
		}
		return out
	default:
		panic(fmt.Sprintf("formula: unknown node type %T", n))
	}
}

func encodeList(nodes []Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = Encode(n)
	}
	return out
}

func encodeLiteral(v Value) any {
	switch val := v.(type) {
	case Float:
		f := float64(val)
		// Canonical JSON has no NaN or infinities.
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprintf("%v", f)
		}
		return f
	default:
		return Native(v)
	}
}

func encodeTag(t *LevelTag) map[string]any {
	names := make([]any, len(t.Names))
	for i, n := range t.Names {
		names[i] = n
	}
	return map[string]any{"names": names, "nesting": int64(t.Nesting)}
}

// Decode builds a node from its structural form. Errors are CompileErrors
// with ErrCodeDecode and a path to the offending element.
func Decode(v any) (Node, error) {
	return decodeAt(v, "")
}

func decodeAt(v any, path string) (Node, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, decodeErr(path, "expected an object, got %T", v)
	}

	switch {
	case has(m, "lit"):
		return decodeLiteral(m, path)
	case has(m, "field"):
		name, err := str(m, "field", path)
		if err != nil {
			return nil, err
		}
		avatar, _ := m["avatar"].(string)
		return &Field{Name: name, Avatar: avatar}, nil
	case has(m, "call"):
		name, err := str(m, "call", path)
		if err != nil {
			return nil, err
		}
		args, err := decodeList(m["args"], join(path, "args"))
		if err != nil {
			return nil, err
		}
		return &FuncCall{Name: name, Args: args}, nil
	case has(m, "op"):
		op, err := str(m, "op", path)
		if err != nil {
			return nil, err
		}
		left, err := decodeAt(m["left"], join(path, "left"))
		if err != nil {
			return nil, err
		}
		right, err := decodeAt(m["right"], join(path, "right"))
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Op: op, Left: left, Right: right}, nil
	case has(m, "window"):
		return decodeWindow(m, path)
	case has(m, "if"):
		return decodeIf(m, path)
	case has(m, "case"):
		return decodeCase(m, path)
	case has(m, "paren"):
		expr, tag, err := decodeWrapped(m, "paren", path)
		if err != nil {
			return nil, err
		}
		return &Paren{Expr: expr, Tag: tag}, nil
	case has(m, "fork"):
		expr, tag, err := decodeWrapped(m, "fork", path)
		if err != nil {
			return nil, err
		}
		return &QueryFork{Expr: expr, Tag: tag}, nil
	default:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, decodeErr(path, "unrecognised node with keys %v", keys)
	}
}

func decodeLiteral(m map[string]any, path string) (Node, error) {
	raw := m["lit"]
	typ, _ := m["type"].(string)
	val, err := literalFromRaw(raw, typ)
	if err != nil {
		return nil, decodeErr(join(path, "lit"), "%v", err)
	}
	return &Literal{Value: val}, nil
}

func literalFromRaw(raw any, typ string) (Value, error) {
	if n, ok := raw.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			raw = i
		} else if f, err := n.Float64(); err == nil {
			raw = f
		} else {
			return nil, err
		}
	}

	val, err := FromNative(raw)
	if err != nil {
		return nil, err
	}

	switch typ {
	case "":
		return val, nil
	case "float":
		switch v := val.(type) {
		case Integer:
			return Float(v), nil
		case Float:
			return v, nil
		case String:
			// NaN and infinities are encoded as strings.
			var f float64
			if _, err := fmt.Sscan(string(v), &f); err != nil {
				return nil, fmt.Errorf("invalid float literal %q", string(v))
			}
			return Float(f), nil
		}
	case "integer":
		switch v := val.(type) {
		case Integer:
			return v, nil
		case Float:
			if float64(v) == math.Trunc(float64(v)) {
				return Integer(v), nil
			}
		}
	default:
		if TypeName(val) == typ {
			return val, nil
		}
	}
	return nil, fmt.Errorf("literal %v is not of type %s", raw, typ)
}

func decodeWindow(m map[string]any, path string) (Node, error) {
	name, err := str(m, "window", path)
	if err != nil {
		return nil, err
	}
	args, err := decodeList(m["args"], join(path, "args"))
	if err != nil {
		return nil, err
	}
	partition, err := decodeList(m["partition"], join(path, "partition"))
	if err != nil {
		return nil, err
	}
	rawOrder, err := list(m["order"], join(path, "order"))
	if err != nil {
		return nil, err
	}
	order := make([]WindowOrder, len(rawOrder))
	for i, item := range rawOrder {
		p := fmt.Sprintf("%s[%d]", join(path, "order"), i)
		im, ok := item.(map[string]any)
		if !ok {
			return nil, decodeErr(p, "expected an object")
		}
		expr, err := decodeAt(im["expr"], join(p, "expr"))
		if err != nil {
			return nil, err
		}
		desc, _ := im["desc"].(bool)
		order[i] = WindowOrder{Expr: expr, Desc: desc}
	}
	return &WindowFuncCall{Name: name, Args: args, Partition: partition, OrderBy: order}, nil
}

func decodeIf(m map[string]any, path string) (Node, error) {
	raw, err := list(m["if"], join(path, "if"))
	if err != nil {
		return nil, err
	}
	branches := make([]IfBranch, len(raw))
	for i, item := range raw {
		p := fmt.Sprintf("%s[%d]", join(path, "if"), i)
		im, ok := item.(map[string]any)
		if !ok {
			return nil, decodeErr(p, "expected an object")
		}
		cond, err := decodeAt(im["cond"], join(p, "cond"))
		if err != nil {
			return nil, err
		}
		then, err := decodeAt(im["then"], join(p, "then"))
		if err != nil {
			return nil, err
		}
		branches[i] = IfBranch{Cond: cond, Then: then}
	}
	elseNode, err := decodeOptional(m, "else", path)
	if err != nil {
		return nil, err
	}
	return &IfBlock{Branches: branches, Else: elseNode}, nil
}

func decodeCase(m map[string]any, path string) (Node, error) {
	subject, err := decodeAt(m["case"], join(path, "case"))
	if err != nil {
		return nil, err
	}
	raw, err := list(m["when"], join(path, "when"))
	if err != nil {
		return nil, err
	}
	whens := make([]CaseWhen, len(raw))
	for i, item := range raw {
		p := fmt.Sprintf("%s[%d]", join(path, "when"), i)
		im, ok := item.(map[string]any)
		if !ok {
			return nil, decodeErr(p, "expected an object")
		}
		value, err := decodeAt(im["value"], join(p, "value"))
		if err != nil {
			return nil, err
		}
		then, err := decodeAt(im["then"], join(p, "then"))
		if err != nil {
			return nil, err
		}
		whens[i] = CaseWhen{Value: value, Then: then}
	}
	elseNode, err := decodeOptional(m, "else", path)
	if err != nil {
		return nil, err
	}
	return &CaseBlock{Subject: subject, Whens: whens, Else: elseNode}, nil
}

func decodeWrapped(m map[string]any, key, path string) (Node, *LevelTag, error) {
	expr, err := decodeAt(m[key], join(path, key))
	if err != nil {
		return nil, nil, err
	}
	rawTag, ok := m["tag"]
	if !ok || rawTag == nil {
		return expr, nil, nil
	}
	tm, ok := rawTag.(map[string]any)
	if !ok {
		return nil, nil, decodeErr(join(path, "tag"), "expected an object")
	}
	rawNames, err := list(tm["names"], join(path, "tag.names"))
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, len(rawNames))
	for i, n := range rawNames {
		s, ok := n.(string)
		if !ok {
			return nil, nil, decodeErr(join(path, "tag.names"), "expected strings")
		}
		names[i] = s
	}
	nesting, err := intValue(tm["nesting"])
	if err != nil {
		return nil, nil, decodeErr(join(path, "tag.nesting"), "%v", err)
	}
	return expr, NewLevelTag(nesting, names...), nil
}

func decodeOptional(m map[string]any, key, path string) (Node, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}
	return decodeAt(raw, join(path, key))
}

func decodeList(v any, path string) ([]Node, error) {
	raw, err := list(v, path)
	if err != nil {
		return nil, err
	}
	out := make([]Node, len(raw))
	for i, item := range raw {
		n, err := decodeAt(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func list(v any, path string) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	l, ok := v.([]any)
	if !ok {
		return nil, decodeErr(path, "expected a list, got %T", v)
	}
	return l, nil
}

func str(m map[string]any, key, path string) (string, error) {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return "", decodeErr(join(path, key), "expected a non-empty string")
	}
	return s, nil
}

func intValue(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func decodeErr(path, format string, args ...any) *CompileError {
	return &CompileError{Code: ErrCodeDecode, Message: fmt.Sprintf(format, args...), Path: path}
}
