package request

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/lens/internal/formula"
)

// lookup resolves a path and its default.
func lookup(v cue.Value, path string) cue.Value {
	field := v.LookupPath(cue.ParsePath(path))
	if d, ok := field.Default(); ok {
		return d
	}
	return field
}

func stringAt(v cue.Value, path string) (string, error) {
	s, err := lookup(v, path).String()
	if err != nil {
		return "", fromCUE(err, ErrCodeSchema)
	}
	return s, nil
}

func optionalString(v cue.Value, path string) (string, bool, error) {
	field := lookup(v, path)
	if !field.Exists() {
		return "", false, nil
	}
	s, err := field.String()
	if err != nil {
		return "", false, fromCUE(err, ErrCodeSchema)
	}
	return s, true, nil
}

func intAt(v cue.Value, path string) (int, error) {
	field := lookup(v, path)
	n, err := field.Int64()
	if err != nil {
		return 0, fromCUE(err, ErrCodeSchema)
	}
	return int(n), nil
}

func optionalInt(v cue.Value, path string) (*int, error) {
	if !v.LookupPath(cue.ParsePath(path)).Exists() {
		return nil, nil
	}
	n, err := intAt(v, path)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// elements returns the elements of a list value. A missing value is an
// empty list.
func elements(v cue.Value) ([]cue.Value, error) {
	if !v.Exists() {
		return nil, nil
	}
	if d, ok := v.Default(); ok {
		v = d
	}
	iter, err := v.List()
	if err != nil {
		return nil, fromCUE(err, ErrCodeSchema)
	}
	var out []cue.Value
	for iter.Next() {
		out = append(out, iter.Value())
	}
	return out, nil
}

func intList(v cue.Value) ([]int, error) {
	list, err := elements(v)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, ev := range list {
		n, err := ev.Int64()
		if err != nil {
			return nil, fromCUE(err, ErrCodeSchema)
		}
		out = append(out, int(n))
	}
	return out, nil
}

func valueList(v cue.Value) ([]formula.Value, error) {
	list, err := elements(v)
	if err != nil {
		return nil, err
	}
	out := make([]formula.Value, len(list))
	for i, ev := range list {
		if out[i], err = toValue(ev); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// toValue converts a concrete CUE scalar to a formula value.
func toValue(v cue.Value) (formula.Value, error) {
	switch v.IncompleteKind() {
	case cue.NullKind:
		return formula.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, fromCUE(err, ErrCodeSchema)
		}
		return formula.Boolean(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, fromCUE(err, ErrCodeSchema)
		}
		return formula.Integer(n), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, fromCUE(err, ErrCodeSchema)
		}
		return formula.Float(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, fromCUE(err, ErrCodeSchema)
		}
		return formula.String(s), nil
	default:
		return nil, &LoadError{
			Code:    ErrCodeSchema,
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}
