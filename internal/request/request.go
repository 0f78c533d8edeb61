// Package request loads data requests from CUE files.
//
// A request file declares one or more requests under a top-level "request"
// struct. Each request carries the dataset it is compiled against (avatars,
// joins and fields with structural formula trees), the legend, optional
// explicit blocks and an optional pivot legend:
//
//	request: top_cities: {
//		dataset: {
//			root: "t"
//			avatars: t: "orders"
//			fields: {
//				city:  {type: "dimension", data_type: "string", expr: {field: "city", avatar: "t"}}
//				sales: {type: "measure", data_type: "integer", expr: {call: "sum", args: [{field: "sales", avatar: "t"}]}}
//			}
//		}
//		legend: [
//			{id: 0, field: "city", role: "row"},
//			{id: 1, field: "sales", role: "measure"},
//		]
//	}
//
// Files are checked against an embedded CUE schema before conversion, so
// shape errors carry CUE positions.
package request

import (
	"bytes"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/lens/internal/compiler"
	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/legend"
	"github.com/roach88/lens/internal/pivot"
	"github.com/roach88/lens/internal/query"
)

// Request is a loaded data request.
type Request struct {
	Name    string
	Dataset *compiler.Dataset
	Legend  *legend.Legend
	Blocks  []legend.BlockSpec
	Options legend.BlockOptions

	// Pivot is nil unless the request asks for a pivot table.
	Pivot *pivot.Legend
}

// BlockLegend splits the request legend into blocks.
func (r *Request) BlockLegend() (*legend.BlockLegend, error) {
	return legend.BuildBlocks(r.Legend, r.Blocks, r.Options)
}

func parseRequest(name string, v cue.Value) (*Request, error) {
	ds, err := parseDataset(v.LookupPath(cue.ParsePath("dataset")))
	if err != nil {
		return nil, err
	}

	r := &Request{Name: name, Dataset: ds}

	if r.Legend, err = parseLegend(v.LookupPath(cue.ParsePath("legend")), ds); err != nil {
		return nil, err
	}
	if r.Blocks, err = parseBlocks(v.LookupPath(cue.ParsePath("blocks"))); err != nil {
		return nil, err
	}

	qt, err := stringAt(v, "query_type")
	if err != nil {
		return nil, err
	}
	r.Options.QueryType = legend.QueryType(qt)
	if r.Options.Limit, err = optionalInt(v, "limit"); err != nil {
		return nil, err
	}
	if r.Options.Offset, err = optionalInt(v, "offset"); err != nil {
		return nil, err
	}

	if pv := v.LookupPath(cue.ParsePath("pivot")); pv.Exists() {
		if r.Pivot, err = parsePivot(pv); err != nil {
			return nil, err
		}
		if err := r.Pivot.Validate(r.Legend); err != nil {
			return nil, &LoadError{Code: ErrCodePivot, Message: err.Error(), Pos: pv.Pos()}
		}
	}
	return r, nil
}

func parseDataset(v cue.Value) (*compiler.Dataset, error) {
	root, err := stringAt(v, "root")
	if err != nil {
		return nil, err
	}
	ds := &compiler.Dataset{From: query.JoinedFrom{RootID: root}}

	avatars := v.LookupPath(cue.ParsePath("avatars"))
	iter, err := avatars.Fields()
	if err != nil {
		return nil, fromCUE(err, ErrCodeDataset)
	}
	for iter.Next() {
		table, err := iter.Value().String()
		if err != nil {
			return nil, fromCUE(err, ErrCodeDataset)
		}
		ds.From.Froms = append(ds.From.Froms, query.AvatarFrom{ID: iter.Label(), Table: table})
	}
	if _, ok := ds.From.Find(root); !ok {
		return nil, &LoadError{Code: ErrCodeDataset, Message: fmt.Sprintf("root avatar %q is not declared", root), Pos: avatars.Pos()}
	}

	joins, err := elements(v.LookupPath(cue.ParsePath("joins")))
	if err != nil {
		return nil, err
	}
	for _, jv := range joins {
		j := compiler.Join{}
		if j.LeftID, err = stringAt(jv, "left"); err != nil {
			return nil, err
		}
		if j.RightID, err = stringAt(jv, "right"); err != nil {
			return nil, err
		}
		typ, err := stringAt(jv, "type")
		if err != nil {
			return nil, err
		}
		j.Type = query.JoinType(typ)
		if on := jv.LookupPath(cue.ParsePath("on")); on.Exists() {
			if j.Condition, err = parseExpr(on); err != nil {
				return nil, err
			}
		}
		ds.Joins = append(ds.Joins, j)
	}

	fields := v.LookupPath(cue.ParsePath("fields"))
	iter, err = fields.Fields()
	if err != nil {
		return nil, fromCUE(err, ErrCodeDataset)
	}
	for iter.Next() {
		fv := iter.Value()
		f := compiler.Field{ID: iter.Label(), Title: iter.Label()}
		typ, err := stringAt(fv, "type")
		if err != nil {
			return nil, err
		}
		dataType, err := stringAt(fv, "data_type")
		if err != nil {
			return nil, err
		}
		f.Type, f.DataType = legend.FieldType(typ), legend.DataType(dataType)
		if title, ok, err := optionalString(fv, "title"); err != nil {
			return nil, err
		} else if ok {
			f.Title = title
		}
		if f.Expr, err = parseExpr(fv.LookupPath(cue.ParsePath("expr"))); err != nil {
			return nil, err
		}
		ds.Fields = append(ds.Fields, f)
	}
	return ds, nil
}

// parseExpr decodes a structural formula tree. Numbers go through
// json.Number so integers and floats keep their types.
func parseExpr(v cue.Value) (formula.Node, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, fromCUE(err, ErrCodeFormula)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &LoadError{Code: ErrCodeFormula, Message: err.Error(), Pos: v.Pos()}
	}
	n, err := formula.Decode(raw)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeFormula, Message: err.Error(), Pos: v.Pos()}
	}
	return n, nil
}

func parseLegend(v cue.Value, ds *compiler.Dataset) (*legend.Legend, error) {
	items, err := elements(v)
	if err != nil {
		return nil, err
	}
	l := &legend.Legend{}
	seen := make(map[int]bool, len(items))
	for _, iv := range items {
		it, err := parseItem(iv, ds)
		if err != nil {
			return nil, err
		}
		if seen[it.ID] {
			return nil, &LoadError{Code: ErrCodeLegend, Message: fmt.Sprintf("duplicate legend item id %d", it.ID), Pos: iv.Pos()}
		}
		seen[it.ID] = true
		l.Items = append(l.Items, it)
	}
	return l, nil
}

func parseItem(v cue.Value, ds *compiler.Dataset) (legend.Item, error) {
	var it legend.Item
	var err error
	if it.ID, err = intAt(v, "id"); err != nil {
		return it, err
	}
	if it.BlockID, err = intAt(v, "block"); err != nil {
		return it, err
	}
	kind, err := stringAt(v, "kind")
	if err != nil {
		return it, err
	}
	role, err := stringAt(v, "role")
	if err != nil {
		return it, err
	}
	it.Kind, it.Role = legend.Kind(kind), legend.Role(role)

	fieldID, hasField, err := optionalString(v, "field")
	if err != nil {
		return it, err
	}
	if hasField {
		it.FieldID = fieldID
		if f, ok := ds.Field(fieldID); ok {
			it.Title, it.FieldType, it.DataType = f.Title, f.Type, f.DataType
		}
	}
	switch it.Kind {
	case legend.KindMeasureName:
		it.Title, it.FieldType, it.DataType = "Measure names", legend.Dimension, legend.TypeString
	case legend.KindDimensionName:
		it.Title, it.FieldType, it.DataType = "Dimension names", legend.Dimension, legend.TypeString
	}
	needsField := it.Kind == legend.KindField && it.Role != legend.RoleTemplate && it.Role != legend.RoleTotal && it.Role != legend.RoleParameter
	if needsField && !hasField {
		return it, &LoadError{Code: ErrCodeLegend, Message: fmt.Sprintf("legend item %d with role %s needs a field", it.ID, it.Role), Pos: v.Pos()}
	}
	if title, ok, err := optionalString(v, "title"); err != nil {
		return it, err
	} else if ok {
		it.Title = title
	}

	if dir, ok, err := optionalString(v, "direction"); err != nil {
		return it, err
	} else if ok {
		it.Direction = query.Direction(dir)
	} else if it.Role == legend.RoleOrderBy {
		it.Direction = query.Asc
	}

	if fv := v.LookupPath(cue.ParsePath("filter")); fv.Exists() {
		op, err := stringAt(fv, "op")
		if err != nil {
			return it, err
		}
		values, err := valueList(fv.LookupPath(cue.ParsePath("values")))
		if err != nil {
			return it, err
		}
		it.Filter = &legend.Filter{Op: legend.FilterOp(op), Values: values}
	} else if it.Role == legend.RoleFilter {
		return it, &LoadError{Code: ErrCodeLegend, Message: fmt.Sprintf("filter item %d has no filter", it.ID), Pos: v.Pos()}
	}

	if pv := v.LookupPath(cue.ParsePath("value")); pv.Exists() {
		if it.Value, err = toValue(pv); err != nil {
			return it, err
		}
	}
	if text, ok, err := optionalString(v, "template"); err != nil {
		return it, err
	} else if ok {
		it.Template = text
	}
	if dv := v.LookupPath(cue.ParsePath("dimension_values")); dv.Exists() {
		if it.DimensionValues, err = parseDimensionValues(dv); err != nil {
			return it, err
		}
	}
	return it, nil
}

func parseDimensionValues(v cue.Value) ([]legend.DimensionValue, error) {
	list, err := elements(v)
	if err != nil {
		return nil, err
	}
	out := make([]legend.DimensionValue, len(list))
	for i, ev := range list {
		id, err := intAt(ev, "item")
		if err != nil {
			return nil, err
		}
		val, err := toValue(ev.LookupPath(cue.ParsePath("value")))
		if err != nil {
			return nil, err
		}
		out[i] = legend.DimensionValue{LegendItemID: id, Value: val}
	}
	return out, nil
}

func parseBlocks(v cue.Value) ([]legend.BlockSpec, error) {
	list, err := elements(v)
	if err != nil {
		return nil, err
	}
	specs := make([]legend.BlockSpec, 0, len(list))
	for _, bv := range list {
		var s legend.BlockSpec
		if s.ID, err = intAt(bv, "id"); err != nil {
			return nil, err
		}
		if s.ParentID, err = optionalInt(bv, "parent"); err != nil {
			return nil, err
		}
		if s.Limit, err = optionalInt(bv, "limit"); err != nil {
			return nil, err
		}
		if s.Offset, err = optionalInt(bv, "offset"); err != nil {
			return nil, err
		}
		if pv := bv.LookupPath(cue.ParsePath("placement")); pv.Exists() {
			if s.Placement, err = parsePlacement(pv); err != nil {
				return nil, err
			}
		}
		specs = append(specs, s)
	}
	return specs, nil
}

func parsePlacement(v cue.Value) (*legend.Placement, error) {
	kind, err := stringAt(v, "kind")
	if err != nil {
		return nil, err
	}
	p := &legend.Placement{Kind: legend.PlacementKind(kind)}
	if dv := v.LookupPath(cue.ParsePath("dimension_values")); dv.Exists() {
		if p.DimensionValues, err = parseDimensionValues(dv); err != nil {
			return nil, err
		}
	}
	if p.ParentDimensions, err = intList(v.LookupPath(cue.ParsePath("parent_dimensions"))); err != nil {
		return nil, err
	}
	if p.ChildDimensions, err = intList(v.LookupPath(cue.ParsePath("child_dimensions"))); err != nil {
		return nil, err
	}
	if len(p.ParentDimensions) != len(p.ChildDimensions) {
		return nil, &LoadError{Code: ErrCodeBlock, Message: "parent_dimensions and child_dimensions differ in length", Pos: v.Pos()}
	}
	return p, nil
}

func parsePivot(v cue.Value) (*pivot.Legend, error) {
	list, err := elements(v)
	if err != nil {
		return nil, err
	}
	pl := &pivot.Legend{}
	for _, iv := range list {
		var it pivot.Item
		if it.ID, err = intAt(iv, "id"); err != nil {
			return nil, err
		}
		kind, err := stringAt(iv, "kind")
		if err != nil {
			return nil, err
		}
		role, err := stringAt(iv, "role")
		if err != nil {
			return nil, err
		}
		it.Kind, it.Role = pivot.ItemKind(kind), pivot.Role(role)
		if title, ok, err := optionalString(iv, "title"); err != nil {
			return nil, err
		} else if ok {
			it.Title = title
		}
		if it.LegendItemIDs, err = intList(iv.LookupPath(cue.ParsePath("items"))); err != nil {
			return nil, err
		}
		if dir, ok, err := optionalString(iv, "direction"); err != nil {
			return nil, err
		} else if ok {
			it.Direction = query.Direction(dir)
		}
		if sv := iv.LookupPath(cue.ParsePath("sorting")); sv.Exists() {
			it.Sorting = &pivot.MeasureSorting{}
			if it.Sorting.Column, err = parseSort(sv.LookupPath(cue.ParsePath("column"))); err != nil {
				return nil, err
			}
			if it.Sorting.Row, err = parseSort(sv.LookupPath(cue.ParsePath("row"))); err != nil {
				return nil, err
			}
		}
		if at, ok, err := optionalString(iv, "annotation_type"); err != nil {
			return nil, err
		} else if ok {
			it.AnnotationType = at
		}
		if it.Targets, err = intList(iv.LookupPath(cue.ParsePath("targets"))); err != nil {
			return nil, err
		}
		pl.Items = append(pl.Items, it)
	}
	return pl, nil
}

func parseSort(v cue.Value) (*pivot.SortSettings, error) {
	if !v.Exists() {
		return nil, nil
	}
	values, err := valueList(v.LookupPath(cue.ParsePath("header_values")))
	if err != nil {
		return nil, err
	}
	dir, err := stringAt(v, "direction")
	if err != nil {
		return nil, err
	}
	s := &pivot.SortSettings{HeaderValues: values, Direction: query.Direction(dir)}
	if role, ok, err := optionalString(v, "role"); err != nil {
		return nil, err
	} else if ok {
		s.Role = pivot.HeaderRole(role)
	}
	return s, nil
}
