package compiler

import (
	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/legend"
	"github.com/roach88/lens/internal/query"
)

// Field is a named formula of a dataset.
//
// Expr reads avatar columns through fields with an avatar, and other dataset
// fields through fields without one: Ref("", "profit") is the dataset field
// with id "profit".
type Field struct {
	ID       string
	Title    string
	Type     legend.FieldType
	DataType legend.DataType
	Expr     formula.Node
}

// Join connects two avatars of a dataset.
type Join struct {
	LeftID    string
	RightID   string
	Type      query.JoinType
	Condition formula.Node
}

// Dataset is what requests are compiled against: the fields and the join
// spec of the avatars they read.
type Dataset struct {
	Fields []Field

	// From lists the avatars; From.RootID is the one every join starts at.
	From  query.JoinedFrom
	Joins []Join
}

// Field returns the field with the given id.
func (d *Dataset) Field(id string) (Field, bool) {
	for _, f := range d.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// fieldRef reports whether n references another dataset field and returns
// the field id.
func fieldRef(n formula.Node) (string, bool) {
	f, ok := n.(*formula.Field)
	if !ok || f.Avatar != "" {
		return "", false
	}
	return f.Name, true
}

// fieldRefs returns the ids of the dataset fields n references, in walk
// order, without duplicates.
func fieldRefs(n formula.Node) []string {
	var out []string
	seen := make(map[string]bool)
	formula.Walk(n, func(node formula.Node, _ []formula.Node) bool {
		if id, ok := fieldRef(node); ok && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
		return true
	})
	return out
}
