package formula

import (
	"fmt"
	"slices"
	"strings"
)

// LevelTag identifies a grouping level: the set of boundary (dimension)
// names the level groups by, and a nesting depth.
//
// Tags are partially ordered. A tag whose name set strictly contains another
// tag's names is greater. With equal name sets the higher nesting is greater.
// Tags whose name sets are not subsets of one another are incomparable.
type LevelTag struct {
	Names   []string
	Nesting int
}

// NewLevelTag builds a tag with a sorted, deduplicated name set.
func NewLevelTag(nesting int, names ...string) *LevelTag {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return &LevelTag{Names: sorted, Nesting: nesting}
}

// Equal reports whether t and o describe the same level.
func (t *LevelTag) Equal(o *LevelTag) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Nesting == o.Nesting && slices.Equal(t.Names, o.Names)
}

// Compare orders t against o. The second result is false when the tags are
// incomparable, in which case the first result is meaningless.
func (t *LevelTag) Compare(o *LevelTag) (int, bool) {
	tSub := isSubset(t.Names, o.Names)
	oSub := isSubset(o.Names, t.Names)
	switch {
	case tSub && oSub:
		switch {
		case t.Nesting < o.Nesting:
			return -1, true
		case t.Nesting > o.Nesting:
			return 1, true
		default:
			return 0, true
		}
	case tSub:
		return -1, true
	case oSub:
		return 1, true
	default:
		return 0, false
	}
}

// Less reports whether t is strictly below o. Incomparable tags are never less.
func (t *LevelTag) Less(o *LevelTag) bool {
	c, ok := t.Compare(o)
	return ok && c < 0
}

// String renders the tag as ({a,b},n).
func (t *LevelTag) String() string {
	if t == nil {
		return "<untagged>"
	}
	return fmt.Sprintf("({%s},%d)", strings.Join(t.Names, ","), t.Nesting)
}

// isSubset reports whether every element of a (sorted) is in b (sorted).
func isSubset(a, b []string) bool {
	i := 0
	for _, name := range a {
		for i < len(b) && b[i] < name {
			i++
		}
		if i == len(b) || b[i] != name {
			return false
		}
	}
	return true
}
