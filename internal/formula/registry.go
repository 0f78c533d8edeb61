package formula

import "strings"

// FuncKind classifies a function name.
type FuncKind int

const (
	KindScalar FuncKind = iota
	KindAggregate
)

// Registry classifies function names for inspection by planners and
// boundaries. Window calls are a node kind of their own and need no entry.
type Registry struct {
	kinds map[string]FuncKind
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]FuncKind)}
}

// DefaultRegistry knows the aggregate functions every dialect supports.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, name := range []string{
		"sum", "count", "countd", "avg", "min", "max",
		"median", "stdev", "var", "any", "sum_if", "count_if", "avg_if",
	} {
		r.Register(name, KindAggregate)
	}
	return r
}

// Register sets the kind of a function name.
func (r *Registry) Register(name string, kind FuncKind) {
	r.kinds[strings.ToLower(name)] = kind
}

// IsAggregate reports whether name is an aggregate function.
func (r *Registry) IsAggregate(name string) bool {
	return r.kinds[strings.ToLower(name)] == KindAggregate
}

// IsAggregateCall reports whether n is a call to an aggregate function.
func (r *Registry) IsAggregateCall(n Node) bool {
	call, ok := n.(*FuncCall)
	return ok && r.IsAggregate(call.Name)
}

// ContainsAggregate reports whether n or a descendant is an aggregate call.
func (r *Registry) ContainsAggregate(n Node) bool {
	return Contains(n, r.IsAggregateCall)
}

// IsWindowCall reports whether n is a window call.
func IsWindowCall(n Node) bool {
	_, ok := n.(*WindowFuncCall)
	return ok
}

// ContainsWindow reports whether n or a descendant is a window call.
func ContainsWindow(n Node) bool {
	return Contains(n, IsWindowCall)
}
