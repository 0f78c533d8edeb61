// Package dialect identifies backend SQL dialects and groups them into sets.
//
// Dialect sets are bitmasks so that per-dialect configuration tables (for
// example the mutation fold table) can key entries by a group of dialects and
// fall back to the dialect-agnostic Default entry.
package dialect

import (
	"fmt"
	"sort"
	"strings"
)

// Dialect is a single backend dialect.
type Dialect uint64

const (
	SQLite Dialect = 1 << iota
	PostgreSQL
	ClickHouse
	MySQL
	Oracle
	MSSQL
	CompEng
)

// Set is a union of dialects.
type Set uint64

// Default is the empty set, used as the dialect-agnostic key in lookup tables.
const Default Set = 0

// All contains every known dialect.
const All = Set(SQLite | PostgreSQL | ClickHouse | MySQL | Oracle | MSSQL | CompEng)

var names = map[Dialect]string{
	SQLite:     "sqlite",
	PostgreSQL: "postgresql",
	ClickHouse: "clickhouse",
	MySQL:      "mysql",
	Oracle:     "oracle",
	MSSQL:      "mssql",
	CompEng:    "compeng",
}

// capabilities lists backend features the planners care about.
var capabilities = map[Dialect]Capabilities{
	SQLite:     {WindowFunctions: true},
	PostgreSQL: {WindowFunctions: true},
	ClickHouse: {WindowFunctions: false},
	MySQL:      {WindowFunctions: true},
	Oracle:     {WindowFunctions: true, EmptyStringIsNull: true},
	MSSQL:      {WindowFunctions: true},
	CompEng:    {WindowFunctions: true},
}

// Capabilities describes what a dialect can evaluate natively.
type Capabilities struct {
	// WindowFunctions is false when window calls must run in compeng.
	WindowFunctions bool

	// EmptyStringIsNull is true when '' and NULL are the same value.
	EmptyStringIsNull bool
}

// String returns the dialect's lowercase name.
func (d Dialect) String() string {
	if n, ok := names[d]; ok {
		return n
	}
	return fmt.Sprintf("dialect(%d)", uint64(d))
}

// Capabilities returns the feature set of d.
func (d Dialect) Capabilities() Capabilities {
	return capabilities[d]
}

// Set returns a set containing only d.
func (d Dialect) Set() Set {
	return Set(d)
}

// Parse resolves a dialect by name (case-insensitive).
func Parse(name string) (Dialect, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for d, n := range names {
		if n == lower {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown dialect %q", name)
}

// NewSet builds a set from dialects.
func NewSet(ds ...Dialect) Set {
	var s Set
	for _, d := range ds {
		s |= Set(d)
	}
	return s
}

// Contains reports whether d is in s.
func (s Set) Contains(d Dialect) bool {
	return s&Set(d) != 0
}

// String lists the set members in name order.
func (s Set) String() string {
	if s == Default {
		return "default"
	}
	var parts []string
	for d, n := range names {
		if s.Contains(d) {
			parts = append(parts, n)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}
