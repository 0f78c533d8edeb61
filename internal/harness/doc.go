// Package harness runs request scenarios end to end and checks their
// results.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: top_cities
//	description: "Cities ranked by sales, with a totals row"
//	requests: ../../request/testdata/requests
//	request: top_cities
//	compeng_mode: false
//	max_rows: 0
//	fixtures:
//	  - orders
//	  - "INSERT INTO orders VALUES (10, 'Rome', 1, 2, 1)"
//	assertions:
//	  - type: rows
//	    rows:
//	      - ["Paris", 30]
//	  - type: query_count
//	    count: 3
//
// requests names a CUE file or package directory relative to the scenario
// file. A fixture is either the name of a built-in fixture set or a SQL
// statement run against the source database, in order.
//
// # Assertion Types
//
//   - rows: the merged rows, in order
//   - rows_unordered: the merged rows, in any order
//   - row_count: the number of merged rows
//   - pivot_table: the rendered pivot table of a pivot request
//   - query_count: the number of executed queries
//   - levels: the level types of the root block plan, leaf first
//   - error: execution failed with a message containing contains
//   - sql_contains: the SQL of some compiled query contains contains
//
// # Deterministic Testing
//
// Every scenario runs against a fresh source database in a temporary
// directory and a fresh in-memory compeng database. Query ids come from a
// sequence generator and the run id is fixed, so plan snapshots are stable
// for golden file comparison.
package harness
