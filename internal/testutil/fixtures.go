// Package testutil holds deterministic helpers and shared fixtures for
// tests and conformance scenarios.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
)

// OrdersFixture creates the orders data set used across tests: four
// orders in three cities of two regions.
//
//	city    region  sales  cost
//	Paris   West    10     4
//	Paris   West    20     5
//	Berlin  East    5      1
//	Moscow  East    7      7
var OrdersFixture = []string{
	`CREATE TABLE orders (city TEXT, region_id INTEGER, sales INTEGER, cost INTEGER, day TEXT)`,
	`CREATE TABLE regions (id INTEGER, name TEXT)`,
	`INSERT INTO orders VALUES
		('Paris', 1, 10, 4, '2024-01-01'),
		('Paris', 1, 20, 5, '2024-02-01'),
		('Berlin', 2, 5, 1, '2024-01-15'),
		('Moscow', 2, 7, 7, '2023-12-31')`,
	`INSERT INTO regions VALUES (1, 'West'), (2, 'East')`,
}

// Seed runs statements on db in order.
func Seed(ctx context.Context, db *sql.DB, statements []string) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("fixture statement %d: %w", i, err)
		}
	}
	return nil
}
