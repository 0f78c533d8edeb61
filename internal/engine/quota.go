package engine

// rowQuota counts the rows of one query result against a limit.
//
// Results are materialized between levels, so the limit bounds the memory
// a single query can take. A limit of 0 disables the check.
type rowQuota struct {
	queryID string
	limit   int
	current int
}

func newRowQuota(queryID string, limit int) *rowQuota {
	return &rowQuota{queryID: queryID, limit: limit}
}

// Check counts n more rows and fails once the limit is exceeded.
func (q *rowQuota) Check(n int) error {
	q.current += n
	if q.limit > 0 && q.current > q.limit {
		return &RowLimitError{QueryID: q.queryID, Rows: q.current, Limit: q.limit}
	}
	return nil
}

// Current returns the number of rows counted so far.
func (q *rowQuota) Current() int {
	return q.current
}
