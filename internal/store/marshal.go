package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/lens/internal/formula"
)

// marshalColumns converts column names to canonical JSON TEXT.
func marshalColumns(columns []string) (string, error) {
	list := make([]any, len(columns))
	for i, c := range columns {
		list[i] = c
	}
	data, err := formula.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal columns: %w", err)
	}
	return string(data), nil
}

// marshalRows converts rows to canonical JSON TEXT with typed values.
func marshalRows(rows [][]formula.Value) (string, error) {
	list := make([]any, len(rows))
	for i, row := range rows {
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = formula.Encode(&formula.Literal{Value: v})
		}
		list[i] = values
	}
	data, err := formula.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal rows: %w", err)
	}
	return string(data), nil
}

func unmarshalColumns(data string) ([]string, error) {
	var columns []string
	if err := json.Unmarshal([]byte(data), &columns); err != nil {
		return nil, fmt.Errorf("unmarshal columns: %w", err)
	}
	return columns, nil
}

// unmarshalRows parses rows written by marshalRows. Numbers are decoded
// through json.Number so large integers keep their precision.
func unmarshalRows(data string) ([][]formula.Value, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var raw [][]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal rows: %w", err)
	}

	rows := make([][]formula.Value, len(raw))
	for i, values := range raw {
		row := make([]formula.Value, len(values))
		for j, v := range values {
			n, err := formula.Decode(v)
			if err != nil {
				return nil, fmt.Errorf("unmarshal row %d value %d: %w", i, j, err)
			}
			lit, ok := n.(*formula.Literal)
			if !ok {
				return nil, fmt.Errorf("unmarshal row %d value %d: not a literal", i, j)
			}
			row[j] = lit.Value
		}
		rows[i] = row
	}
	return rows, nil
}
