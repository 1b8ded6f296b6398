package main

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// rowFilter keeps rows for which every jq expression is truthy.
type rowFilter struct {
	codes []*gojq.Code
}

func compileFilters(exprs []string) (*rowFilter, error) {
	f := &rowFilter{codes: make([]*gojq.Code, len(exprs))}
	for i, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		f.codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
	}
	return f, nil
}

// match runs the filters against the JSON form of row.
func (f *rowFilter) match(row any) (bool, error) {
	if len(f.codes) == 0 {
		return true, nil
	}
	// gojq only accepts plain JSON values.
	data, err := json.Marshal(row)
	if err != nil {
		return false, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return false, err
	}

	for _, code := range f.codes {
		iter := code.Run(v)
		out, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := out.(error); isErr {
			return false, fmt.Errorf("jq filter failed: %w", err)
		}
		if !isTruthy(out) {
			return false, nil
		}
	}
	return true, nil
}

func filterRows[T any](f *rowFilter, rows []T) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		ok, err := f.match(row)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}
