// Package warehouse holds the narrow contract the core needs from the data
// warehouse (dataset and table listings, table schema, dry run, real query)
// and its BigQuery implementation.
package warehouse

import (
	"errors"
	"fmt"
)

type Mode string

const (
	ModeNullable Mode = "NULLABLE"
	ModeRequired Mode = "REQUIRED"
	ModeRepeated Mode = "REPEATED"
)

// Field describes one column. Fields is set for RECORD columns only.
type Field struct {
	Name   string  `json:"name"`
	Type   string  `json:"type"`
	Mode   Mode    `json:"mode"`
	Fields []Field `json:"fields,omitempty"`
}

// TableSchema is the ordered column list of a table.
type TableSchema []Field

type DryRunResult struct {
	TotalBytesProcessed int64
}

// ResultSet is a fully materialized query result. Values are the raw scalars
// produced by the warehouse client.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// APIError is a rejection reported by the warehouse API itself (bad syntax,
// missing table, permission denied), as opposed to a transport or local failure.
type APIError struct {
	Code    int
	Reason  string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Message)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// IsAPIError reports whether err was rejected by the warehouse API.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
