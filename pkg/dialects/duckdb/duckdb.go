// Package duckdb adapts the compiler to DuckDB syntax.
package duckdb

import (
	"fmt"

	"github.com/leapstack-labs/modelq/pkg/dialect"
	"github.com/leapstack-labs/modelq/pkg/dialects/ansi"
	"github.com/leapstack-labs/modelq/pkg/expr"
)

func init() {
	dialect.Register(DuckDB{Base: ansi.Base{DialectName: "duckdb"}})
}

// DuckDB is the DuckDB dialect.
type DuckDB struct {
	ansi.Base
}

// TruncTimestamp uses DATE_TRUNC, which DuckDB supports for every unit the
// expression layer defines.
func (d DuckDB) TruncTimestamp(unit expr.Unit, operand string) (string, error) {
	return fmt.Sprintf("DATE_TRUNC('%s', %s)", unit, operand), nil
}

// TimestampDiffSeconds uses DATE_DIFF, signed from start to end.
func (d DuckDB) TimestampDiffSeconds(start, end string) (string, error) {
	return fmt.Sprintf("DATE_DIFF('second', %s, %s)", start, end), nil
}
