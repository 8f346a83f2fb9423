// Package postgres adapts the compiler to PostgreSQL syntax.
package postgres

import (
	"fmt"

	"github.com/leapstack-labs/modelq/pkg/dialect"
	"github.com/leapstack-labs/modelq/pkg/dialects/ansi"
	"github.com/leapstack-labs/modelq/pkg/expr"
)

func init() {
	dialect.Register(Postgres{Base: ansi.Base{DialectName: "postgres"}})
}

// Postgres is the PostgreSQL dialect.
type Postgres struct {
	ansi.Base
}

// TruncTimestamp uses DATE_TRUNC.
func (p Postgres) TruncTimestamp(unit expr.Unit, operand string) (string, error) {
	return fmt.Sprintf("DATE_TRUNC('%s', %s)", unit, operand), nil
}

// TimestampDiffSeconds extracts epoch seconds from the interval.
func (p Postgres) TimestampDiffSeconds(start, end string) (string, error) {
	return fmt.Sprintf("EXTRACT(EPOCH FROM (%s - %s))", end, start), nil
}
