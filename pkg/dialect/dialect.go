// Package dialect defines the capability surface the SQL compiler consumes
// and a registry of installed backends. The compiler stays dialect-agnostic:
// every piece of backend-specific syntax goes through a hook here, and a
// backend that cannot express an operation returns UnsupportedOperationError
// instead of guessing.
package dialect

import (
	"fmt"

	"github.com/leapstack-labs/modelq/pkg/expr"
)

// Dialect renders the backend-specific fragments of a query. Implementations
// must be stateless and safe for concurrent use.
type Dialect interface {
	// Name is the registry key, lower case.
	Name() string

	// QuoteIdent quotes an identifier, escaping embedded quote characters.
	QuoteIdent(name string) string

	// StringLiteral quotes a string value.
	StringLiteral(value string) string

	// TruncTimestamp truncates a timestamp expression to a unit boundary.
	TruncTimestamp(unit expr.Unit, operand string) (string, error)

	// OrderBy renders one ORDER BY term with explicit null placement.
	OrderBy(operand string, desc, nullsFirst bool) string

	// LimitOffset renders the row-limiting clause, without leading space.
	LimitOffset(limit, offset int) string

	// Star expands to all columns of the given alias, or of the whole
	// row set when alias is empty.
	Star(alias string) string

	// RowNumber renders ROW_NUMBER() OVER the given partition and order.
	RowNumber(partitionBy, orderBy []string) (string, error)

	// TimestampDiffSeconds renders the signed seconds from start to end.
	TimestampDiffSeconds(start, end string) (string, error)

	// TimestampLiteral renders a timestamp constant from an RFC 3339
	// UTC string.
	TimestampLiteral(utc string) string

	// CurrentTimestamp renders the query-time clock.
	CurrentTimestamp() string
}

// UnsupportedOperationError reports an operation the target dialect cannot
// express.
type UnsupportedOperationError struct {
	Dialect   string
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("dialect %q does not support %s", e.Dialect, e.Operation)
}

// Unsupported builds an UnsupportedOperationError for d.
func Unsupported(d Dialect, operation string) error {
	return &UnsupportedOperationError{Dialect: d.Name(), Operation: operation}
}
