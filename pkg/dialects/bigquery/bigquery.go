// Package bigquery adapts the compiler to BigQuery Standard SQL syntax.
package bigquery

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/modelq/pkg/dialect"
	"github.com/leapstack-labs/modelq/pkg/dialects/ansi"
	"github.com/leapstack-labs/modelq/pkg/expr"
)

func init() {
	dialect.Register(BigQuery{Base: ansi.Base{DialectName: "bigquery"}})
}

// BigQuery is the BigQuery Standard SQL dialect.
type BigQuery struct {
	ansi.Base
}

// QuoteIdent quotes with backticks.
func (b BigQuery) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

// StringLiteral escapes backslashes as well as quotes; BigQuery treats
// backslash as an escape character inside string literals.
func (b BigQuery) StringLiteral(value string) string {
	v := strings.ReplaceAll(value, `\`, `\\`)
	v = strings.ReplaceAll(v, "'", `\'`)
	return "'" + v + "'"
}

// Star expands an alias with backtick quoting.
func (b BigQuery) Star(alias string) string {
	if alias == "" {
		return "*"
	}
	return b.QuoteIdent(alias) + ".*"
}

// TruncTimestamp uses TIMESTAMP_TRUNC with an uppercase unit keyword.
func (b BigQuery) TruncTimestamp(unit expr.Unit, operand string) (string, error) {
	return fmt.Sprintf("TIMESTAMP_TRUNC(%s, %s)", operand, strings.ToUpper(string(unit))), nil
}

// TimestampDiffSeconds uses TIMESTAMP_DIFF, which takes the later
// timestamp first.
func (b BigQuery) TimestampDiffSeconds(start, end string) (string, error) {
	return fmt.Sprintf("TIMESTAMP_DIFF(%s, %s, SECOND)", end, start), nil
}
