// Package ansi provides the baseline SQL dialect. Backends embed Base and
// override the hooks where their syntax diverges; Base itself sticks to the
// standard and reports anything non-standard as unsupported rather than
// guessing a vendor spelling.
package ansi

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/modelq/pkg/dialect"
	"github.com/leapstack-labs/modelq/pkg/expr"
)

func init() {
	dialect.Register(Base{DialectName: "ansi"})
}

// Base implements dialect.Dialect with ANSI SQL syntax.
type Base struct {
	DialectName string
}

// Name implements dialect.Dialect.
func (b Base) Name() string { return b.DialectName }

// QuoteIdent quotes with double quotes, doubling embedded ones.
func (b Base) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// StringLiteral quotes with single quotes, doubling embedded ones.
func (b Base) StringLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// TruncTimestamp is not in the standard; vendor dialects override it.
func (b Base) TruncTimestamp(unit expr.Unit, operand string) (string, error) {
	return "", dialect.Unsupported(b, fmt.Sprintf("timestamp truncation to %s", unit))
}

// OrderBy always spells out null placement so defaults cannot drift
// between backends.
func (b Base) OrderBy(operand string, desc, nullsFirst bool) string {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	nulls := "NULLS LAST"
	if nullsFirst {
		nulls = "NULLS FIRST"
	}
	return fmt.Sprintf("%s %s %s", operand, dir, nulls)
}

// LimitOffset renders LIMIT, plus OFFSET when nonzero.
func (b Base) LimitOffset(limit, offset int) string {
	if offset > 0 {
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	}
	return fmt.Sprintf("LIMIT %d", limit)
}

// Star expands all columns of an alias, or of the whole row set.
func (b Base) Star(alias string) string {
	if alias == "" {
		return "*"
	}
	return b.QuoteIdent(alias) + ".*"
}

// RowNumber renders the standard window function.
func (b Base) RowNumber(partitionBy, orderBy []string) (string, error) {
	var sb strings.Builder
	sb.WriteString("ROW_NUMBER() OVER (")
	if len(partitionBy) > 0 {
		sb.WriteString("PARTITION BY ")
		sb.WriteString(strings.Join(partitionBy, ", "))
		if len(orderBy) > 0 {
			sb.WriteString(" ")
		}
	}
	if len(orderBy) > 0 {
		sb.WriteString("ORDER BY ")
		sb.WriteString(strings.Join(orderBy, ", "))
	}
	sb.WriteString(")")
	return sb.String(), nil
}

// TimestampDiffSeconds is not in the standard; vendor dialects override it.
func (b Base) TimestampDiffSeconds(start, end string) (string, error) {
	return "", dialect.Unsupported(b, "timestamp difference in seconds")
}

// TimestampLiteral renders a TIMESTAMP constant from an RFC 3339 UTC
// string.
func (b Base) TimestampLiteral(utc string) string {
	s := strings.TrimSuffix(utc, "Z")
	s = strings.Replace(s, "T", " ", 1)
	return "TIMESTAMP '" + s + "'"
}

// CurrentTimestamp renders the query-time clock.
func (b Base) CurrentTimestamp() string { return "CURRENT_TIMESTAMP" }
