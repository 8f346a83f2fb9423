// Package compile turns a model graph into a single SELECT statement for a
// target dialect. Compilation is pure: the same graph and dialect always
// produce byte-identical SQL, and the graph is never mutated.
package compile

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/modelq/pkg/dialect"
	"github.com/leapstack-labs/modelq/pkg/model"
)

// CycleError reports a model graph that references itself through a
// relation or union.
type CycleError struct {
	Name string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("model graph contains a reference cycle at %q", e.Name)
}

// cte is one named common table expression, in emission order.
type cte struct {
	name string
	sql  string
}

// context owns the names of a compilation: every alias and CTE name comes
// out of uniqueName, so nested compiles can never collide. It also caches
// compiled models so a model joined twice shares one CTE, and tracks the
// models currently being compiled to catch cycles. Physical table names
// seen in the graph are reserved up front so no CTE shadows a table the
// statement still scans.
type context struct {
	dialect  dialect.Dialect
	used     map[string]struct{}
	tables   map[string]struct{}
	ctes     []cte
	compiled map[*model.Model]string
	active   map[*model.Model]bool
}

func newContext(d dialect.Dialect) *context {
	return &context{
		dialect:  d,
		used:     make(map[string]struct{}),
		tables:   make(map[string]struct{}),
		compiled: make(map[*model.Model]string),
		active:   make(map[*model.Model]bool),
	}
}

// reserveTable records a physical table name referenced without a schema
// qualifier. Schema-qualified references cannot be shadowed by a CTE, so
// they need no reservation.
func (c *context) reserveTable(name string) {
	c.tables[name] = struct{}{}
}

// uniqueName issues an alias based on hint, suffixing a counter on
// collision with a previously issued name.
func (c *context) uniqueName(hint string) string {
	return c.issueName(hint, false)
}

// uniqueCTEName issues a CTE name based on hint, additionally steering
// clear of reserved table names.
func (c *context) uniqueCTEName(hint string) string {
	return c.issueName(hint, true)
}

func (c *context) issueName(hint string, avoidTables bool) string {
	hint = sanitizeName(hint)
	name := hint
	for i := 2; ; i++ {
		_, taken := c.used[name]
		if !taken && avoidTables {
			_, taken = c.tables[name]
		}
		if !taken {
			break
		}
		name = fmt.Sprintf("%s_%d", hint, i)
	}
	c.used[name] = struct{}{}
	return name
}

func sanitizeName(s string) string {
	if s == "" {
		return "q"
	}
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			sb.WriteRune(r - 'A' + 'a')
		default:
			sb.WriteRune('_')
		}
	}
	out := sb.String()
	if out[0] >= '0' && out[0] <= '9' {
		out = "q_" + out
	}
	return out
}

// addCTE appends a CTE under an already-unique name.
func (c *context) addCTE(name, sql string) {
	c.ctes = append(c.ctes, cte{name: name, sql: sql})
}

// render assembles the final statement: the accumulated CTEs, then the
// outer select.
func (c *context) render(final string) string {
	if len(c.ctes) == 0 {
		return final
	}
	var sb strings.Builder
	sb.WriteString("WITH ")
	for i, entry := range c.ctes {
		if i > 0 {
			sb.WriteString(",\n")
		}
		sb.WriteString(c.dialect.QuoteIdent(entry.name))
		sb.WriteString(" AS (\n")
		sb.WriteString(entry.sql)
		sb.WriteString("\n)")
	}
	sb.WriteString("\n")
	sb.WriteString(final)
	return sb.String()
}
