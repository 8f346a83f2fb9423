// Package expr defines the column expression AST shared by model
// definitions and the SQL compiler. Nodes are immutable once built;
// Named and Disambiguated return shallow copies.
package expr

import (
	"fmt"

	"github.com/leapstack-labs/modelq/pkg/keypath"
)

// Expression is a value computable per row (attribute kind) or per group
// (measure kind) of a model.
type Expression interface {
	// Identifier is the name this expression binds to when selected.
	// Empty means the expression has no natural name and the compiler
	// must assign one.
	Identifier() string
	// Qualifier is the relation name this expression resolves its
	// columns against, or empty for the model's own source.
	Qualifier() string
	// Named returns a copy selected under the given alias.
	Named(name string) Expression
	// Disambiguated returns a copy whose columns resolve against the
	// named relation.
	Disambiguated(relation string) Expression
	// Aggregating reports whether the expression reduces many rows to
	// one, which makes it measure-kinded.
	Aggregating() bool

	exprNode()
}

// meta carries the alias and relation qualifier common to every node.
type meta struct {
	alias     string
	qualifier string
}

func (m meta) Identifier() string { return m.alias }
func (m meta) Qualifier() string  { return m.qualifier }

// Column references a column of the underlying source by name.
type Column struct {
	Name string
	meta
}

func (*Column) exprNode() {}

func (c *Column) Identifier() string {
	if c.alias != "" {
		return c.alias
	}
	return c.Name
}

func (c *Column) Named(name string) Expression {
	cp := *c
	cp.alias = name
	return &cp
}

func (c *Column) Disambiguated(relation string) Expression {
	cp := *c
	cp.qualifier = relation
	return &cp
}

func (c *Column) Aggregating() bool { return false }

// Literal is a constant value: string, numeric, bool, time.Time, or nil.
type Literal struct {
	Value any
	meta
}

func (*Literal) exprNode() {}

func (l *Literal) Named(name string) Expression {
	cp := *l
	cp.alias = name
	return &cp
}

func (l *Literal) Disambiguated(relation string) Expression {
	cp := *l
	cp.qualifier = relation
	return &cp
}

func (l *Literal) Aggregating() bool { return false }

// SQLText is a raw SQL fragment spliced into the query verbatim. The
// compiler cannot see inside it, so column-level validation stops here.
type SQLText struct {
	SQL string
	meta
}

func (*SQLText) exprNode() {}

func (s *SQLText) Named(name string) Expression {
	cp := *s
	cp.alias = name
	return &cp
}

func (s *SQLText) Disambiguated(relation string) Expression {
	cp := *s
	cp.qualifier = relation
	return &cp
}

func (s *SQLText) Aggregating() bool { return false }

// Call invokes a named function over its arguments. Whether the call
// aggregates is decided by the function name, falling back to whether any
// argument aggregates.
type Call struct {
	Name     string
	Args     []Expression
	Distinct bool
	meta
}

func (*Call) exprNode() {}

func (c *Call) Named(name string) Expression {
	cp := *c
	cp.alias = name
	return &cp
}

func (c *Call) Disambiguated(relation string) Expression {
	cp := *c
	cp.qualifier = relation
	return &cp
}

// aggregateFuncs are the call names that reduce rows to a single value.
var aggregateFuncs = map[string]bool{
	"count":    true,
	"count_if": true,
	"sum":      true,
	"avg":      true,
	"min":      true,
	"max":      true,
}

func (c *Call) Aggregating() bool {
	if aggregateFuncs[c.Name] {
		return true
	}
	for _, a := range c.Args {
		if a != nil && a.Aggregating() {
			return true
		}
	}
	return false
}

// BinaryOp applies an infix SQL operator to two operands.
type BinaryOp struct {
	Op    string
	Left  Expression
	Right Expression
	meta
}

func (*BinaryOp) exprNode() {}

func (b *BinaryOp) Named(name string) Expression {
	cp := *b
	cp.alias = name
	return &cp
}

func (b *BinaryOp) Disambiguated(relation string) Expression {
	cp := *b
	cp.qualifier = relation
	return &cp
}

func (b *BinaryOp) Aggregating() bool {
	return (b.Left != nil && b.Left.Aggregating()) ||
		(b.Right != nil && b.Right.Aggregating())
}

// When is one branch of a Cases expression.
type When struct {
	Cond  Expression
	Value Expression
}

// Cases is a CASE WHEN ... THEN ... ELSE ... END expression. A nil Else
// compiles to no ELSE clause (SQL NULL).
type Cases struct {
	Whens []When
	Else  Expression
	meta
}

func (*Cases) exprNode() {}

func (c *Cases) Named(name string) Expression {
	cp := *c
	cp.alias = name
	return &cp
}

func (c *Cases) Disambiguated(relation string) Expression {
	cp := *c
	cp.qualifier = relation
	return &cp
}

func (c *Cases) Aggregating() bool {
	for _, w := range c.Whens {
		if (w.Cond != nil && w.Cond.Aggregating()) || (w.Value != nil && w.Value.Aggregating()) {
			return true
		}
	}
	return c.Else != nil && c.Else.Aggregating()
}

// Unit is a timestamp truncation granularity.
type Unit string

// Supported granularities, coarse to fine.
const (
	Year    Unit = "year"
	Quarter Unit = "quarter"
	Month   Unit = "month"
	Week    Unit = "week"
	Day     Unit = "day"
	Hour    Unit = "hour"
	Minute  Unit = "minute"
	Second  Unit = "second"
)

// ValidUnit reports whether u names a supported granularity.
func ValidUnit(u Unit) bool {
	switch u {
	case Year, Quarter, Month, Week, Day, Hour, Minute, Second:
		return true
	}
	return false
}

// Granularity truncates a timestamp expression to a unit boundary.
type Granularity struct {
	Base Expression
	Unit Unit
	meta
}

func (*Granularity) exprNode() {}

func (g *Granularity) Identifier() string {
	if g.alias != "" {
		return g.alias
	}
	if g.Base != nil {
		return g.Base.Identifier()
	}
	return ""
}

func (g *Granularity) Named(name string) Expression {
	cp := *g
	cp.alias = name
	return &cp
}

func (g *Granularity) Disambiguated(relation string) Expression {
	cp := *g
	cp.qualifier = relation
	return &cp
}

func (g *Granularity) Aggregating() bool {
	return g.Base != nil && g.Base.Aggregating()
}

// Star selects every column of the source (or of the qualifying relation).
// Past a Star the compiler can no longer validate column references.
type Star struct {
	meta
}

func (*Star) exprNode() {}

func (s *Star) Named(name string) Expression {
	cp := *s
	cp.alias = name
	return &cp
}

func (s *Star) Disambiguated(relation string) Expression {
	cp := *s
	cp.qualifier = relation
	return &cp
}

func (s *Star) Aggregating() bool { return false }

// Deferred is an unresolved reference leaf: a KeyPath embedded where an
// expression is expected. The model resolver replaces it before
// compilation; reaching the compiler unresolved is a bug.
type Deferred struct {
	Path keypath.KeyPath
	meta
}

func (*Deferred) exprNode() {}

func (d *Deferred) Named(name string) Expression {
	cp := *d
	cp.alias = name
	return &cp
}

func (d *Deferred) Disambiguated(relation string) Expression {
	cp := *d
	cp.qualifier = relation
	return &cp
}

// Aggregating is unknowable before resolution; the resolver re-checks kind
// once the path is bound.
func (d *Deferred) Aggregating() bool { return false }

func (d *Deferred) String() string {
	return fmt.Sprintf("deferred(%s)", d.Path)
}
