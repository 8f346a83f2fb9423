package expr

import (
	"time"

	"github.com/leapstack-labs/modelq/pkg/keypath"
)

// Col references a source column by name.
func Col(name string) *Column {
	return &Column{Name: name}
}

// Lit wraps a constant. Supported values are strings, integers, floats,
// booleans, time.Time, and nil.
func Lit(v any) *Literal {
	return &Literal{Value: v}
}

// SQL splices a raw SQL fragment into the query.
func SQL(text string) *SQLText {
	return &SQLText{SQL: text}
}

// All selects every column of the source.
func All() *Star {
	return &Star{}
}

// Ref embeds a KeyPath as an expression leaf, resolved against a model
// later.
func Ref(path keypath.KeyPath) *Deferred {
	return &Deferred{Path: path}
}

// Attr is shorthand for a deferred attribute reference.
func Attr(name string) *Deferred { return Ref(keypath.Attr(name)) }

// Msr is shorthand for a deferred measure reference.
func Msr(name string) *Deferred { return Ref(keypath.Msr(name)) }

// Rel is shorthand for a deferred relation reference.
func Rel(name string) *Deferred { return Ref(keypath.Rel(name)) }

// Coerce adapts an arbitrary builder argument to an Expression. KeyPaths
// become deferred references; anything that is not already an Expression
// becomes a Literal.
func Coerce(v any) Expression {
	switch t := v.(type) {
	case Expression:
		return t
	case keypath.KeyPath:
		return Ref(t)
	case time.Duration:
		return Lit(int64(t / time.Second))
	default:
		return Lit(v)
	}
}

func coerceAll(vs []any) []Expression {
	out := make([]Expression, len(vs))
	for i, v := range vs {
		out[i] = Coerce(v)
	}
	return out
}

// Count counts rows. With no argument it compiles to COUNT(*); with one it
// counts non-NULL values of that expression.
func Count(args ...any) *Call {
	return &Call{Name: "count", Args: coerceAll(args)}
}

// CountDistinct counts distinct non-NULL values.
func CountDistinct(v any) *Call {
	return &Call{Name: "count", Args: []Expression{Coerce(v)}, Distinct: true}
}

// CountIf counts rows satisfying a condition.
func CountIf(cond any) *Call {
	return &Call{Name: "count_if", Args: []Expression{Coerce(cond)}}
}

// Sum totals an expression over the group.
func Sum(v any) *Call { return &Call{Name: "sum", Args: []Expression{Coerce(v)}} }

// Avg averages an expression over the group.
func Avg(v any) *Call { return &Call{Name: "avg", Args: []Expression{Coerce(v)}} }

// Min takes the group minimum.
func Min(v any) *Call { return &Call{Name: "min", Args: []Expression{Coerce(v)}} }

// Max takes the group maximum.
func Max(v any) *Call { return &Call{Name: "max", Args: []Expression{Coerce(v)}} }

// Now is the current timestamp at query time.
func Now() *Call { return &Call{Name: "now"} }

// DiffSeconds is the signed number of seconds from start to end.
func DiffSeconds(start, end any) *Call {
	return &Call{Name: "diff_seconds", Args: []Expression{Coerce(start), Coerce(end)}}
}

// NullIf yields NULL when both arguments are equal, else the first.
func NullIf(a, b any) *Call {
	return &Call{Name: "nullif", Args: []Expression{Coerce(a), Coerce(b)}}
}

// IsNull tests an expression for NULL.
func IsNull(v any) *Call { return &Call{Name: "is_null", Args: []Expression{Coerce(v)}} }

// NotNull tests an expression for non-NULL.
func NotNull(v any) *Call { return &Call{Name: "not_null", Args: []Expression{Coerce(v)}} }

// And conjoins conditions.
func And(conds ...any) Expression { return fold("AND", conds) }

// Or disjoins conditions.
func Or(conds ...any) Expression { return fold("OR", conds) }

func fold(op string, conds []any) Expression {
	exprs := coerceAll(conds)
	if len(exprs) == 0 {
		return Lit(true)
	}
	acc := exprs[0]
	for _, e := range exprs[1:] {
		acc = &BinaryOp{Op: op, Left: acc, Right: e}
	}
	return acc
}

// Not negates a condition.
func Not(cond any) *Call {
	return &Call{Name: "not", Args: []Expression{Coerce(cond)}}
}

// Eq compares two expressions for equality.
func Eq(l, r any) *BinaryOp { return binop("=", l, r) }

// Neq compares two expressions for inequality.
func Neq(l, r any) *BinaryOp { return binop("!=", l, r) }

// Gt is the greater-than comparison.
func Gt(l, r any) *BinaryOp { return binop(">", l, r) }

// Gte is the greater-or-equal comparison.
func Gte(l, r any) *BinaryOp { return binop(">=", l, r) }

// Lt is the less-than comparison.
func Lt(l, r any) *BinaryOp { return binop("<", l, r) }

// Lte is the less-or-equal comparison.
func Lte(l, r any) *BinaryOp { return binop("<=", l, r) }

// Add is arithmetic addition.
func Add(l, r any) *BinaryOp { return binop("+", l, r) }

// Sub is arithmetic subtraction.
func Sub(l, r any) *BinaryOp { return binop("-", l, r) }

// Mul is arithmetic multiplication.
func Mul(l, r any) *BinaryOp { return binop("*", l, r) }

// Div is arithmetic division.
func Div(l, r any) *BinaryOp { return binop("/", l, r) }

// SafeDiv divides with a zero divisor neutralized to NULL.
func SafeDiv(l, r any) *BinaryOp {
	return &BinaryOp{Op: "/", Left: Coerce(l), Right: NullIf(r, 0)}
}

func binop(op string, l, r any) *BinaryOp {
	return &BinaryOp{Op: op, Left: Coerce(l), Right: Coerce(r)}
}

// Switch builds a CASE expression from ordered branches and an optional
// ELSE (nil for none).
func Switch(whens []When, otherwise Expression) *Cases {
	return &Cases{Whens: whens, Else: otherwise}
}

// WhenThen builds one CASE branch.
func WhenThen(cond, value any) When {
	return When{Cond: Coerce(cond), Value: Coerce(value)}
}

// Trunc truncates a timestamp expression to a unit boundary.
func Trunc(v any, unit Unit) *Granularity {
	return &Granularity{Base: Coerce(v), Unit: unit}
}
