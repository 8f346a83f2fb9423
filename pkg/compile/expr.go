package compile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/modelq/pkg/expr"
	"github.com/leapstack-labs/modelq/pkg/model"
)

// compileExpr renders an expression against the current layer. scope is the
// alias column references resolve against; it starts empty and switches to
// a join alias when a disambiguated subtree is entered.
func compileExpr(l *layer, e expr.Expression, scope string) (string, error) {
	if e == nil {
		return "", &model.TypeError{Op: "compile", Detail: "nil expression"}
	}
	if q := e.Qualifier(); q != "" {
		alias, ok := l.namespaces[q]
		if !ok {
			return "", &model.ReferenceError{
				Kind: "relation", Name: q, Available: namespaceNames(l),
			}
		}
		scope = alias
	}

	d := l.ctx.dialect
	switch t := e.(type) {
	case *expr.Column:
		name := d.QuoteIdent(t.Name)
		if scope == "" && l.isJoined {
			scope = l.alias
		}
		if scope != "" {
			return d.QuoteIdent(scope) + "." + name, nil
		}
		return name, nil

	case *expr.Literal:
		return compileLiteral(l, t.Value)

	case *expr.SQLText:
		return t.SQL, nil

	case *expr.Star:
		if scope == "" && l.isJoined {
			scope = l.alias
		}
		return d.Star(scope), nil

	case *expr.Call:
		return compileCall(l, t, scope)

	case *expr.BinaryOp:
		left, err := compileExpr(l, t.Left, scope)
		if err != nil {
			return "", err
		}
		right, err := compileExpr(l, t.Right, scope)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, t.Op, right), nil

	case *expr.Cases:
		var sb strings.Builder
		sb.WriteString("CASE")
		for _, w := range t.Whens {
			cond, err := compileExpr(l, w.Cond, scope)
			if err != nil {
				return "", err
			}
			value, err := compileExpr(l, w.Value, scope)
			if err != nil {
				return "", err
			}
			sb.WriteString(" WHEN ")
			sb.WriteString(cond)
			sb.WriteString(" THEN ")
			sb.WriteString(value)
		}
		if t.Else != nil {
			els, err := compileExpr(l, t.Else, scope)
			if err != nil {
				return "", err
			}
			sb.WriteString(" ELSE ")
			sb.WriteString(els)
		}
		sb.WriteString(" END")
		return sb.String(), nil

	case *expr.Granularity:
		base, err := compileExpr(l, t.Base, scope)
		if err != nil {
			return "", err
		}
		return d.TruncTimestamp(t.Unit, base)

	case *expr.Deferred:
		return "", &model.TypeError{
			Op:     "compile",
			Detail: fmt.Sprintf("unresolved reference %s reached the compiler", t.Path),
		}

	default:
		return "", &model.TypeError{Op: "compile", Detail: fmt.Sprintf("unknown expression node %T", e)}
	}
}

func namespaceNames(l *layer) []string {
	names := make([]string, 0, len(l.namespaces))
	for name := range l.namespaces {
		names = append(names, name)
	}
	return names
}

func compileLiteral(l *layer, v any) (string, error) {
	d := l.ctx.dialect
	switch t := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if t {
			return "TRUE", nil
		}
		return "FALSE", nil
	case string:
		return d.StringLiteral(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 64), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case time.Time:
		return d.TimestampLiteral(t.UTC().Format(time.RFC3339Nano)), nil
	default:
		return "", &model.TypeError{Op: "compile", Detail: fmt.Sprintf("unsupported literal %T", v)}
	}
}

func compileCall(l *layer, c *expr.Call, scope string) (string, error) {
	d := l.ctx.dialect

	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		sql, err := compileExpr(l, a, scope)
		if err != nil {
			return "", err
		}
		args[i] = sql
	}

	arity := func(n int) error {
		if len(args) != n {
			return &model.TypeError{
				Op:     c.Name,
				Detail: fmt.Sprintf("takes %d argument(s), got %d", n, len(args)),
			}
		}
		return nil
	}

	switch c.Name {
	case "count":
		if len(args) == 0 {
			return "COUNT(*)", nil
		}
		if err := arity(1); err != nil {
			return "", err
		}
		if c.Distinct {
			return fmt.Sprintf("COUNT(DISTINCT %s)", args[0]), nil
		}
		return fmt.Sprintf("COUNT(%s)", args[0]), nil
	case "count_if":
		if err := arity(1); err != nil {
			return "", err
		}
		return fmt.Sprintf("SUM(CASE WHEN %s THEN 1 ELSE 0 END)", args[0]), nil
	case "sum", "avg", "min", "max":
		if err := arity(1); err != nil {
			return "", err
		}
		if c.Distinct {
			return fmt.Sprintf("%s(DISTINCT %s)", strings.ToUpper(c.Name), args[0]), nil
		}
		return fmt.Sprintf("%s(%s)", strings.ToUpper(c.Name), args[0]), nil
	case "not":
		if err := arity(1); err != nil {
			return "", err
		}
		return fmt.Sprintf("(NOT %s)", args[0]), nil
	case "nullif":
		if err := arity(2); err != nil {
			return "", err
		}
		return fmt.Sprintf("NULLIF(%s, %s)", args[0], args[1]), nil
	case "is_null":
		if err := arity(1); err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s IS NULL)", args[0]), nil
	case "not_null":
		if err := arity(1); err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s IS NOT NULL)", args[0]), nil
	case "now":
		if err := arity(0); err != nil {
			return "", err
		}
		return d.CurrentTimestamp(), nil
	case "diff_seconds":
		if err := arity(2); err != nil {
			return "", err
		}
		return d.TimestampDiffSeconds(args[0], args[1])
	default:
		// Pass-through for warehouse functions the library does not
		// model; the database validates them.
		return fmt.Sprintf("%s(%s)", c.Name, strings.Join(args, ", ")), nil
	}
}
