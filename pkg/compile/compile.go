package compile

import (
	"fmt"

	"github.com/leapstack-labs/modelq/pkg/dialect"
	"github.com/leapstack-labs/modelq/pkg/model"
)

// Compile renders a model as one SELECT statement for the named dialect.
func Compile(m *model.Model, dialectName string) (string, error) {
	d, err := dialect.Get(dialectName)
	if err != nil {
		return "", err
	}
	return CompileWith(m, d)
}

// CompileFor renders a model for its connection's dialect.
func CompileFor(m *model.Model) (string, error) {
	conn := m.Connection()
	if conn == nil {
		return "", &model.TypeError{Op: "compile", Detail: "model has no connection"}
	}
	return Compile(m, conn.Dialect)
}

// CompileWith renders a model against an already-resolved dialect.
func CompileWith(m *model.Model, d dialect.Dialect) (string, error) {
	ctx := newContext(d)
	seedTables(ctx, m, make(map[*model.Model]bool))
	body, err := compileModelBody(ctx, m)
	if err != nil {
		return "", err
	}
	return ctx.render(body), nil
}

// seedTables reserves every physical table name reachable from the model,
// so a generated CTE can never shadow a table the statement scans.
func seedTables(ctx *context, m *model.Model, seen map[*model.Model]bool) {
	if m == nil || seen[m] {
		return
	}
	seen[m] = true
	for s := m.Source(); s != nil; {
		switch t := s.(type) {
		case *model.TableSource:
			if t.Schema == "" {
				ctx.reserveTable(t.Name)
			}
			return
		case *model.FilterSource:
			s = t.Base
		case *model.AggregateSource:
			s = t.Base
		case *model.SortSource:
			s = t.Base
		case *model.LimitSource:
			s = t.Base
		case *model.PickSource:
			s = t.Base
		case *model.UnionSource:
			seedTables(ctx, t.Other, seen)
			s = t.Base
		case *model.JoinOneSource:
			seedTables(ctx, t.Target, seen)
			s = t.Base
		case *model.MatchStepsSource:
			s = t.Base
		default:
			return
		}
	}
}

// compileModelBody renders a model's full SELECT (CTEs are hoisted to the
// shared context), guarding against reference cycles.
func compileModelBody(ctx *context, m *model.Model) (string, error) {
	if ctx.active[m] {
		return "", &CycleError{Name: sourceHint(m.Source())}
	}
	ctx.active[m] = true
	defer delete(ctx.active, m)

	l, err := compileSource(ctx, m.Source())
	if err != nil {
		return "", err
	}
	return l.sql(), nil
}

// compileModelToCTE renders a model into a CTE and returns its name.
// Compiling the same model twice reuses the first CTE, so self-joins read
// one scan.
func compileModelToCTE(ctx *context, m *model.Model, hint string) (string, error) {
	if name, ok := ctx.compiled[m]; ok {
		return name, nil
	}
	body, err := compileModelBody(ctx, m)
	if err != nil {
		return "", err
	}
	name := ctx.uniqueCTEName(hint)
	ctx.addCTE(name, body)
	ctx.compiled[m] = name
	return name, nil
}

// compileSource builds the layer stack for a source chain.
func compileSource(ctx *context, src model.Source) (*layer, error) {
	switch t := src.(type) {
	case *model.TableSource:
		ref := ctx.dialect.QuoteIdent(t.Name)
		if t.Schema != "" {
			ref = ctx.dialect.QuoteIdent(t.Schema) + "." + ref
		}
		return newLayer(ctx, ref, t.Name), nil

	case *model.SQLTextSource:
		name := ctx.uniqueCTEName("sql_source")
		ctx.addCTE(name, t.SQL)
		return newLayer(ctx, ctx.dialect.QuoteIdent(name), name), nil

	case *model.FilterSource:
		l, err := compileSource(ctx, t.Base)
		if err != nil {
			return nil, err
		}
		l = l.chainForFilter()
		cond, err := compileExpr(l, t.Cond, "")
		if err != nil {
			return nil, err
		}
		if t.Cond.Aggregating() {
			l.havings = append(l.havings, cond)
		} else {
			l.wheres = append(l.wheres, cond)
		}
		return l, nil

	case *model.AggregateSource:
		l, err := compileSource(ctx, t.Base)
		if err != nil {
			return nil, err
		}
		l = l.chainForAggregate()
		for _, g := range t.Groups {
			sql, err := compileExpr(l, g, "")
			if err != nil {
				return nil, err
			}
			l.selections = append(l.selections, selection{sql: sql, alias: g.Identifier()})
		}
		l.groupBy = len(t.Groups)
		for _, msr := range t.Measures {
			sql, err := compileExpr(l, msr, "")
			if err != nil {
				return nil, err
			}
			l.selections = append(l.selections, selection{sql: sql, alias: msr.Identifier()})
		}
		l.isAggregated = true
		return l, nil

	case *model.SortSource:
		l, err := compileSource(ctx, t.Base)
		if err != nil {
			return nil, err
		}
		l = l.chainForSort()
		sql, err := compileExpr(l, t.By, "")
		if err != nil {
			return nil, err
		}
		l.addSort(ctx.dialect.OrderBy(sql, t.Desc, t.NullsFirst))
		return l, nil

	case *model.LimitSource:
		l, err := compileSource(ctx, t.Base)
		if err != nil {
			return nil, err
		}
		l = l.chainForLimit()
		l.limit = &limitSpec{limit: t.Limit, offset: t.Offset}
		return l, nil

	case *model.PickSource:
		l, err := compileSource(ctx, t.Base)
		if err != nil {
			return nil, err
		}
		l = l.chainForPick()
		for _, col := range t.Columns {
			sql, err := compileExpr(l, col, "")
			if err != nil {
				return nil, err
			}
			l.selections = append(l.selections, selection{sql: sql, alias: col.Identifier()})
		}
		return l, nil

	case *model.UnionSource:
		l, err := compileSource(ctx, t.Base)
		if err != nil {
			return nil, err
		}
		if ctx.active[t.Other] {
			return nil, &CycleError{Name: sourceHint(t.Other.Source())}
		}
		otherSQL, err := compileModelBody(ctx, t.Other)
		if err != nil {
			return nil, err
		}
		name := ctx.uniqueCTEName(l.hint + "_union")
		ctx.addCTE(name, l.sql()+"\nUNION ALL\n"+otherSQL)
		return newLayer(ctx, ctx.dialect.QuoteIdent(name), name), nil

	case *model.JoinOneSource:
		l, err := compileSource(ctx, t.Base)
		if err != nil {
			return nil, err
		}
		l = l.chainForJoin()
		if ctx.active[t.Target] {
			return nil, &CycleError{Name: t.Name}
		}
		targetCTE, err := compileModelToCTE(ctx, t.Target, t.Name)
		if err != nil {
			return nil, err
		}
		l.ensureAlias()
		joinAlias := ctx.uniqueName(t.Name)
		l.namespaces[t.Name] = joinAlias
		l.isJoined = true
		cond, err := compileExpr(l, t.On, "")
		if err != nil {
			return nil, err
		}
		kind := "LEFT JOIN"
		if t.DropUnmatched {
			kind = "JOIN"
		}
		l.joins = append(l.joins, joinClause{sql: fmt.Sprintf("%s %s AS %s ON %s",
			kind,
			ctx.dialect.QuoteIdent(targetCTE),
			ctx.dialect.QuoteIdent(joinAlias),
			cond,
		)})
		return l, nil

	case *model.MatchStepsSource:
		return compileMatchSteps(ctx, t)

	default:
		return nil, &model.TypeError{Op: "compile", Detail: fmt.Sprintf("unknown source node %T", src)}
	}
}

// sourceHint digs out a readable name for a source chain, for aliases and
// error messages.
func sourceHint(s model.Source) string {
	for {
		switch t := s.(type) {
		case *model.TableSource:
			return t.Name
		case *model.SQLTextSource:
			return "sql_source"
		case *model.FilterSource:
			s = t.Base
		case *model.AggregateSource:
			s = t.Base
		case *model.SortSource:
			s = t.Base
		case *model.LimitSource:
			s = t.Base
		case *model.PickSource:
			s = t.Base
		case *model.UnionSource:
			s = t.Base
		case *model.JoinOneSource:
			s = t.Base
		case *model.MatchStepsSource:
			return "matched"
		default:
			return "q"
		}
	}
}
