package compile

import (
	"fmt"
	"strings"
)

// selection is one rendered SELECT item.
type selection struct {
	sql   string
	alias string
}

// joinClause is one rendered JOIN, in application order.
type joinClause struct {
	sql string
}

// limitSpec is a rendered-pending LIMIT/OFFSET.
type limitSpec struct {
	limit  int
	offset int
}

// layer is one SELECT under construction. Source compilers mutate the
// current layer while they can and chain it into a CTE when the next
// operation cannot legally share the statement: once selections exist,
// later operations see the projected columns, and once a limit exists,
// later operations see the truncated rows.
type layer struct {
	ctx        *context
	fromRef    string // quoted table reference or CTE name
	hint       string // naming seed for the alias and chained CTEs
	alias      string // assigned when qualification is needed
	joins      []joinClause
	namespaces map[string]string // relation name -> join alias
	selections []selection
	wheres     []string
	groupBy    int // positional: GROUP BY 1..n; 0 means none
	havings    []string
	orderBys   []string
	limit      *limitSpec

	isAggregated bool
	isJoined     bool
}

func newLayer(ctx *context, fromRef, hint string) *layer {
	return &layer{
		ctx:        ctx,
		fromRef:    fromRef,
		hint:       hint,
		namespaces: make(map[string]string),
	}
}

func (l *layer) hasSelections() bool { return len(l.selections) > 0 }

// ensureAlias assigns the layer's qualification alias on first need.
func (l *layer) ensureAlias() string {
	if l.alias == "" {
		l.alias = l.ctx.uniqueName(l.hint)
	}
	return l.alias
}

// chained closes this layer into a CTE and opens a fresh layer reading it.
// Projected aliases become real columns of the new layer.
func (l *layer) chained(hint string) *layer {
	name := l.ctx.uniqueCTEName(l.hint + "_" + hint)
	l.ctx.addCTE(name, l.sql())
	return newLayer(l.ctx, l.ctx.dialect.QuoteIdent(name), name)
}

// chainForFilter closes the layer when a filter cannot be added in place.
func (l *layer) chainForFilter() *layer {
	if l.hasSelections() || l.limit != nil {
		return l.chained("filtered")
	}
	return l
}

// chainForAggregate closes the layer when an aggregation cannot share it.
func (l *layer) chainForAggregate() *layer {
	if l.isAggregated || l.hasSelections() || l.limit != nil {
		return l.chained("aggregated")
	}
	return l
}

// chainForPick closes the layer when a projection cannot share it.
func (l *layer) chainForPick() *layer {
	if l.hasSelections() || l.isAggregated {
		return l.chained("picked")
	}
	return l
}

// chainForSort closes the layer when sort keys must see projected columns.
func (l *layer) chainForSort() *layer {
	if l.hasSelections() {
		return l.chained("sorted")
	}
	return l
}

// chainForJoin closes the layer when a join cannot share it.
func (l *layer) chainForJoin() *layer {
	if l.hasSelections() || l.isAggregated || l.limit != nil {
		return l.chained("joined")
	}
	return l
}

// chainForLimit closes the layer when a limit is already pending.
func (l *layer) chainForLimit() *layer {
	if l.limit != nil {
		return l.chained("limited")
	}
	return l
}

// addSort prepends an ORDER BY term: the latest sort dominates, earlier
// ones remain as tie-breaks.
func (l *layer) addSort(term string) {
	l.orderBys = append([]string{term}, l.orderBys...)
}

// sql renders the layer as a SELECT statement.
func (l *layer) sql() string {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	if len(l.selections) == 0 {
		sb.WriteString(l.ctx.dialect.Star(""))
	} else {
		for i, sel := range l.selections {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(sel.sql)
			if sel.alias != "" {
				sb.WriteString(" AS ")
				sb.WriteString(l.ctx.dialect.QuoteIdent(sel.alias))
			}
		}
	}

	sb.WriteString("\nFROM ")
	sb.WriteString(l.fromRef)
	if l.alias != "" {
		sb.WriteString(" AS ")
		sb.WriteString(l.ctx.dialect.QuoteIdent(l.alias))
	}

	for _, j := range l.joins {
		sb.WriteString("\n")
		sb.WriteString(j.sql)
	}

	if len(l.wheres) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(l.wheres, " AND "))
	}

	if l.groupBy > 0 {
		sb.WriteString("\nGROUP BY ")
		for i := 1; i <= l.groupBy; i++ {
			if i > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%d", i)
		}
	}

	if len(l.havings) > 0 {
		sb.WriteString("\nHAVING ")
		sb.WriteString(strings.Join(l.havings, " AND "))
	}

	if len(l.orderBys) > 0 {
		sb.WriteString("\nORDER BY ")
		sb.WriteString(strings.Join(l.orderBys, ", "))
	}

	if l.limit != nil {
		sb.WriteString("\n")
		sb.WriteString(l.ctx.dialect.LimitOffset(l.limit.limit, l.limit.offset))
	}

	return sb.String()
}
