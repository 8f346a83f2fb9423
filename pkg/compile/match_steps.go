package compile

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/modelq/pkg/model"
)

// compileMatchSteps lowers a step-matching node into a chain of CTEs.
// The events CTE holds the base rows plus the group key, timestamp, a
// per-group scan index, and each step condition precomputed as a boolean.
// Each step_N CTE picks, per group, the index of the earliest event
// satisfying step N strictly after step N-1's matched event (within the
// time limit of step 1's event, when set), and matched_N recovers the full
// event row behind that index. The entities CTE lists every group seen in
// the stream.
//
// The final select left-joins each matched_N onto entities, so a group that
// stalls mid-sequence keeps its row with NULLs from the first unmatched
// step on. Matching per step takes MIN over candidate indices: events tied
// on timestamp are ordered by their scan index, so ties resolve to the
// smallest row number.
func compileMatchSteps(ctx *context, t *model.MatchStepsSource) (*layer, error) {
	d := ctx.dialect
	q := d.QuoteIdent

	l, err := compileSource(ctx, t.Base)
	if err != nil {
		return nil, err
	}
	if l.hasSelections() || l.isAggregated || l.limit != nil {
		l = l.chained("events_base")
	}

	// events CTE: everything later stages need, computed once while the
	// base layer's namespaces are still in scope.
	groupSQL, err := compileExpr(l, t.Schema.Group, "")
	if err != nil {
		return nil, err
	}
	tsSQL, err := compileExpr(l, t.Schema.Timestamp, "")
	if err != nil {
		return nil, err
	}
	rowNumber, err := d.RowNumber([]string{groupSQL}, []string{tsSQL})
	if err != nil {
		return nil, err
	}
	l.selections = append(l.selections,
		selection{sql: groupSQL, alias: "__group"},
		selection{sql: tsSQL, alias: "__ts"},
		selection{sql: rowNumber, alias: "__event_index"},
	)
	for i, p := range t.Partitions {
		sql, err := compileExpr(l, p, "")
		if err != nil {
			return nil, err
		}
		l.selections = append(l.selections, selection{sql: sql, alias: partColumn(i)})
	}
	for k, step := range t.Steps {
		sql, err := compileExpr(l, step.Cond, "")
		if err != nil {
			return nil, err
		}
		l.selections = append(l.selections, selection{sql: sql, alias: condColumn(k)})
	}
	events := ctx.uniqueCTEName("events")
	ctx.addCTE(events, l.sql())

	limitSeconds := int64(t.TimeLimit / time.Second)

	// Per-step index and matched-row CTEs.
	matchedNames := make([]string, len(t.Steps))
	for k := range t.Steps {
		stepName := ctx.uniqueCTEName(fmt.Sprintf("step_%d", k+1))
		var stepSQL string
		if k == 0 {
			stepSQL = fmt.Sprintf(
				"SELECT %s, MIN(%s) AS %s\nFROM %s\nWHERE %s\nGROUP BY 1",
				q("__group"), q("__event_index"), q("__idx"),
				q(events), q(condColumn(k)),
			)
		} else {
			cond := fmt.Sprintf("%s.%s", q("e"), q(condColumn(k)))
			if limitSeconds > 0 {
				firstAlias := "p"
				joinFirst := ""
				if k > 1 {
					firstAlias = "f"
					joinFirst = fmt.Sprintf("\nJOIN %s AS %s ON %s.%s = %s.%s",
						q(matchedNames[0]), q("f"),
						q("e"), q("__group"), q("f"), q("__group"))
				}
				diff, err := d.TimestampDiffSeconds(
					fmt.Sprintf("%s.%s", q(firstAlias), q("__ts")),
					fmt.Sprintf("%s.%s", q("e"), q("__ts")),
				)
				if err != nil {
					return nil, err
				}
				stepSQL = fmt.Sprintf(
					"SELECT %s.%s, MIN(%s.%s) AS %s\nFROM %s AS %s\nJOIN %s AS %s ON %s.%s = %s.%s AND %s.%s > %s.%s%s\nWHERE %s AND %s <= %d\nGROUP BY 1",
					q("e"), q("__group"), q("e"), q("__event_index"), q("__idx"),
					q(events), q("e"),
					q(matchedNames[k-1]), q("p"),
					q("e"), q("__group"), q("p"), q("__group"),
					q("e"), q("__event_index"), q("p"), q("__event_index"),
					joinFirst,
					cond, diff, limitSeconds,
				)
			} else {
				stepSQL = fmt.Sprintf(
					"SELECT %s.%s, MIN(%s.%s) AS %s\nFROM %s AS %s\nJOIN %s AS %s ON %s.%s = %s.%s AND %s.%s > %s.%s\nWHERE %s\nGROUP BY 1",
					q("e"), q("__group"), q("e"), q("__event_index"), q("__idx"),
					q(events), q("e"),
					q(matchedNames[k-1]), q("p"),
					q("e"), q("__group"), q("p"), q("__group"),
					q("e"), q("__event_index"), q("p"), q("__event_index"),
					cond,
				)
			}
		}
		ctx.addCTE(stepName, stepSQL)

		matchedName := ctx.uniqueCTEName(fmt.Sprintf("matched_%d", k+1))
		matchedSQL := fmt.Sprintf(
			"SELECT %s.%s\nFROM %s AS %s\nJOIN %s AS %s ON %s.%s = %s.%s AND %s.%s = %s.%s",
			q("e"), "*",
			q(events), q("e"),
			q(stepName), q("s"),
			q("e"), q("__group"), q("s"), q("__group"),
			q("e"), q("__event_index"), q("s"), q("__idx"),
		)
		ctx.addCTE(matchedName, matchedSQL)
		matchedNames[k] = matchedName
	}

	entities := ctx.uniqueCTEName("entities")
	ctx.addCTE(entities, fmt.Sprintf("SELECT DISTINCT %s\nFROM %s", q("__group"), q(events)))

	// Final layer: one row per group, each step's matched event
	// left-joined on.
	out := newLayer(ctx, q(entities), "funnel")
	out.ensureAlias()
	out.isJoined = true

	stepAliases := make([]string, len(t.Steps))
	for k, step := range t.Steps {
		alias := ctx.uniqueName(step.Name)
		stepAliases[k] = alias
		out.namespaces[step.Name] = alias
		out.joins = append(out.joins, joinClause{sql: fmt.Sprintf(
			"LEFT JOIN %s AS %s ON %s.%s = %s.%s",
			q(matchedNames[k]), q(alias),
			q(alias), q("__group"), q(out.alias), q("__group"),
		)})
	}

	groupName := t.Schema.Group.Identifier()
	if groupName == "" {
		groupName = "group"
	}
	out.selections = append(out.selections, selection{
		sql:   fmt.Sprintf("%s.%s", q(out.alias), q("__group")),
		alias: groupName,
	})
	for i, p := range t.Partitions {
		out.selections = append(out.selections, selection{
			sql:   fmt.Sprintf("%s.%s", q(stepAliases[0]), q(partColumn(i))),
			alias: p.Identifier(),
		})
	}
	for k, step := range t.Steps {
		out.selections = append(out.selections,
			selection{
				sql:   fmt.Sprintf("%s.%s", q(stepAliases[k]), q("__ts")),
				alias: step.Name + "_matched_at",
			},
			selection{
				sql:   fmt.Sprintf("%s.%s", q(stepAliases[k]), q("__event_index")),
				alias: step.Name + "_event_index",
			},
		)
	}
	return out, nil
}

func partColumn(i int) string { return fmt.Sprintf("__part_%d", i+1) }
func condColumn(k int) string { return fmt.Sprintf("__cond_%d", k+1) }
