package model

import (
	"time"

	"github.com/leapstack-labs/modelq/pkg/expr"
)

// FunnelOptions tune Funnel and FunnelConversionRate.
type FunnelOptions struct {
	// TopOfFunnelName labels the baseline row counting every entity in
	// the event stream. Defaults to "Top of Funnel".
	TopOfFunnelName string
	// TimeLimit and PartitionBy pass through to MatchSteps.
	TimeLimit   time.Duration
	PartitionBy []any
	// PostMatchFilter drops matched rows before counting; it resolves
	// against the matched model, so it may reference per-step
	// <name>_matched_at attributes.
	PostMatchFilter any
}

func (o FunnelOptions) topName() string {
	if o.TopOfFunnelName == "" {
		return "Top of Funnel"
	}
	return o.TopOfFunnelName
}

func (o FunnelOptions) matchOptions() MatchOptions {
	return MatchOptions{TimeLimit: o.TimeLimit, PartitionBy: o.PartitionBy}
}

// Funnel counts, for the baseline and then each step in order, how many
// activity groups reached that step. Counts never increase down the
// funnel: a group only reaches step N by having reached step N-1. Output
// rows carry the step name and its count, ordered top to bottom, after any
// PartitionBy columns.
func (m *Model) Funnel(steps []Step, opts FunnelOptions) (*Model, error) {
	if m.activity == nil {
		return nil, &TypeError{Op: "funnel", Detail: "model has no activity schema; call WithActivitySchema first"}
	}
	if len(steps) == 0 {
		return m.topOfFunnelOnly(opts)
	}

	agg, groupCols, err := m.matchAndCount(steps, opts)
	if err != nil {
		return nil, err
	}

	labels := []funnelRow{{label: opts.topName(), countCol: "entities"}}
	for _, s := range steps {
		labels = append(labels, funnelRow{label: s.Name, countCol: s.Name + "_count"})
	}
	return unpivotFunnel(agg, groupCols, labels, "count")
}

// FunnelConversionRate mirrors Funnel but reports, per step, the fraction
// of baseline entities that reached it. The baseline row rates 1.0; a zero
// baseline yields NULL rates rather than a division error.
func (m *Model) FunnelConversionRate(steps []Step, opts FunnelOptions) (*Model, error) {
	if m.activity == nil {
		return nil, &TypeError{Op: "funnel_conversion_rate", Detail: "model has no activity schema; call WithActivitySchema first"}
	}
	if len(steps) == 0 {
		return nil, &TypeError{Op: "funnel_conversion_rate", Detail: "at least one step is required"}
	}

	agg, groupCols, err := m.matchAndCount(steps, opts)
	if err != nil {
		return nil, err
	}

	// Rates are row-level arithmetic over the aggregated counts.
	rates := map[string]any{
		rateColumn("entities"): expr.SafeDiv(expr.Col("entities"), expr.Col("entities")),
	}
	for _, s := range steps {
		c := s.Name + "_count"
		rates[rateColumn(c)] = expr.SafeDiv(expr.Col(c), expr.Col("entities"))
	}
	agg, err = agg.WithAttributes(rates)
	if err != nil {
		return nil, err
	}

	labels := []funnelRow{{label: opts.topName(), countCol: rateColumn("entities")}}
	for _, s := range steps {
		labels = append(labels, funnelRow{label: s.Name, countCol: rateColumn(s.Name + "_count")})
	}
	return unpivotFunnel(agg, groupCols, labels, "conversion_rate")
}

func rateColumn(countCol string) string { return countCol + "_rate" }

// matchAndCount runs step matching, applies any post-match filter, and
// aggregates entity and per-step counts, grouped by the partition columns.
// Returns the aggregate and the partition column names.
func (m *Model) matchAndCount(steps []Step, opts FunnelOptions) (*Model, []string, error) {
	matched, err := m.MatchSteps(steps, opts.matchOptions())
	if err != nil {
		return nil, nil, err
	}
	if opts.PostMatchFilter != nil {
		matched, err = matched.Filter(opts.PostMatchFilter)
		if err != nil {
			return nil, nil, err
		}
	}

	// MatchSteps lists the group attribute first and partitions next.
	names := matched.AttributeNames()
	groupCols := make([]string, 0, len(opts.PartitionBy))
	groups := make([]any, 0, len(opts.PartitionBy))
	for i := 1; i <= len(opts.PartitionBy) && i < len(names); i++ {
		groupCols = append(groupCols, names[i])
		groups = append(groups, expr.Col(names[i]))
	}

	measures := []any{expr.Msr("entities")}
	for _, s := range steps {
		measures = append(measures, expr.Msr(s.Name+"_count"))
	}
	agg, err := matched.Aggregate(groups, measures)
	if err != nil {
		return nil, nil, err
	}
	return agg, groupCols, nil
}

// topOfFunnelOnly is the zero-step funnel: one row counting distinct
// activity groups under the baseline label.
func (m *Model) topOfFunnelOnly(opts FunnelOptions) (*Model, error) {
	agg, err := m.Aggregate(nil, []any{
		expr.CountDistinct(m.activity.Group).Named("count"),
	})
	if err != nil {
		return nil, err
	}
	agg, err = agg.WithAttributes(map[string]any{"step": expr.Lit(opts.topName())})
	if err != nil {
		return nil, err
	}
	return agg.Pick([]any{expr.Attr("step"), expr.Attr("count")})
}

type funnelRow struct {
	label    string
	countCol string
}

// unpivotFunnel turns one wide row of counts into one output row per
// funnel stage: pick a (step, value) pair per stage and union them,
// ordered top to bottom. Picked references go through the resolver so the
// stage label materializes as a literal column rather than a dangling
// column name.
func unpivotFunnel(agg *Model, groupCols []string, rows []funnelRow, valueName string) (*Model, error) {
	var out *Model
	for _, row := range rows {
		staged, err := agg.WithAttributes(map[string]any{
			"step": expr.Lit(row.label),
		})
		if err != nil {
			return nil, err
		}
		cols := []any{expr.Attr("step")}
		for _, g := range groupCols {
			cols = append(cols, expr.Attr(g))
		}
		cols = append(cols, expr.Attr(row.countCol).Named(valueName))
		picked, err := staged.Pick(cols)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = picked
		} else {
			out = out.UnionAll(picked)
		}
	}

	// Order stages by position via their labels; unions forget input
	// order.
	whens := make([]expr.When, 0, len(rows))
	for i, row := range rows {
		whens = append(whens, expr.WhenThen(expr.Eq(expr.Col("step"), row.label), i))
	}
	return out.Sort(expr.Switch(whens, expr.Lit(len(rows))), Asc, NullsAuto)
}
