package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/leapstack-labs/modelq/pkg/expr"
)

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Filter keeps only rows satisfying the condition. Conditions referencing
// measures compile to HAVING; successive filters conjoin.
func (m *Model) Filter(cond any) (*Model, error) {
	resolved, err := m.resolveExpr(cond)
	if err != nil {
		return nil, err
	}
	out := m.clone()
	out.source = &FilterSource{Base: m.source, Cond: resolved}
	return out, nil
}

// WithAttributes registers row-level expressions under names. Existing
// names are shadowed in place; map keys are applied in sorted order so
// repeated builds are identical. Aggregating expressions are rejected.
func (m *Model) WithAttributes(attrs map[string]any) (*Model, error) {
	out := m.clone()
	for _, name := range sortedKeys(attrs) {
		resolved, err := m.resolveExpr(attrs[name])
		if err != nil {
			return nil, err
		}
		if resolved.Aggregating() {
			return nil, &KindMismatchError{Name: name, Expected: "attribute"}
		}
		out.attributes = out.attributes.set(name, resolved.Named(name))
	}
	return out, nil
}

// WithMeasures registers aggregating expressions under names. Existing
// names are shadowed in place; map keys are applied in sorted order.
// Non-aggregating expressions are rejected.
func (m *Model) WithMeasures(measures map[string]any) (*Model, error) {
	out := m.clone()
	for _, name := range sortedKeys(measures) {
		resolved, err := m.resolveExpr(measures[name])
		if err != nil {
			return nil, err
		}
		if !resolved.Aggregating() {
			return nil, &KindMismatchError{Name: name, Expected: "measure"}
		}
		out.measures = out.measures.set(name, resolved.Named(name))
	}
	return out, nil
}

// WithPrimaryKey records the expression that uniquely identifies a row,
// enabling ForeignKey join sugar on models that join this one.
func (m *Model) WithPrimaryKey(key any) (*Model, error) {
	resolved, err := m.resolveExpr(key)
	if err != nil {
		return nil, err
	}
	if resolved.Aggregating() {
		return nil, &KindMismatchError{Name: "primary key", Expected: "attribute"}
	}
	out := m.clone()
	out.primaryKey = resolved
	return out, nil
}

// WithActivitySchema records the event-stream columns used by MatchSteps
// and Funnel.
func (m *Model) WithActivitySchema(group, timestamp, eventKey any) (*Model, error) {
	g, err := m.resolveExpr(group)
	if err != nil {
		return nil, err
	}
	ts, err := m.resolveExpr(timestamp)
	if err != nil {
		return nil, err
	}
	key, err := m.resolveExpr(eventKey)
	if err != nil {
		return nil, err
	}
	for _, e := range []expr.Expression{g, ts, key} {
		if e.Aggregating() {
			return nil, &KindMismatchError{Name: "activity schema", Expected: "attribute"}
		}
	}
	out := m.clone()
	out.activity = &ActivitySchema{Group: g, Timestamp: ts, EventKey: key}
	return out, nil
}

// WithMeta attaches an opaque metadata entry carried through builders and
// the wire format. The compiler ignores it.
func (m *Model) WithMeta(key string, value any) *Model {
	out := m.clone()
	meta := make(map[string]any, len(m.meta)+1)
	for k, v := range m.meta {
		meta[k] = v
	}
	meta[key] = value
	out.meta = meta
	return out
}

// JoinSpec configures WithJoinOne. Exactly one of On or ForeignKey must be
// set: On is the full join condition; ForeignKey is an expression on the
// base rows equated with the target's primary key.
type JoinSpec struct {
	On            any
	ForeignKey    any
	DropUnmatched bool
}

// WithJoinOne joins at most one row of target onto each row of the model
// and registers it as a relation under name. Inside the condition, plain
// attribute references resolve against the base model and rel.<name>
// references resolve against the target.
func (m *Model) WithJoinOne(name string, target *Model, spec JoinSpec) (*Model, error) {
	if name == "" {
		return nil, &TypeError{Op: "with_join_one", Detail: "relation name is required"}
	}
	if target == nil {
		return nil, &TypeError{Op: "with_join_one", Detail: "join target is required"}
	}
	if (spec.On == nil) == (spec.ForeignKey == nil) {
		return nil, &TypeError{Op: "with_join_one", Detail: "exactly one of On or ForeignKey must be set"}
	}

	out := m.clone()
	out.relations = out.relations.set(&Relation{name: name, target: target})

	var cond any
	if spec.On != nil {
		cond = spec.On
	} else {
		if target.primaryKey == nil {
			return nil, &TypeError{Op: "with_join_one", Detail: fmt.Sprintf("target of %q has no primary key; use On", name)}
		}
		fk, err := m.resolveExpr(spec.ForeignKey)
		if err != nil {
			return nil, err
		}
		cond = expr.Eq(fk, target.primaryKey.Disambiguated(name))
	}

	// Resolved against out so rel.<name> references bind to the new
	// relation.
	resolved, err := out.resolveExpr(cond)
	if err != nil {
		return nil, err
	}
	out.source = &JoinOneSource{
		Base:          m.source,
		Name:          name,
		Target:        target,
		On:            resolved,
		DropUnmatched: spec.DropUnmatched,
	}
	return out, nil
}

// Aggregate groups rows by the group expressions and reduces each group
// with the measure expressions. The result's attributes are the groups and
// reduced measures, addressed by their identifiers; measures and relations
// of the input do not survive.
func (m *Model) Aggregate(groups []any, measures []any) (*Model, error) {
	groupExprs := make([]expr.Expression, 0, len(groups))
	for i, g := range groups {
		resolved, err := m.resolveExpr(g)
		if err != nil {
			return nil, err
		}
		resolved = ensureNamed(resolved, fmt.Sprintf("group_%d", i+1))
		if resolved.Aggregating() {
			return nil, &KindMismatchError{Name: resolved.Identifier(), Expected: "attribute"}
		}
		groupExprs = append(groupExprs, resolved)
	}
	measureExprs := make([]expr.Expression, 0, len(measures))
	for i, v := range measures {
		resolved, err := m.resolveExpr(v)
		if err != nil {
			return nil, err
		}
		resolved = ensureNamed(resolved, fmt.Sprintf("measure_%d", i+1))
		if !resolved.Aggregating() {
			return nil, &KindMismatchError{Name: resolved.Identifier(), Expected: "measure"}
		}
		measureExprs = append(measureExprs, resolved)
	}

	out := m.clone()
	out.source = &AggregateSource{Base: m.source, Groups: groupExprs, Measures: measureExprs}
	out.measures = nil
	out.relations = nil
	out.activity = nil
	out.primaryKey = nil
	attrs := make(bindings, 0, len(groupExprs)+len(measureExprs))
	for _, e := range append(append([]expr.Expression{}, groupExprs...), measureExprs...) {
		name := e.Identifier()
		attrs = attrs.set(name, expr.Col(name))
	}
	out.attributes = attrs
	return out, nil
}

// Direction orders a sort.
type Direction int

// Sort directions.
const (
	Asc Direction = iota
	Desc
)

// Nulls places NULL values within a sort. NullsAuto fixes to first for
// ascending sorts and last for descending ones when the node is built.
type Nulls int

// Null placement options.
const (
	NullsAuto Nulls = iota
	NullsFirst
	NullsLast
)

// Sort orders rows by an expression.
func (m *Model) Sort(by any, dir Direction, nulls Nulls) (*Model, error) {
	resolved, err := m.resolveExpr(by)
	if err != nil {
		return nil, err
	}
	nullsFirst := nulls == NullsFirst
	if nulls == NullsAuto {
		nullsFirst = dir == Asc
	}
	out := m.clone()
	out.source = &SortSource{Base: m.source, By: resolved, Desc: dir == Desc, NullsFirst: nullsFirst}
	return out, nil
}

// SortAsc sorts ascending with automatic null placement.
func (m *Model) SortAsc(by any) (*Model, error) { return m.Sort(by, Asc, NullsAuto) }

// SortDesc sorts descending with automatic null placement.
func (m *Model) SortDesc(by any) (*Model, error) { return m.Sort(by, Desc, NullsAuto) }

// Limit truncates the row set. The last limit in a chain wins; stacking a
// limit over a limit replaces it.
func (m *Model) Limit(n int) *Model {
	return m.LimitWithOffset(n, 0)
}

// LimitWithOffset truncates the row set after skipping offset rows.
func (m *Model) LimitWithOffset(n, offset int) *Model {
	base := m.source
	if prev, ok := base.(*LimitSource); ok {
		base = prev.Base
	}
	out := m.clone()
	out.source = &LimitSource{Base: base, Limit: n, Offset: offset}
	return out
}

// Pick narrows output to the given expressions, in order. The result's
// attributes are exactly the picked columns.
func (m *Model) Pick(columns []any) (*Model, error) {
	cols := make([]expr.Expression, 0, len(columns))
	for i, c := range columns {
		resolved, err := m.resolveExpr(c)
		if err != nil {
			return nil, err
		}
		cols = append(cols, ensureNamed(resolved, fmt.Sprintf("column_%d", i+1)))
	}
	out := m.clone()
	out.source = &PickSource{Base: m.source, Columns: cols}
	out.measures = nil
	out.relations = nil
	attrs := make(bindings, 0, len(cols))
	for _, e := range cols {
		attrs = attrs.set(e.Identifier(), expr.Col(e.Identifier()))
	}
	out.attributes = attrs
	return out, nil
}

// UnionAll appends the rows of another model. Column alignment is
// positional; the database reports shape mismatches.
func (m *Model) UnionAll(other *Model) *Model {
	out := m.clone()
	out.source = &UnionSource{Base: m.source, Other: other}
	return out
}

// ensureNamed assigns a fallback identifier when the expression has none.
func ensureNamed(e expr.Expression, fallback string) expr.Expression {
	if e.Identifier() == "" {
		return e.Named(fallback)
	}
	return e
}

// Step is one ordered condition for MatchSteps and Funnel.
type Step struct {
	// Name labels the step's output columns and funnel rows.
	Name string
	// Cond matches events; may contain KeyPaths resolved against the
	// model. Set by the constructors.
	Cond any
}

// EventStep matches events whose activity event key equals value; the step
// is named after the value.
func EventStep(value string) Step {
	return Step{Name: value, Cond: eventKeyEquals(value)}
}

// NamedEventStep is EventStep under an explicit step name, for sequences
// that repeat the same event.
func NamedEventStep(value, name string) Step {
	return Step{Name: name, Cond: eventKeyEquals(value)}
}

// CondStep matches events satisfying an arbitrary condition.
func CondStep(name string, cond any) Step {
	return Step{Name: name, Cond: cond}
}

// eventKeyEquals marks a condition to be completed against the activity
// schema once the model is known.
type eventKeyEquals string

// MatchOptions tune MatchSteps and Funnel.
type MatchOptions struct {
	// TimeLimit bounds the whole sequence: every step must match within
	// this window of the first step's event. Zero means unbounded.
	TimeLimit time.Duration
	// PartitionBy adds grouping expressions beyond the activity group,
	// taken from the first step's matched event.
	PartitionBy []any
}

// MatchSteps matches the ordered step conditions within each activity
// group. The result has one row per group, with per-step
// <name>_matched_at and <name>_event_index attributes that are NULL when
// the sequence stopped before that step, plus last_matched_step_name and
// last_matched_step_index. Measures: entities plus a <name>_count per
// step. Each step is also registered as a relation exposing its matched
// columns.
func (m *Model) MatchSteps(steps []Step, opts MatchOptions) (*Model, error) {
	if m.activity == nil {
		return nil, &TypeError{Op: "match_steps", Detail: "model has no activity schema; call WithActivitySchema first"}
	}
	if len(steps) == 0 {
		return nil, &TypeError{Op: "match_steps", Detail: "at least one step is required"}
	}

	seen := make(map[string]bool, len(steps))
	resolved := make([]MatchStep, 0, len(steps))
	for i, s := range steps {
		if s.Name == "" {
			return nil, &TypeError{Op: "match_steps", Detail: fmt.Sprintf("step %d has no name", i+1)}
		}
		if seen[s.Name] {
			return nil, &TypeError{Op: "match_steps", Detail: fmt.Sprintf("duplicate step name %q; use NamedEventStep", s.Name)}
		}
		seen[s.Name] = true
		cond := s.Cond
		if value, ok := cond.(eventKeyEquals); ok {
			cond = expr.Eq(m.activity.EventKey, string(value))
		}
		condExpr, err := m.resolveExpr(cond)
		if err != nil {
			return nil, err
		}
		if condExpr.Aggregating() {
			return nil, &KindMismatchError{Name: s.Name, Expected: "attribute"}
		}
		resolved = append(resolved, MatchStep{Name: s.Name, Cond: condExpr})
	}

	partitions := make([]expr.Expression, 0, len(opts.PartitionBy))
	for i, p := range opts.PartitionBy {
		pe, err := m.resolveExpr(p)
		if err != nil {
			return nil, err
		}
		pe = ensureNamed(pe, fmt.Sprintf("partition_%d", i+1))
		if pe.Aggregating() {
			return nil, &KindMismatchError{Name: pe.Identifier(), Expected: "attribute"}
		}
		partitions = append(partitions, pe)
	}

	groupName := m.activity.Group.Identifier()
	if groupName == "" {
		groupName = "group"
	}

	out := m.clone()
	out.source = &MatchStepsSource{
		Base:       m.source,
		Schema:     *m.activity,
		Steps:      resolved,
		TimeLimit:  opts.TimeLimit,
		Partitions: partitions,
	}
	out.activity = nil
	out.primaryKey = nil

	attrs := bindings{}
	attrs = attrs.set(groupName, expr.Col(groupName))
	for _, p := range partitions {
		attrs = attrs.set(p.Identifier(), expr.Col(p.Identifier()))
	}
	measures := bindings{}
	measures = measures.set("entities", expr.Count().Named("entities"))
	rels := relations{}

	for _, s := range resolved {
		matchedAt := matchedAtColumn(s.Name)
		eventIndex := matchedIndexColumn(s.Name)
		attrs = attrs.set(matchedAt, expr.Col(matchedAt))
		attrs = attrs.set(eventIndex, expr.Col(eventIndex))
		countName := s.Name + "_count"
		measures = measures.set(countName,
			expr.CountIf(expr.NotNull(expr.Col(matchedAt))).Named(countName))

		stepModel := &Model{
			conn:   m.conn,
			source: out.source,
			attributes: bindings{
				{name: "matched_at", expr: expr.Col(matchedAt).Named("matched_at")},
				{name: "event_index", expr: expr.Col(eventIndex).Named("event_index")},
			},
		}
		rels = rels.set(&Relation{name: s.Name, target: stepModel, inline: true})
	}

	attrs = attrs.set("last_matched_step_name", lastMatchedName(resolved))
	attrs = attrs.set("last_matched_step_index", lastMatchedIndex(resolved))

	out.attributes = attrs
	out.measures = measures
	out.relations = rels
	return out, nil
}

func matchedAtColumn(step string) string    { return step + "_matched_at" }
func matchedIndexColumn(step string) string { return step + "_event_index" }

// lastMatchedName is a CASE walking steps from last to first, yielding the
// name of the deepest matched step or NULL.
func lastMatchedName(steps []MatchStep) expr.Expression {
	whens := make([]expr.When, 0, len(steps))
	for i := len(steps) - 1; i >= 0; i-- {
		whens = append(whens, expr.WhenThen(
			expr.NotNull(expr.Col(matchedAtColumn(steps[i].Name))),
			steps[i].Name,
		))
	}
	return expr.Switch(whens, nil).Named("last_matched_step_name")
}

// lastMatchedIndex counts matched steps: 1-based index of the deepest
// matched step, 0 when none matched.
func lastMatchedIndex(steps []MatchStep) expr.Expression {
	whens := make([]expr.When, 0, len(steps))
	for i := len(steps) - 1; i >= 0; i-- {
		whens = append(whens, expr.WhenThen(
			expr.NotNull(expr.Col(matchedAtColumn(steps[i].Name))),
			i+1,
		))
	}
	return expr.Switch(whens, expr.Lit(0)).Named("last_matched_step_index")
}
