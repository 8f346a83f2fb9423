package compile

import (
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/modelq/pkg/dialect"
	"github.com/leapstack-labs/modelq/pkg/expr"
	"github.com/leapstack-labs/modelq/pkg/keypath"
	"github.com/leapstack-labs/modelq/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventStream(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.Table(conn(), "events").WithAttributes(map[string]any{
		"user_id": expr.Col("user_id"),
		"ts":      expr.Col("ts"),
		"event":   expr.Col("event"),
		"plan":    expr.Col("plan"),
	})
	require.NoError(t, err)
	m, err = m.WithActivitySchema(expr.Attr("user_id"), expr.Attr("ts"), expr.Attr("event"))
	require.NoError(t, err)
	return m
}

func matchedStream(t *testing.T, opts model.MatchOptions) *model.Model {
	t.Helper()
	m, err := eventStream(t).MatchSteps([]model.Step{
		model.EventStep("signup"),
		model.EventStep("activate"),
	}, opts)
	require.NoError(t, err)
	return m
}

func TestCompileMatchStepsStructure(t *testing.T) {
	sql := mustCompile(t, matchedStream(t, model.MatchOptions{}), "duckdb")

	// The event scan computes the group, timestamp, scan index, and each
	// step condition exactly once. Its CTE name steps aside for the
	// physical table of the same name.
	assert.Contains(t, sql, "\"events_2\" AS (")
	assert.Contains(t, sql, "ROW_NUMBER() OVER (PARTITION BY \"user_id\" ORDER BY \"ts\") AS \"__event_index\"")
	assert.Contains(t, sql, "(\"event\" = 'signup') AS \"__cond_1\"")
	assert.Contains(t, sql, "(\"event\" = 'activate') AS \"__cond_2\"")

	// Step one takes the earliest qualifying event per group.
	assert.Contains(t, sql, "\"step_1\" AS (")
	assert.Contains(t, sql, "MIN(\"__event_index\") AS \"__idx\"")

	// Later steps must land strictly after the previous matched event.
	assert.Contains(t, sql, "\"e\".\"__event_index\" > \"p\".\"__event_index\"")

	// Every group keeps its row; unmatched steps come back NULL.
	assert.Contains(t, sql, "SELECT DISTINCT \"__group\"")
	assert.Contains(t, sql, "LEFT JOIN \"matched_1\" AS \"signup\"")
	assert.Contains(t, sql, "LEFT JOIN \"matched_2\" AS \"activate\"")
	assert.Contains(t, sql, "AS \"signup_matched_at\"")
	assert.Contains(t, sql, "AS \"activate_event_index\"")
	assert.Contains(t, sql, "AS \"user_id\"")
}

func TestCompileMatchStepsCTEDoesNotShadowTable(t *testing.T) {
	sql := mustCompile(t, matchedStream(t, model.MatchOptions{}), "duckdb")

	// A CTE named after the scanned table would turn the table reference
	// into a self-reference; the generated name must yield.
	assert.NotContains(t, sql, "WITH \"events\" AS")
	assert.Contains(t, sql, "\"events_2\" AS (\nSELECT")
	assert.Contains(t, sql, "\nFROM \"events\"\n")
	assert.Contains(t, sql, "FROM \"events_2\" AS \"e\"")
}

func TestCompileMatchStepsTimeLimit(t *testing.T) {
	sql := mustCompile(t, matchedStream(t, model.MatchOptions{TimeLimit: time.Hour}), "duckdb")
	assert.Contains(t, sql, "DATE_DIFF('second'")
	assert.Contains(t, sql, "<= 3600")
}

func TestCompileMatchStepsTimeLimitUnsupportedOnANSI(t *testing.T) {
	_, err := Compile(matchedStream(t, model.MatchOptions{TimeLimit: time.Hour}), "ansi")
	var unsupported *dialect.UnsupportedOperationError
	require.ErrorAs(t, err, &unsupported)
}

func TestCompileMatchStepsPartitions(t *testing.T) {
	m, err := eventStream(t).MatchSteps([]model.Step{
		model.EventStep("signup"),
	}, model.MatchOptions{PartitionBy: []any{expr.Attr("plan")}})
	require.NoError(t, err)

	sql := mustCompile(t, m, "duckdb")
	// Partition values are captured in the event scan and surfaced from
	// the first matched event.
	assert.Contains(t, sql, "AS \"__part_1\"")
	assert.Contains(t, sql, "\"__part_1\" AS \"plan\"")
}

func TestCompileMatchStepsThenAggregate(t *testing.T) {
	matched := matchedStream(t, model.MatchOptions{})
	agg, err := matched.Aggregate(nil, []any{
		expr.Msr("entities"),
		expr.Msr("signup_count"),
	})
	require.NoError(t, err)

	sql := mustCompile(t, agg, "duckdb")
	assert.Contains(t, sql, "COUNT(*) AS \"entities\"")
	assert.Contains(t, sql, "SUM(CASE WHEN (\"signup_matched_at\" IS NOT NULL) THEN 1 ELSE 0 END) AS \"signup_count\"")
}

func TestCompileMatchStepsStepRelationArithmetic(t *testing.T) {
	matched := matchedStream(t, model.MatchOptions{})
	picked, err := matched.Pick([]any{
		expr.Col("user_id"),
		expr.DiffSeconds(
			keypath.Rel("signup").Attr("matched_at"),
			keypath.Rel("activate").Attr("matched_at"),
		).Named("seconds_to_activate"),
	})
	require.NoError(t, err)

	sql := mustCompile(t, picked, "duckdb")
	// Step columns live on the matched row itself, so the arithmetic reads
	// the chained projection directly.
	assert.Contains(t, sql, "DATE_DIFF('second', \"signup_matched_at\", \"activate_matched_at\")")
}

func TestCompileFunnelEndToEnd(t *testing.T) {
	f, err := eventStream(t).Funnel([]model.Step{
		model.EventStep("signup"),
		model.EventStep("activate"),
	}, model.FunnelOptions{})
	require.NoError(t, err)

	sql := mustCompile(t, f, "duckdb")
	// Each stage row carries its label as a literal column; a bare "step"
	// column reference would not exist in the aggregated CTE.
	assert.Contains(t, sql, "'Top of Funnel' AS \"step\"")
	assert.Contains(t, sql, "'signup' AS \"step\"")
	assert.Contains(t, sql, "'activate' AS \"step\"")
	assert.NotContains(t, sql, "\"step\" AS \"step\"")
	assert.Contains(t, sql, "\"entities\" AS \"count\"")
	assert.Contains(t, sql, "\"signup_count\" AS \"count\"")
	assert.Contains(t, sql, "\"activate_count\" AS \"count\"")
	assert.Equal(t, 2, strings.Count(sql, "UNION ALL"))
	// Stages come back in funnel order.
	assert.Contains(t, sql, "ORDER BY CASE WHEN")
}

func TestCompileFunnelConversionRateEndToEnd(t *testing.T) {
	f, err := eventStream(t).FunnelConversionRate([]model.Step{
		model.EventStep("signup"),
	}, model.FunnelOptions{})
	require.NoError(t, err)

	sql := mustCompile(t, f, "duckdb")
	// The registered rate expressions inline into the stage projections.
	assert.Contains(t, sql, "(\"entities\" / NULLIF(\"entities\", 0)) AS \"conversion_rate\"")
	assert.Contains(t, sql, "(\"signup_count\" / NULLIF(\"entities\", 0)) AS \"conversion_rate\"")
	assert.Contains(t, sql, "'Top of Funnel' AS \"step\"")
	assert.Contains(t, sql, "'signup' AS \"step\"")
}

func TestCompileMatchStepsDeterministic(t *testing.T) {
	m := matchedStream(t, model.MatchOptions{TimeLimit: 30 * time.Minute})
	agg, err := m.Aggregate(nil, []any{expr.Msr("entities")})
	require.NoError(t, err)

	first := mustCompile(t, agg, "duckdb")
	second := mustCompile(t, agg, "duckdb")
	assert.Equal(t, first, second)
}
