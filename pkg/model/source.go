package model

import (
	"time"

	"github.com/leapstack-labs/modelq/pkg/expr"
)

// Source is one node of a model's immutable source chain. Every transform
// node keeps a reference to its parent, so models built from a common
// ancestor share structure.
type Source interface {
	sourceNode()
}

// TableSource reads a physical table.
type TableSource struct {
	Schema string
	Name   string
}

func (*TableSource) sourceNode() {}

// SQLTextSource reads the result of a raw SQL query.
type SQLTextSource struct {
	SQL string
}

func (*SQLTextSource) sourceNode() {}

// FilterSource keeps only rows satisfying a condition. Aggregating
// conditions compile to HAVING, row-level ones to WHERE.
type FilterSource struct {
	Base Source
	Cond expr.Expression
}

func (*FilterSource) sourceNode() {}

// AggregateSource groups rows by the group expressions and reduces each
// group with the measure expressions. Empty groups produce a single row.
type AggregateSource struct {
	Base     Source
	Groups   []expr.Expression
	Measures []expr.Expression
}

func (*AggregateSource) sourceNode() {}

// SortSource orders rows. NullsFirst is fixed when the node is built;
// "auto" never survives into the graph.
type SortSource struct {
	Base       Source
	By         expr.Expression
	Desc       bool
	NullsFirst bool
}

func (*SortSource) sourceNode() {}

// LimitSource truncates the row set. Stacking a limit over a limit
// replaces the earlier node.
type LimitSource struct {
	Base   Source
	Limit  int
	Offset int
}

func (*LimitSource) sourceNode() {}

// PickSource narrows the output to the given expressions, in order.
type PickSource struct {
	Base    Source
	Columns []expr.Expression
}

func (*PickSource) sourceNode() {}

// UnionSource appends the rows of another model. Column compatibility is
// the caller's responsibility; the database reports mismatches.
type UnionSource struct {
	Base  Source
	Other *Model
}

func (*UnionSource) sourceNode() {}

// JoinOneSource joins at most one row of the target model onto each base
// row. Unmatched base rows survive with NULLs unless DropUnmatched is set.
type JoinOneSource struct {
	Base          Source
	Name          string
	Target        *Model
	On            expr.Expression
	DropUnmatched bool
}

func (*JoinOneSource) sourceNode() {}

// MatchStep is one ordered condition of a MatchStepsSource.
type MatchStep struct {
	Name string
	Cond expr.Expression
}

// MatchStepsSource matches an ordered sequence of step conditions within
// each activity group. A step matches the earliest event satisfying its
// condition that occurs at or after the previous step's matched event; ties
// on the timestamp break toward the smaller event row number. With a
// TimeLimit, every step must match within that window of the first step's
// event.
type MatchStepsSource struct {
	Base       Source
	Schema     ActivitySchema
	Steps      []MatchStep
	TimeLimit  time.Duration
	Partitions []expr.Expression
}

func (*MatchStepsSource) sourceNode() {}

// ActivitySchema names the event-stream columns step matching needs: the
// entity performing events, the event timestamp, and the event key
// compared against step values.
type ActivitySchema struct {
	Group     expr.Expression
	Timestamp expr.Expression
	EventKey  expr.Expression
}
