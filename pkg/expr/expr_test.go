package expr

import (
	"testing"

	"github.com/leapstack-labs/modelq/pkg/keypath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamedReturnsCopy(t *testing.T) {
	col := Col("price")
	aliased := col.Named("unit_price")

	assert.Equal(t, "price", col.Identifier())
	assert.Equal(t, "unit_price", aliased.Identifier())
}

func TestColumnIdentifierDefaultsToName(t *testing.T) {
	assert.Equal(t, "ts", Col("ts").Identifier())
	assert.Equal(t, "", Sum(Col("x")).Identifier())
	assert.Equal(t, "ts", Trunc(Col("ts"), Month).Identifier())
}

func TestDisambiguatedSetsQualifier(t *testing.T) {
	e := Col("price").Disambiguated("orders")
	assert.Equal(t, "orders", e.Qualifier())
	assert.Equal(t, "", Col("price").Qualifier())
}

func TestAggregating(t *testing.T) {
	tests := []struct {
		name string
		e    Expression
		want bool
	}{
		{"column", Col("x"), false},
		{"literal", Lit(1), false},
		{"count star", Count(), true},
		{"sum", Sum(Col("x")), true},
		{"count distinct", CountDistinct(Col("x")), true},
		{"count_if", CountIf(Eq(Col("x"), 1)), true},
		{"arith over agg", Div(Sum(Col("x")), Count()), true},
		{"arith plain", Add(Col("x"), 1), false},
		{"case over agg", Switch([]When{WhenThen(Gt(Count(), 0), 1)}, nil), true},
		{"trunc plain", Trunc(Col("ts"), Week), false},
		{"nullif plain", NullIf(Col("x"), 0), false},
		{"deferred unknown", Attr("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.e.Aggregating())
		})
	}
}

func TestCoerce(t *testing.T) {
	assert.IsType(t, &Literal{}, Coerce(42))
	assert.IsType(t, &Literal{}, Coerce("s"))
	assert.IsType(t, &Deferred{}, Coerce(keypath.Attr("x")))

	col := Col("x")
	assert.Same(t, Expression(col), Coerce(col))
}

func TestAndFoldsLeftAssociative(t *testing.T) {
	e := And(Eq(Col("a"), 1), Eq(Col("b"), 2), Eq(Col("c"), 3))
	top, ok := e.(*BinaryOp)
	require.True(t, ok)
	assert.Equal(t, "AND", top.Op)
	left, ok := top.Left.(*BinaryOp)
	require.True(t, ok)
	assert.Equal(t, "AND", left.Op)
}

func TestAndEmptyIsTrue(t *testing.T) {
	lit, ok := And().(*Literal)
	require.True(t, ok)
	assert.Equal(t, true, lit.Value)
}

func TestSafeDivWrapsDivisorInNullIf(t *testing.T) {
	e := SafeDiv(Col("converted"), Col("started"))
	call, ok := e.Right.(*Call)
	require.True(t, ok)
	assert.Equal(t, "nullif", call.Name)
}

func TestTransformReplacesDeferredLeaves(t *testing.T) {
	tree := Mul(Add(Attr("price"), 1), Attr("qty"))
	out, err := Transform(tree, func(e Expression) (Expression, error) {
		if d, ok := e.(*Deferred); ok {
			return Col(d.Path.Steps()[0].Name), nil
		}
		return e, nil
	})
	require.NoError(t, err)
	assert.False(t, ContainsDeferred(out))
	// Original tree untouched.
	assert.True(t, ContainsDeferred(tree))
}

func TestTransformPreservesUntouchedNodes(t *testing.T) {
	tree := Add(Col("a"), Col("b"))
	out, err := Transform(tree, func(e Expression) (Expression, error) { return e, nil })
	require.NoError(t, err)
	assert.Same(t, Expression(tree), out)
}

func TestValidUnit(t *testing.T) {
	assert.True(t, ValidUnit(Month))
	assert.True(t, ValidUnit(Second))
	assert.False(t, ValidUnit(Unit("fortnight")))
}
