package model

import (
	"testing"

	"github.com/leapstack-labs/modelq/pkg/expr"
	"github.com/leapstack-labs/modelq/pkg/keypath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConn() *Connection {
	return NewConnection("warehouse", "duckdb")
}

func ordersModel(t *testing.T) *Model {
	t.Helper()
	m, err := Table(testConn(), "orders").WithAttributes(map[string]any{
		"id":          expr.Col("id"),
		"customer_id": expr.Col("customer_id"),
		"price":       expr.Col("price"),
		"qty":         expr.Col("qty"),
	})
	require.NoError(t, err)
	m, err = m.WithMeasures(map[string]any{
		"revenue": expr.Sum(expr.Mul(expr.Attr("price"), expr.Attr("qty"))),
	})
	require.NoError(t, err)
	return m
}

func TestBuildersDoNotMutateReceiver(t *testing.T) {
	base := ordersModel(t)
	attrsBefore := base.AttributeNames()

	filtered, err := base.Filter(expr.Gt(expr.Attr("price"), 10))
	require.NoError(t, err)
	withMore, err := base.WithAttributes(map[string]any{"total": expr.Mul(expr.Col("price"), expr.Col("qty"))})
	require.NoError(t, err)

	assert.Equal(t, attrsBefore, base.AttributeNames())
	assert.NotSame(t, base, filtered)
	assert.NotContains(t, base.AttributeNames(), "total")
	assert.Contains(t, withMore.AttributeNames(), "total")
}

func TestWithAttributesShadowsInPlace(t *testing.T) {
	m := ordersModel(t)
	m2, err := m.WithAttributes(map[string]any{"price": expr.Mul(expr.Col("price"), expr.Lit(100))})
	require.NoError(t, err)

	// Redefining a name keeps its position in the table.
	assert.Equal(t, m.AttributeNames(), m2.AttributeNames())
	e, ok := m2.AttributeExpr("price")
	require.True(t, ok)
	assert.IsType(t, &expr.BinaryOp{}, e)
}

func TestWithAttributesRejectsAggregates(t *testing.T) {
	m := ordersModel(t)
	_, err := m.WithAttributes(map[string]any{"total": expr.Sum(expr.Col("price"))})
	require.Error(t, err)
	var kindErr *KindMismatchError
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, "total", kindErr.Name)
	assert.Equal(t, "attribute", kindErr.Expected)
}

func TestWithMeasuresRejectsRowLevel(t *testing.T) {
	m := ordersModel(t)
	_, err := m.WithMeasures(map[string]any{"price_again": expr.Col("price")})
	var kindErr *KindMismatchError
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, "measure", kindErr.Expected)
}

func TestAggregateResultShape(t *testing.T) {
	m := ordersModel(t)
	agg, err := m.Aggregate(
		[]any{expr.Attr("customer_id")},
		[]any{expr.Msr("revenue"), expr.Count().Named("orders")},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"customer_id", "revenue", "orders"}, agg.AttributeNames())
	assert.Empty(t, agg.MeasureNames())
	assert.Empty(t, agg.RelationNames())
	assert.Nil(t, agg.PrimaryKey())
}

func TestAggregateRejectsMixedKinds(t *testing.T) {
	m := ordersModel(t)

	_, err := m.Aggregate([]any{expr.Msr("revenue")}, []any{expr.Count()})
	var kindErr *KindMismatchError
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, "attribute", kindErr.Expected)

	_, err = m.Aggregate([]any{expr.Attr("customer_id")}, []any{expr.Col("price")})
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, "measure", kindErr.Expected)
}

func TestLimitCollapses(t *testing.T) {
	m := ordersModel(t).Limit(100).Limit(10)
	limit, ok := m.Source().(*LimitSource)
	require.True(t, ok)
	assert.Equal(t, 10, limit.Limit)
	// The inner limit was replaced, not stacked.
	_, stacked := limit.Base.(*LimitSource)
	assert.False(t, stacked)
}

func TestPickNarrowsAttributes(t *testing.T) {
	m := ordersModel(t)
	picked, err := m.Pick([]any{expr.Attr("id"), expr.Attr("price").Named("unit_price")})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "unit_price"}, picked.AttributeNames())
	assert.Empty(t, picked.MeasureNames())
}

func TestWithJoinOneValidation(t *testing.T) {
	orders := ordersModel(t)
	customers, err := Table(testConn(), "customers").WithAttributes(map[string]any{
		"id":   expr.Col("id"),
		"name": expr.Col("name"),
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		fn   func() (*Model, error)
	}{
		{"empty name", func() (*Model, error) {
			return orders.WithJoinOne("", customers, JoinSpec{On: expr.Lit(true)})
		}},
		{"nil target", func() (*Model, error) {
			return orders.WithJoinOne("customer", nil, JoinSpec{On: expr.Lit(true)})
		}},
		{"neither On nor ForeignKey", func() (*Model, error) {
			return orders.WithJoinOne("customer", customers, JoinSpec{})
		}},
		{"both On and ForeignKey", func() (*Model, error) {
			return orders.WithJoinOne("customer", customers, JoinSpec{On: expr.Lit(true), ForeignKey: expr.Col("customer_id")})
		}},
		{"ForeignKey without target primary key", func() (*Model, error) {
			return orders.WithJoinOne("customer", customers, JoinSpec{ForeignKey: expr.Col("customer_id")})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fn()
			var typeErr *TypeError
			require.ErrorAs(t, err, &typeErr)
		})
	}
}

func TestWithJoinOneForeignKeySugar(t *testing.T) {
	orders := ordersModel(t)
	customers, err := Table(testConn(), "customers").WithAttributes(map[string]any{
		"id":   expr.Col("id"),
		"name": expr.Col("name"),
	})
	require.NoError(t, err)
	customers, err = customers.WithPrimaryKey(expr.Attr("id"))
	require.NoError(t, err)

	joined, err := orders.WithJoinOne("customer", customers, JoinSpec{ForeignKey: expr.Attr("customer_id")})
	require.NoError(t, err)

	assert.Equal(t, []string{"customer"}, joined.RelationNames())
	src, ok := joined.Source().(*JoinOneSource)
	require.True(t, ok)
	on, ok := src.On.(*expr.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, "=", on.Op)
	assert.Equal(t, "customer", on.Right.Qualifier())
}

func TestWithJoinOneRelationVisibleInCondition(t *testing.T) {
	orders := ordersModel(t)
	customers, err := Table(testConn(), "customers").WithAttributes(map[string]any{
		"id": expr.Col("id"),
	})
	require.NoError(t, err)

	// The On condition references rel.customer, which only exists on the
	// model being built.
	joined, err := orders.WithJoinOne("customer", customers, JoinSpec{
		On: expr.Eq(expr.Attr("customer_id"), keypath.Rel("customer").Attr("id")),
	})
	require.NoError(t, err)
	src := joined.Source().(*JoinOneSource)
	assert.NotNil(t, src.On)
}

func TestWithMeta(t *testing.T) {
	m := ordersModel(t).WithMeta("owner", "growth").WithMeta("tier", 2)
	assert.Equal(t, []string{"owner", "tier"}, m.MetaKeys())
	v, ok := m.MetaValue("owner")
	require.True(t, ok)
	assert.Equal(t, "growth", v)

	// Meta on the derived model never leaks back.
	base := ordersModel(t)
	_, ok = base.MetaValue("owner")
	assert.False(t, ok)
}

func TestSortNullPlacement(t *testing.T) {
	tests := []struct {
		name       string
		dir        Direction
		nulls      Nulls
		wantDesc   bool
		wantNFirst bool
	}{
		{"asc auto", Asc, NullsAuto, false, true},
		{"desc auto", Desc, NullsAuto, true, false},
		{"asc nulls last", Asc, NullsLast, false, false},
		{"desc nulls first", Desc, NullsFirst, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ordersModel(t).Sort(expr.Attr("price"), tt.dir, tt.nulls)
			require.NoError(t, err)
			src, ok := m.Source().(*SortSource)
			require.True(t, ok)
			assert.Equal(t, tt.wantDesc, src.Desc)
			assert.Equal(t, tt.wantNFirst, src.NullsFirst)
		})
	}
}
