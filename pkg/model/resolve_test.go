package model

import (
	"testing"

	"github.com/leapstack-labs/modelq/pkg/expr"
	"github.com/leapstack-labs/modelq/pkg/keypath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joinedOrders(t *testing.T) *Model {
	t.Helper()
	orders := ordersModel(t)
	customers, err := Table(testConn(), "customers").WithAttributes(map[string]any{
		"id":     expr.Col("id"),
		"name":   expr.Col("name"),
		"region": expr.Col("region"),
	})
	require.NoError(t, err)
	customers, err = customers.WithPrimaryKey(expr.Attr("id"))
	require.NoError(t, err)
	joined, err := orders.WithJoinOne("customer", customers, JoinSpec{ForeignKey: expr.Attr("customer_id")})
	require.NoError(t, err)
	return joined
}

func TestResolveAttribute(t *testing.T) {
	m := ordersModel(t)
	v, err := m.ResolveValue(keypath.Attr("price"))
	require.NoError(t, err)
	col, ok := v.(*expr.Column)
	require.True(t, ok)
	assert.Equal(t, "price", col.Name)
}

func TestResolveMeasureReResolvesNestedReferences(t *testing.T) {
	m := ordersModel(t)
	v, err := m.ResolveValue(keypath.Msr("revenue"))
	require.NoError(t, err)
	e, ok := v.(expr.Expression)
	require.True(t, ok)
	assert.True(t, e.Aggregating())
	// The measure body referenced attr.price and attr.qty; after
	// resolution no deferred leaves remain.
	assert.False(t, expr.ContainsDeferred(e))
}

func TestResolveThroughRelationQualifies(t *testing.T) {
	m := joinedOrders(t)
	v, err := m.ResolveValue(keypath.Rel("customer").Attr("name"))
	require.NoError(t, err)
	e, ok := v.(expr.Expression)
	require.True(t, ok)
	assert.Equal(t, "customer", e.Qualifier())
	assert.Equal(t, "name", e.Identifier())
}

func TestResolveUnknownReferences(t *testing.T) {
	m := joinedOrders(t)
	tests := []struct {
		name string
		path keypath.KeyPath
		kind string
	}{
		{"unknown attribute", keypath.Attr("nope"), "attribute"},
		{"unknown measure", keypath.Msr("nope"), "measure"},
		{"unknown relation", keypath.Rel("nope"), "relation"},
		{"unknown attribute via relation", keypath.Rel("customer").Attr("nope"), "attribute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ResolveValue(tt.path)
			var refErr *ReferenceError
			require.ErrorAs(t, err, &refErr)
			assert.Equal(t, tt.kind, refErr.Kind)
			assert.Equal(t, "nope", refErr.Name)
			assert.NotEmpty(t, refErr.Available)
		})
	}
}

func TestResolveGranularityCapability(t *testing.T) {
	m, err := ordersModel(t).WithAttributes(map[string]any{"created_at": expr.Col("created_at")})
	require.NoError(t, err)

	v, err := m.ResolveValue(keypath.Attr("created_at").Call("by_month"))
	require.NoError(t, err)
	g, ok := v.(*expr.Granularity)
	require.True(t, ok)
	assert.Equal(t, expr.Month, g.Unit)
	// Truncation keeps the attribute's output name.
	assert.Equal(t, "created_at", g.Identifier())
}

func TestResolveNamedCapability(t *testing.T) {
	m := ordersModel(t)
	v, err := m.ResolveValue(keypath.Attr("price").Call("named", "unit_price"))
	require.NoError(t, err)
	e := v.(expr.Expression)
	assert.Equal(t, "unit_price", e.Identifier())
}

func TestResolveCapabilityErrors(t *testing.T) {
	m := ordersModel(t)
	tests := []struct {
		name string
		path keypath.KeyPath
	}{
		{"unknown method", keypath.Attr("price").Call("shout")},
		{"attr after expression", keypath.Attr("price").Attr("deeper")},
		{"subscript on expression", keypath.Attr("price").Index(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ResolveValue(tt.path)
			require.Error(t, err)
		})
	}
}

func TestResolveBoundCall(t *testing.T) {
	discounted := keypath.Defer("discounted", func(args []any) (any, error) {
		return expr.Mul(expr.Coerce(args[0]), expr.Lit(0.9)), nil
	})

	// Calling with a keypath argument defers the call.
	v, err := discounted(keypath.Attr("price"))
	require.NoError(t, err)
	bound, ok := v.(*keypath.BoundCall)
	require.True(t, ok)

	m := ordersModel(t)
	resolved, err := m.ResolveValue(bound)
	require.NoError(t, err)
	op, ok := resolved.(*expr.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, "*", op.Op)
	left, ok := op.Left.(*expr.Column)
	require.True(t, ok)
	assert.Equal(t, "price", left.Name)
}

func TestResolveWalksCollections(t *testing.T) {
	m := ordersModel(t)
	v, err := m.ResolveValue([]any{
		keypath.Attr("price"),
		map[string]any{"q": keypath.Attr("qty"), "plain": 42},
	})
	require.NoError(t, err)

	list := v.([]any)
	assert.IsType(t, &expr.Column{}, list[0])
	inner := list[1].(map[string]any)
	assert.IsType(t, &expr.Column{}, inner["q"])
	assert.Equal(t, 42, inner["plain"])
}

func TestResolveIsIdempotent(t *testing.T) {
	m := ordersModel(t)
	once, err := m.ResolveValue(keypath.Attr("price"))
	require.NoError(t, err)
	twice, err := m.ResolveValue(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestResolveDeferredInsideExpression(t *testing.T) {
	m := ordersModel(t)
	resolved, err := m.resolveExpr(expr.Gt(expr.Attr("price"), expr.Lit(10)))
	require.NoError(t, err)
	assert.False(t, expr.ContainsDeferred(resolved))
}
