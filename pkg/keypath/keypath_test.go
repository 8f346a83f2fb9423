package keypath

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainingIsImmutable(t *testing.T) {
	base := Rel("orders")
	a := base.Attr("price")
	b := base.Attr("quantity")

	assert.Len(t, base.Steps(), 1)
	assert.Len(t, a.Steps(), 2)
	assert.Len(t, b.Steps(), 2)
	assert.Equal(t, "price", a.Steps()[1].Name)
	assert.Equal(t, "quantity", b.Steps()[1].Name)
}

func TestRoots(t *testing.T) {
	tests := []struct {
		name string
		path KeyPath
		kind StepKind
	}{
		{"attr", Attr("ts"), StepAttribute},
		{"msr", Msr("count"), StepMeasure},
		{"rel", Rel("customers"), StepRelation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Len(t, tt.path.Steps(), 1)
			assert.Equal(t, tt.kind, tt.path.Steps()[0].Kind)
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Attr("ts").Call("by_month").Equal(Attr("ts").Call("by_month")))
	assert.False(t, Attr("ts").Equal(Msr("ts")))
	assert.False(t, Attr("ts").Equal(Attr("ts").Call("by_month")))
	assert.False(t, Attr("ts").Call("by_month").Equal(Attr("ts").Call("by_week")))
	assert.True(t, KeyPath{}.Equal(KeyPath{}))
}

func TestString(t *testing.T) {
	p := Rel("orders").Attr("price").Call("named", "unit_price")
	assert.Equal(t, "keypath.rel.orders.attr.price.named(unit_price)", p.String())
	assert.Equal(t, "keypath[3]", KeyPath{}.Index(3).String())
}

func TestDeferCapturesWhenKeyPathPresent(t *testing.T) {
	calls := 0
	add := Defer("add", func(args []any) (any, error) {
		calls++
		return args[0].(int) + args[1].(int), nil
	})

	eager, err := add(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, eager)
	assert.Equal(t, 1, calls)

	deferred, err := add(1, Attr("x"))
	require.NoError(t, err)
	bound, ok := deferred.(*BoundCall)
	require.True(t, ok)
	assert.Equal(t, "add", bound.Name)
	assert.Equal(t, 1, calls, "wrapped fn must not run while a keypath argument is unresolved")

	got, err := bound.Fn([]any{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestDeferPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	fail := Defer("fail", func(args []any) (any, error) { return nil, boom })
	_, err := fail(1)
	assert.ErrorIs(t, err, boom)
}

func TestContains(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, false},
		{"scalar", 42, false},
		{"keypath", Attr("x"), true},
		{"nested slice", []any{1, []any{Attr("x")}}, true},
		{"nested map", map[string]any{"a": map[string]any{"b": Msr("m")}}, true},
		{"typed slice", []KeyPath{Attr("x")}, true},
		{"bound call", &BoundCall{Name: "f"}, true},
		{"clean slice", []any{"a", 1, nil}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Contains(tt.in))
		})
	}
}
