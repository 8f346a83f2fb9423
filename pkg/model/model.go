// Package model builds immutable semantic models: a source chain of
// relational operations plus named attributes, measures, and relations.
// Builder methods never mutate their receiver; each returns a new model
// whose source chain references the old one.
package model

import (
	"github.com/leapstack-labs/modelq/pkg/expr"
)

// Connection is an opaque handle naming the warehouse a model reads from.
// The library never dials it; execution is a separate concern that maps the
// handle to a driver. Dialect decides how the model compiles.
type Connection struct {
	Name    string
	Dialect string
}

// NewConnection builds a connection handle for the given dialect.
func NewConnection(name, dialect string) *Connection {
	return &Connection{Name: name, Dialect: dialect}
}

// binding is one named expression in an ordered table.
type binding struct {
	name string
	expr expr.Expression
}

// bindings preserve definition order so compiled SQL is stable.
type bindings []binding

func (b bindings) get(name string) (expr.Expression, bool) {
	for _, item := range b {
		if item.name == name {
			return item.expr, true
		}
	}
	return nil, false
}

// set replaces in place on shadowing, preserving the original position,
// and appends otherwise. Always returns a fresh slice.
func (b bindings) set(name string, e expr.Expression) bindings {
	out := make(bindings, len(b), len(b)+1)
	copy(out, b)
	for i, item := range out {
		if item.name == name {
			out[i] = binding{name: name, expr: e}
			return out
		}
	}
	return append(out, binding{name: name, expr: e})
}

func (b bindings) names() []string {
	out := make([]string, len(b))
	for i, item := range b {
		out[i] = item.name
	}
	return out
}

// Relation is a named link from a model to another model. WithJoinOne
// registers joined relations; MatchSteps registers inline ones, whose
// target columns already live on the base rows and need no qualification.
type Relation struct {
	name   string
	target *Model
	inline bool
}

// Name returns the relation's name.
func (r *Relation) Name() string { return r.name }

// Target returns the joined model.
func (r *Relation) Target() *Model { return r.target }

type relations []*Relation

func (r relations) get(name string) (*Relation, bool) {
	for _, rel := range r {
		if rel.name == name {
			return rel, true
		}
	}
	return nil, false
}

func (r relations) set(rel *Relation) relations {
	out := make(relations, len(r), len(r)+1)
	copy(out, r)
	for i, item := range out {
		if item.name == rel.name {
			out[i] = rel
			return out
		}
	}
	return append(out, rel)
}

func (r relations) names() []string {
	out := make([]string, len(r))
	for i, rel := range r {
		out[i] = rel.name
	}
	return out
}

// Model is an immutable semantic model.
type Model struct {
	conn       *Connection
	source     Source
	attributes bindings
	measures   bindings
	relations  relations
	primaryKey expr.Expression
	activity   *ActivitySchema
	meta       map[string]any
}

// Table starts a model reading a physical table.
func Table(conn *Connection, name string) *Model {
	return &Model{conn: conn, source: &TableSource{Name: name}}
}

// TableInSchema starts a model reading a table in a specific schema.
func TableInSchema(conn *Connection, schema, name string) *Model {
	return &Model{conn: conn, source: &TableSource{Schema: schema, Name: name}}
}

// SQLQuery starts a model reading the rows of a raw SQL query.
func SQLQuery(conn *Connection, sql string) *Model {
	return &Model{conn: conn, source: &SQLTextSource{SQL: sql}}
}

// clone makes a shallow copy. Binding tables are copy-on-write: mutating
// helpers always allocate, so sharing the slices here is safe.
func (m *Model) clone() *Model {
	cp := *m
	return &cp
}

// Connection returns the model's connection handle.
func (m *Model) Connection() *Connection { return m.conn }

// Source returns the head of the source chain.
func (m *Model) Source() Source { return m.source }

// AttributeNames lists attribute names in definition order.
func (m *Model) AttributeNames() []string { return m.attributes.names() }

// MeasureNames lists measure names in definition order.
func (m *Model) MeasureNames() []string { return m.measures.names() }

// RelationNames lists relation names in definition order.
func (m *Model) RelationNames() []string { return m.relations.names() }

// AttributeExpr looks up a registered attribute.
func (m *Model) AttributeExpr(name string) (expr.Expression, bool) {
	return m.attributes.get(name)
}

// MeasureExpr looks up a registered measure.
func (m *Model) MeasureExpr(name string) (expr.Expression, bool) {
	return m.measures.get(name)
}

// RelationTarget looks up a relation's joined model.
func (m *Model) RelationTarget(name string) (*Model, bool) {
	rel, ok := m.relations.get(name)
	if !ok {
		return nil, false
	}
	return rel.target, true
}

// PrimaryKey returns the model's primary key expression, or nil.
func (m *Model) PrimaryKey() expr.Expression { return m.primaryKey }

// Activity returns the model's activity schema, or nil.
func (m *Model) Activity() *ActivitySchema { return m.activity }

// MetaValue reads a custom metadata entry.
func (m *Model) MetaValue(key string) (any, bool) {
	v, ok := m.meta[key]
	return v, ok
}

// MetaKeys lists custom metadata keys in sorted order.
func (m *Model) MetaKeys() []string {
	return sortedKeys(m.meta)
}
