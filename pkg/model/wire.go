package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leapstack-labs/modelq/pkg/expr"
	"github.com/leapstack-labs/modelq/pkg/keypath"
)

// WireVersion is the version stamped on encoded payloads. Decoding accepts
// any payload at or below it and rejects newer ones.
const WireVersion = 1

// Encode serializes a model graph to versioned JSON. Decoding the result
// yields a graph that compiles to identical SQL.
func Encode(m *Model) ([]byte, error) {
	node, err := encodeModel(m)
	if err != nil {
		return nil, err
	}
	node["_version"] = WireVersion

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(node); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode reads a model graph from versioned JSON.
func Decode(data []byte) (*Model, error) {
	var node map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&node); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	version, err := intField(node, "_version")
	if err != nil {
		return nil, err
	}
	if version > WireVersion {
		return nil, &SerializationVersionError{Version: version, Supported: WireVersion}
	}
	return decodeModel(node)
}

func encodeModel(m *Model) (map[string]any, error) {
	source, err := encodeSource(m.source)
	if err != nil {
		return nil, err
	}
	attrs, err := encodeBindings(m.attributes)
	if err != nil {
		return nil, err
	}
	measures, err := encodeBindings(m.measures)
	if err != nil {
		return nil, err
	}

	rels := make([]any, 0, len(m.relations))
	for _, rel := range m.relations {
		target, err := encodeModel(rel.target)
		if err != nil {
			return nil, err
		}
		relNode := map[string]any{"name": rel.name, "model": target}
		if rel.inline {
			relNode["inline"] = true
		}
		rels = append(rels, relNode)
	}

	node := map[string]any{
		"type":       "model",
		"connection": map[string]any{"name": m.conn.Name, "dialect": m.conn.Dialect},
		"source":     source,
		"attributes": attrs,
		"measures":   measures,
		"relations":  rels,
	}
	if m.primaryKey != nil {
		pk, err := encodeExpr(m.primaryKey)
		if err != nil {
			return nil, err
		}
		node["primaryKey"] = pk
	}
	if m.activity != nil {
		schema, err := encodeActivity(*m.activity)
		if err != nil {
			return nil, err
		}
		node["activitySchema"] = schema
	}
	if len(m.meta) > 0 {
		node["meta"] = m.meta
	}
	return node, nil
}

func encodeBindings(b bindings) ([]any, error) {
	out := make([]any, 0, len(b))
	for _, item := range b {
		e, err := encodeExpr(item.expr)
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{"name": item.name, "expr": e})
	}
	return out, nil
}

func encodeActivity(a ActivitySchema) (map[string]any, error) {
	group, err := encodeExpr(a.Group)
	if err != nil {
		return nil, err
	}
	ts, err := encodeExpr(a.Timestamp)
	if err != nil {
		return nil, err
	}
	key, err := encodeExpr(a.EventKey)
	if err != nil {
		return nil, err
	}
	return map[string]any{"group": group, "timestamp": ts, "eventKey": key}, nil
}

func encodeSource(s Source) (map[string]any, error) {
	wrap := func(subType string, fields map[string]any) map[string]any {
		fields["type"] = "source"
		fields["subType"] = subType
		return fields
	}
	switch t := s.(type) {
	case *TableSource:
		return wrap("table", map[string]any{"schema": t.Schema, "name": t.Name}), nil
	case *SQLTextSource:
		return wrap("sqlText", map[string]any{"sql": t.SQL}), nil
	case *FilterSource:
		base, err := encodeSource(t.Base)
		if err != nil {
			return nil, err
		}
		cond, err := encodeExpr(t.Cond)
		if err != nil {
			return nil, err
		}
		return wrap("filter", map[string]any{"base": base, "cond": cond}), nil
	case *AggregateSource:
		base, err := encodeSource(t.Base)
		if err != nil {
			return nil, err
		}
		groups, err := encodeExprs(t.Groups)
		if err != nil {
			return nil, err
		}
		measures, err := encodeExprs(t.Measures)
		if err != nil {
			return nil, err
		}
		return wrap("aggregate", map[string]any{"base": base, "groups": groups, "measures": measures}), nil
	case *SortSource:
		base, err := encodeSource(t.Base)
		if err != nil {
			return nil, err
		}
		by, err := encodeExpr(t.By)
		if err != nil {
			return nil, err
		}
		return wrap("sort", map[string]any{"base": base, "by": by, "desc": t.Desc, "nullsFirst": t.NullsFirst}), nil
	case *LimitSource:
		base, err := encodeSource(t.Base)
		if err != nil {
			return nil, err
		}
		return wrap("limit", map[string]any{"base": base, "limit": t.Limit, "offset": t.Offset}), nil
	case *PickSource:
		base, err := encodeSource(t.Base)
		if err != nil {
			return nil, err
		}
		columns, err := encodeExprs(t.Columns)
		if err != nil {
			return nil, err
		}
		return wrap("pick", map[string]any{"base": base, "columns": columns}), nil
	case *UnionSource:
		base, err := encodeSource(t.Base)
		if err != nil {
			return nil, err
		}
		other, err := encodeModel(t.Other)
		if err != nil {
			return nil, err
		}
		return wrap("union", map[string]any{"base": base, "other": other}), nil
	case *JoinOneSource:
		base, err := encodeSource(t.Base)
		if err != nil {
			return nil, err
		}
		target, err := encodeModel(t.Target)
		if err != nil {
			return nil, err
		}
		on, err := encodeExpr(t.On)
		if err != nil {
			return nil, err
		}
		return wrap("joinOne", map[string]any{
			"base": base, "name": t.Name, "target": target,
			"on": on, "dropUnmatched": t.DropUnmatched,
		}), nil
	case *MatchStepsSource:
		base, err := encodeSource(t.Base)
		if err != nil {
			return nil, err
		}
		schema, err := encodeActivity(t.Schema)
		if err != nil {
			return nil, err
		}
		steps := make([]any, 0, len(t.Steps))
		for _, step := range t.Steps {
			cond, err := encodeExpr(step.Cond)
			if err != nil {
				return nil, err
			}
			steps = append(steps, map[string]any{"name": step.Name, "cond": cond})
		}
		partitions, err := encodeExprs(t.Partitions)
		if err != nil {
			return nil, err
		}
		return wrap("matchSteps", map[string]any{
			"base": base, "schema": schema, "steps": steps,
			"timeLimitSeconds": int64(t.TimeLimit / time.Second),
			"partitions":       partitions,
		}), nil
	default:
		return nil, &TypeError{Op: "encode", Detail: fmt.Sprintf("unknown source node %T", s)}
	}
}

func encodeExprs(es []expr.Expression) ([]any, error) {
	out := make([]any, 0, len(es))
	for _, e := range es {
		node, err := encodeExpr(e)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

func encodeExpr(e expr.Expression) (map[string]any, error) {
	if e == nil {
		return nil, nil
	}
	wrap := func(subType string, fields map[string]any) map[string]any {
		fields["type"] = "expr"
		fields["subType"] = subType
		if alias := e.Identifier(); alias != "" {
			fields["alias"] = alias
		}
		if q := e.Qualifier(); q != "" {
			fields["qualifier"] = q
		}
		return fields
	}
	switch t := e.(type) {
	case *expr.Column:
		node := wrap("column", map[string]any{"name": t.Name})
		// Identifier falls back to the column name; only persist a
		// real alias.
		if t.Identifier() == t.Name {
			delete(node, "alias")
		}
		return node, nil
	case *expr.Literal:
		valueType, value, err := encodeLiteral(t.Value)
		if err != nil {
			return nil, err
		}
		return wrap("literal", map[string]any{"valueType": valueType, "value": value}), nil
	case *expr.SQLText:
		return wrap("sqlText", map[string]any{"sql": t.SQL}), nil
	case *expr.Call:
		args, err := encodeExprs(t.Args)
		if err != nil {
			return nil, err
		}
		return wrap("call", map[string]any{"name": t.Name, "args": args, "distinct": t.Distinct}), nil
	case *expr.BinaryOp:
		left, err := encodeExpr(t.Left)
		if err != nil {
			return nil, err
		}
		right, err := encodeExpr(t.Right)
		if err != nil {
			return nil, err
		}
		return wrap("binaryOp", map[string]any{"op": t.Op, "left": left, "right": right}), nil
	case *expr.Cases:
		whens := make([]any, 0, len(t.Whens))
		for _, w := range t.Whens {
			cond, err := encodeExpr(w.Cond)
			if err != nil {
				return nil, err
			}
			value, err := encodeExpr(w.Value)
			if err != nil {
				return nil, err
			}
			whens = append(whens, map[string]any{"cond": cond, "value": value})
		}
		node := wrap("cases", map[string]any{"whens": whens})
		if t.Else != nil {
			els, err := encodeExpr(t.Else)
			if err != nil {
				return nil, err
			}
			node["else"] = els
		}
		return node, nil
	case *expr.Granularity:
		base, err := encodeExpr(t.Base)
		if err != nil {
			return nil, err
		}
		node := wrap("granularity", map[string]any{"base": base, "unit": string(t.Unit)})
		// Identifier falls through to the base; only persist a real
		// alias.
		if t.Base != nil && t.Identifier() == t.Base.Identifier() {
			delete(node, "alias")
		}
		return node, nil
	case *expr.Star:
		return wrap("star", map[string]any{}), nil
	case *expr.Deferred:
		steps, err := encodeKeyPath(t.Path)
		if err != nil {
			return nil, err
		}
		return wrap("deferred", map[string]any{"steps": steps}), nil
	default:
		return nil, &TypeError{Op: "encode", Detail: fmt.Sprintf("unknown expression node %T", e)}
	}
}

func encodeLiteral(v any) (string, any, error) {
	switch t := v.(type) {
	case nil:
		return "null", nil, nil
	case bool:
		return "bool", t, nil
	case string:
		return "string", t, nil
	case int:
		return "int", int64(t), nil
	case int32:
		return "int", int64(t), nil
	case int64:
		return "int", t, nil
	case float32:
		return "float", float64(t), nil
	case float64:
		return "float", t, nil
	case time.Time:
		return "time", t.UTC().Format(time.RFC3339Nano), nil
	default:
		return "", nil, &TypeError{Op: "encode", Detail: fmt.Sprintf("unsupported literal %T", v)}
	}
}

func encodeKeyPath(kp keypath.KeyPath) ([]any, error) {
	steps := kp.Steps()
	out := make([]any, 0, len(steps))
	for _, s := range steps {
		node := map[string]any{"kind": s.Kind.String()}
		if s.Name != "" {
			node["name"] = s.Name
		}
		if s.Key != nil {
			node["key"] = s.Key
		}
		if len(s.Args) > 0 {
			args := make([]any, 0, len(s.Args))
			for _, a := range s.Args {
				if nested, ok := a.(keypath.KeyPath); ok {
					nestedSteps, err := encodeKeyPath(nested)
					if err != nil {
						return nil, err
					}
					args = append(args, map[string]any{"keypath": nestedSteps})
					continue
				}
				args = append(args, a)
			}
			node["args"] = args
		}
		out = append(out, node)
	}
	return out, nil
}
