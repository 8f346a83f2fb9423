package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/leapstack-labs/modelq/pkg/expr"
	"github.com/leapstack-labs/modelq/pkg/keypath"
)

func wireErr(format string, args ...any) error {
	return &TypeError{Op: "decode", Detail: fmt.Sprintf(format, args...)}
}

func stringField(node map[string]any, key string) (string, error) {
	v, ok := node[key]
	if !ok {
		return "", wireErr("missing %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", wireErr("%q must be a string, got %T", key, v)
	}
	return s, nil
}

func optString(node map[string]any, key string) string {
	s, _ := node[key].(string)
	return s
}

func intField(node map[string]any, key string) (int, error) {
	v, ok := node[key]
	if !ok {
		return 0, wireErr("missing %q", key)
	}
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, wireErr("%q must be an integer: %v", key, err)
		}
		return int(n), nil
	case float64:
		return int(t), nil
	case int:
		return t, nil
	default:
		return 0, wireErr("%q must be a number, got %T", key, v)
	}
}

func boolField(node map[string]any, key string) bool {
	b, _ := node[key].(bool)
	return b
}

func mapField(node map[string]any, key string) (map[string]any, error) {
	v, ok := node[key]
	if !ok {
		return nil, wireErr("missing %q", key)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, wireErr("%q must be an object, got %T", key, v)
	}
	return m, nil
}

func listField(node map[string]any, key string) ([]any, error) {
	v, ok := node[key]
	if !ok {
		return nil, nil
	}
	l, ok := v.([]any)
	if !ok {
		return nil, wireErr("%q must be an array, got %T", key, v)
	}
	return l, nil
}

func decodeModel(node map[string]any) (*Model, error) {
	connNode, err := mapField(node, "connection")
	if err != nil {
		return nil, err
	}
	connName, err := stringField(connNode, "name")
	if err != nil {
		return nil, err
	}
	dialect, err := stringField(connNode, "dialect")
	if err != nil {
		return nil, err
	}

	sourceNode, err := mapField(node, "source")
	if err != nil {
		return nil, err
	}
	source, err := decodeSource(sourceNode)
	if err != nil {
		return nil, err
	}

	m := &Model{
		conn:   &Connection{Name: connName, Dialect: dialect},
		source: source,
	}
	if m.attributes, err = decodeBindings(node, "attributes"); err != nil {
		return nil, err
	}
	if m.measures, err = decodeBindings(node, "measures"); err != nil {
		return nil, err
	}

	relNodes, err := listField(node, "relations")
	if err != nil {
		return nil, err
	}
	for _, rn := range relNodes {
		relNode, ok := rn.(map[string]any)
		if !ok {
			return nil, wireErr("relation entries must be objects")
		}
		name, err := stringField(relNode, "name")
		if err != nil {
			return nil, err
		}
		targetNode, err := mapField(relNode, "model")
		if err != nil {
			return nil, err
		}
		target, err := decodeModel(targetNode)
		if err != nil {
			return nil, err
		}
		m.relations = m.relations.set(&Relation{name: name, target: target, inline: boolField(relNode, "inline")})
	}

	if pkNode, ok := node["primaryKey"].(map[string]any); ok {
		if m.primaryKey, err = decodeExpr(pkNode); err != nil {
			return nil, err
		}
	}
	if asNode, ok := node["activitySchema"].(map[string]any); ok {
		schema, err := decodeActivity(asNode)
		if err != nil {
			return nil, err
		}
		m.activity = &schema
	}
	if metaNode, ok := node["meta"].(map[string]any); ok {
		m.meta = metaNode
	}
	return m, nil
}

func decodeBindings(node map[string]any, key string) (bindings, error) {
	items, err := listField(node, key)
	if err != nil {
		return nil, err
	}
	out := make(bindings, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, wireErr("%q entries must be objects", key)
		}
		name, err := stringField(entry, "name")
		if err != nil {
			return nil, err
		}
		exprNode, err := mapField(entry, "expr")
		if err != nil {
			return nil, err
		}
		e, err := decodeExpr(exprNode)
		if err != nil {
			return nil, err
		}
		out = out.set(name, e)
	}
	return out, nil
}

func decodeActivity(node map[string]any) (ActivitySchema, error) {
	var schema ActivitySchema
	for _, field := range []struct {
		key string
		dst *expr.Expression
	}{
		{"group", &schema.Group},
		{"timestamp", &schema.Timestamp},
		{"eventKey", &schema.EventKey},
	} {
		exprNode, err := mapField(node, field.key)
		if err != nil {
			return schema, err
		}
		e, err := decodeExpr(exprNode)
		if err != nil {
			return schema, err
		}
		*field.dst = e
	}
	return schema, nil
}

func decodeSource(node map[string]any) (Source, error) {
	subType, err := stringField(node, "subType")
	if err != nil {
		return nil, err
	}
	decodeBase := func() (Source, error) {
		baseNode, err := mapField(node, "base")
		if err != nil {
			return nil, err
		}
		return decodeSource(baseNode)
	}

	switch subType {
	case "table":
		name, err := stringField(node, "name")
		if err != nil {
			return nil, err
		}
		return &TableSource{Schema: optString(node, "schema"), Name: name}, nil
	case "sqlText":
		sql, err := stringField(node, "sql")
		if err != nil {
			return nil, err
		}
		return &SQLTextSource{SQL: sql}, nil
	case "filter":
		base, err := decodeBase()
		if err != nil {
			return nil, err
		}
		cond, err := decodeExprField(node, "cond")
		if err != nil {
			return nil, err
		}
		return &FilterSource{Base: base, Cond: cond}, nil
	case "aggregate":
		base, err := decodeBase()
		if err != nil {
			return nil, err
		}
		groups, err := decodeExprList(node, "groups")
		if err != nil {
			return nil, err
		}
		measures, err := decodeExprList(node, "measures")
		if err != nil {
			return nil, err
		}
		return &AggregateSource{Base: base, Groups: groups, Measures: measures}, nil
	case "sort":
		base, err := decodeBase()
		if err != nil {
			return nil, err
		}
		by, err := decodeExprField(node, "by")
		if err != nil {
			return nil, err
		}
		return &SortSource{Base: base, By: by, Desc: boolField(node, "desc"), NullsFirst: boolField(node, "nullsFirst")}, nil
	case "limit":
		base, err := decodeBase()
		if err != nil {
			return nil, err
		}
		limit, err := intField(node, "limit")
		if err != nil {
			return nil, err
		}
		offset, err := intField(node, "offset")
		if err != nil {
			return nil, err
		}
		return &LimitSource{Base: base, Limit: limit, Offset: offset}, nil
	case "pick":
		base, err := decodeBase()
		if err != nil {
			return nil, err
		}
		columns, err := decodeExprList(node, "columns")
		if err != nil {
			return nil, err
		}
		return &PickSource{Base: base, Columns: columns}, nil
	case "union":
		base, err := decodeBase()
		if err != nil {
			return nil, err
		}
		otherNode, err := mapField(node, "other")
		if err != nil {
			return nil, err
		}
		other, err := decodeModel(otherNode)
		if err != nil {
			return nil, err
		}
		return &UnionSource{Base: base, Other: other}, nil
	case "joinOne":
		base, err := decodeBase()
		if err != nil {
			return nil, err
		}
		name, err := stringField(node, "name")
		if err != nil {
			return nil, err
		}
		targetNode, err := mapField(node, "target")
		if err != nil {
			return nil, err
		}
		target, err := decodeModel(targetNode)
		if err != nil {
			return nil, err
		}
		on, err := decodeExprField(node, "on")
		if err != nil {
			return nil, err
		}
		return &JoinOneSource{
			Base: base, Name: name, Target: target,
			On: on, DropUnmatched: boolField(node, "dropUnmatched"),
		}, nil
	case "matchSteps":
		base, err := decodeBase()
		if err != nil {
			return nil, err
		}
		schemaNode, err := mapField(node, "schema")
		if err != nil {
			return nil, err
		}
		schema, err := decodeActivity(schemaNode)
		if err != nil {
			return nil, err
		}
		stepNodes, err := listField(node, "steps")
		if err != nil {
			return nil, err
		}
		steps := make([]MatchStep, 0, len(stepNodes))
		for _, sn := range stepNodes {
			stepNode, ok := sn.(map[string]any)
			if !ok {
				return nil, wireErr("step entries must be objects")
			}
			name, err := stringField(stepNode, "name")
			if err != nil {
				return nil, err
			}
			cond, err := decodeExprField(stepNode, "cond")
			if err != nil {
				return nil, err
			}
			steps = append(steps, MatchStep{Name: name, Cond: cond})
		}
		limitSeconds, err := intField(node, "timeLimitSeconds")
		if err != nil {
			return nil, err
		}
		partitions, err := decodeExprList(node, "partitions")
		if err != nil {
			return nil, err
		}
		return &MatchStepsSource{
			Base: base, Schema: schema, Steps: steps,
			TimeLimit:  time.Duration(limitSeconds) * time.Second,
			Partitions: partitions,
		}, nil
	default:
		return nil, wireErr("unknown source subType %q", subType)
	}
}

func decodeExprField(node map[string]any, key string) (expr.Expression, error) {
	exprNode, err := mapField(node, key)
	if err != nil {
		return nil, err
	}
	return decodeExpr(exprNode)
}

func decodeExprList(node map[string]any, key string) ([]expr.Expression, error) {
	items, err := listField(node, key)
	if err != nil {
		return nil, err
	}
	out := make([]expr.Expression, 0, len(items))
	for _, item := range items {
		exprNode, ok := item.(map[string]any)
		if !ok {
			return nil, wireErr("%q entries must be objects", key)
		}
		e, err := decodeExpr(exprNode)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeExpr(node map[string]any) (expr.Expression, error) {
	subType, err := stringField(node, "subType")
	if err != nil {
		return nil, err
	}

	var e expr.Expression
	switch subType {
	case "column":
		name, err := stringField(node, "name")
		if err != nil {
			return nil, err
		}
		e = expr.Col(name)
	case "literal":
		value, err := decodeLiteral(node)
		if err != nil {
			return nil, err
		}
		e = expr.Lit(value)
	case "sqlText":
		sql, err := stringField(node, "sql")
		if err != nil {
			return nil, err
		}
		e = expr.SQL(sql)
	case "call":
		name, err := stringField(node, "name")
		if err != nil {
			return nil, err
		}
		args, err := decodeExprList(node, "args")
		if err != nil {
			return nil, err
		}
		e = &expr.Call{Name: name, Args: args, Distinct: boolField(node, "distinct")}
	case "binaryOp":
		op, err := stringField(node, "op")
		if err != nil {
			return nil, err
		}
		left, err := decodeExprField(node, "left")
		if err != nil {
			return nil, err
		}
		right, err := decodeExprField(node, "right")
		if err != nil {
			return nil, err
		}
		e = &expr.BinaryOp{Op: op, Left: left, Right: right}
	case "cases":
		whenNodes, err := listField(node, "whens")
		if err != nil {
			return nil, err
		}
		whens := make([]expr.When, 0, len(whenNodes))
		for _, wn := range whenNodes {
			whenNode, ok := wn.(map[string]any)
			if !ok {
				return nil, wireErr("when entries must be objects")
			}
			cond, err := decodeExprField(whenNode, "cond")
			if err != nil {
				return nil, err
			}
			value, err := decodeExprField(whenNode, "value")
			if err != nil {
				return nil, err
			}
			whens = append(whens, expr.When{Cond: cond, Value: value})
		}
		var els expr.Expression
		if _, ok := node["else"]; ok {
			if els, err = decodeExprField(node, "else"); err != nil {
				return nil, err
			}
		}
		e = &expr.Cases{Whens: whens, Else: els}
	case "granularity":
		base, err := decodeExprField(node, "base")
		if err != nil {
			return nil, err
		}
		unit, err := stringField(node, "unit")
		if err != nil {
			return nil, err
		}
		if !expr.ValidUnit(expr.Unit(unit)) {
			return nil, wireErr("unknown granularity %q", unit)
		}
		e = &expr.Granularity{Base: base, Unit: expr.Unit(unit)}
	case "star":
		e = expr.All()
	case "deferred":
		path, err := decodeKeyPath(node)
		if err != nil {
			return nil, err
		}
		e = expr.Ref(path)
	default:
		return nil, wireErr("unknown expression subType %q", subType)
	}

	if alias := optString(node, "alias"); alias != "" {
		e = e.Named(alias)
	}
	if q := optString(node, "qualifier"); q != "" {
		e = e.Disambiguated(q)
	}
	return e, nil
}

func decodeLiteral(node map[string]any) (any, error) {
	valueType, err := stringField(node, "valueType")
	if err != nil {
		return nil, err
	}
	value := node["value"]
	switch valueType {
	case "null":
		return nil, nil
	case "bool":
		b, ok := value.(bool)
		if !ok {
			return nil, wireErr("bool literal must hold a bool, got %T", value)
		}
		return b, nil
	case "string":
		s, ok := value.(string)
		if !ok {
			return nil, wireErr("string literal must hold a string, got %T", value)
		}
		return s, nil
	case "int":
		return intLiteral(value)
	case "float":
		switch t := value.(type) {
		case json.Number:
			return t.Float64()
		case float64:
			return t, nil
		default:
			return nil, wireErr("float literal must hold a number, got %T", value)
		}
	case "time":
		s, ok := value.(string)
		if !ok {
			return nil, wireErr("time literal must hold a string, got %T", value)
		}
		return time.Parse(time.RFC3339Nano, s)
	default:
		return nil, wireErr("unknown literal valueType %q", valueType)
	}
}

func intLiteral(value any) (any, error) {
	switch t := value.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return nil, wireErr("int literal: %v", err)
		}
		return n, nil
	case float64:
		return int64(t), nil
	case int64:
		return t, nil
	default:
		return nil, wireErr("int literal must hold a number, got %T", value)
	}
}

func decodeKeyPath(node map[string]any) (keypath.KeyPath, error) {
	stepNodes, err := listField(node, "steps")
	if err != nil {
		return keypath.KeyPath{}, err
	}
	var kp keypath.KeyPath
	for _, sn := range stepNodes {
		stepNode, ok := sn.(map[string]any)
		if !ok {
			return kp, wireErr("keypath steps must be objects")
		}
		kind, err := stringField(stepNode, "kind")
		if err != nil {
			return kp, err
		}
		name := optString(stepNode, "name")
		switch kind {
		case "attribute":
			kp = kp.Attr(name)
		case "measure":
			kp = kp.Msr(name)
		case "relation":
			kp = kp.Rel(name)
		case "index":
			key := stepNode["key"]
			if n, ok := key.(json.Number); ok {
				i, err := n.Int64()
				if err == nil {
					key = int(i)
				}
			}
			kp = kp.Index(key)
		case "call":
			rawArgs, err := listField(stepNode, "args")
			if err != nil {
				return kp, err
			}
			args := make([]any, 0, len(rawArgs))
			for _, a := range rawArgs {
				if nested, ok := a.(map[string]any); ok {
					if nestedSteps, ok := nested["keypath"]; ok {
						nkp, err := decodeKeyPath(map[string]any{"steps": nestedSteps})
						if err != nil {
							return kp, err
						}
						args = append(args, nkp)
						continue
					}
				}
				if n, ok := a.(json.Number); ok {
					if i, err := n.Int64(); err == nil {
						args = append(args, int(i))
						continue
					}
					if f, err := n.Float64(); err == nil {
						args = append(args, f)
						continue
					}
				}
				args = append(args, a)
			}
			kp = kp.Call(name, args...)
		default:
			return kp, wireErr("unknown keypath step kind %q", kind)
		}
	}
	return kp, nil
}
