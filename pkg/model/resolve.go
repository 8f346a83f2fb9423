package model

import (
	"fmt"

	"github.com/leapstack-labs/modelq/pkg/expr"
	"github.com/leapstack-labs/modelq/pkg/keypath"
)

// ResolveValue replaces every KeyPath and deferred call reachable from v
// with its resolution against the model. Slices and string-keyed maps are
// walked recursively; already-resolved values come back unchanged, so
// resolution is idempotent. The input is never mutated.
func (m *Model) ResolveValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case keypath.KeyPath:
		return m.resolveKeyPath(t)
	case *keypath.BoundCall:
		args := make([]any, len(t.Args))
		for i, a := range t.Args {
			resolved, err := m.ResolveValue(a)
			if err != nil {
				return nil, err
			}
			args[i] = resolved
		}
		result, err := t.Fn(args)
		if err != nil {
			return nil, err
		}
		// The call may itself produce further unresolved structure.
		return m.ResolveValue(result)
	case expr.Expression:
		return m.resolveExpression(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			resolved, err := m.ResolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			resolved, err := m.ResolveValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveExpr coerces a builder argument to an expression and resolves any
// deferred references inside it.
func (m *Model) resolveExpr(v any) (expr.Expression, error) {
	resolved, err := m.ResolveValue(v)
	if err != nil {
		return nil, err
	}
	e, ok := resolved.(expr.Expression)
	if !ok {
		e = expr.Coerce(resolved)
	}
	return m.resolveExpression(e)
}

// resolveExpression replaces Deferred leaves of an expression tree with
// the expressions their paths resolve to.
func (m *Model) resolveExpression(e expr.Expression) (expr.Expression, error) {
	return expr.Transform(e, func(node expr.Expression) (expr.Expression, error) {
		d, ok := node.(*expr.Deferred)
		if !ok {
			return node, nil
		}
		resolved, err := m.resolveKeyPath(d.Path)
		if err != nil {
			return nil, err
		}
		re, ok := resolved.(expr.Expression)
		if !ok {
			return nil, &TypeError{
				Op:     "resolve",
				Detail: fmt.Sprintf("%s does not resolve to an expression", d.Path),
			}
		}
		if alias := d.Identifier(); alias != "" {
			re = re.Named(alias)
		}
		if q := d.Qualifier(); q != "" {
			re = re.Disambiguated(q)
		}
		return re, nil
	})
}

// resolveKeyPath walks a path step by step. Attribute, measure, and
// relation steps look up the current model's tables; attribute and measure
// hits reached through a relation come back disambiguated to that
// relation's name. Call steps apply expression capabilities; index steps
// subscript resolved collections.
func (m *Model) resolveKeyPath(kp keypath.KeyPath) (any, error) {
	steps := kp.Steps()
	if len(steps) == 0 {
		return nil, &TypeError{Op: "resolve", Detail: "empty keypath"}
	}

	var current any = m
	scope := m
	qualifier := ""

	for _, step := range steps {
		switch step.Kind {
		case keypath.StepAttribute, keypath.StepMeasure:
			if scope == nil {
				return nil, &CapabilityError{Method: step.Name, On: describe(current)}
			}
			table, kind := scope.attributes, "attribute"
			if step.Kind == keypath.StepMeasure {
				table, kind = scope.measures, "measure"
			}
			e, ok := table.get(step.Name)
			if !ok {
				return nil, &ReferenceError{Kind: kind, Name: step.Name, Available: table.names()}
			}
			// Re-resolve against the owning scope: a registered
			// expression may itself reference other attributes.
			e, err := scope.resolveExpression(e)
			if err != nil {
				return nil, err
			}
			if qualifier != "" {
				e = e.Disambiguated(qualifier)
			}
			current = e
			scope = nil
		case keypath.StepRelation:
			if scope == nil {
				return nil, &CapabilityError{Method: step.Name, On: describe(current)}
			}
			rel, ok := scope.relations.get(step.Name)
			if !ok {
				return nil, &ReferenceError{Kind: "relation", Name: step.Name, Available: scope.relations.names()}
			}
			scope = rel.target
			current = rel.target
			if rel.inline {
				qualifier = ""
			} else {
				qualifier = rel.name
			}
		case keypath.StepIndex:
			next, err := indexInto(current, step.Key)
			if err != nil {
				return nil, err
			}
			current = next
			scope, _ = current.(*Model)
		case keypath.StepCall:
			e, ok := current.(expr.Expression)
			if !ok {
				return nil, &CapabilityError{Method: step.Name, On: describe(current)}
			}
			args := make([]any, len(step.Args))
			for i, a := range step.Args {
				resolved, err := m.ResolveValue(a)
				if err != nil {
					return nil, err
				}
				args[i] = resolved
			}
			next, err := applyCapability(e, step.Name, args)
			if err != nil {
				return nil, err
			}
			current = next
			scope = nil
		}
	}
	return current, nil
}

func indexInto(v any, key any) (any, error) {
	switch t := v.(type) {
	case []any:
		i, ok := key.(int)
		if !ok {
			return nil, &CapabilityError{Method: fmt.Sprintf("[%v]", key), On: "list"}
		}
		if i < 0 || i >= len(t) {
			return nil, &ReferenceError{Kind: "index", Name: fmt.Sprintf("%d", i)}
		}
		return t[i], nil
	case map[string]any:
		k, ok := key.(string)
		if !ok {
			return nil, &CapabilityError{Method: fmt.Sprintf("[%v]", key), On: "map"}
		}
		item, ok := t[k]
		if !ok {
			return nil, &ReferenceError{Kind: "key", Name: k, Available: sortedKeys(t)}
		}
		return item, nil
	default:
		return nil, &CapabilityError{Method: fmt.Sprintf("[%v]", key), On: describe(v)}
	}
}

// granularityMethods map call-step names to truncation units.
var granularityMethods = map[string]expr.Unit{
	"by_year":    expr.Year,
	"by_quarter": expr.Quarter,
	"by_month":   expr.Month,
	"by_week":    expr.Week,
	"by_day":     expr.Day,
	"by_hour":    expr.Hour,
	"by_minute":  expr.Minute,
	"by_second":  expr.Second,
}

func applyCapability(e expr.Expression, method string, args []any) (expr.Expression, error) {
	if unit, ok := granularityMethods[method]; ok {
		if len(args) != 0 {
			return nil, &TypeError{Op: method, Detail: "takes no arguments"}
		}
		return expr.Trunc(e, unit).Named(e.Identifier()), nil
	}
	switch method {
	case "named":
		if len(args) != 1 {
			return nil, &TypeError{Op: "named", Detail: "takes exactly one argument"}
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, &TypeError{Op: "named", Detail: "argument must be a string"}
		}
		return e.Named(name), nil
	case "disambiguated":
		if len(args) != 1 {
			return nil, &TypeError{Op: "disambiguated", Detail: "takes exactly one argument"}
		}
		rel, ok := args[0].(string)
		if !ok {
			return nil, &TypeError{Op: "disambiguated", Detail: "argument must be a string"}
		}
		return e.Disambiguated(rel), nil
	default:
		return nil, &CapabilityError{Method: method, On: "expression"}
	}
}

func describe(v any) string {
	switch v.(type) {
	case *Model:
		return "model"
	case expr.Expression:
		return "expression"
	case nil:
		return "nothing"
	default:
		return fmt.Sprintf("%T", v)
	}
}
