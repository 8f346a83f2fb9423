package expr

// Transform rewrites an expression tree bottom-up. Children are transformed
// first, then fn is applied to the (possibly rebuilt) node. Nodes are copied
// before their children are swapped, so the input tree is never mutated.
func Transform(e Expression, fn func(Expression) (Expression, error)) (Expression, error) {
	if e == nil {
		return nil, nil
	}
	rebuilt, err := transformChildren(e, fn)
	if err != nil {
		return nil, err
	}
	return fn(rebuilt)
}

func transformChildren(e Expression, fn func(Expression) (Expression, error)) (Expression, error) {
	switch t := e.(type) {
	case *Call:
		args := make([]Expression, len(t.Args))
		changed := false
		for i, a := range t.Args {
			na, err := Transform(a, fn)
			if err != nil {
				return nil, err
			}
			args[i] = na
			if na != a {
				changed = true
			}
		}
		if !changed {
			return t, nil
		}
		cp := *t
		cp.Args = args
		return &cp, nil
	case *BinaryOp:
		left, err := Transform(t.Left, fn)
		if err != nil {
			return nil, err
		}
		right, err := Transform(t.Right, fn)
		if err != nil {
			return nil, err
		}
		if left == t.Left && right == t.Right {
			return t, nil
		}
		cp := *t
		cp.Left = left
		cp.Right = right
		return &cp, nil
	case *Cases:
		whens := make([]When, len(t.Whens))
		changed := false
		for i, w := range t.Whens {
			cond, err := Transform(w.Cond, fn)
			if err != nil {
				return nil, err
			}
			value, err := Transform(w.Value, fn)
			if err != nil {
				return nil, err
			}
			whens[i] = When{Cond: cond, Value: value}
			if cond != w.Cond || value != w.Value {
				changed = true
			}
		}
		els, err := Transform(t.Else, fn)
		if err != nil {
			return nil, err
		}
		if !changed && els == t.Else {
			return t, nil
		}
		cp := *t
		cp.Whens = whens
		cp.Else = els
		return &cp, nil
	case *Granularity:
		base, err := Transform(t.Base, fn)
		if err != nil {
			return nil, err
		}
		if base == t.Base {
			return t, nil
		}
		cp := *t
		cp.Base = base
		return &cp, nil
	default:
		// Column, Literal, SQLText, Star, Deferred: leaves.
		return e, nil
	}
}

// ContainsDeferred reports whether any leaf of the tree is still an
// unresolved reference.
func ContainsDeferred(e Expression) bool {
	found := false
	_, _ = Transform(e, func(n Expression) (Expression, error) {
		if _, ok := n.(*Deferred); ok {
			found = true
		}
		return n, nil
	})
	return found
}
