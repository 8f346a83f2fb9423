package keypath

import "reflect"

// BoundCall is a function invocation captured instead of executed because one
// or more of its arguments contained a KeyPath. The resolver substitutes the
// resolved arguments and invokes Fn once a root model is available.
type BoundCall struct {
	Name string
	Fn   func(args []any) (any, error)
	Args []any
}

// Defer wraps a builder so that it captures its call as a BoundCall whenever
// any argument contains a KeyPath, and executes immediately otherwise. The
// name is carried for diagnostics only.
func Defer(name string, fn func(args []any) (any, error)) func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		if Contains(args) {
			return &BoundCall{Name: name, Fn: fn, Args: args}, nil
		}
		return fn(args)
	}
}

// Contains reports whether v is, or transitively holds, a KeyPath or
// BoundCall. It walks slices, arrays, maps, and pointers; struct internals
// are left opaque.
func Contains(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case KeyPath:
		return true
	case *KeyPath:
		return t != nil
	case *BoundCall:
		return t != nil
	case []any:
		for _, item := range t {
			if Contains(item) {
				return true
			}
		}
		return false
	case map[string]any:
		for _, item := range t {
			if Contains(item) {
				return true
			}
		}
		return false
	}
	return containsReflect(reflect.ValueOf(v))
}

func containsReflect(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			item := rv.Index(i)
			if item.CanInterface() && Contains(item.Interface()) {
				return true
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if iter.Value().CanInterface() && Contains(iter.Value().Interface()) {
				return true
			}
		}
	case reflect.Pointer, reflect.Interface:
		if !rv.IsNil() && rv.Elem().CanInterface() {
			return Contains(rv.Elem().Interface())
		}
	}
	return false
}
