package model

import (
	"fmt"
	"strings"
)

// ReferenceError reports a name lookup that failed while resolving a
// KeyPath against a model.
type ReferenceError struct {
	Kind      string // "attribute", "measure", or "relation"
	Name      string
	Available []string
}

func (e *ReferenceError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown %s %q; model defines none", e.Kind, e.Name)
	}
	return fmt.Sprintf("unknown %s %q; available: %s",
		e.Kind, e.Name, strings.Join(e.Available, ", "))
}

// KindMismatchError reports an expression used where the other kind was
// required, such as an aggregating expression registered as an attribute.
type KindMismatchError struct {
	Name     string
	Expected string // "attribute" or "measure"
}

func (e *KindMismatchError) Error() string {
	if e.Expected == "attribute" {
		return fmt.Sprintf("%q aggregates rows and cannot be used as an attribute", e.Name)
	}
	return fmt.Sprintf("%q does not aggregate rows and cannot be used as a measure", e.Name)
}

// CapabilityError reports a KeyPath method call that the resolved value
// does not support.
type CapabilityError struct {
	Method string
	On     string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s does not support %q", e.On, e.Method)
}

// TypeError reports a builder invoked with arguments of the wrong shape,
// such as match_steps on a model with no activity schema.
type TypeError struct {
	Op     string
	Detail string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

// SerializationVersionError reports a wire payload written by a newer
// library version than this one can read.
type SerializationVersionError struct {
	Version   int
	Supported int
}

func (e *SerializationVersionError) Error() string {
	return fmt.Sprintf("wire payload has version %d but this build reads up to %d",
		e.Version, e.Supported)
}
