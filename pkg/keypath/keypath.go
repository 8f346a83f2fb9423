// Package keypath models deferred accessor paths against a model that may
// not exist yet. A KeyPath is pure data: an ordered list of steps describing
// how to reach an attribute, measure, or relation once a concrete root model
// is supplied. Resolution lives with the model package; nothing here ever
// touches a model.
package keypath

import (
	"fmt"
	"strings"
)

// StepKind discriminates the access performed by a single step.
type StepKind int

// Step kinds. Attribute, measure, and relation steps consult the matching
// lookup table on the model being resolved against. Index steps subscript
// into resolved collections. Call steps invoke a named capability on the
// resolved value.
const (
	StepAttribute StepKind = iota
	StepMeasure
	StepRelation
	StepIndex
	StepCall
)

func (k StepKind) String() string {
	switch k {
	case StepAttribute:
		return "attribute"
	case StepMeasure:
		return "measure"
	case StepRelation:
		return "relation"
	case StepIndex:
		return "index"
	case StepCall:
		return "call"
	default:
		return "unknown"
	}
}

// Step is one component of a KeyPath.
type Step struct {
	Kind StepKind
	Name string // attribute/measure/relation/method name
	Key  any    // subscript key for StepIndex (string or int)
	Args []any  // method arguments for StepCall; may contain nested KeyPaths
}

func (s Step) String() string {
	switch s.Kind {
	case StepAttribute:
		return ".attr." + s.Name
	case StepMeasure:
		return ".msr." + s.Name
	case StepRelation:
		return ".rel." + s.Name
	case StepIndex:
		return fmt.Sprintf("[%v]", s.Key)
	case StepCall:
		parts := make([]string, len(s.Args))
		for i, a := range s.Args {
			parts[i] = fmt.Sprintf("%v", a)
		}
		return fmt.Sprintf(".%s(%s)", s.Name, strings.Join(parts, ", "))
	default:
		return ".<invalid>"
	}
}

// KeyPath is an immutable accessor path. The zero value is the identity
// path. Chaining methods always return a new KeyPath; the receiver is never
// modified, so KeyPaths may be shared and nested freely inside the argument
// structures passed to model builders.
type KeyPath struct {
	steps []Step
}

// Attr starts a path rooted at an attribute lookup.
func Attr(name string) KeyPath {
	return KeyPath{}.Attr(name)
}

// Msr starts a path rooted at a measure lookup.
func Msr(name string) KeyPath {
	return KeyPath{}.Msr(name)
}

// Rel starts a path rooted at a relation lookup.
func Rel(name string) KeyPath {
	return KeyPath{}.Rel(name)
}

func (k KeyPath) chain(step Step) KeyPath {
	steps := make([]Step, 0, len(k.steps)+1)
	steps = append(steps, k.steps...)
	steps = append(steps, step)
	return KeyPath{steps: steps}
}

// Attr appends an attribute-access step. Following a relation step, the
// lookup happens on the relation's target model.
func (k KeyPath) Attr(name string) KeyPath {
	return k.chain(Step{Kind: StepAttribute, Name: name})
}

// Msr appends a measure-access step.
func (k KeyPath) Msr(name string) KeyPath {
	return k.chain(Step{Kind: StepMeasure, Name: name})
}

// Rel appends a relation-access step.
func (k KeyPath) Rel(name string) KeyPath {
	return k.chain(Step{Kind: StepRelation, Name: name})
}

// Index appends a subscript step against the resolved value.
func (k KeyPath) Index(key any) KeyPath {
	return k.chain(Step{Kind: StepIndex, Key: key})
}

// Call appends a method-call step. Arguments are retained as-is and may
// themselves contain KeyPaths, which resolve against the same root.
func (k KeyPath) Call(name string, args ...any) KeyPath {
	return k.chain(Step{Kind: StepCall, Name: name, Args: args})
}

// Steps returns the path's components. The returned slice must not be
// mutated.
func (k KeyPath) Steps() []Step {
	return k.steps
}

// IsZero reports whether this is the identity path.
func (k KeyPath) IsZero() bool {
	return len(k.steps) == 0
}

// Equal reports structural equality of two paths.
func (k KeyPath) Equal(other KeyPath) bool {
	if len(k.steps) != len(other.steps) {
		return false
	}
	for i := range k.steps {
		if !stepEqual(k.steps[i], other.steps[i]) {
			return false
		}
	}
	return true
}

func stepEqual(a, b Step) bool {
	if a.Kind != b.Kind || a.Name != b.Name || a.Key != b.Key || len(a.Args) != len(b.Args) {
		return false
	}
	for i := range a.Args {
		ak, aok := a.Args[i].(KeyPath)
		bk, bok := b.Args[i].(KeyPath)
		if aok != bok {
			return false
		}
		if aok {
			if !ak.Equal(bk) {
				return false
			}
			continue
		}
		if a.Args[i] != b.Args[i] {
			return false
		}
	}
	return true
}

func (k KeyPath) String() string {
	var sb strings.Builder
	sb.WriteString("keypath")
	for _, s := range k.steps {
		sb.WriteString(s.String())
	}
	return sb.String()
}
