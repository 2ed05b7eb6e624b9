// Package objkind classifies the static type of a pointer operand.
//
// The classification answers three questions for the barrier pass:
//
//   - GC: is the pointee managed by the garbage collector at all? Raw
//     memory is never tracked.
//   - Immutable: can a field of the pointee change after construction?
//     Immutable reads only need the pointer to be identity-valid.
//   - Layout: is the field set fixed (a flat record) or open to extension at
//     run time? Only fixed layouts may use the cheaper local write flavor.
package objkind

import (
	"strings"

	"github.com/mpyw/stmbarrier/internal/ir"
)

// =============================================================================
// Layout
// =============================================================================

// Layout is a tagged variant: Fixed, Dynamic or Unknown.
type Layout interface {
	String() string
	isLayout()
}

// Fixed is a layout whose fields are all known statically.
type Fixed struct {
	Fields []string
}

func (Fixed) String() string { return "fixed" }
func (Fixed) isLayout() {}

// Dynamic is the layout of an open class hierarchy instance.
type Dynamic struct{}

func (Dynamic) String() string { return "dynamic" }
func (Dynamic) isLayout() {}

// Unknown is the layout of an opaque GC reference.
type Unknown struct{}

func (Unknown) String() string { return "unknown" }
func (Unknown) isLayout() {}

// =============================================================================
// Kind
// =============================================================================

// Kind is the static metadata of a pointer type.
type Kind struct {
	GC        bool
	Immutable bool
	Layout    Layout // nil when GC is false

	pointee ir.Type
}

// Classify returns the Kind of values of type t.
func Classify(t ir.Type) Kind {
	if !ir.IsGCPointer(t) {
		return Kind{}
	}
	switch elem := ir.Pointee(t).(type) {
	case *ir.Struct:
		return Kind{
			GC:        true,
			Immutable: elem.Immutable,
			Layout:    Fixed{Fields: structFields(elem)},
			pointee:   elem,
		}
	case *ir.Class:
		return Kind{
			GC:        true,
			Immutable: classImmutable(elem),
			Layout:    Dynamic{},
			pointee:   elem,
		}
	default:
		return Kind{GC: true, Layout: Unknown{}, pointee: elem}
	}
}

// FixedLayout reports whether the field set is statically known.
func (k Kind) FixedLayout() bool {
	_, ok := k.Layout.(Fixed)
	return ok
}

// FieldImmutable reports whether the field (or dotted path) named by field
// can never change after construction.
func (k Kind) FieldImmutable(field string) bool {
	if !k.GC {
		return false
	}
	if k.Immutable {
		return true
	}
	switch elem := k.pointee.(type) {
	case *ir.Struct:
		return structPathImmutable(elem, field)
	case *ir.Class:
		return classFieldImmutable(elem, field)
	}
	return false
}

// TypePtr reports whether the pointee keeps its type id in the header.
func (k Kind) TypePtr() bool {
	s, ok := k.pointee.(*ir.Struct)
	return ok && s.TypePtr
}

func structFields(s *ir.Struct) []string {
	var names []string
	for _, sup := range s.Supers {
		names = append(names, structFields(sup)...)
	}
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// structPathImmutable walks a dotted path through interior structs. The path
// is immutable as soon as one of its components is.
func structPathImmutable(s *ir.Struct, path string) bool {
	head, rest, nested := strings.Cut(path, ".")
	f, ok := s.Field(head)
	if !ok {
		return false
	}
	if f.Immutable {
		return true
	}
	if !nested {
		return false
	}
	inner, ok := f.Type.(*ir.Struct)
	if !ok {
		return false
	}
	return inner.Immutable || structPathImmutable(inner, rest)
}

func classImmutable(c *ir.Class) bool {
	if c.Immutable {
		return true
	}
	for _, sup := range c.Supers {
		if classImmutable(sup) {
			return true
		}
	}
	return false
}

func classFieldImmutable(c *ir.Class, name string) bool {
	for _, f := range c.Fields {
		if f.Name == name {
			return f.Immutable
		}
	}
	for _, sup := range c.Supers {
		if classFieldImmutable(sup, name) {
			return true
		}
	}
	return false
}
