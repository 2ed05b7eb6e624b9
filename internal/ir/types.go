package ir

import (
	"fmt"
	"strings"
)

// =============================================================================
// Types
//
// The pass only needs to know, for each operand, whether it points into the
// garbage-collected heap and what the pointee looks like. Scalars and raw
// memory are described by Prim; GC objects by Struct (fixed layout), Class
// (dynamic layout) or Opaque (a GC reference of unknown type).
// =============================================================================

// Type is the static type of a Value.
type Type interface {
	String() string
	isType()
}

// Prim is a scalar or raw (non-GC) type.
type Prim int

const (
	Void Prim = iota
	Bool
	Signed
	Unsigned
	Float
	Char
	// Address is a raw machine address. It is never GC-managed.
	Address
)

func (p Prim) String() string {
	switch p {
	case Void:
		return "Void"
	case Bool:
		return "Bool"
	case Signed:
		return "Signed"
	case Unsigned:
		return "Unsigned"
	case Float:
		return "Float"
	case Char:
		return "Char"
	case Address:
		return "Address"
	default:
		return fmt.Sprintf("Prim(%d)", int(p))
	}
}

func (Prim) isType() {}

// Field is a named field of a Struct or Class.
type Field struct {
	Name      string
	Type      Type
	Immutable bool // never written after construction
}

// Struct is a record with a statically fixed set of fields.
//
// Inheritance follows the "first field" convention: a Struct listed in Supers
// is a prefix of this one, so a pointer to this Struct can be cast to a
// pointer to any of its Supers.
type Struct struct {
	Name      string
	Fields    []Field
	Supers    []*Struct
	GC        bool // allocated in the GC heap
	Immutable bool // every field is immutable
	// TypePtr marks structs whose type id lives in the object header and can
	// be read without a barrier when the translator removes type pointers.
	TypePtr bool
}

func (s *Struct) String() string { return s.Name }
func (*Struct) isType() {}

// Field returns the field with the given name, searching Supers as well.
func (s *Struct) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	for _, sup := range s.Supers {
		if f, ok := sup.Field(name); ok {
			return f, true
		}
	}
	return Field{}, false
}

// Class is an instance type of an open class hierarchy. Fields may be
// attached per subclass at any time, so the field set is never bounded
// statically. Classes are always GC-managed.
type Class struct {
	Name      string
	Supers    []*Class
	Fields    []Field // fields known so far; not exhaustive
	Immutable bool
}

func (c *Class) String() string { return c.Name }
func (*Class) isType() {}

// Root returns the topmost ancestor reached by following first supers.
func (c *Class) Root() *Class {
	for len(c.Supers) > 0 {
		c = c.Supers[0]
	}
	return c
}

// Opaque is a GC reference whose pointee type is unknown (a GCREF).
type Opaque struct {
	Name string
}

func (o *Opaque) String() string {
	if o.Name == "" {
		return "GCREF"
	}
	return o.Name
}
func (*Opaque) isType() {}

// Ptr is a pointer to Elem.
type Ptr struct {
	Elem Type
}

func (p *Ptr) String() string { return "*" + p.Elem.String() }
func (*Ptr) isType() {}

// PtrTo is shorthand for &Ptr{Elem: t}.
func PtrTo(t Type) *Ptr { return &Ptr{Elem: t} }

// Pointee returns the element type of a pointer, or nil for non-pointers.
// Opaque references are their own pointee.
func Pointee(t Type) Type {
	switch t := t.(type) {
	case *Ptr:
		return t.Elem
	case *Opaque:
		return t
	}
	return nil
}

// IsGCPointer reports whether values of type t refer to GC-managed objects.
func IsGCPointer(t Type) bool {
	switch elem := Pointee(t).(type) {
	case *Struct:
		return elem.GC
	case *Class, *Opaque:
		return true
	}
	return false
}

// SubtypeOf reports whether a is b or (transitively) derives from b.
func SubtypeOf(a, b Type) bool {
	if a == b {
		return true
	}
	switch a := a.(type) {
	case *Struct:
		for _, sup := range a.Supers {
			if SubtypeOf(sup, b) {
				return true
			}
		}
	case *Class:
		for _, sup := range a.Supers {
			if SubtypeOf(sup, b) {
				return true
			}
		}
	}
	return false
}

func fieldList(fields []Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Name + " " + f.Type.String()
	}
	return strings.Join(parts, "; ")
}

// Describe returns a one-line description of a type, used by dumps.
func Describe(t Type) string {
	switch t := t.(type) {
	case *Struct:
		return fmt.Sprintf("struct %s {%s}", t.Name, fieldList(t.Fields))
	case *Class:
		return fmt.Sprintf("class %s {%s ...}", t.Name, fieldList(t.Fields))
	}
	return t.String()
}
