package lower

import (
	"go/types"

	xtypeutil "golang.org/x/tools/go/types/typeutil"

	"github.com/mpyw/stmbarrier/internal/ir"
	"github.com/mpyw/stmbarrier/internal/typeutil"
)

// typeCache maps Go types to IR types. Identical Go types share one IR
// type, which the alias classifier compares by identity.
type typeCache struct {
	pkg   *types.Package
	notes Annotations

	regs     xtypeutil.Map // register types
	objects  xtypeutil.Map // pointee types
	universe []ir.Type
}

func (c *typeCache) name(t types.Type) string {
	return types.TypeString(t, types.RelativeTo(c.pkg))
}

// typeOf returns the IR type of an SSA register holding a value of type t.
func (c *typeCache) typeOf(t types.Type) ir.Type {
	if t == nil {
		return ir.Void
	}
	if !isGoType(t) {
		// go/ssa gives iterators a type of its own.
		return &ir.Opaque{Name: t.String()}
	}
	if cached := c.regs.At(t); cached != nil {
		return cached.(ir.Type)
	}

	var it ir.Type
	switch u := t.Underlying().(type) {
	case *types.Basic:
		it = basicType(u)
	case *types.Pointer:
		it = ir.PtrTo(c.objectOf(u.Elem()))
	case *types.Map:
		it = ir.PtrTo(c.mapClass(u))
	case *types.Tuple:
		if u.Len() == 0 {
			it = ir.Void
		} else {
			it = c.aggregate(t)
		}
	case *types.Struct, *types.Array:
		it = c.aggregate(t)
	default:
		// Interfaces, slices, channels, functions and type parameters.
		it = &ir.Opaque{Name: c.name(t)}
	}
	c.regs.Set(t, it)
	return it
}

// isGoType reports whether t is one of the go/types type kinds.
func isGoType(t types.Type) bool {
	switch t.(type) {
	case *types.Basic, *types.Pointer, *types.Array, *types.Slice, *types.Struct,
		*types.Tuple, *types.Signature, *types.Interface, *types.Map, *types.Chan,
		*types.Named, *types.Alias, *types.TypeParam, *types.Union:
		return true
	}
	return false
}

// aggregate types values copied by value. Storing one that holds pointers
// stores GC pointers.
func (c *typeCache) aggregate(t types.Type) ir.Type {
	if typeutil.ContainsPointers(t) {
		return &ir.Opaque{Name: c.name(t)}
	}
	return ir.Unsigned
}

func basicType(b *types.Basic) ir.Type {
	info := b.Info()
	switch {
	case b.Kind() == types.UnsafePointer, b.Kind() == types.Uintptr:
		return ir.Address
	case info&types.IsBoolean != 0:
		return ir.Bool
	case info&types.IsString != 0:
		return ir.Address
	case info&types.IsUnsigned != 0:
		return ir.Unsigned
	case info&types.IsInteger != 0:
		return ir.Signed
	case info&(types.IsFloat|types.IsComplex) != 0:
		return ir.Float
	default:
		return ir.Void
	}
}

// fieldType returns the IR type of a struct field. Struct values nested in
// a field keep their layout so that dotted paths can be resolved.
func (c *typeCache) fieldType(t types.Type) ir.Type {
	if st, ok := t.Underlying().(*types.Struct); ok {
		return c.structOf(t, st)
	}
	return c.typeOf(t)
}

// objectOf returns the IR type of the object a Go pointer points to.
func (c *typeCache) objectOf(t types.Type) ir.Type {
	switch u := t.Underlying().(type) {
	case *types.Struct:
		return c.structOf(t, u)
	case *types.Array:
		return c.box(t, "[]", u.Elem())
	default:
		return c.box(t, "*", t)
	}
}

func (c *typeCache) structOf(t types.Type, st *types.Struct) *ir.Struct {
	if cached := c.objects.At(t); cached != nil {
		return cached.(*ir.Struct)
	}

	// Registered before the fields so that recursive types terminate.
	s := &ir.Struct{Name: c.name(t), GC: true}
	c.objects.Set(t, s)
	c.universe = append(c.universe, s)

	if named, ok := types.Unalias(t).(*types.Named); ok && c.notes != nil {
		s.Immutable = c.notes.ImmutableType(named.Origin().Obj())
	}
	for i := range st.NumFields() {
		f := st.Field(i)
		s.Fields = append(s.Fields, ir.Field{
			Name:      f.Name(),
			Type:      c.fieldType(f.Type()),
			Immutable: c.notes != nil && c.notes.ImmutableField(f),
		})
	}
	for _, inner := range typeutil.StructFields(st) {
		s.Supers = append(s.Supers, c.structOf(inner, inner.Underlying().(*types.Struct)))
	}
	return s
}

// box is the object behind a pointer to a non-struct value.
func (c *typeCache) box(t types.Type, field string, elem types.Type) *ir.Struct {
	if cached := c.objects.At(t); cached != nil {
		return cached.(*ir.Struct)
	}
	s := &ir.Struct{Name: c.name(t), GC: true}
	c.objects.Set(t, s)
	c.universe = append(c.universe, s)
	s.Fields = []ir.Field{{Name: field, Type: c.fieldType(elem)}}
	return s
}

// mapClass is keyed by the underlying map type, so that conversions
// between named map types keep aliasing.
func (c *typeCache) mapClass(m *types.Map) *ir.Class {
	if cached := c.objects.At(m); cached != nil {
		return cached.(*ir.Class)
	}
	cls := &ir.Class{Name: c.name(m)}
	c.objects.Set(m, cls)
	c.universe = append(c.universe, cls)
	cls.Fields = []ir.Field{{Name: "[]", Type: c.typeOf(m.Elem())}}
	return cls
}
