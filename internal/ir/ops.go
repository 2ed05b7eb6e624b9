package ir

import (
	"fmt"
	"go/token"
	"strings"

	"github.com/mpyw/stmbarrier/internal/lattice"
)

// =============================================================================
// Operations
//
// Every operation is a concrete type implementing Op. Consumers dispatch with
// a type switch and must reject types they do not know.
// =============================================================================

// Op is one operation of a block.
type Op interface {
	// Pos returns the source position of the operation, or token.NoPos.
	Pos() token.Pos
	String() string
}

// Site records where an operation came from. It is embedded by every Op.
type Site struct {
	At token.Pos
}

// Pos returns the source position.
func (s Site) Pos() token.Pos { return s.At }

// Malloc allocates a fresh object of the pointee type of Result.
type Malloc struct {
	Site
	Result *Variable
}

func (o *Malloc) String() string {
	return fmt.Sprintf("%s = malloc(%s)", o.Result, Pointee(o.Result.Type()))
}

// GetField loads a field of Obj. Field may be a dotted path into an
// interior struct; it names a location inside the object Obj points to.
type GetField struct {
	Site
	Result *Variable
	Obj    Value
	Field  string
}

func (o *GetField) String() string {
	return fmt.Sprintf("%s = getfield(%s, %s)", o.Result, o.Obj, o.Field)
}

// SetField stores Val into a field of Obj.
type SetField struct {
	Site
	Obj   Value
	Field string
	Val   Value
}

func (o *SetField) String() string {
	return fmt.Sprintf("setfield(%s, %s, %s)", o.Obj, o.Field, o.Val)
}

// PtrCompare compares two pointers for identity (ptr_eq, or ptr_ne when
// Negate is set).
type PtrCompare struct {
	Site
	Result *Variable
	X, Y   Value
	Negate bool
}

func (o *PtrCompare) String() string {
	name := "ptr_eq"
	if o.Negate {
		name = "ptr_ne"
	}
	return fmt.Sprintf("%s = %s(%s, %s)", o.Result, name, o.X, o.Y)
}

// TypeCheck tests the dynamic type of Obj against Target (isinstance).
type TypeCheck struct {
	Site
	Result *Variable
	Obj    Value
	Target Type
}

func (o *TypeCheck) String() string {
	return fmt.Sprintf("%s = typecheck(%s, %s)", o.Result, o.Obj, o.Target)
}

// Cast reinterprets Obj as the type of Result. A non-opaque cast moves along
// the type hierarchy and keeps the identity of Obj; an opaque cast goes to or
// from a GC reference of unknown type.
type Cast struct {
	Site
	Result *Variable
	Obj    Value
	Opaque bool
}

func (o *Cast) String() string {
	name := "cast_pointer"
	if o.Opaque {
		name = "cast_opaque_ptr"
	}
	return fmt.Sprintf("%s = %s(%s)", o.Result, name, o.Obj)
}

// CallInfo is the declared behaviour of a callee, supplied by the translator.
type CallInfo struct {
	// ReleasesLock: the callee may release the execution lock, letting other
	// transactions run.
	ReleasesLock bool
	// RandomEffects: the callee may read or write arbitrary GC objects.
	RandomEffects bool
	// CanCollect: the callee may trigger a garbage collection.
	CanCollect bool
	// Writes lists the object types the callee may write when its effects are
	// known precisely. Ignored when RandomEffects is set.
	Writes []Type
}

// Call invokes an external routine. Result may be nil.
type Call struct {
	Site
	Result *Variable
	Callee string
	Args   []Value
	Info   CallInfo
}

func (o *Call) String() string {
	call := fmt.Sprintf("call %s(%s)", o.Callee, joinValues(o.Args))
	if o.Result == nil {
		return call
	}
	return fmt.Sprintf("%s = %s", o.Result, call)
}

// Return leaves the routine. Val may be nil.
type Return struct {
	Site
	Val Value
}

func (o *Return) String() string {
	if o.Val == nil {
		return "return"
	}
	return fmt.Sprintf("return %s", o.Val)
}

// Pure is an operation without memory effects (arithmetic, comparisons of
// scalars, ...). A GC-pointer result of a Pure operation is unknown to the
// pass.
type Pure struct {
	Site
	Result *Variable
	Name   string
	Args   []Value
}

func (o *Pure) String() string {
	if o.Result == nil {
		return fmt.Sprintf("%s(%s)", o.Name, joinValues(o.Args))
	}
	return fmt.Sprintf("%s = %s(%s)", o.Result, o.Name, joinValues(o.Args))
}

// WriteBarrier explicitly requests a full write barrier on Obj.
type WriteBarrier struct {
	Site
	Obj Value
}

func (o *WriteBarrier) String() string { return fmt.Sprintf("gc_writebarrier(%s)", o.Obj) }

// WeakDeref loads the referent of the weak reference Ref.
type WeakDeref struct {
	Site
	Result *Variable
	Ref    Value
}

func (o *WeakDeref) String() string {
	return fmt.Sprintf("%s = weakref_deref(%s)", o.Result, o.Ref)
}

// Flush forgets every proven barrier. It exists for tests and diagnostics.
type Flush struct {
	Site
}

func (o *Flush) String() string { return "debug_stm_flush_barrier" }

// IgnoreBegin opens an ignored region: no barriers are placed until the
// matching IgnoreEnd.
type IgnoreBegin struct {
	Site
}

func (o *IgnoreBegin) String() string { return "stm_ignored_start" }

// IgnoreEnd closes the innermost ignored region.
type IgnoreEnd struct {
	Site
}

func (o *IgnoreEnd) String() string { return "stm_ignored_stop" }

// =============================================================================
// Inserted operations
// =============================================================================

// Barrier is a call to the runtime barrier primitive Trans on Obj.
type Barrier struct {
	Site
	Obj    Value
	Trans  lattice.Transition
	Flavor lattice.Flavor
}

func (o *Barrier) String() string {
	return fmt.Sprintf("stm_barrier[%s,%s](%s)", o.Trans, o.Flavor, o.Obj)
}

// PtrEqBarrier marks a pointer comparison whose operands must be compared by
// identity through the runtime, because either may still be a stub.
type PtrEqBarrier struct {
	Site
	X, Y Value
}

func (o *PtrEqBarrier) String() string {
	return fmt.Sprintf("stm_ptr_eq[=](%s, %s)", o.X, o.Y)
}

func joinValues(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}
