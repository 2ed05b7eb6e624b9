package barrier_test

import (
	"testing"

	"github.com/mpyw/stmbarrier/internal/barrier"
	"github.com/mpyw/stmbarrier/internal/effect"
	"github.com/mpyw/stmbarrier/internal/ir"
)

// =============================================================================
// Type fixtures
// =============================================================================

var (
	// S {foo, bar int; ptr *S}: fixed layout, GC.
	tS = &ir.Struct{Name: "S", GC: true}
	pS = ir.PtrTo(tS)

	// T {baz int}: unrelated to S.
	tT = &ir.Struct{Name: "T", GC: true, Fields: []ir.Field{{Name: "baz", Type: ir.Signed}}}
	pT = ir.PtrTo(tT)

	// Imm {x int}: immutable as a whole.
	tImm = &ir.Struct{Name: "Imm", GC: true, Immutable: true, Fields: []ir.Field{{Name: "x", Type: ir.Signed}}}
	pImm = ir.PtrTo(tImm)

	// Mixed {id int (immutable); n int}.
	tMixed = &ir.Struct{Name: "Mixed", GC: true, Fields: []ir.Field{
		{Name: "id", Type: ir.Signed, Immutable: true},
		{Name: "n", Type: ir.Signed},
	}}
	pMixed = ir.PtrTo(tMixed)

	// Typed keeps its type id in the header.
	tTyped = &ir.Struct{Name: "Typed", GC: true, TypePtr: true, Fields: []ir.Field{{Name: "v", Type: ir.Signed}}}
	pTyped = ir.PtrTo(tTyped)

	// Raw is not GC-managed.
	tRaw = &ir.Struct{Name: "Raw", Fields: []ir.Field{{Name: "n", Type: ir.Signed}}}
	pRaw = ir.PtrTo(tRaw)

	// Base <- Sub.
	tBase = &ir.Struct{Name: "Base", GC: true, Fields: []ir.Field{{Name: "x", Type: ir.Signed}}}
	pBase = ir.PtrTo(tBase)
	tSub  = &ir.Struct{Name: "Sub", GC: true, Supers: []*ir.Struct{tBase}, Fields: []ir.Field{{Name: "y", Type: ir.Signed}}}
	pSub  = ir.PtrTo(tSub)

	// Left and Right are both supertypes of Both.
	tLeft  = &ir.Struct{Name: "Left", GC: true, Fields: []ir.Field{{Name: "l", Type: ir.Signed}}}
	pLeft  = ir.PtrTo(tLeft)
	tRight = &ir.Struct{Name: "Right", GC: true, Fields: []ir.Field{{Name: "r", Type: ir.Signed}}}
	pRight = ir.PtrTo(tRight)
	tBoth  = &ir.Struct{Name: "Both", GC: true, Supers: []*ir.Struct{tLeft, tRight}}

	tWeak = &ir.Struct{Name: "WeakRef", GC: true}
	pWeak = ir.PtrTo(tWeak)

	cObj = &ir.Class{Name: "Obj", Fields: []ir.Field{{Name: "x", Type: ir.Signed}}}
	pObj = ir.PtrTo(cObj)

	gcref = &ir.Opaque{}

	k = ir.NewConstant("k", ir.Signed)
)

func init() {
	tS.Fields = []ir.Field{
		{Name: "foo", Type: ir.Signed},
		{Name: "bar", Type: ir.Signed},
		{Name: "ptr", Type: pS},
	}
}

// =============================================================================
// Builders
// =============================================================================

func vr(name string, t ir.Type) *ir.Variable { return ir.NewVariable(name, t) }

func get(obj ir.Value, field string) *ir.GetField {
	typ := ir.Type(ir.Signed)
	if s, ok := ir.Pointee(obj.Type()).(*ir.Struct); ok {
		if f, ok := s.Field(field); ok {
			typ = f.Type
		}
	}
	return &ir.GetField{Result: vr("v", typ), Obj: obj, Field: field}
}

func set(obj ir.Value, field string, val ir.Value) *ir.SetField {
	return &ir.SetField{Obj: obj, Field: field, Val: val}
}

func call(level effect.Level) *ir.Call {
	return &ir.Call{Callee: level.String(), Info: effect.Info(level)}
}

// straight builds a single-block routine over params.
func straight(params []*ir.Variable, ops ...ir.Op) *ir.Routine {
	r := ir.NewRoutine("f", params...)
	for _, op := range ops {
		r.Entry().Add(op)
	}
	r.Entry().Add(&ir.Return{})
	return r
}

func params(vs ...*ir.Variable) []*ir.Variable { return vs }

// transform runs the pass and fails the test on error.
func transform(t *testing.T, r *ir.Routine, opts barrier.Options) *barrier.Result {
	t.Helper()
	res, err := barrier.Transform(r, opts)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	return res
}
