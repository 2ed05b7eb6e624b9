package lower

import (
	"fmt"
	"go/token"
	"go/types"
	"strings"

	"golang.org/x/tools/go/ssa"

	"github.com/mpyw/stmbarrier/internal/effect"
	"github.com/mpyw/stmbarrier/internal/ir"
	"github.com/mpyw/stmbarrier/internal/typeutil"
)

// =============================================================================
// InstructionHandler Interface (Strategy Pattern)
//
// Each handler lowers a specific kind of SSA instruction. The Lowerer walks
// the instructions of a block and delegates to the first handler accepting
// each one.
// =============================================================================

// InstructionHandler lowers a specific type of SSA instruction.
type InstructionHandler interface {
	// CanHandle returns true if this handler can lower the given instruction.
	CanHandle(instr ssa.Instruction) bool

	// Handle emits the operations standing for the instruction.
	Handle(instr ssa.Instruction, ctx *HandlerContext)
}

// DefaultHandlers returns the handlers in dispatch order. PureHandler comes
// last and accepts every remaining value.
func DefaultHandlers() []InstructionHandler {
	return []InstructionHandler{
		&LoadHandler{},
		&StoreHandler{},
		&MapHandler{},
		&CompareHandler{},
		&AllocHandler{},
		&ConvertHandler{},
		&CallHandler{},
		&ChanHandler{},
		&RangeHandler{},
		&AddressHandler{},
		&PureHandler{},
	}
}

// =============================================================================
// Memory
// =============================================================================

// LoadHandler handles *ssa.UnOp loads (*x).
//
//	v := p.f     →  v = getfield(p, f)
//	v := *q      →  v = getfield(q, *)
type LoadHandler struct{}

// CanHandle returns true for loads.
func (h *LoadHandler) CanHandle(instr ssa.Instruction) bool {
	u, ok := instr.(*ssa.UnOp)
	return ok && u.Op == token.MUL
}

// Handle lowers a load to a field read of the object the address lies in.
func (h *LoadHandler) Handle(instr ssa.Instruction, ctx *HandlerContext) {
	load := instr.(*ssa.UnOp)
	loc := locate(load.X)
	if loc.local {
		ctx.Emit(&ir.Pure{Site: ctx.site(load), Result: ctx.Def(load), Name: "load_local", Args: []ir.Value{ctx.Value(loc.root)}})
		return
	}
	ctx.Emit(&ir.GetField{Site: ctx.site(load), Result: ctx.Def(load), Obj: ctx.Value(loc.root), Field: loc.path})
}

// StoreHandler handles *ssa.Store instructions.
type StoreHandler struct{}

// CanHandle returns true for Store instructions.
func (h *StoreHandler) CanHandle(instr ssa.Instruction) bool {
	_, ok := instr.(*ssa.Store)
	return ok
}

// Handle lowers a store to a field write of the object the address lies in.
func (h *StoreHandler) Handle(instr ssa.Instruction, ctx *HandlerContext) {
	store := instr.(*ssa.Store)
	loc := locate(store.Addr)
	if loc.local {
		ctx.Emit(&ir.Pure{Site: ctx.site(store), Name: "store_local", Args: []ir.Value{ctx.Value(loc.root), ctx.Value(store.Val)}})
		return
	}
	ctx.Emit(&ir.SetField{Site: ctx.site(store), Obj: ctx.Value(loc.root), Field: loc.path, Val: ctx.Value(store.Val)})
}

// MapHandler handles map reads (*ssa.Lookup) and writes (*ssa.MapUpdate).
// All entries of a map share the field "[]".
type MapHandler struct{}

// CanHandle returns true for map updates and map lookups.
func (h *MapHandler) CanHandle(instr ssa.Instruction) bool {
	switch instr := instr.(type) {
	case *ssa.MapUpdate:
		return true
	case *ssa.Lookup:
		return isMap(instr.X.Type())
	}
	return false
}

// Handle lowers the map access.
func (h *MapHandler) Handle(instr ssa.Instruction, ctx *HandlerContext) {
	switch instr := instr.(type) {
	case *ssa.MapUpdate:
		ctx.Emit(&ir.SetField{Site: ctx.site(instr), Obj: ctx.Value(instr.Map), Field: "[]", Val: ctx.Value(instr.Value)})
	case *ssa.Lookup:
		ctx.Emit(&ir.GetField{Site: ctx.site(instr), Result: ctx.Def(instr), Obj: ctx.Value(instr.X), Field: "[]"})
	}
}

// AddressHandler handles *ssa.FieldAddr and *ssa.IndexAddr. Addresses that
// are only dereferenced are folded into the loads and stores using them;
// the others are defined as opaque interior pointers.
type AddressHandler struct{}

// CanHandle returns true for address computations.
func (h *AddressHandler) CanHandle(instr ssa.Instruction) bool {
	switch instr.(type) {
	case *ssa.FieldAddr, *ssa.IndexAddr:
		return true
	}
	return false
}

// Handle defines escaping interior pointers.
func (h *AddressHandler) Handle(instr ssa.Instruction, ctx *HandlerContext) {
	addr := instr.(ssa.Value)
	if addressOnly(addr) {
		return
	}
	loc := locate(addr)
	ctx.Emit(&ir.Pure{Site: ctx.site(instr), Result: ctx.Def(addr), Name: "&" + loc.path, Args: []ir.Value{ctx.Value(loc.root)}})
}

// =============================================================================
// Identity
// =============================================================================

// CompareHandler handles == and != between pointers, maps and channels,
// which compare object identity.
type CompareHandler struct{}

// CanHandle returns true for identity comparisons.
func (h *CompareHandler) CanHandle(instr ssa.Instruction) bool {
	b, ok := instr.(*ssa.BinOp)
	if !ok || (b.Op != token.EQL && b.Op != token.NEQ) {
		return false
	}
	switch b.X.Type().Underlying().(type) {
	case *types.Pointer, *types.Map, *types.Chan:
		return true
	}
	return false
}

// Handle lowers the comparison to ptr_eq or ptr_ne.
func (h *CompareHandler) Handle(instr ssa.Instruction, ctx *HandlerContext) {
	b := instr.(*ssa.BinOp)
	ctx.Emit(&ir.PtrCompare{
		Site:   ctx.site(b),
		Result: ctx.Def(b),
		X:      ctx.Value(b.X),
		Y:      ctx.Value(b.Y),
		Negate: b.Op == token.NEQ,
	})
}

// AllocHandler handles instructions creating fresh objects.
type AllocHandler struct{}

// CanHandle returns true for allocations.
func (h *AllocHandler) CanHandle(instr ssa.Instruction) bool {
	switch instr.(type) {
	case *ssa.Alloc, *ssa.MakeMap, *ssa.MakeChan, *ssa.MakeSlice, *ssa.MakeClosure:
		return true
	}
	return false
}

// Handle lowers heap allocations to malloc. Stack variables are defined by
// a pure operation: the pass never sees accesses to them.
func (h *AllocHandler) Handle(instr ssa.Instruction, ctx *HandlerContext) {
	v := instr.(ssa.Value)
	if alloc, ok := instr.(*ssa.Alloc); ok && !alloc.Heap {
		ctx.Emit(&ir.Pure{Site: ctx.site(instr), Result: ctx.Def(v), Name: "local"})
		return
	}
	ctx.Emit(&ir.Malloc{Site: ctx.site(instr), Result: ctx.Def(v)})
}

// ConvertHandler handles conversions between reference types.
//
//	ChangeType, ChangeInterface → cast_pointer (same object)
//	MakeInterface               → cast_opaque_ptr
//	TypeAssert                  → typecheck + cast_opaque_ptr
type ConvertHandler struct{}

// CanHandle returns true for reference conversions.
func (h *ConvertHandler) CanHandle(instr ssa.Instruction) bool {
	switch instr.(type) {
	case *ssa.ChangeType, *ssa.ChangeInterface, *ssa.MakeInterface, *ssa.TypeAssert:
		return true
	}
	return false
}

// Handle lowers the conversion.
func (h *ConvertHandler) Handle(instr ssa.Instruction, ctx *HandlerContext) {
	site := ctx.site(instr)
	switch instr := instr.(type) {
	case *ssa.ChangeType:
		ctx.Emit(&ir.Cast{Site: site, Result: ctx.Def(instr), Obj: ctx.Value(instr.X)})
	case *ssa.ChangeInterface:
		ctx.Emit(&ir.Cast{Site: site, Result: ctx.Def(instr), Obj: ctx.Value(instr.X)})
	case *ssa.MakeInterface:
		ctx.Emit(&ir.Cast{Site: site, Result: ctx.Def(instr), Obj: ctx.Value(instr.X), Opaque: true})
	case *ssa.TypeAssert:
		obj := ctx.Value(instr.X)
		ok := ir.NewVariable(instr.Name()+".ok", ir.Bool)
		ctx.Emit(&ir.TypeCheck{Site: site, Result: ok, Obj: obj, Target: ctx.lowerer.types.targetOf(instr.AssertedType)})
		ctx.Emit(&ir.Cast{Site: site, Result: ctx.Def(instr), Obj: obj, Opaque: true})
	}
}

// targetOf returns the type a type assertion tests for.
func (c *typeCache) targetOf(t types.Type) ir.Type {
	if ptr, ok := t.Underlying().(*types.Pointer); ok {
		return c.objectOf(ptr.Elem())
	}
	return c.typeOf(t)
}

// =============================================================================
// Calls
// =============================================================================

// CallHandler handles *ssa.Call, *ssa.Go, *ssa.Defer and *ssa.RunDefers.
//
// The effect of a static callee is, first match wins:
//  1. declared by an annotation
//  2. SAFEST for harmless builtins (len, cap, ...)
//  3. RELEASES_TRANSACTION for known yielding library calls
//  4. RANDOM_GC_EFFECT_NO_RELEASE otherwise
//
// Dynamic and interface calls are RANDOM_GC_EFFECT_NO_RELEASE unless the
// interface method is a known yielding one.
type CallHandler struct{}

// CanHandle returns true for call-like instructions.
func (h *CallHandler) CanHandle(instr ssa.Instruction) bool {
	switch instr.(type) {
	case *ssa.Call, *ssa.Go, *ssa.Defer, *ssa.RunDefers:
		return true
	}
	return false
}

// Handle lowers the call.
func (h *CallHandler) Handle(instr ssa.Instruction, ctx *HandlerContext) {
	site := ctx.site(instr)
	switch instr := instr.(type) {
	case *ssa.Call:
		cc := instr.Common()
		if b, ok := cc.Value.(*ssa.Builtin); ok {
			h.handleBuiltin(instr, b, ctx)
			return
		}
		ctx.Emit(newCall(site, ctx.Def(instr), h.callee(cc, ctx), ctx.Values(h.args(cc)), h.effectOf(cc, ctx)))
	case *ssa.Go:
		cc := instr.Common()
		ctx.Emit(newCall(site, nil, "go "+h.callee(cc, ctx), ctx.Values(h.args(cc)), effect.RandomGCNoRelease))
	case *ssa.Defer:
		cc := instr.Common()
		ctx.Emit(newCall(site, nil, "defer "+h.callee(cc, ctx), ctx.Values(h.args(cc)), effect.RandomGCNoRelease))
	case *ssa.RunDefers:
		ctx.Emit(newCall(site, nil, "rundefers", nil, effect.RandomGCNoRelease))
	}
}

// handleBuiltin lowers builtins touching memory to field accesses.
//
//	delete(m, k)   → setfield(m, [], zero)
//	clear(x)       → setfield(x, [], zero)
//	copy(dst, src) → getfield(src, []); setfield(dst, [], ...)
func (h *CallHandler) handleBuiltin(call *ssa.Call, b *ssa.Builtin, ctx *HandlerContext) {
	site := ctx.site(call)
	args := call.Call.Args
	name := b.Name()

	switch {
	case typeutil.IsSafeBuiltin(name):
		ctx.Emit(newCall(site, ctx.Def(call), name, ctx.Values(args), effect.Safest))
	case name == "delete" || name == "clear":
		obj := ctx.Value(args[0])
		ctx.Emit(&ir.SetField{Site: site, Obj: obj, Field: "[]", Val: zeroOf(elemOf(obj))})
	case name == "copy":
		dst, src := ctx.Value(args[0]), ctx.Value(args[1])
		elem := ir.NewVariable(call.Name()+".elem", elemOf(dst))
		ctx.Emit(&ir.GetField{Site: site, Result: elem, Obj: src, Field: "[]"})
		ctx.Emit(&ir.SetField{Site: site, Obj: dst, Field: "[]", Val: elem})
		ctx.Emit(&ir.Pure{Site: site, Result: ctx.Def(call), Name: "copied"})
	case strings.HasPrefix(name, "ssa:"):
		// ssa:wrapnilchk returns its first operand.
		ctx.Emit(&ir.Cast{Site: site, Result: ctx.Def(call), Obj: ctx.Value(args[0])})
	default:
		ctx.Emit(newCall(site, ctx.Def(call), name, ctx.Values(args), effect.RandomGCNoRelease))
	}
}

func (h *CallHandler) effectOf(cc *ssa.CallCommon, ctx *HandlerContext) effect.Level {
	if cc.IsInvoke() {
		if typeutil.IsReleasing(cc.Method) {
			return effect.ReleasesTransaction
		}
		return effect.RandomGCNoRelease
	}
	fn := cc.StaticCallee()
	if fn == nil {
		return effect.RandomGCNoRelease
	}
	if notes := ctx.lowerer.notes; notes != nil {
		if level, ok := notes.CallEffect(fn); ok {
			return level
		}
	}
	if obj, ok := fn.Object().(*types.Func); ok && typeutil.IsReleasing(obj) {
		return effect.ReleasesTransaction
	}
	return effect.RandomGCNoRelease
}

func (h *CallHandler) callee(cc *ssa.CallCommon, ctx *HandlerContext) string {
	switch {
	case cc.IsInvoke():
		return fmt.Sprintf("%s.%s", cc.Value.Name(), cc.Method.Name())
	case cc.StaticCallee() != nil:
		return cc.StaticCallee().RelString(ctx.lowerer.types.pkg)
	default:
		return cc.Value.Name()
	}
}

// args returns the operands of a call, receiver or function value first.
func (h *CallHandler) args(cc *ssa.CallCommon) []ssa.Value {
	if cc.StaticCallee() != nil {
		return cc.Args
	}
	return append([]ssa.Value{cc.Value}, cc.Args...)
}

func newCall(site ir.Site, result *ir.Variable, callee string, args []ir.Value, level effect.Level) *ir.Call {
	return &ir.Call{Site: site, Result: result, Callee: callee, Args: args, Info: effect.Info(level)}
}

// elemOf returns the type of the "[]" field of a lowered map, or an opaque
// reference for slices.
func elemOf(obj ir.Value) ir.Type {
	if cls, ok := ir.Pointee(obj.Type()).(*ir.Class); ok && len(cls.Fields) > 0 {
		return cls.Fields[0].Type
	}
	return &ir.Opaque{}
}

func zeroOf(t ir.Type) ir.Value {
	if ir.IsGCPointer(t) {
		return ir.NullOf(t)
	}
	return ir.NewConstant("zero", t)
}

// =============================================================================
// Channels
// =============================================================================

// ChanHandler handles channel operations. Blocking on a channel lets other
// goroutines run, so every channel operation releases the transaction.
type ChanHandler struct{}

// CanHandle returns true for sends, receives and selects.
func (h *ChanHandler) CanHandle(instr ssa.Instruction) bool {
	switch instr := instr.(type) {
	case *ssa.Send, *ssa.Select:
		return true
	case *ssa.UnOp:
		return instr.Op == token.ARROW
	}
	return false
}

// Handle lowers the channel operation to a releasing call.
func (h *ChanHandler) Handle(instr ssa.Instruction, ctx *HandlerContext) {
	site := ctx.site(instr)
	switch instr := instr.(type) {
	case *ssa.Send:
		ctx.Emit(newCall(site, nil, "chansend", ctx.Values([]ssa.Value{instr.Chan, instr.X}), effect.ReleasesTransaction))
	case *ssa.UnOp:
		ctx.Emit(newCall(site, ctx.Def(instr), "chanrecv", ctx.Values([]ssa.Value{instr.X}), effect.ReleasesTransaction))
	case *ssa.Select:
		var chans []ssa.Value
		for _, st := range instr.States {
			chans = append(chans, st.Chan)
		}
		ctx.Emit(newCall(site, ctx.Def(instr), "select", ctx.Values(chans), effect.ReleasesTransaction))
	}
}

// =============================================================================
// Iteration
// =============================================================================

// RangeHandler handles iteration over maps and strings. Creating the
// iterator reads nothing; each *ssa.Next over a map reads map entries.
// String steps are pure.
type RangeHandler struct{}

// CanHandle returns true for iterators and map iteration steps.
func (h *RangeHandler) CanHandle(instr ssa.Instruction) bool {
	switch instr := instr.(type) {
	case *ssa.Range:
		return true
	case *ssa.Next:
		_, ok := instr.Iter.(*ssa.Range)
		return ok && !instr.IsString
	}
	return false
}

// Handle lowers an iterator to an opaque value and a map step to a read of
// the ranged map.
func (h *RangeHandler) Handle(instr ssa.Instruction, ctx *HandlerContext) {
	switch instr := instr.(type) {
	case *ssa.Range:
		ctx.Emit(&ir.Pure{Site: ctx.site(instr), Result: ctx.Def(instr), Name: "range", Args: []ir.Value{ctx.Value(instr.X)}})
	case *ssa.Next:
		rng := instr.Iter.(*ssa.Range)
		ctx.Emit(&ir.GetField{Site: ctx.site(instr), Result: ctx.Def(instr), Obj: ctx.Value(rng.X), Field: "[]"})
	}
}

// =============================================================================
// Everything else
// =============================================================================

// PureHandler handles the remaining value-producing instructions:
// arithmetic, extraction from tuples and struct values, slicing, ...
type PureHandler struct{}

// CanHandle returns true for any instruction producing a value.
func (h *PureHandler) CanHandle(instr ssa.Instruction) bool {
	_, ok := instr.(ssa.Value)
	return ok
}

// Handle lowers the instruction to a pure operation over its operands.
func (h *PureHandler) Handle(instr ssa.Instruction, ctx *HandlerContext) {
	var args []ir.Value
	for _, op := range instr.Operands(nil) {
		if op != nil && *op != nil {
			args = append(args, ctx.Value(*op))
		}
	}
	ctx.Emit(&ir.Pure{Site: ctx.site(instr), Result: ctx.Def(instr.(ssa.Value)), Name: opName(instr), Args: args})
}

// opName returns "binop", "extract", ... for an instruction.
func opName(instr ssa.Instruction) string {
	return strings.ToLower(strings.TrimPrefix(fmt.Sprintf("%T", instr), "*ssa."))
}

func isMap(t types.Type) bool {
	_, ok := t.Underlying().(*types.Map)
	return ok
}
