package lower

import (
	"errors"
	"fmt"
	"go/token"
	"go/types"
	"slices"

	"golang.org/x/tools/go/ssa"

	"github.com/mpyw/stmbarrier/internal/effect"
	"github.com/mpyw/stmbarrier/internal/ir"
)

// ErrUnsupported is returned for functions that cannot be lowered, such as
// functions without a body.
var ErrUnsupported = errors.New("unsupported function")

// Annotations supplies what the source declares beyond its types. A nil
// Annotations declares nothing: every call has random effects and nothing is
// immutable or ignored.
type Annotations interface {
	// CallEffect returns the declared effect of a callee.
	CallEffect(fn *ssa.Function) (effect.Level, bool)
	// ImmutableType reports whether every field of a type is immutable.
	ImmutableType(tn *types.TypeName) bool
	// ImmutableField reports whether a struct field is immutable.
	ImmutableField(v *types.Var) bool
	// IgnoredAt reports whether code at pos runs without barriers.
	IgnoredAt(pos token.Pos) bool
}

// Lowerer translates the functions of one package. It caches type
// translations across functions and is not safe for concurrent use.
type Lowerer struct {
	types    *typeCache
	notes    Annotations
	handlers []InstructionHandler
}

// New creates a Lowerer for functions of pkg. Type names are printed
// relative to pkg.
func New(pkg *types.Package, notes Annotations) *Lowerer {
	return &Lowerer{
		types:    &typeCache{pkg: pkg, notes: notes},
		notes:    notes,
		handlers: DefaultHandlers(),
	}
}

// Types returns every object type created so far. It is the universe of the
// alias classifier shared by all lowered routines.
func (l *Lowerer) Types() []ir.Type {
	return slices.Clone(l.types.universe)
}

// Lower translates fn. Blocks keep the index they have in fn, phis become
// block parameters and the routine parameters are fn's parameters followed
// by its free variables.
func (l *Lowerer) Lower(fn *ssa.Function) (*ir.Routine, error) {
	if len(fn.Blocks) == 0 {
		return nil, fmt.Errorf("%s: no body: %w", fn, ErrUnsupported)
	}
	if len(fn.Blocks[0].Preds) > 0 {
		return nil, fmt.Errorf("%s: entry block has predecessors: %w", fn, ErrUnsupported)
	}

	ctx := &HandlerContext{
		Fn:      fn,
		lowerer: l,
		values:  make(map[ssa.Value]ir.Value),
	}
	r := &ir.Routine{Name: fn.RelString(l.types.pkg), Pos: fn.Pos()}

	blocks := make([]*ir.Block, len(fn.Blocks))
	for i, b := range fn.Blocks {
		var params []*ir.Variable
		if i == 0 {
			for _, p := range fn.Params {
				params = append(params, ctx.Def(p))
			}
			for _, fv := range fn.FreeVars {
				params = append(params, ctx.Def(fv))
			}
		}
		for _, instr := range b.Instrs {
			phi, ok := instr.(*ssa.Phi)
			if !ok {
				break
			}
			params = append(params, ctx.Def(phi))
		}
		blocks[i] = r.NewBlock(params...)
	}

	for i, b := range fn.Blocks {
		ctx.Block = blocks[i]
		l.lowerBlock(b, ctx)
		ctx.link(b, blocks)
	}
	return r, nil
}

// lowerBlock lowers the instructions of b. Runs of instructions on ignored
// lines are wrapped in an ignored region that never crosses the block end.
func (l *Lowerer) lowerBlock(b *ssa.BasicBlock, ctx *HandlerContext) {
	ignoring := false
	setIgnoring := func(on bool, pos token.Pos) {
		if on == ignoring {
			return
		}
		if on {
			ctx.Emit(&ir.IgnoreBegin{Site: ir.Site{At: pos}})
		} else {
			ctx.Emit(&ir.IgnoreEnd{Site: ir.Site{At: pos}})
		}
		ignoring = on
	}

	for _, instr := range b.Instrs {
		switch instr := instr.(type) {
		case *ssa.Phi, *ssa.DebugRef, *ssa.Jump, *ssa.If:
			continue
		case *ssa.Return:
			setIgnoring(false, instr.Pos())
			ctx.Emit(&ir.Return{Site: ir.Site{At: instr.Pos()}, Val: ctx.results(instr)})
			continue
		case *ssa.Panic:
			setIgnoring(false, instr.Pos())
			ctx.Emit(&ir.Return{Site: ir.Site{At: instr.Pos()}})
			continue
		}

		pos := ctx.Pos(instr)
		if pos.IsValid() {
			setIgnoring(l.notes != nil && l.notes.IgnoredAt(pos), pos)
		}
		l.dispatch(instr, ctx)
	}
	setIgnoring(false, token.NoPos)
}

// dispatch hands instr to the first handler that accepts it. Instructions
// no handler accepts have no effect on memory the pass tracks.
func (l *Lowerer) dispatch(instr ssa.Instruction, ctx *HandlerContext) {
	for _, h := range l.handlers {
		if h.CanHandle(instr) {
			h.Handle(instr, ctx)
			return
		}
	}
}

// =============================================================================
// HandlerContext
// =============================================================================

// HandlerContext is the state shared by the handlers while one function is
// lowered.
type HandlerContext struct {
	Fn    *ssa.Function
	Block *ir.Block

	lowerer *Lowerer
	values  map[ssa.Value]ir.Value
}

// Emit appends an operation to the current block.
func (c *HandlerContext) Emit(op ir.Op) {
	c.Block.Add(op)
}

// Value returns the operand standing for v. Every SSA value maps to exactly
// one IR value for the whole function.
func (c *HandlerContext) Value(v ssa.Value) ir.Value {
	if iv, ok := c.values[v]; ok {
		return iv
	}

	tc := c.lowerer.types
	var iv ir.Value
	switch v := v.(type) {
	case *ssa.Const:
		typ := tc.typeOf(v.Type())
		switch {
		case v.IsNil():
			iv = ir.NullOf(typ)
		case v.Value == nil:
			iv = ir.NewConstant("zero", typ)
		default:
			iv = ir.NewConstant(v.Value.ExactString(), typ)
		}
	case *ssa.Global, *ssa.Function, *ssa.Builtin:
		iv = ir.NewConstant(v.Name(), tc.typeOf(v.Type()))
	default:
		iv = ir.NewVariable(v.Name(), tc.typeOf(v.Type()))
	}
	c.values[v] = iv
	return iv
}

// Values returns the operands standing for vs.
func (c *HandlerContext) Values(vs []ssa.Value) []ir.Value {
	out := make([]ir.Value, len(vs))
	for i, v := range vs {
		out[i] = c.Value(v)
	}
	return out
}

// Def returns the variable defined by v, or nil when v produces no value.
func (c *HandlerContext) Def(v ssa.Value) *ir.Variable {
	if isVoid(v.Type()) {
		return nil
	}
	iv, _ := c.Value(v).(*ir.Variable)
	return iv
}

// Pos returns the position of instr. Implicit loads and stores have none
// and take the position of the address they access. Iteration steps take
// the position of their range statement.
func (c *HandlerContext) Pos(instr ssa.Instruction) token.Pos {
	if pos := instr.Pos(); pos.IsValid() {
		return pos
	}
	var addr ssa.Value
	switch instr := instr.(type) {
	case *ssa.UnOp:
		addr = instr.X
	case *ssa.Store:
		addr = instr.Addr
	case *ssa.Next:
		addr = instr.Iter
	}
	if addr != nil {
		return addr.Pos()
	}
	return token.NoPos
}

func (c *HandlerContext) site(instr ssa.Instruction) ir.Site {
	return ir.Site{At: c.Pos(instr)}
}

// results returns the value a Return passes out. Several results are
// packed into one tuple.
func (c *HandlerContext) results(ret *ssa.Return) ir.Value {
	switch len(ret.Results) {
	case 0:
		return nil
	case 1:
		return c.Value(ret.Results[0])
	}
	tuple := ir.NewVariable("results", c.lowerer.types.typeOf(c.Fn.Signature.Results()))
	c.Emit(&ir.Pure{Site: ir.Site{At: ret.Pos()}, Result: tuple, Name: "tuple", Args: c.Values(ret.Results)})
	return tuple
}

// link ends the block lowered from b with its exits. The arguments of an
// edge are the phi operands of the corresponding predecessor slot.
func (c *HandlerContext) link(b *ssa.BasicBlock, blocks []*ir.Block) {
	from := blocks[b.Index]
	args := make([][]ir.Value, len(b.Succs))
	for j, succ := range b.Succs {
		args[j] = c.edgeArgs(b, j, succ)
	}

	switch term := b.Instrs[len(b.Instrs)-1].(type) {
	case *ssa.If:
		from.Branch(c.Value(term.Cond),
			blocks[b.Succs[0].Index], args[0],
			blocks[b.Succs[1].Index], args[1])
	case *ssa.Jump:
		from.Goto(blocks[b.Succs[0].Index], args[0]...)
	}
}

func (c *HandlerContext) edgeArgs(b *ssa.BasicBlock, j int, succ *ssa.BasicBlock) []ir.Value {
	// The same successor may appear twice; match occurrences in order.
	occurrence := 0
	for _, s := range b.Succs[:j] {
		if s == succ {
			occurrence++
		}
	}
	slot := -1
	for k, pred := range succ.Preds {
		if pred != b {
			continue
		}
		if occurrence == 0 {
			slot = k
			break
		}
		occurrence--
	}

	var args []ir.Value
	for _, instr := range succ.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break
		}
		args = append(args, c.Value(phi.Edges[slot]))
	}
	return args
}

func isVoid(t types.Type) bool {
	tuple, ok := t.(*types.Tuple)
	return ok && tuple.Len() == 0
}
