package barrier

import (
	"github.com/mpyw/stmbarrier/internal/alias"
	"github.com/mpyw/stmbarrier/internal/ir"
	"github.com/mpyw/stmbarrier/internal/lattice"
	"github.com/mpyw/stmbarrier/internal/objkind"
)

// pass holds everything derived from one routine: classifications, value
// identities and, once solved, the entry state of every reached block.
type pass struct {
	r       *ir.Routine
	opts    Options
	aliases *alias.Classifier

	kinds   map[ir.Type]objkind.Kind
	castSrc map[*ir.Variable]ir.Value
	all     []ir.Value // every value mentioned, in first-use order

	// limit bounds the solver steps: every block can be revisited at most
	// once per lowering of one value by one category.
	limit int

	preds   map[*ir.Block][]ir.Edge
	entries map[*ir.Block]state
	exits   map[*ir.Block]state
}

func newPass(r *ir.Routine, opts Options) *pass {
	p := &pass{
		r:       r,
		opts:    opts,
		aliases: opts.Alias,
		kinds:   make(map[ir.Type]objkind.Kind),
		castSrc: make(map[*ir.Variable]ir.Value),
		preds:   r.Preds(),
		entries: make(map[*ir.Block]state),
		exits:   make(map[*ir.Block]state),
	}

	seen := make(map[ir.Value]bool)
	note := func(v ir.Value) {
		if v == nil || seen[v] {
			return
		}
		seen[v] = true
		p.all = append(p.all, v)
	}
	for _, b := range r.Blocks {
		for _, v := range b.Params {
			note(v)
		}
		for _, op := range b.Ops {
			for _, v := range mentioned(op) {
				note(v)
			}
			if c, ok := op.(*ir.Cast); ok && !c.Opaque && ir.IsGCPointer(c.Obj.Type()) && ir.IsGCPointer(c.Result.Type()) {
				p.castSrc[c.Result] = c.Obj
			}
		}
		for _, l := range b.Exits {
			for _, v := range l.Args {
				note(v)
			}
		}
	}
	p.limit = len(r.Blocks) * (len(p.all) + 1) * (lattice.Height + 1)
	if p.aliases == nil {
		p.aliases = alias.Open()
	}
	return p
}

// rep returns the value whose state stands for v. Non-opaque casts keep the
// identity of their source, so a barrier on either side serves both.
func (p *pass) rep(v ir.Value) ir.Value {
	for i := 0; i <= len(p.castSrc); i++ {
		vv, ok := v.(*ir.Variable)
		if !ok {
			return v
		}
		src, ok := p.castSrc[vv]
		if !ok {
			return v
		}
		v = src
	}
	return v
}

func (p *pass) kind(t ir.Type) objkind.Kind {
	if k, ok := p.kinds[t]; ok {
		return k
	}
	k := objkind.Classify(t)
	p.kinds[t] = k
	return k
}

// readCategory returns the category a field load needs. Immutable fields
// only need the pointer not to be a stub.
func (p *pass) readCategory(op *ir.GetField) (lattice.Category, bool) {
	if op.Result != nil && op.Result.Type() == ir.Void {
		return lattice.Any, false
	}
	k := p.kind(op.Obj.Type())
	if !k.GC {
		return lattice.Any, false
	}
	if k.FieldImmutable(op.Field) {
		return lattice.Identity, true
	}
	return lattice.Read, true
}

// writeCategory returns the category a field store needs. Storing a GC
// pointer, or storing into an object whose layout is not fixed, needs the
// full write barrier; scalar stores into fixed layouts only the local one.
func (p *pass) writeCategory(op *ir.SetField) (lattice.Category, bool) {
	if op.Val.Type() == ir.Void {
		return lattice.Any, false
	}
	k := p.kind(op.Obj.Type())
	if !k.GC {
		return lattice.Any, false
	}
	if ir.IsGCPointer(op.Val.Type()) || !k.FixedLayout() {
		return lattice.Write, true
	}
	return lattice.LocalWrite, true
}

func (p *pass) typeCheckNeedsBarrier(obj ir.Value) bool {
	k := p.kind(obj.Type())
	if !k.GC {
		return false
	}
	return !(p.opts.RemoveTypePtr && k.TypePtr())
}

// mentioned returns the values an operation uses or defines.
func mentioned(op ir.Op) []ir.Value {
	var vs []ir.Value
	add := func(v ir.Value) {
		if v != nil {
			vs = append(vs, v)
		}
	}
	def := func(v *ir.Variable) {
		if v != nil {
			vs = append(vs, v)
		}
	}
	switch op := op.(type) {
	case *ir.Malloc:
		def(op.Result)
	case *ir.GetField:
		add(op.Obj)
		def(op.Result)
	case *ir.SetField:
		add(op.Obj)
		add(op.Val)
	case *ir.PtrCompare:
		add(op.X)
		add(op.Y)
	case *ir.TypeCheck:
		add(op.Obj)
	case *ir.Cast:
		add(op.Obj)
		def(op.Result)
	case *ir.Call:
		for _, a := range op.Args {
			add(a)
		}
		def(op.Result)
	case *ir.Pure:
		for _, a := range op.Args {
			add(a)
		}
		def(op.Result)
	case *ir.Return:
		add(op.Val)
	case *ir.WriteBarrier:
		add(op.Obj)
	case *ir.WeakDeref:
		add(op.Ref)
		def(op.Result)
	case *ir.Barrier:
		add(op.Obj)
	case *ir.PtrEqBarrier:
		add(op.X)
		add(op.Y)
	}
	return vs
}
