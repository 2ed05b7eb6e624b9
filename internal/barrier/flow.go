package barrier

import (
	"fmt"

	"github.com/mpyw/stmbarrier/internal/alias"
	"github.com/mpyw/stmbarrier/internal/effect"
	"github.com/mpyw/stmbarrier/internal/ir"
	"github.com/mpyw/stmbarrier/internal/lattice"
)

// =============================================================================
// Transfer function
//
// walker applies the transition rules to the operations of one block,
// starting from the block's entry state. The solver runs it without
// emitting anything; the rewrite engine runs it again from the solved entry
// state and collects the rewritten operation list. Using the same code for
// both guarantees that the barriers placed are exactly the ones the solver
// reasoned about.
// =============================================================================

type walker struct {
	p       *pass
	block   *ir.Block
	st      state
	scope   ignoreScope
	rewrite bool

	// prevEq is the identity marker immediately preceding the current
	// operation, if any.
	prevEq *ir.PtrEqBarrier

	out      []ir.Op
	inserted []Inserted
}

// flow walks block b from entry. With rewrite set, the rewritten operation
// list is collected in w.out.
func (p *pass) flow(b *ir.Block, entry state, rewrite bool) (*walker, error) {
	w := &walker{p: p, block: b, st: entry.clone(), rewrite: rewrite}
	if rewrite {
		w.out = make([]ir.Op, 0, len(b.Ops))
	}
	for i, op := range b.Ops {
		if err := w.step(op); err != nil {
			return nil, fmt.Errorf("routine %s: %s op %d: %w", p.r.Name, b, i, err)
		}
	}
	return w, nil
}

func (w *walker) step(op ir.Op) error {
	if w.scope.active() {
		return w.stepIgnored(op)
	}
	prevEq := w.prevEq
	w.prevEq = nil

	switch op := op.(type) {
	case *ir.GetField:
		if want, ok := w.p.readCategory(op); ok {
			w.require(op, op.Obj, want)
		}
		w.emit(op)
		w.define(op.Result)

	case *ir.SetField:
		if want, ok := w.p.writeCategory(op); ok {
			w.require(op, op.Obj, want)
		}
		w.emit(op)
		if w.p.kind(op.Obj.Type()).GC {
			w.invalidateReads(op.Obj.Type(), w.p.rep(op.Obj))
		}

	case *ir.WriteBarrier:
		w.require(op, op.Obj, lattice.Write)
		w.emit(op)

	case *ir.TypeCheck:
		if w.p.typeCheckNeedsBarrier(op.Obj) {
			w.require(op, op.Obj, lattice.Identity)
		}
		w.emit(op)
		w.define(op.Result)

	case *ir.WeakDeref:
		w.require(op, op.Ref, lattice.Identity)
		w.emit(op)
		w.define(op.Result)

	case *ir.PtrCompare:
		w.compare(op, prevEq)
		w.emit(op)
		w.define(op.Result)

	case *ir.Cast:
		w.emit(op)
		w.define(op.Result)

	case *ir.Malloc:
		w.emit(op)
		w.collect()
		w.define(op.Result)
		w.st.set(op.Result, lattice.Write)

	case *ir.Call:
		w.emit(op)
		w.applyCall(effect.Classify(op.Info))
		w.define(op.Result)

	case *ir.Pure:
		w.emit(op)
		w.define(op.Result)

	case *ir.Return:
		w.emit(op)

	case *ir.Flush:
		w.emit(op)
		w.flush()

	case *ir.Barrier:
		// Already placed, e.g. when the pass runs on its own output.
		w.emit(op)
		r := w.p.rep(op.Obj)
		if !w.st.get(r).Satisfies(op.Trans.To) {
			w.st.set(r, op.Trans.To)
		}

	case *ir.PtrEqBarrier:
		w.emit(op)
		w.prevEq = op

	case *ir.IgnoreBegin:
		w.emit(op)
		w.scope.acquire(w.st)

	case *ir.IgnoreEnd:
		return fmt.Errorf("%w: end without begin", ErrMalformedRegion)

	default:
		return fmt.Errorf("%w: %T (%s)", ErrUnrecognizedOp, op, op)
	}
	return nil
}

// stepIgnored handles an operation inside an ignored region: it is copied
// unchanged and has no effect on the state.
func (w *walker) stepIgnored(op ir.Op) error {
	switch op := op.(type) {
	case *ir.IgnoreBegin:
		w.scope.acquire(w.st)
	case *ir.IgnoreEnd:
		w.emit(op)
		w.st = w.scope.release()
		return nil
	}
	result, ok := definedBy(op)
	if !ok {
		return fmt.Errorf("%w: %T (%s)", ErrUnrecognizedOp, op, op)
	}
	w.emit(op)
	w.define(result)
	return nil
}

// =============================================================================
// Rules
// =============================================================================

// require places a barrier before op unless obj already satisfies want.
func (w *walker) require(op ir.Op, obj ir.Value, want lattice.Category) {
	if !w.p.kind(obj.Type()).GC {
		return
	}
	r := w.p.rep(obj)
	cur := w.st.get(r)
	if cur.Satisfies(want) {
		return
	}
	t := lattice.Transition{From: cur, To: want}
	w.insert(op, &ir.Barrier{Site: ir.Site{At: op.Pos()}, Obj: obj, Trans: t, Flavor: t.Flavor()})
	w.st.set(r, want)
}

// compare handles a pointer comparison. Identity only matters when both
// sides may be the same object and either may still be a stub. A marker
// left by an earlier run is kept instead of adding a second one.
func (w *walker) compare(op *ir.PtrCompare, prev *ir.PtrEqBarrier) {
	if prev != nil && prev.X == op.X && prev.Y == op.Y {
		return
	}
	if !w.p.kind(op.X.Type()).GC || !w.p.kind(op.Y.Type()).GC {
		return
	}
	cx, cy := w.st.get(w.p.rep(op.X)), w.st.get(w.p.rep(op.Y))
	if cx == lattice.Null || cy == lattice.Null {
		return
	}
	if w.p.aliases.Classify(op.X.Type(), op.Y.Type()) == alias.CannotAlias {
		return
	}
	if cx >= lattice.LocalWrite && cy >= lattice.LocalWrite {
		return
	}
	w.insert(op, &ir.PtrEqBarrier{Site: ir.Site{At: op.Pos()}, X: op.X, Y: op.Y})
}

// invalidateReads downgrades Read to QuasiRead on every tracked value that
// may alias typ, except the written object itself.
func (w *walker) invalidateReads(typ ir.Type, except ir.Value) {
	w.st.update(func(v ir.Value, c lattice.Category) lattice.Category {
		if c != lattice.Read || v == except {
			return c
		}
		if w.p.aliases.Classify(v.Type(), typ) == alias.CannotAlias {
			return c
		}
		return lattice.QuasiRead
	})
}

// collect models a possible garbage collection: write barriers must be
// repeated.
func (w *walker) collect() {
	w.st.update(func(_ ir.Value, c lattice.Category) lattice.Category {
		if c == lattice.Write {
			return lattice.LocalWrite
		}
		return c
	})
}

// flush forgets every proven barrier, including the one prebuilt constants
// carry by construction. Null stays null.
func (w *walker) flush() {
	for _, v := range w.p.all {
		if c, ok := v.(*ir.Constant); ok && c.Null {
			continue
		}
		w.st.set(v, lattice.Any)
	}
}

func (w *walker) applyCall(e effect.Effect) {
	if e.Breaks() {
		// A non-stub cannot turn back into a stub, but nothing else holds.
		w.st.update(func(_ ir.Value, c lattice.Category) lattice.Category {
			if c > lattice.Identity {
				return lattice.Identity
			}
			return c
		})
	}
	if e.Collects() {
		w.collect()
	}
	if e.WritesAnything() {
		w.st.update(func(_ ir.Value, c lattice.Category) lattice.Category {
			if c == lattice.Read {
				return lattice.QuasiRead
			}
			return c
		})
		return
	}
	for _, t := range e.Writes {
		if ir.Pointee(t) == nil {
			t = ir.PtrTo(t)
		}
		w.invalidateReads(t, nil)
	}
}

// define resets a freshly defined variable. Inside an ignored region the
// variable is only recorded, to be forgotten when the region closes.
func (w *walker) define(v *ir.Variable) {
	if v == nil || w.p.rep(v) != ir.Value(v) {
		return
	}
	if w.scope.active() {
		w.scope.define(v)
		return
	}
	w.st.forget(v)
}

func (w *walker) emit(op ir.Op) {
	if w.rewrite {
		w.out = append(w.out, op)
	}
}

func (w *walker) insert(trigger, barrier ir.Op) {
	if !w.rewrite {
		return
	}
	w.out = append(w.out, barrier)
	w.inserted = append(w.inserted, Inserted{
		Block:   w.block.Index,
		Index:   len(w.out) - 1,
		Barrier: barrier,
		Trigger: trigger,
	})
}

// definedBy returns the variable an operation defines, and whether the
// operation kind is known at all.
func definedBy(op ir.Op) (*ir.Variable, bool) {
	switch op := op.(type) {
	case *ir.Malloc:
		return op.Result, true
	case *ir.GetField:
		return op.Result, true
	case *ir.PtrCompare:
		return op.Result, true
	case *ir.TypeCheck:
		return op.Result, true
	case *ir.Cast:
		return op.Result, true
	case *ir.Call:
		return op.Result, true
	case *ir.Pure:
		return op.Result, true
	case *ir.WeakDeref:
		return op.Result, true
	case *ir.SetField, *ir.Return, *ir.WriteBarrier, *ir.Flush,
		*ir.IgnoreBegin, *ir.IgnoreEnd, *ir.Barrier, *ir.PtrEqBarrier:
		return nil, true
	}
	return nil, false
}
