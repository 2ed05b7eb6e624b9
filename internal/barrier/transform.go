package barrier

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/mpyw/stmbarrier/internal/ir"
	"github.com/mpyw/stmbarrier/internal/lattice"
)

// Inserted records one operation added by the pass.
type Inserted struct {
	// Block and Index locate the barrier in the rewritten routine.
	Block int
	Index int
	// Barrier is an *ir.Barrier or an *ir.PtrEqBarrier.
	Barrier ir.Op
	// Trigger is the operation that needed it.
	Trigger ir.Op
}

// Result describes a transformed routine.
type Result struct {
	Routine  *ir.Routine
	Inserted []Inserted

	// Counts is the number of barriers per transition.
	Counts map[lattice.Transition]int
	// PtrEqs is the number of pointer comparisons marked for identity.
	PtrEqs int

	// Err is set by TransformAll when this routine could not be transformed.
	// The routine is then left untouched. Transform never sets it.
	Err error
}

// Transitions lists the inserted barriers in program order: the transition
// name ("A2R", ...) for barriers and "=" for pointer comparisons.
func (r *Result) Transitions() []string {
	out := make([]string, 0, len(r.Inserted))
	for _, ins := range r.Inserted {
		switch b := ins.Barrier.(type) {
		case *ir.Barrier:
			out = append(out, b.Trans.String())
		case *ir.PtrEqBarrier:
			out = append(out, "=")
		}
	}
	return out
}

// Transform inserts the barriers r needs, in place. On error r is left
// untouched.
//
// Barriers are placed at the weakest category that satisfies each access,
// given everything proven on every path reaching it. Running Transform on
// its own output inserts nothing.
func Transform(r *ir.Routine, opts Options) (*Result, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := checkRegions(r); err != nil {
		return nil, fmt.Errorf("routine %s: %w", r.Name, err)
	}

	p := newPass(r, opts)
	if err := p.solve(); err != nil {
		return nil, err
	}
	return p.rewrite()
}

// rewrite walks every block once more from its solved entry state and swaps
// in the new operation lists. Nothing is modified until every block has been
// rewritten successfully.
func (p *pass) rewrite() (*Result, error) {
	res := &Result{
		Routine: p.r,
		Counts:  make(map[lattice.Transition]int),
	}
	ops := make([][]ir.Op, len(p.r.Blocks))
	for i, b := range p.r.Blocks {
		entry, ok := p.entries[b]
		if !ok {
			// Unreachable: nothing is known.
			entry = state{}
		}
		w, err := p.flow(b, entry, true)
		if err != nil {
			return nil, err
		}
		ops[i] = w.out
		res.Inserted = append(res.Inserted, w.inserted...)
	}
	for i, b := range p.r.Blocks {
		b.Ops = ops[i]
	}

	for _, ins := range res.Inserted {
		switch b := ins.Barrier.(type) {
		case *ir.Barrier:
			res.Counts[b.Trans]++
		case *ir.PtrEqBarrier:
			res.PtrEqs++
		}
	}
	p.opts.logger().Debug("routine transformed",
		"routine", p.r.Name,
		"barriers", len(res.Inserted)-res.PtrEqs,
		"ptr_eq", res.PtrEqs,
	)
	return res, nil
}

// TransformAll transforms independent routines concurrently, at most
// opts.Parallelism at a time. The results are parallel to routines. A routine
// that fails gets a Result with Err set; the others are still transformed.
// The returned error is only non-nil when ctx is cancelled.
//
// When opts.Alias is set it is shared by all routines.
func TransformAll(ctx context.Context, routines []*ir.Routine, opts Options) ([]*Result, error) {
	limit := opts.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results := make([]*Result, len(routines))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, r := range routines {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := Transform(r, opts)
			if err != nil {
				res = &Result{Routine: r, Err: err}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
