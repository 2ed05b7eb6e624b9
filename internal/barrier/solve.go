package barrier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mpyw/stmbarrier/internal/ir"
)

// =============================================================================
// Fixpoint solver
//
// Forward dataflow over the block graph. The state at the entry of a block
// is the meet of the exit states of its already-solved predecessors, with
// the block's parameters bound to the categories of the link arguments:
//
//	block1 ──(p)──┐
//	              ├──▶ block3(x): entry[x] = meet(exit1[p], exit2[q])
//	block2 ──(q)──┘
//
// Predecessors that were never solved are skipped, which makes the first
// visit of a loop header optimistic; later visits can only lower the state,
// so the iteration terminates.
// =============================================================================

// solve computes p.entries and p.exits for every block reachable from the
// entry block.
func (p *pass) solve() error {
	log := p.opts.logger()
	if log.Enabled(context.Background(), slog.LevelDebug) {
		log.Debug("solving routine",
			slog.String("routine", p.r.Name),
			slog.Int("blocks", len(p.r.Blocks)),
			slog.Int("values", len(p.all)),
			slog.Any("loop_headers", blockNames(p.r.LoopHeaders())),
		)
	}

	pending := map[*ir.Block]bool{p.r.Entry(): true}

	for steps := 0; len(pending) > 0; steps++ {
		b := lowest(pending)
		delete(pending, b)
		if steps >= p.limit {
			return fmt.Errorf("routine %s: %s: %w after %d steps", p.r.Name, b, ErrNoFixpoint, steps)
		}

		entry := p.entryState(b)
		if old, seen := p.entries[b]; seen && old.equal(entry) {
			continue
		}
		p.entries[b] = entry

		w, err := p.flow(b, entry, false)
		if err != nil {
			return err
		}
		exit := w.st
		if old, seen := p.exits[b]; seen && old.equal(exit) {
			continue
		}
		p.exits[b] = exit

		log.Debug("block solved",
			slog.String("routine", p.r.Name),
			slog.String("block", b.String()),
			slog.Int("step", steps),
			slog.Int("tracked", len(exit)),
		)
		for _, s := range b.Succs() {
			pending[s] = true
		}
	}
	return nil
}

// entryState computes the entry state of b from the exits of its solved
// predecessors.
func (p *pass) entryState(b *ir.Block) state {
	var (
		acc   state
		found bool
	)
	for _, e := range p.preds[b] {
		exit, ok := p.exits[e.From]
		if !ok {
			continue
		}
		in := exit.clone()
		for i, param := range b.Params {
			in.set(param, exit.get(p.rep(e.Link.Args[i])))
		}
		if !found {
			acc, found = in, true
			continue
		}
		acc = meet(acc, in)
	}
	if !found {
		return state{}
	}
	return acc
}

func lowest(set map[*ir.Block]bool) *ir.Block {
	var best *ir.Block
	for b := range set {
		if best == nil || b.Index < best.Index {
			best = b
		}
	}
	return best
}

func blockNames(bs []*ir.Block) []string {
	names := make([]string, len(bs))
	for i, b := range bs {
		names[i] = b.String()
	}
	return names
}
