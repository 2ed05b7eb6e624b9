// Package ir is the low-level control-flow-graph representation consumed and
// produced by the barrier pass.
//
// # Shape
//
//	Routine
//	  └─ Blocks[0] (entry, Params = routine arguments)
//	       │  Ops: getfield, setfield, call, ...
//	       │  Exits: Link{Target, Args} ──▶ Block{Params}
//	       └─ ...
//
// A Variable is defined once: as a block parameter or as an operation result.
// Values flow across edges either through Link.Args (bound to the target's
// Params) or by direct reference from a dominated block.
package ir

import (
	"fmt"
	"go/token"
)

// Block is a basic block: an ordered list of operations followed by zero or
// more exits. A block with a Switch has two exits (true, false).
type Block struct {
	Index  int
	Params []*Variable
	Ops    []Op
	Exits  []*Link
	Switch Value
}

// Link is a control-flow edge. Args are bound to Target.Params in order.
type Link struct {
	Target *Block
	Args   []Value
}

// Add appends an operation to the block.
func (b *Block) Add(op Op) {
	b.Ops = append(b.Ops, op)
}

// Goto ends the block with an unconditional jump.
func (b *Block) Goto(target *Block, args ...Value) {
	b.Exits = []*Link{{Target: target, Args: args}}
	b.Switch = nil
}

// Branch ends the block with a two-way branch on cond.
func (b *Block) Branch(cond Value, then *Block, thenArgs []Value, els *Block, elseArgs []Value) {
	b.Switch = cond
	b.Exits = []*Link{
		{Target: then, Args: thenArgs},
		{Target: els, Args: elseArgs},
	}
}

// Succs returns the successor blocks in exit order.
func (b *Block) Succs() []*Block {
	succs := make([]*Block, len(b.Exits))
	for i, l := range b.Exits {
		succs[i] = l.Target
	}
	return succs
}

func (b *Block) String() string { return fmt.Sprintf("block%d", b.Index) }

// Routine is a control-flow graph. Blocks[0] is the entry block.
type Routine struct {
	Name   string
	Pos    token.Pos
	Blocks []*Block
}

// NewRoutine creates a routine with an entry block taking params.
func NewRoutine(name string, params ...*Variable) *Routine {
	r := &Routine{Name: name}
	r.NewBlock(params...)
	return r
}

// Entry returns the entry block.
func (r *Routine) Entry() *Block {
	if len(r.Blocks) == 0 {
		return nil
	}
	return r.Blocks[0]
}

// NewBlock appends a new block with the given parameters.
func (r *Routine) NewBlock(params ...*Variable) *Block {
	b := &Block{Index: len(r.Blocks), Params: params}
	r.Blocks = append(r.Blocks, b)
	return b
}

// Edge is an incoming link together with the block it leaves.
type Edge struct {
	From *Block
	Link *Link
}

// Preds returns, for every block, its incoming edges in deterministic order
// (by source block index, then exit order).
func (r *Routine) Preds() map[*Block][]Edge {
	preds := make(map[*Block][]Edge, len(r.Blocks))
	for _, b := range r.Blocks {
		for _, l := range b.Exits {
			preds[l.Target] = append(preds[l.Target], Edge{From: b, Link: l})
		}
	}
	return preds
}

// Validate checks structural invariants: block indices, link arities and
// that every link targets a block of this routine.
func (r *Routine) Validate() error {
	if len(r.Blocks) == 0 {
		return fmt.Errorf("routine %s: no blocks", r.Name)
	}
	owned := make(map[*Block]bool, len(r.Blocks))
	for i, b := range r.Blocks {
		if b.Index != i {
			return fmt.Errorf("routine %s: block at position %d has index %d", r.Name, i, b.Index)
		}
		owned[b] = true
	}
	for _, b := range r.Blocks {
		if b.Switch != nil && len(b.Exits) != 2 {
			return fmt.Errorf("routine %s: %s has a switch but %d exits", r.Name, b, len(b.Exits))
		}
		for _, l := range b.Exits {
			if !owned[l.Target] {
				return fmt.Errorf("routine %s: %s links to a foreign block", r.Name, b)
			}
			if l.Target == r.Blocks[0] {
				return fmt.Errorf("routine %s: %s links to the entry block", r.Name, b)
			}
			if len(l.Args) != len(l.Target.Params) {
				return fmt.Errorf("routine %s: link %s -> %s passes %d args for %d params",
					r.Name, b, l.Target, len(l.Args), len(l.Target.Params))
			}
		}
	}
	return nil
}
