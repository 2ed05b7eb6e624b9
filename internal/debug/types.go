package debug

import (
	"go/token"

	"github.com/mpyw/stmbarrier/internal/barrier"
	"github.com/mpyw/stmbarrier/internal/ir"
)

// Info contains collected debug information for a transformed routine.
type Info struct {
	Routine  string
	Pos      token.Pos
	Barriers []BarrierInfo
	Counts   map[string]int
	PtrEqs   int
	Listing  string

	// Unreachable lists the indexes of blocks the entry cannot reach.
	Unreachable []int
}

// BarrierInfo contains information about a single inserted operation.
type BarrierInfo struct {
	Pos   token.Pos
	Block int
	Index int

	// Transition is "A2R", "R2V", ... or "=" for an identity compare.
	Transition string
	// Flavor is "full" or "local", empty for identity compares.
	Flavor string
	// Objects names the guarded values: one for a barrier, two for a compare.
	Objects []string
	// Access describes the operation that needed the barrier.
	Access string
}

// NewBarrierInfo creates BarrierInfo from an inserted operation.
func NewBarrierInfo(ins barrier.Inserted) BarrierInfo {
	info := BarrierInfo{
		Pos:    ins.Barrier.Pos(),
		Block:  ins.Block,
		Index:  ins.Index,
		Access: describe(ins.Trigger),
	}
	switch b := ins.Barrier.(type) {
	case *ir.Barrier:
		info.Transition = b.Trans.String()
		info.Flavor = b.Flavor.String()
		info.Objects = []string{b.Obj.String()}
	case *ir.PtrEqBarrier:
		info.Transition = "="
		info.Objects = []string{b.X.String(), b.Y.String()}
	}
	return info
}

// describe renders the access an operation performs on its object.
func describe(op ir.Op) string {
	switch op := op.(type) {
	case *ir.GetField:
		return "load of " + path(op.Obj, op.Field)
	case *ir.SetField:
		return "store to " + path(op.Obj, op.Field)
	case *ir.TypeCheck:
		return "type check of " + op.Obj.String()
	case *ir.WeakDeref:
		return "deref of " + op.Ref.String()
	case *ir.WriteBarrier:
		return "write barrier on " + op.Obj.String()
	case *ir.PtrCompare:
		return "compare of " + op.X.String() + " and " + op.Y.String()
	case nil:
		return ""
	default:
		return op.String()
	}
}

func path(obj ir.Value, field string) string {
	switch {
	case field == "*":
		return "*" + obj.String()
	case len(field) > 0 && field[0] == '[':
		return obj.String() + field
	default:
		return obj.String() + "." + field
	}
}
