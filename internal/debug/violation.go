package debug

import (
	"fmt"
	"go/token"

	"github.com/mpyw/stmbarrier/internal/barrier"
)

var _ Violation = (*violation)(nil)

// Violation is one reportable barrier with its debug information.
type Violation interface {
	Pos() token.Pos
	Message() string
	DebugInfo() *BarrierInfo
}

// violation is the debug-enabled implementation.
type violation struct {
	info *BarrierInfo
}

func (v *violation) Pos() token.Pos          { return v.info.Pos }
func (v *violation) Message() string         { return Message(v.info) }
func (v *violation) DebugInfo() *BarrierInfo { return v.info }

// Violations returns one Violation per inserted operation of res, in program
// order. A result carrying an error has none.
func Violations(res *barrier.Result) []Violation {
	if res == nil || res.Err != nil {
		return nil
	}
	out := make([]Violation, 0, len(res.Inserted))
	for _, ins := range res.Inserted {
		info := NewBarrierInfo(ins)
		out = append(out, &violation{info: &info})
	}
	return out
}

// Message renders the diagnostic text for an inserted operation, e.g.
// "barrier A2R (full) on p before load of p.next".
func Message(b *BarrierInfo) string {
	if b.Transition == "=" {
		return fmt.Sprintf("identity compare of %s and %s", b.Objects[0], b.Objects[1])
	}
	msg := fmt.Sprintf("barrier %s (%s) on %s", b.Transition, b.Flavor, b.Objects[0])
	if b.Access != "" {
		msg += " before " + b.Access
	}
	return msg
}
