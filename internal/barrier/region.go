package barrier

import (
	"fmt"

	"github.com/mpyw/stmbarrier/internal/ir"
)

// =============================================================================
// Ignored regions
//
// An ignored region suspends barrier placement between an IgnoreBegin and
// its IgnoreEnd. Regions nest and must balance within one block:
//
//	block3:
//	    stm_ignored_start        ← acquire: snapshot the state
//	    v = getfield(x, bar)     ← no barrier, no promotion
//	    call f()                 ← no invalidation either
//	    stm_ignored_stop         ← release: restore the snapshot
//	    w = getfield(x, foo)     ← tracked again, from the snapshot
// =============================================================================

// checkRegions rejects routines whose region markers do not balance. It runs
// before any analysis.
func checkRegions(r *ir.Routine) error {
	for _, b := range r.Blocks {
		depth := 0
		for i, op := range b.Ops {
			switch op.(type) {
			case *ir.IgnoreBegin:
				depth++
			case *ir.IgnoreEnd:
				if depth == 0 {
					return fmt.Errorf("%w: %s op %d: end without begin", ErrMalformedRegion, b, i)
				}
				depth--
			}
		}
		if depth != 0 {
			return fmt.Errorf("%w: %s: %d region(s) not closed", ErrMalformedRegion, b, depth)
		}
	}
	return nil
}

// ignoreScope is the stack of open regions in the block being walked.
type ignoreScope struct {
	frames []ignoreFrame
}

type ignoreFrame struct {
	saved   state
	defined []*ir.Variable
}

func (s *ignoreScope) active() bool {
	return len(s.frames) > 0
}

// acquire opens a region, saving the current state.
func (s *ignoreScope) acquire(st state) {
	s.frames = append(s.frames, ignoreFrame{saved: st.clone()})
}

// define records a variable defined inside the innermost region.
func (s *ignoreScope) define(v *ir.Variable) {
	if v == nil || !s.active() {
		return
	}
	top := &s.frames[len(s.frames)-1]
	top.defined = append(top.defined, v)
}

// release closes the innermost region and returns the state to resume from:
// the saved snapshot, with variables defined inside the region forgotten.
func (s *ignoreScope) release() state {
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]

	st := top.saved
	for _, v := range top.defined {
		st.forget(v)
	}
	if s.active() {
		outer := &s.frames[len(s.frames)-1]
		outer.defined = append(outer.defined, top.defined...)
	}
	return st
}
