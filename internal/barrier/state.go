package barrier

import (
	"maps"

	"github.com/mpyw/stmbarrier/internal/ir"
	"github.com/mpyw/stmbarrier/internal/lattice"
)

// =============================================================================
// Per-point state
// =============================================================================

// state maps tracked values to their category. A value that is absent has
// its default category: Any for variables, Identity for prebuilt constants
// (they can never be stubs) and Null for the null constant. Entries equal to
// the default are never stored, so equal states have equal maps.
type state map[ir.Value]lattice.Category

func defaultCategory(v ir.Value) lattice.Category {
	if c, ok := v.(*ir.Constant); ok {
		if c.Null {
			return lattice.Null
		}
		return lattice.Identity
	}
	return lattice.Any
}

func (s state) get(v ir.Value) lattice.Category {
	if c, ok := s[v]; ok {
		return c
	}
	return defaultCategory(v)
}

func (s state) set(v ir.Value, c lattice.Category) {
	if c == defaultCategory(v) {
		delete(s, v)
		return
	}
	s[v] = c
}

// forget resets v to its default category, e.g. when it is redefined.
func (s state) forget(v ir.Value) {
	delete(s, v)
}

func (s state) clone() state {
	out := make(state, len(s))
	maps.Copy(out, s)
	return out
}

func (s state) equal(other state) bool {
	return maps.Equal(s, other)
}

// update applies f to every stored category.
func (s state) update(f func(v ir.Value, c lattice.Category) lattice.Category) {
	for v, c := range s {
		s.set(v, f(v, c))
	}
}

// meet returns the pointwise meet of two states. A value missing from one
// side meets with its default.
func meet(a, b state) state {
	out := make(state, len(a))
	for v := range a {
		out.set(v, lattice.Meet(a.get(v), b.get(v)))
	}
	for v := range b {
		if _, done := a[v]; !done {
			out.set(v, lattice.Meet(a.get(v), b.get(v)))
		}
	}
	return out
}
