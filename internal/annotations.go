package internal

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/mpyw/stmbarrier/internal/directive"
	"github.com/mpyw/stmbarrier/internal/effect"
	"github.com/mpyw/stmbarrier/internal/lower"
)

var _ lower.Annotations = (*Annotations)(nil)

// Annotations combines the directives of a package into what the lowering
// needs to know about it.
type Annotations struct {
	fset       *token.FileSet
	ignoreMaps map[string]directive.IgnoreMap
	effects    *directive.EffectSet
	immutable  *directive.ImmutableSet
}

// NewAnnotations creates Annotations. Any argument except fset may be nil.
func NewAnnotations(
	fset *token.FileSet,
	ignoreMaps map[string]directive.IgnoreMap,
	effects *directive.EffectSet,
	immutable *directive.ImmutableSet,
) *Annotations {
	return &Annotations{
		fset:       fset,
		ignoreMaps: ignoreMaps,
		effects:    effects,
		immutable:  immutable,
	}
}

// CallEffect returns the effect declared on fn with //stmbarrier:safe or
// //stmbarrier:releases.
func (a *Annotations) CallEffect(fn *ssa.Function) (effect.Level, bool) {
	if a.effects == nil {
		return 0, false
	}
	return a.effects.Lookup(fn)
}

// ImmutableType reports whether tn is marked //stmbarrier:immutable.
func (a *Annotations) ImmutableType(tn *types.TypeName) bool {
	return a.immutable != nil && a.immutable.Type(tn)
}

// ImmutableField reports whether v is marked //stmbarrier:immutable.
func (a *Annotations) ImmutableField(v *types.Var) bool {
	return a.immutable != nil && a.immutable.Field(v)
}

// IgnoredAt reports whether pos is covered by a line-level
// //stmbarrier:ignore. A matching directive is marked used.
func (a *Annotations) IgnoredAt(pos token.Pos) bool {
	if !pos.IsValid() {
		return false
	}
	p := a.fset.Position(pos)
	m := a.ignoreMaps[p.Filename]
	return m != nil && m.ShouldIgnore(p.Line)
}
