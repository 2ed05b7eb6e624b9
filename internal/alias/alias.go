// Package alias decides whether two statically typed GC pointers can ever
// refer to the same object.
//
// The test is type based and deliberately conservative: two pointers may
// alias unless their types provably share no object. It never looks at
// values, only at the type hierarchy.
package alias

import (
	"fmt"
	"sync"

	"github.com/mpyw/stmbarrier/internal/ir"
)

// Result is the answer of the classifier.
type Result int

const (
	MayAlias Result = iota
	CannotAlias
)

func (r Result) String() string {
	switch r {
	case MayAlias:
		return "MayAlias"
	case CannotAlias:
		return "CannotAlias"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Classifier answers alias queries over a universe of known object types.
//
// The universe matters for fixed-layout records with several supertypes: two
// unrelated records still alias when a third record derives from both. Only
// types registered in the universe are considered for that rule.
//
// A Classifier is safe for concurrent use.
type Classifier struct {
	universe []ir.Type
	open     bool

	mu    sync.Mutex
	cache map[[2]ir.Type]Result
}

// New creates a Classifier whose universe contains the given object types.
// Pointer types are accepted and registered by their pointee.
func New(types ...ir.Type) *Classifier {
	c := &Classifier{cache: make(map[[2]ir.Type]Result)}
	seen := make(map[ir.Type]bool)
	for _, t := range types {
		c.register(t, seen)
	}
	return c
}

// Open creates a Classifier that knows no universe. Any record may have a
// subtype deriving from another, so two fixed-layout records always may
// alias.
func Open() *Classifier {
	return &Classifier{open: true, cache: make(map[[2]ir.Type]Result)}
}

func (c *Classifier) register(t ir.Type, seen map[ir.Type]bool) {
	if p := ir.Pointee(t); p != nil {
		t = p
	}
	if t == nil || seen[t] {
		return
	}
	seen[t] = true
	c.universe = append(c.universe, t)
	switch t := t.(type) {
	case *ir.Struct:
		for _, sup := range t.Supers {
			c.register(sup, seen)
		}
	case *ir.Class:
		for _, sup := range t.Supers {
			c.register(sup, seen)
		}
	}
}

// Classify decides whether values of pointer types a and b may alias.
//
// Rules, first match wins:
//
//  1. either side is not a GC pointer      → CannotAlias
//  2. either side is an opaque reference   → MayAlias
//  3. same pointee                         → MayAlias
//  4. fixed layout vs dynamic layout       → CannotAlias
//  5. one pointee derives from the other   → MayAlias
//  6. a known type derives from both       → MayAlias
//     (any two fixed layouts, for an Open classifier)
//  7. dynamic layouts with the same root   → MayAlias (the hierarchy is open)
//  8. otherwise                            → CannotAlias
func (c *Classifier) Classify(a, b ir.Type) Result {
	if !ir.IsGCPointer(a) || !ir.IsGCPointer(b) {
		return CannotAlias
	}
	pa, pb := ir.Pointee(a), ir.Pointee(b)
	key := [2]ir.Type{pa, pb}

	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.cache[key]; ok {
		return r
	}
	r := c.classify(pa, pb)
	c.cache[key] = r
	c.cache[[2]ir.Type{pb, pa}] = r
	return r
}

func (c *Classifier) classify(a, b ir.Type) Result {
	_, opaqueA := a.(*ir.Opaque)
	_, opaqueB := b.(*ir.Opaque)
	if opaqueA || opaqueB {
		return MayAlias
	}
	if a == b {
		return MayAlias
	}
	if dynamic(a) != dynamic(b) {
		return CannotAlias
	}
	if ir.SubtypeOf(a, b) || ir.SubtypeOf(b, a) {
		return MayAlias
	}
	if c.open && !dynamic(a) {
		return MayAlias
	}
	for _, t := range c.universe {
		if ir.SubtypeOf(t, a) && ir.SubtypeOf(t, b) {
			return MayAlias
		}
	}
	if ca, ok := a.(*ir.Class); ok {
		if ca.Root() == b.(*ir.Class).Root() {
			return MayAlias
		}
	}
	return CannotAlias
}

func dynamic(t ir.Type) bool {
	_, ok := t.(*ir.Class)
	return ok
}
