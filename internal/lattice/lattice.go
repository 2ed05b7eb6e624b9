// Package lattice defines the barrier categories tracked per pointer.
//
// Categories are totally ordered so that a barrier is needed to move a
// pointer from category x to category y if and only if y > x:
//
//	A < I < Q < R < V < W
//	│   │   │   │   │   └─ Write:      full write barrier applied
//	│   │   │   │   └───── LocalWrite: local write barrier applied (scalar stores)
//	│   │   │   └───────── Read:       read barrier applied
//	│   │   └───────────── QuasiRead:  was Read, may have been modified since
//	│   └───────────────── Identity:   not a stub; contents not validated
//	└───────────────────── Any:        nothing known
//
// Null (Z) is the category of the null constant. It satisfies every
// requirement and only matters to pointer comparisons.
package lattice

import "fmt"

// =============================================================================
// Category
// =============================================================================

// Category is the strongest barrier known to hold for a pointer.
type Category uint8

const (
	Any Category = iota
	Identity
	QuasiRead
	Read
	LocalWrite
	Write
	Null
)

// Height is the number of ordered categories (Null excluded).
const Height = int(Write) + 1

var letters = [...]byte{'A', 'I', 'Q', 'R', 'V', 'W', 'Z'}

var names = [...]string{"any", "identity", "quasi-read", "read", "local-write", "write", "null"}

// Letter returns the one-letter code of the category.
func (c Category) Letter() byte {
	if int(c) < len(letters) {
		return letters[c]
	}
	return '?'
}

// String returns the one-letter code of the category.
func (c Category) String() string {
	if int(c) < len(letters) {
		return string(letters[c])
	}
	return fmt.Sprintf("Category(%d)", c)
}

// Name returns the long name of the category.
func (c Category) Name() string {
	if int(c) < len(names) {
		return names[c]
	}
	return c.String()
}

// ParseCategory parses a one-letter category code.
func ParseCategory(b byte) (Category, bool) {
	for i, l := range letters {
		if l == b {
			return Category(i), true
		}
	}
	return Any, false
}

// Satisfies reports whether a pointer in category c needs no barrier to be
// used at category want.
func (c Category) Satisfies(want Category) bool {
	return c >= want
}

// Meet returns the weakest of two categories. It is used at merge points.
func Meet(a, b Category) Category {
	if a < b {
		return a
	}
	return b
}

// =============================================================================
// Transition
// =============================================================================

// Flavor is the strength of an inserted barrier.
type Flavor uint8

const (
	// Full barriers are needed by accesses that create or follow a GC pointer.
	Full Flavor = iota
	// Local barriers only mark the object privately dirty for this transaction.
	Local
)

func (f Flavor) String() string {
	if f == Local {
		return "local"
	}
	return "full"
}

// Transition names the barrier that moves a pointer from one category to
// another, e.g. "A2R".
type Transition struct {
	From, To Category
}

// FlavorOf returns the flavor of a barrier targeting category to.
func FlavorOf(to Category) Flavor {
	if to == LocalWrite {
		return Local
	}
	return Full
}

// Flavor returns the flavor of the barrier.
func (t Transition) Flavor() Flavor { return FlavorOf(t.To) }

func (t Transition) String() string {
	return string([]byte{t.From.Letter(), '2', t.To.Letter()})
}

// Primitive returns the name of the runtime entry point implementing the
// transition, e.g. "stm_any_to_read".
func (t Transition) Primitive() string {
	return "stm_" + underscore(t.From.Name()) + "_to_" + underscore(t.To.Name())
}

// ParseTransition parses a transition written as "A2R".
func ParseTransition(s string) (Transition, error) {
	if len(s) != 3 || s[1] != '2' {
		return Transition{}, fmt.Errorf("malformed transition %q", s)
	}
	from, ok1 := ParseCategory(s[0])
	to, ok2 := ParseCategory(s[2])
	if !ok1 || !ok2 || from == Null || to == Null || to <= from {
		return Transition{}, fmt.Errorf("malformed transition %q", s)
	}
	return Transition{From: from, To: to}, nil
}

func underscore(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c == '-' {
			b[i] = '_'
		}
	}
	return string(b)
}
