package lower

import (
	"fmt"
	"go/token"
	"go/types"
	"slices"
	"strings"

	"golang.org/x/tools/go/ssa"
)

// location is where a load or store lands: a field path inside the object
// that root points to.
type location struct {
	root  ssa.Value
	path  string
	local bool // root is a stack variable
}

// locate resolves the address operand of a load or store.
//
//	&p.a.b    → {p, "a.b"}
//	&s[i]     → {s, "[]"}    slice elements live in the backing array
//	&p.arr[i] → {p, "arr.[]"}
//	q         → {q, "*"}
func locate(addr ssa.Value) location {
	var parts []string
walk:
	for {
		switch a := addr.(type) {
		case *ssa.FieldAddr:
			parts = append(parts, fieldName(a))
			addr = a.X
		case *ssa.IndexAddr:
			parts = append(parts, "[]")
			addr = a.X
			if _, isSlice := a.X.Type().Underlying().(*types.Slice); isSlice {
				break walk
			}
		default:
			break walk
		}
	}
	if len(parts) == 0 {
		parts = []string{"*"}
	}
	slices.Reverse(parts)

	alloc, isAlloc := addr.(*ssa.Alloc)
	return location{
		root:  addr,
		path:  strings.Join(parts, "."),
		local: isAlloc && !alloc.Heap,
	}
}

func fieldName(fa *ssa.FieldAddr) string {
	if ptr, ok := fa.X.Type().Underlying().(*types.Pointer); ok {
		if st, ok := ptr.Elem().Underlying().(*types.Struct); ok {
			return st.Field(fa.Field).Name()
		}
	}
	// Pointers to type parameters with a struct core type.
	return fmt.Sprintf("#%d", fa.Field)
}

// addressOnly reports whether an address is only used to load, store or
// compute further addresses. Such addresses never reach the IR on their own.
func addressOnly(v ssa.Value) bool {
	refs := v.Referrers()
	if refs == nil {
		return false
	}
	for _, ref := range *refs {
		switch ref := ref.(type) {
		case *ssa.UnOp:
			if ref.Op != token.MUL {
				return false
			}
		case *ssa.Store:
			if ref.Val == v {
				return false
			}
		case *ssa.FieldAddr, *ssa.IndexAddr, *ssa.DebugRef:
		default:
			return false
		}
	}
	return true
}
