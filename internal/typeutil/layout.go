// Package typeutil provides go/types helpers for the Go front end.
//
// It answers the questions the lowering asks about Go types: which records
// live inside other records, which values carry GC pointers at all, and
// which library calls are known to yield or to be harmless.
package typeutil

import (
	"go/types"
)

// =============================================================================
// Layout
// =============================================================================

// StructFields returns the named struct types held by value in the fields of
// st. A pointer to one of them may point inside a value of the enclosing
// struct.
func StructFields(st *types.Struct) []*types.Named {
	var out []*types.Named
	for i := 0; i < st.NumFields(); i++ {
		named, ok := types.Unalias(st.Field(i).Type()).(*types.Named)
		if !ok {
			continue
		}
		if _, isStruct := named.Underlying().(*types.Struct); isStruct {
			out = append(out, named)
		}
	}
	return out
}

// ContainsPointers reports whether values of type t hold pointers the
// garbage collector traces. It recursively checks struct fields, arrays and
// tuples; slices, maps, channels, functions, interfaces and strings are
// reference-like and count as pointers, except strings, whose data is
// immutable.
func ContainsPointers(t types.Type) bool {
	cache := make(map[types.Type]*cacheEntry)
	return containsPointersWithCache(t, cache)
}

// cacheEntry tracks the state of type checking to handle cycles.
type cacheEntry struct {
	inProgress bool // Currently being checked (for cycle detection)
	result     bool // Cached result after checking
}

func containsPointersWithCache(t types.Type, cache map[types.Type]*cacheEntry) bool {
	if t == nil {
		return false
	}

	if entry, ok := cache[t]; ok {
		if entry.inProgress {
			// Cycle: the answer comes from the other fields.
			return false
		}
		return entry.result
	}
	cache[t] = &cacheEntry{inProgress: true}

	result := false
	switch typ := t.Underlying().(type) {
	case *types.Basic:
		result = typ.Kind() == types.UnsafePointer
	case *types.Pointer, *types.Slice, *types.Map, *types.Chan, *types.Signature, *types.Interface:
		result = true
	case *types.Struct:
		for i := 0; i < typ.NumFields(); i++ {
			if containsPointersWithCache(typ.Field(i).Type(), cache) {
				result = true
				break
			}
		}
	case *types.Array:
		result = typ.Len() > 0 && containsPointersWithCache(typ.Elem(), cache)
	case *types.Tuple:
		for i := 0; i < typ.Len(); i++ {
			if containsPointersWithCache(typ.At(i).Type(), cache) {
				result = true
				break
			}
		}
	}

	cache[t] = &cacheEntry{inProgress: false, result: result}
	return result
}
