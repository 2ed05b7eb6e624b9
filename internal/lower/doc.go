// Package lower translates Go SSA functions into the barrier pass IR.
//
// Memory accesses are resolved to the object they land in:
//
//	p.a.b = v     FieldAddr(FieldAddr(p, a), b) + Store   →  setfield(p, a.b, v)
//	x := s[i]     IndexAddr(s, i) + load                   →  getfield(s, [])
//	x := m[k]     Lookup(m, k)                             →  getfield(m, [])
//	*q = v        Store(q, v)                              →  setfield(q, *, v)
//
// Go types map onto the IR the following way:
//
//	*struct         → *Struct (fixed layout, GC). Struct fields held by value
//	                  are supertypes, since a pointer may point inside them.
//	*T (other T)    → *Struct with a single field "*" (or "[]" for arrays)
//	map             → *Class with a single field "[]" (dynamic layout)
//	interface, slice, chan, func, pointer-holding values → Opaque
//	string, uintptr, unsafe.Pointer → Address (never traced)
//	everything else → scalars
//
// Stack variables that do not escape never reach the pass as memory
// accesses: loads and stores through them become pure operations.
package lower
