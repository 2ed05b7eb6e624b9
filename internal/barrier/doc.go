// Package barrier places STM read and write barriers on a routine.
//
// # Categories
//
// Every GC pointer held by the routine is tracked with the strongest
// guarantee proven about it so far:
//
//	A  any          nothing is known; it may be a stub
//	I  identity     not a stub, pointer comparison is meaningful
//	Q  quasi-read   was readable, another write may have intervened
//	R  read         field reads see a consistent snapshot
//	V  local-write  scalar fields may be written in place
//	W  write        any field may be written
//
// An access needing category X on a pointer currently in Y < X gets a
// barrier "Y2X" right before it, and the pointer is then in X. Flavor is
// "local" for targets of V and "full" otherwise.
//
// # What lowers a category
//
//	setfield on a possibly aliasing object   R → Q on the others
//	malloc, or a call that may collect       W → V
//	call with arbitrary effects              R → Q, W → V
//	call that may release the transaction    everything above I → I
//	merge of control flow                    meet (minimum) of the paths
//
// # Pipeline
//
//	Transform
//	  ├─ Validate / checkRegions     structural errors, nothing touched
//	  ├─ solve                       worklist fixpoint over blocks
//	  └─ rewrite                     walk each block again, emit barriers
//
// The solver and the rewriter share the same transfer function, so the
// barriers inserted are exactly those the solver reasoned about.
package barrier
