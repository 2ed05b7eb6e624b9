package typeutil

import (
	"go/types"
)

// =============================================================================
// Call Classification
// =============================================================================

// SafeBuiltins are builtins that neither allocate nor touch other objects.
var SafeBuiltins = map[string]struct{}{
	"len":     {},
	"cap":     {},
	"min":     {},
	"max":     {},
	"real":    {},
	"imag":    {},
	"complex": {},
}

// IsSafeBuiltin returns true if the builtin with the given name is known not
// to allocate, block or write.
func IsSafeBuiltin(name string) bool {
	_, ok := SafeBuiltins[name]
	return ok
}

// releasingFuncs lists library functions and methods that may park the
// calling goroutine and let others run. Keys are "pkgpath.Name" for
// functions and "pkgpath.Recv.Name" for methods.
var releasingFuncs = map[string]struct{}{
	"runtime.Gosched":      {},
	"time.Sleep":           {},
	"sync.Mutex.Lock":      {},
	"sync.Mutex.Unlock":    {},
	"sync.RWMutex.Lock":    {},
	"sync.RWMutex.Unlock":  {},
	"sync.RWMutex.RLock":   {},
	"sync.RWMutex.RUnlock": {},
	"sync.WaitGroup.Wait":  {},
	"sync.Cond.Wait":       {},
	"sync.Once.Do":         {},
	"net/http.Client.Do":   {},
	"net/http.Get":         {},
	"io.ReadAll":           {},
	"io.Copy":              {},
}

// IsReleasing returns true if fn is known to block or yield the goroutine.
func IsReleasing(fn *types.Func) bool {
	if fn == nil || fn.Pkg() == nil {
		return false
	}
	_, ok := releasingFuncs[FuncKey(fn)]
	return ok
}

// FuncKey returns "pkgpath.Name" for a function and "pkgpath.Recv.Name" for
// a method, without pointer or type arguments on the receiver.
func FuncKey(fn *types.Func) string {
	key := fn.Pkg().Path() + "."
	if recv := RecvTypeName(fn); recv != "" {
		key += recv + "."
	}
	return key + fn.Name()
}

// RecvTypeName extracts the base type name from a method's receiver.
// Returns just the type name without pointer (e.g., "Mutex" for both *Mutex
// and Mutex), or "" for plain functions.
func RecvTypeName(fn *types.Func) string {
	sig, ok := fn.Type().(*types.Signature)
	if !ok || sig.Recv() == nil {
		return ""
	}
	t := sig.Recv().Type()
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	if named, ok := types.Unalias(t).(*types.Named); ok {
		return named.Obj().Name()
	}
	return ""
}
