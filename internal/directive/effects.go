package directive

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/mpyw/stmbarrier/internal/effect"
)

// FuncKey identifies an annotated function without relying on fn.String().
type FuncKey struct {
	PkgPath      string // Package path (e.g., "github.com/example/pkg")
	ReceiverType string // Receiver type name without pointer/package (e.g., "Tx"), empty for functions
	FuncName     string // Function or method name
}

// KeyOf returns the FuncKey of an SSA function. Generic instances share the
// key of their origin.
func KeyOf(fn *ssa.Function) FuncKey {
	if origin := fn.Origin(); origin != nil {
		fn = origin
	}
	key := FuncKey{FuncName: fn.Name()}
	if fn.Pkg != nil && fn.Pkg.Pkg != nil {
		key.PkgPath = fn.Pkg.Pkg.Path()
	} else if obj := fn.Object(); obj != nil && obj.Pkg() != nil {
		key.PkgPath = obj.Pkg().Path()
	}
	if sig := fn.Signature; sig != nil && sig.Recv() != nil {
		key.ReceiverType = formatReceiverType(sig.Recv().Type())
	}
	return key
}

// formatReceiverType returns the receiver's type name without pointer.
func formatReceiverType(t types.Type) string {
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	if named, ok := t.(*types.Named); ok {
		return named.Obj().Name()
	}
	return ""
}

// docLevel returns the effect level declared in a function's doc comment.
// A releases directive wins over safe.
func docLevel(doc *ast.CommentGroup) (effect.Level, bool) {
	switch {
	case hasAny(doc, IsReleasesDirective):
		return effect.ReleasesTransaction, true
	case hasAny(doc, IsSafeDirective):
		return effect.Safest, true
	default:
		return 0, false
	}
}

// EffectSet holds the declared effect levels of annotated functions, with
// a parsed-source fallback for functions of other packages.
type EffectSet struct {
	known   map[FuncKey]effect.Level
	sources *sourceCache
}

// NewEffectSet creates a new EffectSet.
func NewEffectSet(fset *token.FileSet) *EffectSet {
	return &EffectSet{
		known:   make(map[FuncKey]effect.Level),
		sources: newSourceCache(fset),
	}
}

// Add records the level of a function.
func (s *EffectSet) Add(key FuncKey, level effect.Level) {
	if s != nil && s.known != nil {
		s.known[key] = level
	}
}

// Lookup returns the declared level of fn, if any.
func (s *EffectSet) Lookup(fn *ssa.Function) (effect.Level, bool) {
	if fn == nil {
		return 0, false
	}
	if origin := fn.Origin(); origin != nil {
		fn = origin
	}

	if s != nil && s.known != nil {
		if level, ok := s.known[KeyOf(fn)]; ok {
			return level, true
		}
	}

	if fd, ok := fn.Syntax().(*ast.FuncDecl); ok {
		return docLevel(fd.Doc)
	}

	return s.lookupSource(fn)
}

// lookupSource parses the file declaring fn and reads its doc comment.
func (s *EffectSet) lookupSource(fn *ssa.Function) (effect.Level, bool) {
	obj := fn.Object()
	if s == nil || obj == nil {
		return 0, false
	}
	file, _ := s.sources.lookup(obj.Pos())
	if file == nil {
		return 0, false
	}

	key := KeyOf(fn)
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Name.Name != key.FuncName || receiverName(fd) != key.ReceiverType {
			continue
		}
		return docLevel(fd.Doc)
	}
	return 0, false
}

// BuildEffectSet collects the functions of a file carrying an effect
// directive.
//
//	//stmbarrier:safe
//	func hash(n *Node) uint64
//	→ FuncKey{PkgPath: "...", FuncName: "hash"}: Safest
//
//	//stmbarrier:releases
//	func (tx *Tx) Commit() error
//	→ FuncKey{PkgPath: "...", ReceiverType: "Tx", FuncName: "Commit"}: ReleasesTransaction
func BuildEffectSet(file *ast.File, pkgPath string) map[FuncKey]effect.Level {
	result := make(map[FuncKey]effect.Level)

	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		if level, ok := docLevel(fd.Doc); ok {
			key := FuncKey{
				PkgPath:      pkgPath,
				ReceiverType: receiverName(fd),
				FuncName:     fd.Name.Name,
			}
			result[key] = level
		}
	}

	return result
}
