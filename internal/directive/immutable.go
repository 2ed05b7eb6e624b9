package directive

import (
	"go/ast"
	"go/token"
	"go/types"
)

// ImmutableSet holds the types and struct fields marked
// //stmbarrier:immutable. Declarations of the analyzed package are added
// from syntax; declarations of other packages are looked up in their source
// on first use.
type ImmutableSet struct {
	types   map[*types.TypeName]bool
	fields  map[*types.Var]bool
	sources *sourceCache
}

// NewImmutableSet creates a new ImmutableSet.
func NewImmutableSet(fset *token.FileSet) *ImmutableSet {
	return &ImmutableSet{
		types:   make(map[*types.TypeName]bool),
		fields:  make(map[*types.Var]bool),
		sources: newSourceCache(fset),
	}
}

// AddFile records the immutable declarations of a type-checked file.
// Declarations without a directive are recorded as mutable.
func (s *ImmutableSet) AddFile(file *ast.File, info *types.Info) {
	eachTypeSpec(file, func(ts *ast.TypeSpec, marked bool) {
		if tn, ok := info.Defs[ts.Name].(*types.TypeName); ok {
			s.types[tn] = marked
		}
		eachField(ts, func(name *ast.Ident, marked bool) {
			if v, ok := info.Defs[name].(*types.Var); ok {
				s.fields[v] = marked
			}
		})
	})
}

// Type reports whether a type declaration is immutable.
func (s *ImmutableSet) Type(tn *types.TypeName) bool {
	if s == nil || tn == nil {
		return false
	}
	if marked, ok := s.types[tn]; ok {
		return marked
	}

	marked := false
	file, line := s.sources.lookup(tn.Pos())
	if file != nil {
		eachTypeSpec(file, func(ts *ast.TypeSpec, m bool) {
			if ts.Name.Name == tn.Name() && s.sources.line(ts.Name.Pos()) == line {
				marked = m
			}
		})
	}
	s.types[tn] = marked
	return marked
}

// Field reports whether a struct field is immutable. Fields of instantiated
// generic types share the answer of their origin.
func (s *ImmutableSet) Field(v *types.Var) bool {
	if s == nil || v == nil {
		return false
	}
	v = v.Origin()
	if marked, ok := s.fields[v]; ok {
		return marked
	}

	marked := false
	file, line := s.sources.lookup(v.Pos())
	if file != nil {
		eachTypeSpec(file, func(ts *ast.TypeSpec, _ bool) {
			eachField(ts, func(name *ast.Ident, m bool) {
				if name.Name == v.Name() && s.sources.line(name.Pos()) == line {
					marked = m
				}
			})
		})
	}
	s.fields[v] = marked
	return marked
}

// eachTypeSpec calls fn for every type declaration of a file. A directive in
// the doc of an unparenthesized declaration applies to its single spec.
func eachTypeSpec(file *ast.File, fn func(ts *ast.TypeSpec, marked bool)) {
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		grouped := gd.Lparen.IsValid()
		for _, spec := range gd.Specs {
			ts := spec.(*ast.TypeSpec)
			marked := hasAny(ts.Doc, IsImmutableDirective) || hasAny(ts.Comment, IsImmutableDirective)
			if !grouped && hasAny(gd.Doc, IsImmutableDirective) {
				marked = true
			}
			fn(ts, marked)
		}
	}
}

// eachField calls fn for every named field of a struct type declaration.
// Embedded fields cannot carry the directive.
func eachField(ts *ast.TypeSpec, fn func(name *ast.Ident, marked bool)) {
	st, ok := ts.Type.(*ast.StructType)
	if !ok || st.Fields == nil {
		return
	}
	for _, f := range st.Fields.List {
		marked := hasAny(f.Doc, IsImmutableDirective) || hasAny(f.Comment, IsImmutableDirective)
		for _, name := range f.Names {
			fn(name, marked)
		}
	}
}
