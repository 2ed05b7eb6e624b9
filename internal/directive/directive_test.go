package directive

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/mpyw/stmbarrier/internal/effect"
)

func TestDirectivePredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		ignore    bool
		safe      bool
		releases  bool
		immutable bool
	}{
		{"ignore exact", "//stmbarrier:ignore", true, false, false, false},
		{"ignore with space", "// stmbarrier:ignore", true, false, false, false},
		{"ignore with extra spaces", "//  stmbarrier:ignore", true, false, false, false},
		{"ignore with reason", "//stmbarrier:ignore // hot path", true, false, false, false},
		{"safe", "//stmbarrier:safe", false, true, false, false},
		{"releases", "// stmbarrier:releases", false, false, true, false},
		{"immutable", "//stmbarrier:immutable", false, false, false, true},
		{"longer name", "//stmbarrier:safety", false, false, false, false},
		{"other tool", "//otherlint:ignore", false, false, false, false},
		{"random comment", "// some comment", false, false, false, false},
		{"empty", "//", false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsIgnoreDirective(tt.text); got != tt.ignore {
				t.Errorf("IsIgnoreDirective(%q) = %v, want %v", tt.text, got, tt.ignore)
			}
			if got := IsSafeDirective(tt.text); got != tt.safe {
				t.Errorf("IsSafeDirective(%q) = %v, want %v", tt.text, got, tt.safe)
			}
			if got := IsReleasesDirective(tt.text); got != tt.releases {
				t.Errorf("IsReleasesDirective(%q) = %v, want %v", tt.text, got, tt.releases)
			}
			if got := IsImmutableDirective(tt.text); got != tt.immutable {
				t.Errorf("IsImmutableDirective(%q) = %v, want %v", tt.text, got, tt.immutable)
			}
		})
	}
}

// =============================================================================
// Ignore
// =============================================================================

func TestIgnoreMapShouldIgnore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line int
		want bool
	}{
		{"same line", 10, true},
		{"next line", 11, true},
		{"two lines below", 12, false},
		{"line above", 9, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := make(IgnoreMap)
			m.Add(10, token.Pos(100))
			if got := m.ShouldIgnore(tt.line); got != tt.want {
				t.Errorf("ShouldIgnore(%d) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestIgnoreMapFileLevel(t *testing.T) {
	t.Parallel()

	m := make(IgnoreMap)
	m.Add(-1, token.Pos(1))

	if !m.ShouldIgnore(100) {
		t.Error("ShouldIgnore(100) should return true with file-level ignore")
	}
	if unused := m.GetUnusedIgnores(); len(unused) != 0 {
		t.Errorf("file-level ignore reported unused: %v", unused)
	}
}

func TestIgnoreMapGetUnusedIgnores(t *testing.T) {
	t.Parallel()

	m := make(IgnoreMap)
	m.Add(30, token.Pos(300))
	m.Add(10, token.Pos(100))
	m.Add(20, token.Pos(200))

	m.ShouldIgnore(21)

	unused := m.GetUnusedIgnores()
	want := []token.Pos{100, 300}
	if len(unused) != len(want) {
		t.Fatalf("GetUnusedIgnores() = %v, want %v", unused, want)
	}
	for i := range want {
		if unused[i] != want[i] {
			t.Errorf("GetUnusedIgnores()[%d] = %v, want %v", i, unused[i], want[i])
		}
	}
}

func TestIgnoreMapMarkUsed(t *testing.T) {
	t.Parallel()

	t.Run("mark existing entry", func(t *testing.T) {
		t.Parallel()

		m := make(IgnoreMap)
		m.Add(10, token.Pos(100))

		m.MarkUsed(10)
		if unused := m.GetUnusedIgnores(); len(unused) != 0 {
			t.Error("Entry at line 10 should be marked as used")
		}
	})

	t.Run("mark non-existent line should not panic", func(t *testing.T) {
		t.Parallel()

		m := make(IgnoreMap)
		m.MarkUsed(999)
	})
}

func TestBuildIgnoreMap(t *testing.T) {
	t.Parallel()

	t.Run("line level", func(t *testing.T) {
		t.Parallel()

		src := `package test

func f(p *int) {
	//stmbarrier:ignore
	*p = 1
	*p = 2 // stmbarrier:ignore
}
`
		fset := token.NewFileSet()
		file := parse(t, fset, src)

		m := BuildIgnoreMap(fset, file)
		if len(m) != 2 {
			t.Fatalf("len(BuildIgnoreMap()) = %d, want 2", len(m))
		}
		for _, line := range []int{5, 6} {
			if !m.ShouldIgnore(line) {
				t.Errorf("ShouldIgnore(%d) = false, want true", line)
			}
		}
		if m.ShouldIgnore(3) {
			t.Error("ShouldIgnore(3) = true, want false")
		}
	})

	t.Run("file level", func(t *testing.T) {
		t.Parallel()

		src := `// stmbarrier:ignore
// Package test is a test package.
package test

func foo() {}
`
		fset := token.NewFileSet()
		file := parse(t, fset, src)

		m := BuildIgnoreMap(fset, file)
		if !m.ShouldIgnore(5) {
			t.Error("Expected file-level ignore to affect line 5")
		}
		if unused := m.GetUnusedIgnores(); len(unused) != 0 {
			t.Errorf("GetUnusedIgnores() = %v, want none", unused)
		}
	})
}

func TestBuildFunctionIgnoreSet(t *testing.T) {
	t.Parallel()

	src := `package test

// stmbarrier:ignore
func ignored() {}

func notIgnored() {}

// Doc comment.
//stmbarrier:ignore
func (r *T) method() {}

type T struct{}
`
	fset := token.NewFileSet()
	file := parse(t, fset, src)

	set := BuildFunctionIgnoreSet(fset, file)
	if len(set) != 2 {
		t.Fatalf("Expected 2 ignored functions, got %d", len(set))
	}

	lines := map[string]int{}
	for _, decl := range file.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok {
			if entry, ok := set[fd.Name.Pos()]; ok {
				lines[fd.Name.Name] = entry.DirectiveLine
			}
		}
	}
	if lines["ignored"] != 3 || lines["method"] != 9 {
		t.Errorf("directive lines = %v, want ignored:3 method:9", lines)
	}
}

// =============================================================================
// Effects
// =============================================================================

const effectSrc = `package test

type Tx struct{ n int }

type List[T any] struct{ head *T }

// hash is a leaf function.
//
//stmbarrier:safe
func hash(n *Tx) int { return n.n }

//stmbarrier:releases
func (tx *Tx) Commit() {}

//stmbarrier:safe
//stmbarrier:releases
func both() {}

//stmbarrier:safe
func (l List[T]) Len() int { return 0 }

//stmbarrier:safe
func first[T any](xs []T) T { return xs[0] }

func plain() {}
`

func TestBuildEffectSet(t *testing.T) {
	t.Parallel()

	fset := token.NewFileSet()
	file := parse(t, fset, effectSrc)

	set := BuildEffectSet(file, "test/pkg")

	tests := []struct {
		key  FuncKey
		want effect.Level
	}{
		{FuncKey{PkgPath: "test/pkg", FuncName: "hash"}, effect.Safest},
		{FuncKey{PkgPath: "test/pkg", ReceiverType: "Tx", FuncName: "Commit"}, effect.ReleasesTransaction},
		{FuncKey{PkgPath: "test/pkg", FuncName: "both"}, effect.ReleasesTransaction},
		{FuncKey{PkgPath: "test/pkg", ReceiverType: "List", FuncName: "Len"}, effect.Safest},
		{FuncKey{PkgPath: "test/pkg", FuncName: "first"}, effect.Safest},
	}
	if len(set) != len(tests) {
		t.Errorf("len(BuildEffectSet()) = %d, want %d: %v", len(set), len(tests), set)
	}
	for _, tt := range tests {
		got, ok := set[tt.key]
		if !ok {
			t.Errorf("missing %+v", tt.key)
			continue
		}
		if got != tt.want {
			t.Errorf("set[%+v] = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestEffectSetLookup(t *testing.T) {
	t.Parallel()

	fset := token.NewFileSet()
	pkg := buildSSA(t, fset, parse(t, fset, effectSrc))

	tx := pkg.Pkg.Scope().Lookup("Tx").Type()
	commitObj, _, _ := types.LookupFieldOrMethod(types.NewPointer(tx), false, pkg.Pkg, "Commit")
	commit := pkg.Prog.FuncValue(commitObj.(*types.Func))

	tests := []struct {
		name   string
		fn     *ssa.Function
		want   effect.Level
		wantOK bool
	}{
		{"safe function", pkg.Func("hash"), effect.Safest, true},
		{"releasing method", commit, effect.ReleasesTransaction, true},
		{"releases wins", pkg.Func("both"), effect.ReleasesTransaction, true},
		{"generic function", pkg.Func("first"), effect.Safest, true},
		{"plain function", pkg.Func("plain"), 0, false},
		{"nil function", nil, 0, false},
	}

	s := NewEffectSet(fset)
	for _, tt := range tests {
		got, ok := s.Lookup(tt.fn)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("%s: Lookup() = (%v, %v), want (%v, %v)", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestEffectSetAdd(t *testing.T) {
	t.Parallel()

	fset := token.NewFileSet()
	pkg := buildSSA(t, fset, parse(t, fset, effectSrc))

	s := NewEffectSet(fset)
	key := KeyOf(pkg.Func("plain"))
	if key != (FuncKey{PkgPath: "test", FuncName: "plain"}) {
		t.Fatalf("KeyOf(plain) = %+v", key)
	}
	s.Add(key, effect.ReleasesTransaction)

	if !s.Contains(key) {
		t.Error("Contains() = false after Add")
	}
	if got, ok := s.Lookup(pkg.Func("plain")); !ok || got != effect.ReleasesTransaction {
		t.Errorf("Lookup(plain) = (%v, %v), want (RELEASES_TRANSACTION, true)", got, ok)
	}

	var nilSet *EffectSet
	nilSet.Add(key, effect.Safest)
	if nilSet.Contains(key) {
		t.Error("nil set should contain nothing")
	}
}

func TestEffectSetLookupSource(t *testing.T) {
	t.Parallel()

	fset, file := writeAndParse(t, effectSrc)
	pkg := buildSSA(t, fset, file)

	// A fresh set knows nothing about the package and reads the file from disk.
	s := NewEffectSet(fset)
	level, ok := s.lookupSource(pkg.Func("hash"))
	if !ok || level != effect.Safest {
		t.Errorf("lookupSource(hash) = (%v, %v), want (SAFEST, true)", level, ok)
	}
	if _, ok := s.lookupSource(pkg.Func("plain")); ok {
		t.Error("lookupSource(plain) found a directive")
	}
}

// =============================================================================
// Immutable
// =============================================================================

const immutableSrc = `package test

//stmbarrier:immutable
type Key struct {
	id int
}

type (
	//stmbarrier:immutable
	Name struct{ s string }

	Count struct{ n int }
)

type Entry struct {
	//stmbarrier:immutable
	key   *Key
	value int
	a, b  int //stmbarrier:immutable
}
`

func TestImmutableSet(t *testing.T) {
	t.Parallel()

	fset := token.NewFileSet()
	file := parse(t, fset, immutableSrc)
	info := &types.Info{Defs: make(map[*ast.Ident]types.Object)}
	pkg, err := new(types.Config).Check("test", fset, []*ast.File{file}, info)
	if err != nil {
		t.Fatalf("type check: %v", err)
	}

	s := NewImmutableSet(fset)
	s.AddFile(file, info)
	checkImmutable(t, s, pkg)
}

func TestImmutableSetFromSource(t *testing.T) {
	t.Parallel()

	fset, file := writeAndParse(t, immutableSrc)
	pkg, err := new(types.Config).Check("test", fset, []*ast.File{file}, nil)
	if err != nil {
		t.Fatalf("type check: %v", err)
	}

	checkImmutable(t, NewImmutableSet(fset), pkg)
}

func checkImmutable(t *testing.T, s *ImmutableSet, pkg *types.Package) {
	t.Helper()

	typeTests := []struct {
		name string
		want bool
	}{
		{"Key", true},
		{"Name", true},
		{"Count", false},
		{"Entry", false},
	}
	for _, tt := range typeTests {
		tn := pkg.Scope().Lookup(tt.name).(*types.TypeName)
		if got := s.Type(tn); got != tt.want {
			t.Errorf("Type(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}

	entry := pkg.Scope().Lookup("Entry").Type().Underlying().(*types.Struct)
	fieldTests := []struct {
		name string
		want bool
	}{
		{"key", true},
		{"value", false},
		{"a", true},
		{"b", true},
	}
	for _, tt := range fieldTests {
		var field *types.Var
		for i := range entry.NumFields() {
			if entry.Field(i).Name() == tt.name {
				field = entry.Field(i)
			}
		}
		if got := s.Field(field); got != tt.want {
			t.Errorf("Field(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if s.Type(nil) || s.Field(nil) {
		t.Error("nil objects should not be immutable")
	}
}

// =============================================================================
// Helpers
// =============================================================================

func TestExprToString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{"simple ident", `package test; func (r Foo) m() {}`, "Foo"},
		{"pointer", `package test; func (r *Foo) m() {}`, "Foo"},
		{"generic", `package test; func (r *List[T]) m() {}`, "List"},
		{"generic multiple params", `package test; func (r Map[K, V]) m() {}`, "Map"},
		{"parenthesized", `package test; func (r (*Foo)) m() {}`, "Foo"},
		{"function", `package test; func f() {}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			file := parse(t, token.NewFileSet(), tt.src)
			fd := file.Decls[0].(*ast.FuncDecl)
			if got := receiverName(fd); got != tt.expected {
				t.Errorf("receiverName() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func parse(t *testing.T, fset *token.FileSet, src string) *ast.File {
	t.Helper()
	file, err := parser.ParseFile(fset, "test.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	return file
}

// writeAndParse stores src in a temporary file so that lookups can parse it
// again by name.
func writeAndParse(t *testing.T, src string) (*token.FileSet, *ast.File) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.go")
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	return fset, file
}

func buildSSA(t *testing.T, fset *token.FileSet, file *ast.File) *ssa.Package {
	t.Helper()
	pkg, _, err := ssautil.BuildPackage(new(types.Config), fset, types.NewPackage("test", "test"), []*ast.File{file}, ssa.SanityCheckFunctions)
	if err != nil {
		t.Fatalf("BuildPackage: %v", err)
	}
	return pkg
}
