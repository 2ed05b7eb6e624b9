package internal

import (
	"bytes"
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strings"
	"testing"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/buildssa"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/mpyw/stmbarrier/internal/barrier"
	"github.com/mpyw/stmbarrier/internal/directive"
	"github.com/mpyw/stmbarrier/internal/effect"
	"github.com/mpyw/stmbarrier/internal/ir"
)

const src = `package p

type Node struct{ next *Node }

//stmbarrier:ignore
func skipped(n *Node) *Node {
	return func() *Node { return n.next }()
}

func kept(n *Node) *Node {
	return n.next //stmbarrier:ignore
}

//stmbarrier:safe
func hash(n *Node) int { return 0 }
`

func build(t *testing.T) (*token.FileSet, *ast.File, *ssa.Package) {
	t.Helper()

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "p.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	pkg := types.NewPackage("p", "p")
	ssaPkg, _, err := ssautil.BuildPackage(new(types.Config), fset, pkg, []*ast.File{file}, ssa.SanityCheckFunctions)
	if err != nil {
		t.Fatalf("BuildPackage() error = %v", err)
	}
	return fset, file, ssaPkg
}

// srcFuncs mimics buildssa: package-level functions followed by their
// closures.
func srcFuncs(pkg *ssa.Package) *buildssa.SSA {
	info := &buildssa.SSA{Pkg: pkg}
	var add func(fn *ssa.Function)
	add = func(fn *ssa.Function) {
		info.SrcFuncs = append(info.SrcFuncs, fn)
		for _, anon := range fn.AnonFuncs {
			add(anon)
		}
	}
	for _, name := range []string{"skipped", "kept", "hash"} {
		add(pkg.Func(name))
	}
	return info
}

func TestIgnoredFunction(t *testing.T) {
	t.Parallel()

	fset, file, pkg := build(t)
	ignoreMap := directive.BuildIgnoreMap(fset, file)
	funcIgnores := directive.BuildFunctionIgnoreSet(fset, file)

	skipped := pkg.Func("skipped")
	if !ignoredFunction(skipped, funcIgnores, ignoreMap) {
		t.Error("skipped should be ignored")
	}
	if len(skipped.AnonFuncs) != 1 || !ignoredFunction(skipped.AnonFuncs[0], funcIgnores, ignoreMap) {
		t.Error("closure inside skipped should be ignored")
	}
	if ignoredFunction(pkg.Func("kept"), funcIgnores, ignoreMap) {
		t.Error("kept should not be ignored")
	}
	if ignoredFunction(pkg.Func("kept"), nil, nil) {
		t.Error("nil ignore set should ignore nothing")
	}

	// Only the line-level directive in kept is left.
	if got := len(ignoreMap.GetUnusedIgnores()); got != 1 {
		t.Errorf("unused ignores = %d, want 1", got)
	}
}

func TestAnnotations(t *testing.T) {
	t.Parallel()

	fset, file, pkg := build(t)
	filename := fset.Position(file.Pos()).Filename
	ignoreMaps := map[string]directive.IgnoreMap{filename: directive.BuildIgnoreMap(fset, file)}

	effects := directive.NewEffectSet(fset)
	for key, level := range directive.BuildEffectSet(file, "p") {
		effects.Add(key, level)
	}
	notes := NewAnnotations(fset, ignoreMaps, effects, nil)

	if level, ok := notes.CallEffect(pkg.Func("hash")); !ok || level != effect.Safest {
		t.Errorf("CallEffect(hash) = %v, %v, want Safest, true", level, ok)
	}
	if _, ok := notes.CallEffect(pkg.Func("kept")); ok {
		t.Error("CallEffect(kept) should be undeclared")
	}
	if notes.ImmutableType(nil) || notes.ImmutableField(nil) {
		t.Error("nil immutable set should mark nothing")
	}

	line := func(n int) token.Pos { return fset.File(file.Pos()).LineStart(n) }
	if !notes.IgnoredAt(line(11)) {
		t.Error("line 11 should be ignored")
	}
	if notes.IgnoredAt(line(10)) {
		t.Error("line 10 should not be ignored")
	}
	if notes.IgnoredAt(token.NoPos) {
		t.Error("NoPos should not be ignored")
	}
	if got := len(ignoreMaps[filename].GetUnusedIgnores()); got != 1 {
		t.Errorf("unused ignores = %d, want 1 (function-level)", got)
	}
}

func TestChecker(t *testing.T) {
	t.Parallel()

	_, _, pkg := build(t)
	var diags []analysis.Diagnostic
	pass := &analysis.Pass{
		Fset:   token.NewFileSet(),
		Report: func(d analysis.Diagnostic) { diags = append(diags, d) },
	}
	var out bytes.Buffer
	chk := newChecker(pass, nil, &out)

	fn := pkg.Func("kept")
	chk.report(fn.Pos(), "x")
	chk.report(fn.Pos(), "x")
	chk.report(fn.Pos(), "y")
	chk.checkResult(fn, &barrier.Result{Err: barrier.ErrNoFixpoint})

	want := []string{"x", "y", barrier.ErrNoFixpoint.Error()}
	if len(diags) != len(want) {
		t.Fatalf("len(diags) = %d, want %d", len(diags), len(want))
	}
	for i, w := range want {
		if diags[i].Message != w {
			t.Errorf("diags[%d] = %q, want %q", i, diags[i].Message, w)
		}
	}
	if out.Len() != 0 {
		t.Errorf("unexpected debug output: %s", out.String())
	}
}

func TestChecker_PassError(t *testing.T) {
	t.Parallel()

	_, _, pkg := build(t)
	var diags []analysis.Diagnostic
	pass := &analysis.Pass{
		Fset:   token.NewFileSet(),
		Report: func(d analysis.Diagnostic) { diags = append(diags, d) },
	}
	chk := newChecker(pass, nil, &bytes.Buffer{})

	r := ir.NewRoutine("kept")
	r.Entry().Add(&ir.IgnoreEnd{})
	r.Entry().Add(&ir.Return{})
	_, err := barrier.Transform(r, barrier.Options{})
	if !errors.Is(err, barrier.ErrMalformedRegion) {
		t.Fatalf("Transform() error = %v, want ErrMalformedRegion", err)
	}
	chk.checkResult(pkg.Func("kept"), &barrier.Result{Err: err})

	if len(diags) != 1 {
		t.Fatalf("len(diags) = %d, want 1", len(diags))
	}
	want := "routine kept: malformed ignored region: block0 op 0: end without begin"
	if got := diags[0].Message; got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

func TestChecker_Debug(t *testing.T) {
	t.Parallel()

	fset, _, pkg := build(t)
	notes := NewAnnotations(fset, nil, nil, nil)

	var diags []analysis.Diagnostic
	pass := &analysis.Pass{
		Fset:   fset,
		Pkg:    pkg.Pkg,
		Report: func(d analysis.Diagnostic) { diags = append(diags, d) },
	}
	var out bytes.Buffer
	err := RunSSA(pass, srcFuncs(pkg), nil, nil, notes, nil, Config{
		DebugFilter: "kept$",
		DebugOutput: &out,
	})
	if err != nil {
		t.Fatalf("RunSSA() error = %v", err)
	}

	dump := out.String()
	for _, w := range []string{"=== Debug output for p.kept ===", "Function: kept", "stm_barrier[A2R,full]"} {
		if !strings.Contains(dump, w) {
			t.Errorf("debug output missing %q:\n%s", w, dump)
		}
	}
	if strings.Contains(dump, "skipped") {
		t.Errorf("debug output should only cover kept:\n%s", dump)
	}

	var found bool
	for _, d := range diags {
		if d.Message == "barrier A2R (full) on n before load of n.next" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing barrier diagnostic, got %v", diags)
	}
}

func TestRunSSA_InvalidDebugFilter(t *testing.T) {
	t.Parallel()

	fset, _, pkg := build(t)
	var diags []analysis.Diagnostic
	pass := &analysis.Pass{
		Fset:   fset,
		Pkg:    pkg.Pkg,
		Report: func(d analysis.Diagnostic) { diags = append(diags, d) },
	}
	if err := RunSSA(pass, srcFuncs(pkg), nil, nil, nil, nil, Config{DebugFilter: "("}); err != nil {
		t.Fatalf("RunSSA() error = %v", err)
	}
	if len(diags) == 0 || !strings.HasPrefix(diags[0].Message, "invalid debug filter regex") {
		t.Errorf("diags = %v, want invalid regex report first", diags)
	}
}
