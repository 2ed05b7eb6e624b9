// Package stmbarrier provides a static analysis tool that reports where a
// software transactional memory runtime needs read and write barriers in Go
// code.
//
// Every source function is lowered into a small control-flow IR and run
// through a barrier-placement pass that inserts the weakest barrier each
// memory access needs, given what every path reaching it has already proven.
// Each inserted barrier is reported as a diagnostic, much like the compiler
// reports escape analysis decisions.
//
// Effects of calls and immutability of types are declared with comment
// directives:
//
//	//stmbarrier:safe       the function neither collects nor releases
//	//stmbarrier:releases   the function may end the transaction
//	//stmbarrier:immutable  the type or field is never written after creation
//	//stmbarrier:ignore     no barriers on this line or in this function
package stmbarrier

import (
	"go/ast"
	"go/token"
	"log/slog"
	"os"

	"github.com/xyproto/env/v2"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/buildssa"

	"github.com/mpyw/stmbarrier/internal"
	"github.com/mpyw/stmbarrier/internal/directive"
)

// Analyzer is the main analyzer for stmbarrier.
var Analyzer = &analysis.Analyzer{
	Name:     "stmbarrier",
	Doc:      "reports the STM read/write barriers each memory access needs",
	Requires: []*analysis.Analyzer{buildssa.Analyzer},
	Run:      run,
}

var (
	debugFilter string
	trace       bool
)

func init() {
	Analyzer.Flags.StringVar(&debugFilter, "debug", env.Str("STMBARRIER_DEBUG"),
		"dump the rewritten IR of functions matching this regexp to stderr")
	Analyzer.Flags.BoolVar(&trace, "trace", env.Bool("STMBARRIER_TRACE"),
		"log solver iterations to stderr")
}

func run(pass *analysis.Pass) (any, error) {
	ssaInfo := pass.ResultOf[buildssa.Analyzer].(*buildssa.SSA)

	// Build set of files to skip
	skipFiles := buildSkipFiles(pass)

	// Build ignore maps for each file (excluding skipped files)
	ignoreMaps := make(map[string]directive.IgnoreMap)
	funcIgnores := make(map[string]map[token.Pos]directive.FunctionIgnoreEntry)
	effects := directive.NewEffectSet(pass.Fset)
	immutable := directive.NewImmutableSet(pass.Fset)

	pkgPath := pass.Pkg.Path()
	for _, file := range pass.Files {
		filename := pass.Fset.Position(file.Pos()).Filename
		if skipFiles[filename] {
			continue
		}
		ignoreMaps[filename] = directive.BuildIgnoreMap(pass.Fset, file)
		funcIgnores[filename] = directive.BuildFunctionIgnoreSet(pass.Fset, file)

		for key, level := range directive.BuildEffectSet(file, pkgPath) {
			effects.Add(key, level)
		}
		immutable.AddFile(file, pass.TypesInfo)
	}

	notes := internal.NewAnnotations(pass.Fset, ignoreMaps, effects, immutable)
	cfg := internal.Config{DebugFilter: debugFilter}
	if trace {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if err := internal.RunSSA(pass, ssaInfo, ignoreMaps, funcIgnores, notes, skipFiles, cfg); err != nil {
		return nil, err
	}
	return nil, nil
}

// buildSkipFiles creates a set of filenames to skip.
// Generated files are always skipped.
// Test files can be skipped via the driver's built-in -test flag.
func buildSkipFiles(pass *analysis.Pass) map[string]bool {
	skipFiles := make(map[string]bool)

	for _, file := range pass.Files {
		filename := pass.Fset.Position(file.Pos()).Filename

		// Always skip generated files
		if ast.IsGenerated(file) {
			skipFiles[filename] = true
		}
	}

	return skipFiles
}
