// Package internal runs the barrier pass over the source functions of a
// package and reports what it inserts.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────────────┐
//	│                         Analysis Flow                                    │
//	│                                                                          │
//	│   analyzer.go (public)                                                   │
//	│        │  directives, flags                                              │
//	│        ▼                                                                 │
//	│   internal/analyzer.go   ◀── You are here                                │
//	│   ┌─────────────────────────────────────────────────────────────────┐   │
//	│   │  RunSSA()                                                       │   │
//	│   │    │                                                            │   │
//	│   │    ├── Skip excluded files/functions                            │   │
//	│   │    ├── Lower each function (internal/lower)                     │   │
//	│   │    ├── Transform all routines (internal/barrier)                │   │
//	│   │    └── Report barriers and unused ignore directives             │   │
//	│   └─────────────────────────────────────────────────────────────────┘   │
//	└─────────────────────────────────────────────────────────────────────────┘
//
// Lowering is sequential because it shares one type cache and marks ignore
// directives as used. The pass itself runs on all routines concurrently.
package internal

import (
	"context"
	"fmt"
	"go/token"
	"io"
	"log/slog"
	"os"
	"regexp"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/buildssa"
	"golang.org/x/tools/go/ssa"

	"github.com/mpyw/stmbarrier/internal/alias"
	"github.com/mpyw/stmbarrier/internal/barrier"
	"github.com/mpyw/stmbarrier/internal/debug"
	"github.com/mpyw/stmbarrier/internal/directive"
	"github.com/mpyw/stmbarrier/internal/ir"
	"github.com/mpyw/stmbarrier/internal/lower"
)

// Config holds the analyzer settings.
type Config struct {
	// DebugFilter selects functions whose rewritten IR is dumped.
	DebugFilter string
	// Logger receives solver traces. Nil disables them.
	Logger *slog.Logger
	// DebugOutput receives the dumps. Nil means os.Stderr.
	DebugOutput io.Writer
}

// unit is a source function together with its lowered routine.
type unit struct {
	fn      *ssa.Function
	routine *ir.Routine
}

// =============================================================================
// Entry Point
// =============================================================================

// RunSSA lowers and transforms every source function and reports each
// barrier the pass inserts.
//
// Processing flow:
//  1. Skip functions in excluded files (generated files, etc.)
//  2. Skip functions covered by a function-level //stmbarrier:ignore
//  3. Lower the remaining functions, reporting those that cannot be lowered
//  4. Transform all routines against one alias classifier
//  5. Report barriers, pass errors and debug dumps
//  6. Report unused ignore directives
func RunSSA(
	pass *analysis.Pass,
	ssaInfo *buildssa.SSA,
	ignoreMaps map[string]directive.IgnoreMap,
	funcIgnores map[string]map[token.Pos]directive.FunctionIgnoreEntry,
	notes *Annotations,
	skipFiles map[string]bool,
	cfg Config,
) error {
	// Compile debug filter regex if provided
	var debugFilterRegex *regexp.Regexp
	if cfg.DebugFilter != "" {
		var err error
		debugFilterRegex, err = regexp.Compile(cfg.DebugFilter)
		if err != nil {
			// Report regex error but continue analysis without debug mode
			pass.Reportf(token.NoPos, "invalid debug filter regex: %v", err)
			debugFilterRegex = nil
		}
	}

	var ann lower.Annotations
	if notes != nil {
		ann = notes
	}
	lowerer := lower.New(pass.Pkg, ann)
	var units []unit
	for _, fn := range ssaInfo.SrcFuncs {
		pos := fn.Pos()
		if !pos.IsValid() {
			continue
		}

		filename := pass.Fset.Position(pos).Filename
		if skipFiles[filename] {
			continue
		}
		if ignoredFunction(fn, funcIgnores[filename], ignoreMaps[filename]) {
			continue
		}

		r, err := lowerer.Lower(fn)
		if err != nil {
			if len(fn.Blocks) == 0 {
				// Declared without a body.
				continue
			}
			pass.Reportf(pos, "cannot lower %s: %v", fn.Name(), err)
			continue
		}
		units = append(units, unit{fn: fn, routine: r})
	}

	routines := make([]*ir.Routine, len(units))
	for i, u := range units {
		routines[i] = u.routine
	}
	results, err := barrier.TransformAll(context.Background(), routines, barrier.Options{
		Alias:  alias.New(lowerer.Types()...),
		Logger: cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("transforming %s: %w", pass.Pkg.Path(), err)
	}

	chk := newChecker(pass, debugFilterRegex, cfg.DebugOutput)
	for i, res := range results {
		chk.checkResult(units[i].fn, res)
	}

	// Report unused ignore directives
	for _, ignoreMap := range ignoreMaps {
		if ignoreMap == nil {
			continue
		}
		for _, pos := range ignoreMap.GetUnusedIgnores() {
			pass.Reportf(pos, "unused stmbarrier:ignore directive")
		}
	}
	return nil
}

// ignoredFunction reports whether fn, or the function declaration enclosing
// it, carries a function-level ignore directive. The directive is marked used.
func ignoredFunction(
	fn *ssa.Function,
	funcIgnoreSet map[token.Pos]directive.FunctionIgnoreEntry,
	ignoreMap directive.IgnoreMap,
) bool {
	if funcIgnoreSet == nil {
		return false
	}
	for f := fn; f != nil; f = f.Parent() {
		entry, ignored := funcIgnoreSet[f.Pos()]
		if !ignored {
			continue
		}
		if ignoreMap != nil {
			ignoreMap.MarkUsed(entry.DirectiveLine)
		}
		return true
	}
	return false
}

// =============================================================================
// Checker
// =============================================================================

// checker turns pass results into diagnostics.
//
// It ensures:
//   - Identical diagnostics at the same position are only reported once
//   - Failed routines are reported at the function position
//   - Debug dumps are written for functions matching the filter
type checker struct {
	pass             *analysis.Pass
	reported         map[report]bool
	debugFilterRegex *regexp.Regexp
	debugOutput      io.Writer
	collector        *debug.Collector
}

type report struct {
	pos     token.Pos
	message string
}

func newChecker(pass *analysis.Pass, debugFilterRegex *regexp.Regexp, debugOutput io.Writer) *checker {
	if debugOutput == nil {
		debugOutput = os.Stderr
	}
	return &checker{
		pass:             pass,
		reported:         make(map[report]bool),
		debugFilterRegex: debugFilterRegex,
		debugOutput:      debugOutput,
		collector:        debug.NewCollector(),
	}
}

// checkResult reports the barriers of one transformed function.
func (c *checker) checkResult(fn *ssa.Function, res *barrier.Result) {
	if res.Err != nil {
		c.report(fn.Pos(), res.Err.Error())
		return
	}

	if c.debugFilterRegex != nil && c.debugFilterRegex.MatchString(fn.String()) {
		info := c.collector.Record(res, fn.Pos())
		fmt.Fprintf(c.debugOutput, "\n=== Debug output for %s ===\n", fn.String())
		fmt.Fprint(c.debugOutput, debug.FormatRoutine(info, c.pass.Fset))
	}

	for _, v := range debug.Violations(res) {
		pos := v.Pos()
		if !pos.IsValid() {
			pos = fn.Pos()
		}
		c.report(pos, v.Message())
	}
}

// report reports a diagnostic unless it was already reported.
func (c *checker) report(pos token.Pos, message string) {
	key := report{pos: pos, message: message}
	if c.reported[key] {
		return
	}
	c.reported[key] = true

	c.pass.Reportf(pos, "%s", message)
}
