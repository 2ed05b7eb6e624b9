package directive

import (
	"go/ast"
	"go/token"
	"slices"
)

// fileLevel is the IgnoreMap key of a file-level ignore.
const fileLevel = -1

// ignoreEntry tracks an ignore directive and whether it covered any code.
type ignoreEntry struct {
	pos  token.Pos // Position of the ignore comment
	used bool      // Whether this ignore turned at least one access into an ignored region
}

// IgnoreMap tracks line numbers that have ignore comments.
type IgnoreMap map[int]*ignoreEntry

// BuildIgnoreMap scans a file for ignore comments and returns a map.
//
// Example:
//
//	//stmbarrier:ignore        // Line 5 → map[5] (line-level)
//	n.count++                  // Line 6 → ignored (line 5 covers line 6)
//
//	// File-level ignore (in package doc):
//	// stmbarrier:ignore       // → map[-1] (special marker)
//	package main               // All lines ignored
//
// The returned map uses line numbers as keys:
//   - Positive line: ignore directive for the same and the next line
//   - Line -1: file-level ignore (all lines)
func BuildIgnoreMap(fset *token.FileSet, file *ast.File) IgnoreMap {
	m := make(IgnoreMap)

	for _, cg := range file.Comments {
		if cg == file.Doc {
			continue
		}
		for _, c := range cg.List {
			if IsIgnoreDirective(c.Text) {
				m[fset.Position(c.Pos()).Line] = &ignoreEntry{pos: c.Pos()}
			}
		}
	}

	// File-level ignores are always considered used.
	if file.Doc != nil {
		for _, c := range file.Doc.List {
			if IsIgnoreDirective(c.Text) {
				m[fileLevel] = &ignoreEntry{pos: c.Pos(), used: true}
			}
		}
	}

	return m
}

// ShouldIgnore returns true if the given line should be ignored.
// It checks if:
// - File-level ignore is active (marker at line -1)
// - The same line has an ignore comment
// - The previous line has an ignore comment
// When an ignore is used, it marks the entry as used.
func (m IgnoreMap) ShouldIgnore(line int) bool {
	if entry, fileIgnore := m[fileLevel]; fileIgnore {
		entry.used = true
		return true
	}
	if entry, onSameLine := m[line]; onSameLine {
		entry.used = true
		return true
	}
	if entry, onPrevLine := m[line-1]; onPrevLine {
		entry.used = true
		return true
	}
	return false
}

// GetUnusedIgnores returns the positions of ignore directives that were not
// used, in source order.
func (m IgnoreMap) GetUnusedIgnores() []token.Pos {
	var unused []token.Pos
	for line, entry := range m {
		if line == fileLevel {
			continue
		}
		if !entry.used {
			unused = append(unused, entry.pos)
		}
	}
	slices.Sort(unused)
	return unused
}

// MarkUsed marks the ignore directive at the given line as used.
func (m IgnoreMap) MarkUsed(line int) {
	if entry, ok := m[line]; ok {
		entry.used = true
	}
}

// FunctionIgnoreEntry represents a function-level ignore directive.
type FunctionIgnoreEntry struct {
	DirectiveLine int // Line number of the ignore directive (for marking as used)
}

// BuildFunctionIgnoreSet builds the set of functions that are analyzed
// without any barriers, keyed by the position of the function name.
// SSA's Function.Pos() returns the name position.
func BuildFunctionIgnoreSet(fset *token.FileSet, file *ast.File) map[token.Pos]FunctionIgnoreEntry {
	result := make(map[token.Pos]FunctionIgnoreEntry)

	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Doc == nil {
			continue
		}
		for _, c := range fd.Doc.List {
			if IsIgnoreDirective(c.Text) {
				result[fd.Name.Pos()] = FunctionIgnoreEntry{
					DirectiveLine: fset.Position(c.Pos()).Line,
				}
				break
			}
		}
	}

	return result
}
