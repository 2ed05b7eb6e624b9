// Package directive handles stmbarrier comment directives.
//
// # Supported Directives
//
//	//stmbarrier:ignore    - Run the next line (or same line) without barriers
//	//stmbarrier:safe      - Mark a function as unable to collect or yield
//	//stmbarrier:releases  - Mark a function as yielding the transaction
//	//stmbarrier:immutable - Mark a type or struct field as never written after construction
//
// # Directive Placement
//
// Directives can be placed:
//   - On the line before the affected code (most common)
//   - On the same line as the affected code
//   - On a function declaration (function-level ignore/safe/releases)
//   - On a type declaration or struct field (immutable)
//   - Before the package declaration (file-level ignore)
//
// # Examples
//
// Line-level ignore:
//
//	//stmbarrier:ignore
//	n.count++  // no barrier is placed for this access
//
// Function effects:
//
//	//stmbarrier:safe
//	func hash(n *Node) uint64 { ... }
//
//	//stmbarrier:releases
//	func commit(tx *Tx) error { ... }
//
// Immutable data:
//
//	//stmbarrier:immutable
//	type Key struct {
//	    id   int
//	    name string
//	}
//
//	type Entry struct {
//	    key   *Key //stmbarrier:immutable
//	    value int
//	}
package directive

import (
	"go/ast"
	"strings"
)

const directivePrefix = "stmbarrier:"

// hasDirective checks if a comment contains the specified directive.
// Supports both "//stmbarrier:name" and "// stmbarrier:name".
func hasDirective(text, name string) bool {
	text = strings.TrimPrefix(text, "//")
	text = strings.TrimSpace(text)
	rest, ok := strings.CutPrefix(text, directivePrefix+name)
	if !ok {
		return false
	}
	// Reject longer directive names sharing the prefix.
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

// IsIgnoreDirective checks if a comment is an ignore directive.
func IsIgnoreDirective(text string) bool { return hasDirective(text, "ignore") }

// IsSafeDirective checks if a comment is a safe directive.
func IsSafeDirective(text string) bool { return hasDirective(text, "safe") }

// IsReleasesDirective checks if a comment is a releases directive.
func IsReleasesDirective(text string) bool { return hasDirective(text, "releases") }

// IsImmutableDirective checks if a comment is an immutable directive.
func IsImmutableDirective(text string) bool { return hasDirective(text, "immutable") }

// hasAny reports whether any comment in the group satisfies is.
func hasAny(cg *ast.CommentGroup, is func(string) bool) bool {
	if cg == nil {
		return false
	}
	for _, c := range cg.List {
		if is(c.Text) {
			return true
		}
	}
	return false
}
