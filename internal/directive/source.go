package directive

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// sourceCache parses the source files of declarations outside the current
// package, where the analysis pass only has type information.
type sourceCache struct {
	fset  *token.FileSet
	files map[string]*ast.File // nil entry: file failed to parse
}

func newSourceCache(fset *token.FileSet) *sourceCache {
	return &sourceCache{fset: fset, files: make(map[string]*ast.File)}
}

// lookup returns the parsed file containing pos and the line pos is on.
func (c *sourceCache) lookup(pos token.Pos) (*ast.File, int) {
	if c == nil || c.fset == nil || !pos.IsValid() {
		return nil, 0
	}
	position := c.fset.Position(pos)
	if position.Filename == "" {
		return nil, 0
	}
	file, ok := c.files[position.Filename]
	if !ok {
		var err error
		file, err = parser.ParseFile(c.fset, position.Filename, nil, parser.ParseComments)
		if err != nil {
			file = nil
		}
		c.files[position.Filename] = file
	}
	return file, position.Line
}

// line returns the line of a node in a file parsed by the cache.
func (c *sourceCache) line(pos token.Pos) int {
	return c.fset.Position(pos).Line
}

// stripPointer removes leading "*" from a type string.
func stripPointer(s string) string {
	return strings.TrimPrefix(s, "*")
}

// exprToString converts an ast.Expr to a string representation.
// For generic types like List[T], returns just the base type name.
func exprToString(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.StarExpr:
		return "*" + exprToString(e.X)
	case *ast.SelectorExpr:
		return exprToString(e.X) + "." + e.Sel.Name
	case *ast.IndexExpr:
		return exprToString(e.X)
	case *ast.IndexListExpr:
		return exprToString(e.X)
	case *ast.ParenExpr:
		return exprToString(e.X)
	default:
		return ""
	}
}

// receiverName returns the base type name of a method receiver declaration.
func receiverName(fd *ast.FuncDecl) string {
	if fd.Recv == nil || len(fd.Recv.List) == 0 {
		return ""
	}
	return stripPointer(exprToString(fd.Recv.List[0].Type))
}
