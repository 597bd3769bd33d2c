package risk

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strconv"

	"github.com/pmezard/go-difflib/difflib"
)

// fileShape is the structural summary of one Go source file: the set of
// declared functions (receiver-qualified) and the set of imported paths.
type fileShape struct {
	functions map[string]bool
	imports   map[string]bool
}

func parseShape(filename, src string) (*fileShape, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}

	shape := &fileShape{
		functions: make(map[string]bool),
		imports:   make(map[string]bool),
	}

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		shape.functions[functionKey(fn)] = true
	}
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		shape.imports[path] = true
	}
	return shape, nil
}

// functionKey qualifies methods by receiver type so Manager.Close and
// Store.Close are distinct entries.
func functionKey(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return fn.Name.Name
	}
	return fmt.Sprintf("%s.%s", receiverTypeName(fn.Recv.List[0].Type), fn.Name.Name)
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.IndexExpr:
		return receiverTypeName(t.X)
	case *ast.IndexListExpr:
		return receiverTypeName(t.X)
	default:
		return ""
	}
}

// missingFunctions returns the functions present here but absent in other,
// sorted for stable rationale text.
func (s *fileShape) missingFunctions(other *fileShape) []string {
	var missing []string
	for name := range s.functions {
		if !other.functions[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func (s *fileShape) missingImports(other *fileShape) []string {
	var missing []string
	for path := range s.imports {
		if !other.imports[path] {
			missing = append(missing, path)
		}
	}
	sort.Strings(missing)
	return missing
}

func (s *fileShape) sortedImports() []string {
	paths := make([]string, 0, len(s.imports))
	for path := range s.imports {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// changeRatio returns the fraction of the original file touched by the
// change, along with the touched line count.
func changeRatio(before, after string) (float64, int) {
	beforeLines := difflib.SplitLines(before)
	afterLines := difflib.SplitLines(after)

	matcher := difflib.NewMatcher(beforeLines, afterLines)
	changed := 0
	for _, op := range matcher.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		deleted := op.I2 - op.I1
		inserted := op.J2 - op.J1
		if deleted > inserted {
			changed += deleted
		} else {
			changed += inserted
		}
	}

	total := len(beforeLines)
	if total == 0 {
		return 1.0, changed
	}
	return float64(changed) / float64(total), changed
}
