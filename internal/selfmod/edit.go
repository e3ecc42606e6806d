package selfmod

import (
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/ppiankov/ranger/internal/model"
)

// edit computes the new contents of a Go source file. The result is not guaranteed
// to parse; the caller re-parses it after writing.
func edit(src []byte, kind model.Kind, payload string) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch kind {
	case model.KindAddFunction, model.KindAddClass:
		if err := checkRedeclared(src, payload); err != nil {
			return nil, err
		}
		out = appendDecl(src, payload)
	case model.KindAddImport:
		out, err = addImport(src, payload)
	case model.KindModifyFunction:
		out, err = replaceDecl(src, payload, findFunc)
	case model.KindModifyClass:
		out, err = replaceDecl(src, payload, findType)
	default:
		return nil, model.Reject("unknown modification kind", map[string]any{"kind": kind.String()})
	}
	if err != nil {
		return nil, err
	}

	// Unparsable output is returned as is so the post-write check can roll it back
	if formatted, ferr := format.Source(out); ferr == nil {
		out = formatted
	}
	return out, nil
}

// checkRedeclared rejects an appended declaration whose name the target already
// declares at top level; the file would parse but not compile. Unparsable input is
// left to the post-write syntax check.
func checkRedeclared(src []byte, payload string) error {
	pf, err := parser.ParseFile(token.NewFileSet(), "", "package p\n\n"+payload, 0)
	if err != nil {
		return nil
	}
	tf, err := parser.ParseFile(token.NewFileSet(), "", src, 0)
	if err != nil {
		return nil
	}

	existing := make(map[string]bool)
	for _, name := range declaredNames(tf) {
		existing[name] = true
	}
	for _, name := range declaredNames(pf) {
		if existing[name] {
			return model.Reject(fmt.Sprintf("%s is already declared", name), map[string]any{
				"name": name,
				"hint": "use modify_function or modify_class",
			})
		}
	}
	return nil
}

// declaredNames lists top-level funcs (Recv.Name for methods), types, vars and consts.
// The blank identifier is skipped.
func declaredNames(f *ast.File) []string {
	var names []string
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil && (d.Name.Name == "init" || d.Name.Name == "_") {
				continue
			}
			names = append(names, funcName(d))
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch sp := spec.(type) {
				case *ast.TypeSpec:
					names = append(names, sp.Name.Name)
				case *ast.ValueSpec:
					for _, n := range sp.Names {
						if n.Name != "_" {
							names = append(names, n.Name)
						}
					}
				}
			}
		}
	}
	return names
}

func appendDecl(src []byte, payload string) []byte {
	body := strings.TrimRight(string(src), " \t\r\n")
	return []byte(body + "\n\n" + strings.TrimSpace(payload) + "\n")
}

// addImport inserts an import declaration after the last import declaration,
// or after the package clause when the file has none
func addImport(src []byte, payload string) ([]byte, error) {
	stmt, path, err := importStatement(payload)
	if err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", src, parser.ImportsOnly|parser.ParseComments)
	if err != nil {
		return nil, model.Reject("target file does not parse", map[string]any{"error": err.Error()})
	}
	for _, imp := range f.Imports {
		if existing, _ := strconv.Unquote(imp.Path.Value); existing == path {
			return nil, model.Reject("import already present", map[string]any{"import": path})
		}
	}

	var at token.Pos
	for _, decl := range f.Decls {
		if gd, ok := decl.(*ast.GenDecl); ok && gd.Tok == token.IMPORT {
			at = gd.End()
		}
	}
	prefix := "\n"
	if at == token.NoPos {
		at = f.Name.End()
		prefix = "\n\n"
	}

	offset := fset.Position(at).Offset
	var b strings.Builder
	b.Write(src[:offset])
	b.WriteString(prefix)
	b.WriteString(stmt)
	b.Write(src[offset:])
	return []byte(b.String()), nil
}

// importStatement normalizes `fmt`, `"fmt"`, `import "fmt"` and `import x "fmt"`
func importStatement(payload string) (stmt, path string, err error) {
	p := strings.TrimSpace(payload)
	if !strings.HasPrefix(p, "import") {
		if !strings.HasPrefix(p, `"`) {
			p = strconv.Quote(p)
		}
		p = "import " + p
	}

	fset := token.NewFileSet()
	f, perr := parser.ParseFile(fset, "", "package p\n\n"+p+"\n", parser.ImportsOnly)
	if perr != nil || len(f.Imports) != 1 {
		return "", "", &model.Violation{
			Kind:    model.ErrSyntaxRegression,
			Reason:  "import payload must declare exactly one import",
			Details: map[string]any{"payload": payload},
		}
	}
	path, _ = strconv.Unquote(f.Imports[0].Path.Value)
	return p, path, nil
}

// declFinder locates the declaration in target matching the payload declaration
type declFinder func(payload *ast.File, target *ast.File) (name string, found ast.Decl, err error)

// replaceDecl swaps the byte range of a named declaration (doc comment included)
// for the payload
func replaceDecl(src []byte, payload string, find declFinder) ([]byte, error) {
	pf, err := parser.ParseFile(token.NewFileSet(), "", "package p\n\n"+payload, 0)
	if err != nil || len(pf.Decls) == 0 {
		return nil, &model.Violation{
			Kind:    model.ErrSyntaxRegression,
			Reason:  "payload does not parse as a declaration",
			Details: map[string]any{"error": fmt.Sprint(err)},
		}
	}

	fset := token.NewFileSet()
	tf, err := parser.ParseFile(fset, "", src, parser.ParseComments)
	if err != nil {
		return nil, model.Reject("target file does not parse", map[string]any{"error": err.Error()})
	}

	name, decl, err := find(pf, tf)
	if err != nil {
		return nil, err
	}
	if decl == nil {
		return nil, model.Reject(fmt.Sprintf("declaration %s not found", name), map[string]any{"name": name})
	}

	start := decl.Pos()
	switch d := decl.(type) {
	case *ast.FuncDecl:
		if d.Doc != nil {
			start = d.Doc.Pos()
		}
	case *ast.GenDecl:
		if d.Doc != nil {
			start = d.Doc.Pos()
		}
	}
	from := fset.Position(start).Offset
	to := fset.Position(decl.End()).Offset

	var b strings.Builder
	b.Write(src[:from])
	b.WriteString(strings.TrimSpace(payload))
	b.Write(src[to:])
	return []byte(b.String()), nil
}

func findFunc(payload, target *ast.File) (string, ast.Decl, error) {
	want, ok := payload.Decls[0].(*ast.FuncDecl)
	if !ok {
		return "", nil, model.Reject("payload is not a function declaration", nil)
	}
	name := funcName(want)
	for _, decl := range target.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok && funcName(fd) == name {
			return name, fd, nil
		}
	}
	return name, nil, nil
}

func findType(payload, target *ast.File) (string, ast.Decl, error) {
	want, ok := payload.Decls[0].(*ast.GenDecl)
	if !ok || want.Tok != token.TYPE || len(want.Specs) != 1 {
		return "", nil, model.Reject("payload is not a single type declaration", nil)
	}
	name := want.Specs[0].(*ast.TypeSpec).Name.Name
	for _, decl := range target.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			if spec.(*ast.TypeSpec).Name.Name != name {
				continue
			}
			// Only a standalone type declaration is replaced whole
			if len(gd.Specs) != 1 {
				return name, nil, model.Reject(fmt.Sprintf("type %s is declared inside a group", name), nil)
			}
			return name, gd, nil
		}
	}
	return name, nil, nil
}

// funcName is Name for functions and Recv.Name for methods
func funcName(fd *ast.FuncDecl) string {
	if fd.Recv == nil || len(fd.Recv.List) == 0 {
		return fd.Name.Name
	}
	return recvTypeName(fd.Recv.List[0].Type) + "." + fd.Name.Name
}

func recvTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return recvTypeName(t.X)
	case *ast.IndexExpr:
		return recvTypeName(t.X)
	case *ast.IndexListExpr:
		return recvTypeName(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

// checkSyntax parses a Go file
func checkSyntax(path string, src []byte) error {
	if _, err := parser.ParseFile(token.NewFileSet(), path, src, parser.AllErrors); err != nil {
		return &model.Violation{
			Kind:    model.ErrSyntaxRegression,
			Reason:  "modified file does not parse",
			Details: map[string]any{"error": err.Error()},
		}
	}
	return nil
}

// topLevelNames lists declared function names (Recv.Name for methods) and type names
func topLevelNames(src []byte) ([]string, error) {
	f, err := parser.ParseFile(token.NewFileSet(), "", src, 0)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			names = append(names, funcName(d))
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				names = append(names, spec.(*ast.TypeSpec).Name.Name)
			}
		}
	}
	return names, nil
}
