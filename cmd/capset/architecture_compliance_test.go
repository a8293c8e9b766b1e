package main

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
)

// storeCallsAllowed are the store methods the CLI may call directly. Every
// mutation goes through the model.
var storeCallsAllowed = []string{"Close", "MigrationPlan"}

func TestCLIMutationsUseModelBoundary(t *testing.T) {
	fset := token.NewFileSet()
	for _, path := range commandSourceFiles(t) {
		file, err := parser.ParseFile(fset, path, nil, 0)
		if err != nil {
			t.Fatalf("parse %s: %v", path, err)
		}
		ast.Inspect(file, func(n ast.Node) bool {
			sel, ok := n.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			inner, ok := sel.X.(*ast.SelectorExpr)
			if !ok || inner.Sel.Name != "store" {
				return true
			}
			if !slices.Contains(storeCallsAllowed, sel.Sel.Name) {
				t.Fatalf("%s calls store.%s directly", fset.Position(sel.Pos()), sel.Sel.Name)
			}
			return true
		})
	}
}

// packageImportsForbidden lists, per internal package, the capset packages
// it must not import.
var packageImportsForbidden = map[string][]string{
	"models":    {"capset/internal/store", "capset/internal/command", "capset/internal/model"},
	"events":    {"capset/internal/store", "capset/internal/command", "capset/internal/model"},
	"store":     {"capset/internal/command", "capset/internal/model", "capset/internal/events"},
	"blobstore": {"capset/internal/store", "capset/internal/command", "capset/internal/model"},
	"command":   {"capset/internal/model"},
	"manifest":  {"capset/internal/store", "capset/internal/model"},
}

func TestInternalPackageLayering(t *testing.T) {
	root := filepath.Join(filepath.Dir(commandSourceFiles(t)[0]), "..", "..", "internal")
	fset := token.NewFileSet()

	for pkg, forbidden := range packageImportsForbidden {
		dir := filepath.Join(root, pkg)
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("read %s: %v", dir, err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
				continue
			}
			file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
			if err != nil {
				t.Fatalf("parse %s: %v", name, err)
			}
			for _, imp := range file.Imports {
				path, err := strconv.Unquote(imp.Path.Value)
				if err != nil {
					t.Fatalf("unquote import in %s: %v", name, err)
				}
				if slices.Contains(forbidden, path) {
					t.Fatalf("internal/%s/%s imports %s", pkg, name, path)
				}
			}
		}
	}
}
