package passesv1

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"
)

// undocumented lists exported top-level declarations in file that carry no doc comment.
// A documented const or var group covers its specs.
func undocumented(t *testing.T, file string) []string {
	t.Helper()
	f, err := parser.ParseFile(token.NewFileSet(), file, nil, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse %s: %v", file, err)
	}
	var missing []string
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Name.IsExported() && d.Doc == nil {
				missing = append(missing, d.Name.Name)
			}
		case *ast.GenDecl:
			if d.Doc != nil {
				continue
			}
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					if s.Name.IsExported() && s.Doc == nil {
						missing = append(missing, s.Name.Name)
					}
				case *ast.ValueSpec:
					for _, n := range s.Names {
						if n.IsExported() && s.Doc == nil {
							missing = append(missing, n.Name)
						}
					}
				}
			}
		}
	}
	return missing
}

func TestExportedIdentifiersDocumented(t *testing.T) {
	if missing := undocumented(t, "passes.go"); len(missing) > 0 {
		t.Fatalf("missing doc comments: %v", missing)
	}
}

func TestMethodNames(t *testing.T) {
	want := map[string]string{
		GetPassMethod:     "/onepass.v1.Passes/GetPass",
		EnsurePassMethod:  "/onepass.v1.Passes/EnsurePass",
		RevokePassMethod:  "/onepass.v1.Passes/RevokePass",
		MarkScannedMethod: "/onepass.v1.Passes/MarkScanned",
		WatchPassMethod:   "/onepass.v1.Passes/WatchPass",
	}
	for got, exp := range want {
		if got != exp {
			t.Errorf("method name %q, want %q", got, exp)
		}
	}
	if ServiceDesc.ServiceName != ServiceName {
		t.Errorf("service desc name %q", ServiceDesc.ServiceName)
	}
	if len(ServiceDesc.Methods) != 4 || len(ServiceDesc.Streams) != 1 {
		t.Errorf("service desc has %d methods and %d streams", len(ServiceDesc.Methods), len(ServiceDesc.Streams))
	}
}
