// Package testutil holds the import-boundary assertions the layered packages
// run against themselves: domain below core, core below the drivers, and
// each driver family reachable only through its facade.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Module is the import path prefix of this repository.
const Module = "mdtcore"

// AssertNoTransitiveDependency loads pattern with its full dependency graph
// and fails if any reachable package satisfies forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	viols, err := transitiveDependencyViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	failIfTransitiveViolations(t, reason, viols)
}

// AssertNoDirectImports scans the non-test .go files in dir and fails if any
// import satisfies forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfDirectViolations(t, reason, viols)
}

// AssertOnlyImportedBy fails when a module package outside the allowed
// prefixes imports target or one of its subpackages. Test variants count.
func AssertOnlyImportedBy(t testing.TB, target string, allowed ...string) {
	t.Helper()
	viols, err := importerViolations(target, allowed)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	if len(viols) > 0 {
		t.Fatalf("%s may only be imported by %s:\n%s", target, strings.Join(allowed, ", "), strings.Join(viols, "\n"))
	}
}

// DomainImportForbidden matches the domain package.
func DomainImportForbidden(path string) bool {
	return strings.HasSuffix(path, "/pkg/domain") || strings.Contains(path, "/pkg/domain@")
}

// InternalImportForbidden matches any internal package.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// InfraImportForbidden matches the storage drivers.
func InfraImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/infra/") || strings.HasSuffix(path, "/internal/infra")
}

var loadPackages = func(cfg *packages.Config, patterns ...string) ([]*packages.Package, error) {
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, err
	}
	var errs []string
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for _, e := range p.Errors {
			errs = append(errs, e.Error())
		}
	})
	if len(errs) > 0 {
		return nil, fmt.Errorf("%d package errors:\n%s", len(errs), strings.Join(errs, "\n"))
	}
	return pkgs, nil
}

func transitiveDependencyViolations(pattern string, forbidden func(path string) bool) ([]string, error) {
	pkgs, err := loadPackages(&packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}, pattern)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		if forbidden(p.PkgPath) {
			seen[p.PkgPath] = struct{}{}
		}
	})
	return sortedKeys(seen), nil
}

func importerViolations(target string, allowed []string) ([]string, error) {
	pkgs, err := loadPackages(&packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}, Module+"/...")
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	for _, p := range pkgs {
		if within(p.PkgPath, target) || withinAny(p.PkgPath, allowed) {
			continue
		}
		for ip := range p.Imports {
			if within(ip, target) {
				seen[p.PkgPath+": "+ip] = struct{}{}
			}
		}
	}
	return sortedKeys(seen), nil
}

func within(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func withinAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if within(path, p) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		fileAst, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range fileAst.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfTransitiveViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden transitive dependency detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

func failIfDirectViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
