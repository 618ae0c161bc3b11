// Package testutil holds layering guards shared by the architecture tests:
// the domain stays free of drivers and SDKs, and the service layer reaches
// storage, logging and object storage only through its own interfaces.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// ImportPredicate reports whether an import path is forbidden.
type ImportPredicate func(importPath string) bool

// AnyOf matches when at least one predicate matches.
func AnyOf(preds ...ImportPredicate) ImportPredicate {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

// InternalImport matches any agrorec/internal package.
func InternalImport(path string) bool {
	return path == "agrorec/internal" || strings.HasPrefix(path, "agrorec/internal/")
}

// StorageDriverImport matches database/sql and the SQL drivers of the local store.
func StorageDriverImport(path string) bool {
	switch {
	case path == "database/sql",
		strings.HasPrefix(path, "database/sql/"),
		strings.HasPrefix(path, "modernc.org/sqlite"),
		strings.HasPrefix(path, "github.com/jackc/pgx"):
		return true
	}
	return false
}

// CloudSDKImport matches the AWS SDK used by the s3 media driver.
func CloudSDKImport(path string) bool {
	return strings.HasPrefix(path, "github.com/aws/")
}

// LoggingImport matches the concrete logging stack.
func LoggingImport(path string) bool {
	return strings.HasPrefix(path, "go.uber.org/zap")
}

// AssertNoDirectImports parses every non-test .go file in dir and fails t
// when an import matches forbidden. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden ImportPredicate, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failIfViolations(t, reason, viols)
}

func directImportViolations(dir string, forbidden ImportPredicate) ([]string, error) {
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
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			ip := strings.Trim(imp.Path.Value, `"`)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	sort.Strings(viols)
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
