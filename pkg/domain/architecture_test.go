package domain

import (
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestDomainImportsStdlibOnly keeps the domain layer free of internal
// packages and third-party modules so every adapter can depend on it.
func TestDomainImportsStdlibOnly(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedModule}
	pkgs, err := packages.Load(cfg, "itemcore/pkg/domain")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	if len(pkgs) != 1 {
		t.Fatalf("expected one package, got %d", len(pkgs))
	}
	for path, imp := range pkgs[0].Imports {
		if strings.HasPrefix(path, "itemcore/") {
			t.Errorf("domain imports module package %s", path)
			continue
		}
		if imp.Module != nil || strings.Contains(strings.SplitN(path, "/", 2)[0], ".") {
			t.Errorf("domain imports third-party package %s", path)
		}
	}
}
