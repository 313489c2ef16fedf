package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Backends are reached through this package; everything else depends on the
// Store interface.
func TestInfraBlobImportedOnlyViaFacade(t *testing.T) {
	const infra = "spectrabench/internal/infra/blob"
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "spectrabench/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	var offenders []string
	for _, pkg := range pkgs {
		path := pkg.PkgPath
		if path == "spectrabench/internal/blob" || strings.HasPrefix(path, infra) {
			continue
		}
		for imp := range pkg.Imports {
			if imp == infra || strings.HasPrefix(imp, infra+"/") {
				offenders = append(offenders, path+" -> "+imp)
			}
		}
	}
	sort.Strings(offenders)
	for _, o := range offenders {
		t.Errorf("forbidden infra blob import: %s", o)
	}
}
