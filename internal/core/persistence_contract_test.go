package core

import (
	"go/types"
	"sort"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Only the vetted backends may implement domain.PersistentStore. Adding a
// backend means updating this list.
func TestPersistentStoreImplementers(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes}
	pkgs, err := packages.Load(cfg, "spectrabench/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	var iface *types.Interface
	for _, p := range pkgs {
		if p.PkgPath != "spectrabench/pkg/domain" {
			continue
		}
		obj := p.Types.Scope().Lookup("PersistentStore")
		if obj == nil {
			t.Fatalf("domain.PersistentStore not found")
		}
		iface, _ = obj.Type().Underlying().(*types.Interface)
	}
	if iface == nil {
		t.Fatalf("failed to resolve PersistentStore interface")
	}
	allowed := map[string]bool{
		"spectrabench/internal/infra/persistence/memory":   true,
		"spectrabench/internal/infra/persistence/sqlstore": true,
		"spectrabench/internal/infra/persistence/sqlite":   true,
		"spectrabench/internal/infra/persistence/postgres": true,
	}
	found := map[string]bool{}
	var unexpected []string
	for _, p := range pkgs {
		if p.Types == nil {
			continue
		}
		scope := p.Types.Scope()
		for _, name := range scope.Names() {
			named, ok := scope.Lookup(name).Type().(*types.Named)
			if !ok {
				continue
			}
			if _, isStruct := named.Underlying().(*types.Struct); !isStruct {
				continue
			}
			if !types.Implements(types.NewPointer(named), iface) {
				continue
			}
			if allowed[p.PkgPath] {
				found[p.PkgPath] = true
				continue
			}
			unexpected = append(unexpected, p.PkgPath+"."+name)
		}
	}
	sort.Strings(unexpected)
	if len(unexpected) > 0 {
		t.Fatalf("unexpected PersistentStore implementations: %v", unexpected)
	}
	for pkg := range allowed {
		if !found[pkg] {
			t.Errorf("expected %s to provide a PersistentStore", pkg)
		}
	}
}
