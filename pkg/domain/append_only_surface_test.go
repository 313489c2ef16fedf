package domain

import (
	"go/types"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestPersistenceBoundaryIsAppendOnly loads the package with go/packages and
// fails if any persistence interface grows a mutating or deleting method.
func TestPersistenceBoundaryIsAppendOnly(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes}
	pkgs, err := packages.Load(cfg, ".")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	if packages.PrintErrors(pkgs) > 0 || len(pkgs) != 1 {
		t.Fatalf("unexpected package load result")
	}
	scope := pkgs[0].Types.Scope()
	forbidden := []string{"Update", "Delete", "Remove", "Upsert", "Replace", "Truncate", "Set"}
	for _, name := range []string{"Transaction", "TransactionView", "PersistentStore"} {
		obj := scope.Lookup(name)
		if obj == nil {
			t.Fatalf("%s not found", name)
		}
		iface, ok := obj.Type().Underlying().(*types.Interface)
		if !ok {
			t.Fatalf("%s is not an interface", name)
		}
		for i := 0; i < iface.NumMethods(); i++ {
			method := iface.Method(i).Name()
			for _, prefix := range forbidden {
				if strings.HasPrefix(method, prefix) {
					t.Errorf("%s.%s exposes a non-append pathway", name, method)
				}
			}
		}
	}
}
