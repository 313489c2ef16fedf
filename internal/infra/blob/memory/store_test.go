package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"spectrabench/internal/blob/core"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("driver %s", s.Driver())
	}
	meta := map[string]string{"algorithm_id": "2"}
	info, err := s.Put(ctx, "eigenvectors/1/2/a.json", strings.NewReader("[[1]]"), core.PutOptions{ContentType: "application/json", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["algorithm_id"] = "mutated"
	info.Metadata["algorithm_id"] = "mutated"

	head, err := s.Head(ctx, "eigenvectors/1/2/a.json")
	if err != nil || head.Metadata["algorithm_id"] != "2" || head.ETag == "" {
		t.Fatalf("metadata aliased or missing: %+v %v", head, err)
	}
	_, rc, err := s.Get(ctx, "eigenvectors/1/2/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if string(b) != "[[1]]" {
		t.Fatalf("body %q", b)
	}
	if _, err := s.Put(ctx, "eigenvectors/1/2/a.json", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.PresignURL(ctx, "eigenvectors/1/2/a.json", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	list, _ := s.List(ctx, "")
	if len(list) != 1 {
		t.Fatalf("list %+v", list)
	}
	if ok, _ := s.Delete(ctx, "eigenvectors/1/2/a.json"); !ok {
		t.Fatalf("delete should report existing blob")
	}
	if ok, _ := s.Delete(ctx, "eigenvectors/1/2/a.json"); ok {
		t.Fatalf("delete should report missing blob")
	}
}
