package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"spectrabench/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStorePutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "visualizations/1/a.png", bytes.NewReader([]byte("png")), core.PutOptions{ContentType: "image/png", Metadata: map[string]string{"network_id": "1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 3 || len(info.ETag) != 64 || !strings.HasPrefix(info.URL, "file://local.blob/") {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "visualizations/1/a.png", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	head, err := store.Head(ctx, "visualizations/1/a.png")
	if err != nil || head.ETag != info.ETag || head.Metadata["network_id"] != "1" {
		t.Fatalf("head %+v %v", head, err)
	}
	got, rc, err := store.Get(ctx, "visualizations/1/a.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "png" || got.ContentType != "image/png" {
		t.Fatalf("unexpected get %q %+v", b, got)
	}
	if _, err := store.Put(ctx, "visualizations/2/b.svg", strings.NewReader("<svg/>"), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, err := store.List(ctx, "visualizations/")
	if err != nil || len(list) != 2 || list[0].Key != "visualizations/1/a.png" {
		t.Fatalf("list %+v %v", list, err)
	}
	list, _ = store.List(ctx, "visualizations/2/")
	if len(list) != 1 {
		t.Fatalf("prefix list %+v", list)
	}
	if ok, err := store.Delete(ctx, "visualizations/1/a.png"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := store.Delete(ctx, "visualizations/1/a.png"); ok {
		t.Fatalf("second delete should report missing")
	}
	if _, _, err := store.Get(ctx, "visualizations/1/a.png"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRejectsBadKeys(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	for _, key := range []string{"", "/etc/passwd", "../x", "a/../../x"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
	if _, err := New(""); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestStoreLeavesNoTempFiles(t *testing.T) {
	store := newTempStore(t)
	if _, err := store.Put(context.Background(), "edges/n.txt", strings.NewReader("0 1\n"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(store.Root(), "edges"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 2 {
		t.Fatalf("expected data and sidecar, got %d entries", len(entries))
	}
}

func TestStoreConcurrentPutSameKey(t *testing.T) {
	store := newTempStore(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Put(context.Background(), "race/key", strings.NewReader("v"), core.PutOptions{}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one writer to win, got %d", wins)
	}
}

func TestPresignURL(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	u, err := store.PresignURL(ctx, "a/b.json", core.SignedURLOptions{})
	if err != nil || u != "file://local.blob/a/b.json" {
		t.Fatalf("presign %q %v", u, err)
	}
	if _, err := store.PresignURL(ctx, "a/b.json", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}
