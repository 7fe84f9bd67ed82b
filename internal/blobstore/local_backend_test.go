package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
)

func TestLocalBackendPutGetDelete(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	ctx := context.Background()

	if err := backend.PutObject(ctx, "blobs/a/manifest", []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := backend.PutObject(ctx, "blobs/a/manifest", []byte("two")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, err := backend.GetObject(ctx, "blobs/a/manifest")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "two" {
		t.Fatalf("expected two, got %q", string(data))
	}

	if err := backend.DeleteObject(ctx, "blobs/a/manifest"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := backend.DeleteObject(ctx, "blobs/a/manifest"); err != nil {
		t.Fatalf("delete missing should be noop: %v", err)
	}
	if _, err := backend.GetObject(ctx, "blobs/a/manifest"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLocalBackendListObjects(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"blobs/b/chunks/00000000", "blobs/a/manifest", "other/x"} {
		if err := backend.PutObject(ctx, key, []byte("x")); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	keys, err := backend.ListObjects(ctx, "blobs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 || keys[0] != "blobs/a/manifest" || keys[1] != "blobs/b/chunks/00000000" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestLocalBackendListChildren(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"blobs/c/manifest", "blobs/a/manifest", "blobs/b/chunks/00000000", "blobs/d/manifest"} {
		if err := backend.PutObject(ctx, key, []byte("x")); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	names, err := backend.ListChildren(ctx, "blobs/", "a", 2)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if !slices.Equal(names, []string{"b", "c"}) {
		t.Fatalf("unexpected children: %v", names)
	}
	top, err := backend.ListChildren(ctx, "", "", 0)
	if err != nil {
		t.Fatalf("list root: %v", err)
	}
	if !slices.Equal(top, []string{"blobs"}) {
		t.Fatalf("expected tmp hidden at root, got %v", top)
	}
	missing, err := backend.ListChildren(ctx, "nothing/", "", 0)
	if err != nil || len(missing) != 0 {
		t.Fatalf("expected empty listing for missing prefix, got %v, %v", missing, err)
	}
}

func TestLocalBackendDeleteKeepsTopLevelDir(t *testing.T) {
	root := t.TempDir()
	backend, err := NewLocalBackend(root)
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	ctx := context.Background()
	if err := backend.PutObject(ctx, "blobs/a/chunks/00000000", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := backend.DeleteObject(ctx, "blobs/a/chunks/00000000"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "blobs", "a")); !os.IsNotExist(err) {
		t.Fatalf("expected empty blob dir pruned, got %v", err)
	}
	if info, err := os.Stat(filepath.Join(root, "blobs")); err != nil || !info.IsDir() {
		t.Fatalf("expected blobs dir kept, got %v", err)
	}
}

func TestLocalBackendConcurrentPutAndDelete(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := range 32 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("blobs/%02d/chunks/00000000", i)
			if err := backend.PutObject(ctx, key, []byte("x")); err != nil {
				errs <- fmt.Errorf("put %s: %w", key, err)
				return
			}
			if err := backend.DeleteObject(ctx, key); err != nil {
				errs <- fmt.Errorf("delete %s: %w", key, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestLocalBackendRejectsUnsafeKeys(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	for _, key := range []string{"", "/etc/passwd", "../escape", "a/../../escape", "tmp/put-1"} {
		if err := backend.PutObject(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestNewBackendUnsupportedType(t *testing.T) {
	if _, err := NewBackend(context.Background(), BackendOptions{Type: "ftp"}); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
	backend, err := NewBackend(context.Background(), BackendOptions{Type: "LOCAL", LocalRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	if backend.Name() != "local" {
		t.Fatalf("expected local backend, got %s", backend.Name())
	}
}
