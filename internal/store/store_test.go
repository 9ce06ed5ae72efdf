package store

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "b", "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := s.Put(ctx, "b", "k", []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := s.Get(ctx, "b", "k")
	if err != nil || !ok || !bytes.Equal(v, []byte("v1")) {
		t.Fatalf("get: ok=%v v=%q err=%v", ok, v, err)
	}
	// Upsert overwrites.
	if err := s.Put(ctx, "b", "k", []byte("v2")); err != nil {
		t.Fatalf("put 2: %v", err)
	}
	v, _, _ = s.Get(ctx, "b", "k")
	if !bytes.Equal(v, []byte("v2")) {
		t.Fatalf("expected v2, got %q", v)
	}
	if err := s.Delete(ctx, "b", "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "b", "k"); ok {
		t.Fatalf("expected miss after delete")
	}
	// Deleting a missing key is not an error.
	if err := s.Delete(ctx, "b", "k"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestBucketsAreIsolated(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	_ = s.Put(ctx, "a", "k", []byte("1"))
	_ = s.Put(ctx, "b", "k", []byte("2"))
	v, _, _ := s.Get(ctx, "a", "k")
	if !bytes.Equal(v, []byte("1")) {
		t.Fatalf("bucket a: got %q", v)
	}
	list, err := s.List(ctx, "b")
	if err != nil || len(list) != 1 || !bytes.Equal(list["k"], []byte("2")) {
		t.Fatalf("bucket b list: %v err=%v", list, err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := openTest(t)
	dst := openTest(t)
	ctx := context.Background()

	_ = src.Put(ctx, "models", "m1", []byte("descriptor-1"))
	_ = src.Put(ctx, "models", "m2", []byte("descriptor-2"))
	_ = src.Put(ctx, "cache", "c1", []byte("entry-1"))

	blob, err := src.ExportAll(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := dst.ImportAll(ctx, blob); err != nil {
		t.Fatalf("import: %v", err)
	}

	models, err := dst.List(ctx, "models")
	if err != nil || len(models) != 2 {
		t.Fatalf("models after import: %v err=%v", models, err)
	}
	if !bytes.Equal(models["m1"], []byte("descriptor-1")) {
		t.Fatalf("m1 value mismatch: %q", models["m1"])
	}
	cache, _ := dst.List(ctx, "cache")
	if len(cache) != 1 {
		t.Fatalf("cache after import: %v", cache)
	}
}

func TestImportMergesOverExisting(t *testing.T) {
	src := openTest(t)
	dst := openTest(t)
	ctx := context.Background()

	_ = src.Put(ctx, "b", "shared", []byte("new"))
	_ = dst.Put(ctx, "b", "shared", []byte("old"))
	_ = dst.Put(ctx, "b", "keep", []byte("kept"))

	blob, _ := src.ExportAll(ctx)
	if err := dst.ImportAll(ctx, blob); err != nil {
		t.Fatalf("import: %v", err)
	}
	v, _, _ := dst.Get(ctx, "b", "shared")
	if !bytes.Equal(v, []byte("new")) {
		t.Fatalf("expected overwrite, got %q", v)
	}
	if _, ok, _ := dst.Get(ctx, "b", "keep"); !ok {
		t.Fatalf("expected untouched key to survive import")
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	s := openTest(t)
	if err := s.ImportAll(context.Background(), []byte("not msgpack")); err == nil {
		t.Fatalf("expected decode error")
	}
}
