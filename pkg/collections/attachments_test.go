package collections

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileBlobStore_PutWritesFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileBlobStore(dir)
	if err != nil {
		t.Fatalf("NewFileBlobStore: %v", err)
	}

	key := "intent-1/att-1/report.pdf"
	url, err := store.Put(context.Background(), key, []byte("hello"), "application/pdf")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	wantPath := filepath.Join(dir, filepath.FromSlash(key))
	if url != "file://"+wantPath {
		t.Errorf("url = %q, want file://%s", url, wantPath)
	}

	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("contents = %q, want hello", data)
	}
}

func TestFileBlobStore_CreatesNestedDirs(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileBlobStore(filepath.Join(dir, "attachments"))
	if err != nil {
		t.Fatalf("NewFileBlobStore: %v", err)
	}

	if _, err := store.Put(context.Background(), "a/b/c/file.txt", []byte("x"), "text/plain"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "attachments", "a", "b", "c", "file.txt")); err != nil {
		t.Errorf("expected nested file to exist: %v", err)
	}
}
