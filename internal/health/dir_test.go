package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestWritableDir_OK(t *testing.T) {
	dir := t.TempDir()
	if err := WritableDir(dir).Check(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("probe left %d files behind", len(entries))
	}
}

func TestWritableDir_Missing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	if err := WritableDir(dir).Check(context.Background()); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestWritableDir_NotADirectory(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WritableDir(f).Check(context.Background()); err == nil {
		t.Fatal("expected error for regular file")
	}
}
