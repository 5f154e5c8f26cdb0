package checksum

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSum(t *testing.T) {
	// SHA-256 of the empty string.
	if got := Sum(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Sum(nil) = %s", got)
	}
	if Sum([]byte("a")) == Sum([]byte("b")) {
		t.Error("different content should not collide")
	}
}

func TestFileMatchesSum(t *testing.T) {
	p := filepath.Join(t.TempDir(), "doc.md")
	content := []byte("# Title\n[x](y.md)\n")
	if err := os.WriteFile(p, content, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := File(p)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if got != Sum(content) {
		t.Errorf("File = %s, Sum = %s", got, Sum(content))
	}
	if _, err := File(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("expected error for missing file")
	}
}
