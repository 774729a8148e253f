package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteTempFile(t *testing.T) {
	t.Parallel()

	t.Run("creates and cleans up", func(t *testing.T) {
		t.Parallel()

		path, cleanup, err := WriteTempFile("hello", "svg")
		if err != nil {
			t.Fatalf("WriteTempFile() = %v", err)
		}
		if !strings.HasSuffix(path, ".svg") {
			t.Errorf("path = %q, want .svg suffix", path)
		}
		data, err := os.ReadFile(path) // #nosec G304 -- temp path from this test
		if err != nil {
			t.Fatalf("reading temp file: %v", err)
		}
		if string(data) != "hello" {
			t.Errorf("content = %q, want hello", data)
		}

		cleanup()
		if FileExists(path) {
			t.Error("file still exists after cleanup")
		}
	})

	t.Run("rejects bad extension", func(t *testing.T) {
		t.Parallel()

		if _, _, err := WriteTempFile("x", "a/b"); !errors.Is(err, ErrExtensionPathTraversal) {
			t.Errorf("error = %v, want ErrExtensionPathTraversal", err)
		}
		if _, _, err := WriteTempFile("x", ""); !errors.Is(err, ErrExtensionEmpty) {
			t.Errorf("error = %v, want ErrExtensionEmpty", err)
		}
	})
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.md")

	if err := WriteFileAtomic(path, []byte("first"), 0o640); err != nil {
		t.Fatalf("WriteFileAtomic() = %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0o640); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite = %v", err)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- temp path from this test
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want second", data)
	}

	// No staging leftovers.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
}

func TestIsURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"https://example.com/a.png", true},
		{"http://example.com", true},
		{"ftp://example.com", false},
		{"./local/path.png", false},
		{"/abs/path.png", false},
	}
	for _, tt := range tests {
		if got := IsURL(tt.in); got != tt.want {
			t.Errorf("IsURL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsTextData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"ascii", []byte("package main\n"), true},
		{"utf8", []byte("café 你好"), true},
		{"empty", nil, true},
		{"nul byte", []byte{'a', 0, 'b'}, false},
		{"invalid utf8", []byte{0xff, 0xfe, 0xfd}, false},
		{"long text sniffs prefix only", append([]byte(strings.Repeat("a", 600)), 0), true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsTextData(tt.data); got != tt.want {
				t.Errorf("IsTextData() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPathWithin(t *testing.T) {
	t.Parallel()

	base := t.TempDir()

	tests := []struct {
		name   string
		target string
		want   bool
	}{
		{"relative inside", "docs/img.png", true},
		{"dot", ".", true},
		{"absolute inside", filepath.Join(base, "a", "b.png"), true},
		{"traversal", "../escape.png", false},
		{"nested traversal", "docs/../../escape.png", false},
		{"absolute outside", "/etc/passwd", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := PathWithin(base, tt.target); got != tt.want {
				t.Errorf("PathWithin(%q, %q) = %v, want %v", base, tt.target, got, tt.want)
			}
		})
	}
}
