package imaging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPrepareSVG(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    []string
		wantErr error
	}{
		{
			name: "explicit dimensions kept",
			in:   `<svg width="100" height="50"><rect/></svg>`,
			want: []string{`width="100px"`, `height="50px"`},
		},
		{
			name: "dimensions from viewBox",
			in:   `<svg viewBox="0 0 320 240"><rect/></svg>`,
			want: []string{`width="320px"`, `height="240px"`},
		},
		{
			name: "default viewport injected",
			in:   `<svg><rect/></svg>`,
			want: []string{`width="800px"`, `height="600px"`},
		},
		{
			name: "xml declaration stripped",
			in:   `<?xml version="1.0"?><svg width="10" height="10"/></svg>`,
			want: []string{`width="10px"`},
		},
		{
			name: "unit dimensions untouched",
			in:   `<svg width="5cm" height="3cm"><rect/></svg>`,
			want: []string{`width="5cm"`, `height="3cm"`},
		},
		{
			name:    "zero width rejected",
			in:      `<svg width="0" height="50"/>`,
			wantErr: ErrZeroDimension,
		},
		{
			name:    "symbol sheet rejected",
			in:      `<svg><symbol id="icon"/></svg>`,
			wantErr: ErrIconSVG,
		},
		{
			name:    "defs only rejected",
			in:      `<svg><defs><g id="a"/></defs></svg>`,
			wantErr: ErrIconSVG,
		},
		{
			name:    "not svg",
			in:      `<html><body/></html>`,
			wantErr: ErrNotSVG,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := PrepareSVG(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("PrepareSVG() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("PrepareSVG() = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("output missing %q:\n%s", w, got)
				}
			}
			if strings.Contains(got, "<?xml") {
				t.Error("xml declaration survived")
			}
		})
	}
}

func TestPrepareSVGDefsWithUseKept(t *testing.T) {
	t.Parallel()

	in := `<svg width="10" height="10"><defs><g id="a"/></defs><use href="#a"/></svg>`
	if _, err := PrepareSVG(in); err != nil {
		t.Errorf("PrepareSVG() = %v, want nil for defs+use document", err)
	}
}

// stubConverter records calls and writes a marker PNG.
type stubConverter struct {
	fail  bool
	calls int
}

func (s *stubConverter) Name() string { return "stub" }

func (s *stubConverter) Rasterize(ctx context.Context, svg []byte, destPath string) error {
	s.calls++
	if s.fail {
		return errors.New("converter down")
	}
	return os.WriteFile(destPath, []byte("png"), 0o600)
}

func TestChainFirstSuccessWins(t *testing.T) {
	t.Parallel()

	first := &stubConverter{fail: true}
	second := &stubConverter{}
	chain := NewChain(first, second)

	dest := filepath.Join(t.TempDir(), "out.png")
	err := chain.Rasterize(context.Background(), []byte(`<svg width="1" height="1"/></svg>`), dest)
	if err != nil {
		t.Fatalf("Rasterize() = %v", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d, %d; want 1, 1", first.calls, second.calls)
	}

	// A working first converter short-circuits.
	first.fail = false
	if err := chain.Rasterize(context.Background(), []byte(`<svg width="1" height="1"/></svg>`), dest); err != nil {
		t.Fatal(err)
	}
	if second.calls != 1 {
		t.Errorf("second converter called %d times, want 1", second.calls)
	}
}

func TestChainAllFail(t *testing.T) {
	t.Parallel()

	chain := NewChain(&stubConverter{fail: true})
	dest := filepath.Join(t.TempDir(), "out.png")
	err := chain.Rasterize(context.Background(), []byte(`<svg width="1" height="1"/></svg>`), dest)
	if !errors.Is(err, ErrRasterize) {
		t.Errorf("Rasterize() = %v, want ErrRasterize", err)
	}
}

type stubDownloader struct {
	body        []byte
	contentType string
	err         error
	hits        int
}

func (s *stubDownloader) GetFile(ctx context.Context, url, destPath string) (string, error) {
	s.hits++
	if s.err != nil {
		return "", s.err
	}
	if err := os.WriteFile(destPath, s.body, 0o600); err != nil {
		return "", err
	}
	return s.contentType, nil
}

func newTestEngine(t *testing.T, dl Downloader, conv Converter) *Engine {
	t.Helper()
	e, err := NewEngine(t.TempDir(), dl, NewChain(conv), nil)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestResolveLocal(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	mustWrite := func(rel string) string {
		abs := filepath.Join(repo, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		return abs
	}
	rootImg := mustWrite("docs/img.png")
	dirImg := mustWrite("sub/dir/local.png")

	e := newTestEngine(t, nil, &stubConverter{})
	fileDir := filepath.Join(repo, "sub", "dir")

	t.Run("leading slash resolves against repo root", func(t *testing.T) {
		t.Parallel()

		got, err := e.ResolveLocal("/docs/img.png", repo, fileDir)
		if err != nil {
			t.Fatalf("ResolveLocal() = %v", err)
		}
		if got != rootImg {
			t.Errorf("got %q, want %q", got, rootImg)
		}
	})

	t.Run("relative prefers file directory", func(t *testing.T) {
		t.Parallel()

		got, err := e.ResolveLocal("local.png", repo, fileDir)
		if err != nil {
			t.Fatalf("ResolveLocal() = %v", err)
		}
		if got != dirImg {
			t.Errorf("got %q, want %q", got, dirImg)
		}
	})

	t.Run("relative falls back to repo root", func(t *testing.T) {
		t.Parallel()

		got, err := e.ResolveLocal("docs/img.png", repo, fileDir)
		if err != nil {
			t.Fatalf("ResolveLocal() = %v", err)
		}
		if got != rootImg {
			t.Errorf("got %q, want %q", got, rootImg)
		}
	})

	t.Run("traversal rejected", func(t *testing.T) {
		t.Parallel()

		if _, err := e.ResolveLocal("../../etc/passwd", repo, fileDir); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("ResolveLocal() = %v, want ErrOutsideRoot", err)
		}
	})

	t.Run("missing file unresolved", func(t *testing.T) {
		t.Parallel()

		if _, err := e.ResolveLocal("nope.png", repo, fileDir); !errors.Is(err, ErrUnresolved) {
			t.Errorf("ResolveLocal() = %v, want ErrUnresolved", err)
		}
	})

	t.Run("url shape rejected", func(t *testing.T) {
		t.Parallel()

		if _, err := e.ResolveLocal("https://host/x.png", repo, fileDir); !errors.Is(err, ErrUnresolved) {
			t.Errorf("ResolveLocal() = %v, want ErrUnresolved", err)
		}
	})
}

func TestDownload(t *testing.T) {
	t.Parallel()

	t.Run("raster stored with extension", func(t *testing.T) {
		t.Parallel()

		dl := &stubDownloader{body: []byte("png-bytes"), contentType: "image/png"}
		e := newTestEngine(t, dl, &stubConverter{})

		ref, err := e.Download(context.Background(), "https://host/a")
		if err != nil {
			t.Fatalf("Download() = %v", err)
		}
		if !strings.HasPrefix(ref, CacheSubdir+"/") || !strings.HasSuffix(ref, ".png") {
			t.Errorf("ref = %q, want images/<key>.png", ref)
		}
	})

	t.Run("svg rasterized", func(t *testing.T) {
		t.Parallel()

		dl := &stubDownloader{body: []byte(`<svg width="1" height="1"/></svg>`), contentType: "image/svg+xml"}
		e := newTestEngine(t, dl, &stubConverter{})

		ref, err := e.Download(context.Background(), "https://host/pic.svg")
		if err != nil {
			t.Fatalf("Download() = %v", err)
		}
		if !strings.HasSuffix(ref, ".png") {
			t.Errorf("ref = %q, want .png suffix", ref)
		}
	})

	t.Run("no partial file left behind", func(t *testing.T) {
		t.Parallel()

		dl := &stubDownloader{body: []byte(`<svg width="1" height="1"/></svg>`), contentType: "image/svg+xml"}
		e := newTestEngine(t, dl, &stubConverter{})

		if _, err := e.Download(context.Background(), "https://host/pic.svg"); err != nil {
			t.Fatalf("Download() = %v", err)
		}
		entries, err := os.ReadDir(e.cacheDir)
		if err != nil {
			t.Fatal(err)
		}
		for _, ent := range entries {
			if strings.HasSuffix(ent.Name(), ".part") {
				t.Errorf("staging file %s survived the download", ent.Name())
			}
		}
	})

	t.Run("failure memoized", func(t *testing.T) {
		t.Parallel()

		dl := &stubDownloader{err: errors.New("down")}
		e := newTestEngine(t, dl, &stubConverter{})

		if _, err := e.Download(context.Background(), "https://host/x.png"); !errors.Is(err, ErrUnresolved) {
			t.Fatalf("Download() = %v, want ErrUnresolved", err)
		}
		if _, err := e.Download(context.Background(), "https://host/x.png"); !errors.Is(err, ErrUnresolved) {
			t.Fatalf("second Download() = %v, want ErrUnresolved", err)
		}
		if dl.hits != 1 {
			t.Errorf("downloader hit %d times, want 1", dl.hits)
		}
	})
}

func TestConvertSVGContentKeyedByContent(t *testing.T) {
	t.Parallel()

	conv := &stubConverter{}
	e := newTestEngine(t, nil, conv)

	svg := `<svg width="1" height="1"/></svg>`
	ref1, err := e.ConvertSVGContent(context.Background(), svg)
	if err != nil {
		t.Fatalf("ConvertSVGContent() = %v", err)
	}
	ref2, err := e.ConvertSVGContent(context.Background(), svg)
	if err != nil {
		t.Fatalf("ConvertSVGContent() second = %v", err)
	}
	if ref1 != ref2 {
		t.Errorf("refs differ: %q vs %q", ref1, ref2)
	}
	if conv.calls != 1 {
		t.Errorf("converter ran %d times, want 1 (cache hit expected)", conv.calls)
	}
}

func TestExtensionFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		url         string
		want        string
	}{
		{"image/png", "https://h/a", ".png"},
		{"image/jpeg", "https://h/a", ".jpg"},
		{"image/webp", "https://h/a", ".webp"},
		{"", "https://h/photo.gif", ".gif"},
		{"", "https://h/mystery", ".png"},
	}
	for _, tt := range tests {
		if got := extensionFor(tt.contentType, tt.url); got != tt.want {
			t.Errorf("extensionFor(%q, %q) = %q, want %q", tt.contentType, tt.url, got, tt.want)
		}
	}
}
