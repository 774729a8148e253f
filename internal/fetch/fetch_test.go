package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// testClient returns a Client with the retry delay collapsed so tests run
// fast.
func testClient(opts ...Option) *Client {
	c := New(opts...)
	c.delay = time.Millisecond
	return c
}

func TestGet(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/svg+xml")
			_, _ = w.Write([]byte("<svg/>"))
		}))
		defer srv.Close()

		body, ct, err := testClient().Get(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("Get() = %v", err)
		}
		if string(body) != "<svg/>" {
			t.Errorf("body = %q, want <svg/>", body)
		}
		if ct != "image/svg+xml" {
			t.Errorf("content type = %q, want image/svg+xml", ct)
		}
	})

	t.Run("404 does not retry", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.NotFound(w, r)
		}))
		defer srv.Close()

		_, _, err := testClient().Get(context.Background(), srv.URL)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
		if n := hits.Load(); n != 1 {
			t.Errorf("server hit %d times, want 1", n)
		}
	})

	t.Run("5xx retries then succeeds", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer srv.Close()

		body, _, err := testClient().Get(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("Get() = %v", err)
		}
		if string(body) != "ok" {
			t.Errorf("body = %q, want ok", body)
		}
		if n := hits.Load(); n != 3 {
			t.Errorf("server hit %d times, want 3", n)
		}
	})

	t.Run("retry budget exhausted", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, _, err := testClient(WithRetries(2)).Get(context.Background(), srv.URL)
		if !errors.Is(err, ErrUnexpected) {
			t.Fatalf("error = %v, want ErrUnexpected", err)
		}
		if n := hits.Load(); n != 2 {
			t.Errorf("server hit %d times, want 2", n)
		}
	})

	t.Run("context cancellation stops retries", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := testClient().Get(ctx, srv.URL)
		if err == nil {
			t.Fatal("Get() = nil error with cancelled context")
		}
	})
}

func TestGetFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "cache", "asset.png")
	ct, err := testClient().GetFile(context.Background(), srv.URL, dest)
	if err != nil {
		t.Fatalf("GetFile() = %v", err)
	}
	if ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}

	data, err := os.ReadFile(dest) // #nosec G304 -- temp path from this test
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("content = %q, want png-bytes", data)
	}

	// No staging leftovers next to the destination.
	entries, err := os.ReadDir(filepath.Dir(dest))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("cache dir has %d entries, want 1", len(entries))
	}
}
