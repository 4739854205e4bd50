package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmylchreest/shutter/internal/security"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/bundles/uploader.tar.xz", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("User-Agent"), UserAgentName+"/") {
			http.Error(w, "bad agent", http.StatusForbidden)
			return
		}
		w.Write([]byte("bundle-bytes"))
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	data, err := Fetch(ctx, srv.URL+"/bundles/uploader.tar.xz", FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != "bundle-bytes" {
		t.Errorf("Fetch() = %q", data)
	}

	if _, err := Fetch(ctx, srv.URL+"/missing", FetchOptions{}); err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("missing error = %v", err)
	}
	if _, err := Fetch(ctx, srv.URL+"/big", FetchOptions{MaxSize: 10}); !errors.Is(err, security.ErrSizeLimit) {
		t.Errorf("oversized error = %v", err)
	}
	if _, err := Fetch(ctx, "file:///etc/passwd", FetchOptions{}); !errors.Is(err, ErrNotURL) {
		t.Errorf("file URL error = %v", err)
	}
}

func TestDownload(t *testing.T) {
	srv := newServer(t)
	dir := filepath.Join(t.TempDir(), "dl")

	path, err := Download(context.Background(), srv.URL+"/bundles/uploader.tar.xz?token=1", dir, FetchOptions{})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if path != filepath.Join(dir, "uploader.tar.xz") {
		t.Errorf("Download() = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "bundle-bytes" {
		t.Errorf("downloaded %q, %v", data, err)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/a/plugin.zip", "plugin.zip"},
		{"https://example.com/shot.png?size=large", "shot.png"},
	}
	for _, tt := range tests {
		if got := FileName(tt.url); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}

	hashed := FileName("https://example.com/download")
	if len(hashed) != 32 || hashed != FileName("https://example.com/download") {
		t.Errorf("hashed name = %q", hashed)
	}
	if FileName("https://example.com/") == hashed {
		t.Error("different URLs share a hashed name")
	}
}

func TestIsURL(t *testing.T) {
	for s, want := range map[string]bool{
		"https://x/y.zip": true,
		"http://x":        true,
		"./bundle.zip":    false,
		"ftp://x/y":       false,
	} {
		if got := IsURL(s); got != want {
			t.Errorf("IsURL(%q) = %v", s, got)
		}
	}
}
