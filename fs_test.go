package gemini

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileHandlerServesFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "doc.gmi"), []byte("# Hello"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	h := &FileHandler{DocumentRoot: dir}
	rw := &nopResponseWriter{}
	h.ServeGemini(context.Background(), rw, newRequest("gemini://example.com/doc.gmi"))
	if rw.Status != 0 {
		t.Fatalf("expected implicit 20 success, got explicit status %d", rw.Status)
	}
}

func TestFileHandlerNotFound(t *testing.T) {
	dir := t.TempDir()
	h := &FileHandler{DocumentRoot: dir}
	rw := &nopResponseWriter{}
	h.ServeGemini(context.Background(), rw, newRequest("gemini://example.com/missing.gmi"))
	if rw.Status != StatusNotFound {
		t.Errorf("expected %d, got %d", StatusNotFound, rw.Status)
	}
}

func TestFileHandlerDirectoryRedirectsToTrailingSlash(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	h := &FileHandler{DocumentRoot: dir}
	rw := &nopResponseWriter{}
	h.ServeGemini(context.Background(), rw, newRequest("gemini://example.com/sub"))
	if rw.Status != StatusRedirectPermanent || rw.Meta != "/sub/" {
		t.Errorf("expected permanent redirect to /sub/, got %d %q", rw.Status, rw.Meta)
	}
}

func TestFileHandlerDefaultIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.gmi"), []byte("# Index"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}
	h := &FileHandler{DocumentRoot: dir, DefaultIndices: []string{"index.gmi"}}
	rw := &nopResponseWriter{}
	h.ServeGemini(context.Background(), rw, newRequest("gemini://example.com/"))
	if rw.Status != 0 {
		t.Fatalf("expected implicit success serving default index, got status %d", rw.Status)
	}
}

func TestFileHandlerDirectoryListingDisabled(t *testing.T) {
	dir := t.TempDir()
	h := &FileHandler{DocumentRoot: dir, EnableDirectoryListing: false}
	rw := &nopResponseWriter{}
	h.ServeGemini(context.Background(), rw, newRequest("gemini://example.com/"))
	if rw.Status != StatusNotFound {
		t.Errorf("expected %d when listing disabled and no index present, got %d", StatusNotFound, rw.Status)
	}
}

func TestFileHandlerDirectoryListingEnabled(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.gmi"), []byte("a"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	h := &FileHandler{DocumentRoot: dir, EnableDirectoryListing: true}
	var out strings.Builder
	listWriter := newResponseWriter(&out)
	h.ServeGemini(context.Background(), listWriter, newRequest("gemini://example.com/"))
	listWriter.Flush()

	rendered := out.String()
	if !strings.Contains(rendered, "=> ./a.gmi") || !strings.Contains(rendered, "=> ./sub/") {
		t.Errorf("expected listing entries to use ./-relative links, got %q", rendered)
	}
	if strings.Contains(rendered, "../") {
		t.Errorf("expected no parent link at the document root, got %q", rendered)
	}
}

func TestFileHandlerDirectoryListingSubdirHasParentLink(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b.gmi"), []byte("b"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	h := &FileHandler{DocumentRoot: dir, EnableDirectoryListing: true}
	var out strings.Builder
	listWriter := newResponseWriter(&out)
	h.ServeGemini(context.Background(), listWriter, newRequest("gemini://example.com/sub/"))
	listWriter.Flush()

	rendered := out.String()
	if !strings.HasPrefix(rendered, "20 text/gemini; charset=utf-8\r\n=> ../\n") {
		t.Errorf("expected subdirectory listing to start with a parent link, got %q", rendered)
	}
	if !strings.Contains(rendered, "=> ./b.gmi") {
		t.Errorf("expected listing entry to use ./-relative link, got %q", rendered)
	}
}

func TestFileHandlerMaxFileSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "big.gmi"), []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}
	h := &FileHandler{DocumentRoot: dir, MaxFileSize: 5}
	rw := &nopResponseWriter{}
	h.ServeGemini(context.Background(), rw, newRequest("gemini://example.com/big.gmi"))
	if rw.Status != StatusPermanentFailure {
		t.Errorf("expected %d for oversized file, got %d", StatusPermanentFailure, rw.Status)
	}
}

func TestDetectMIME(t *testing.T) {
	tests := map[string]string{
		"page.gmi":    "text/gemini; charset=utf-8",
		"page.gemini": "text/gemini; charset=utf-8",
		"note.txt":    "text/plain; charset=utf-8",
		"photo.png":   "image/png",
		"unknown.xyz": "application/octet-stream",
	}
	for name, want := range tests {
		if got := detectMIME(name); got != want {
			t.Errorf("detectMIME(%q) = %q, want %q", name, got, want)
		}
	}
}
