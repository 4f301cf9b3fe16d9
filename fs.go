package gemini

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func init() {
	mime.AddExtensionType(".gmi", "text/gemini")
	mime.AddExtensionType(".gemini", "text/gemini")
}

// mimeTypes is the minimum extension table required by spec §6.4.
// mime.TypeByExtension is still consulted for anything not listed here.
var mimeTypes = map[string]string{
	".gmi":    "text/gemini; charset=utf-8",
	".gemini": "text/gemini; charset=utf-8",
	".txt":    "text/plain; charset=utf-8",
	".md":     "text/markdown; charset=utf-8",
	".png":    "image/png",
	".jpg":    "image/jpeg",
	".jpeg":   "image/jpeg",
	".gif":    "image/gif",
	".pdf":    "application/pdf",
}

// detectMIME returns the MIME type for name's extension, falling back
// to application/octet-stream for anything unrecognized.
func detectMIME(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := mimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// FileHandler serves Gemini requests from a directory tree (spec §4.7):
// document-root confinement, default-index resolution, gemtext
// directory listings, MIME detection, and a maximum file size.
type FileHandler struct {
	DocumentRoot           string
	DefaultIndices         []string
	EnableDirectoryListing bool
	MaxFileSize            int64
}

// ServeGemini implements Handler.
func (h *FileHandler) ServeGemini(ctx context.Context, w ResponseWriter, r *Request) {
	root, err := filepath.Abs(h.DocumentRoot)
	if err != nil {
		w.WriteHeader(StatusTemporaryFailure, "Temporary failure")
		return
	}
	target := filepath.Clean(filepath.Join(root, filepath.FromSlash(r.URL.Path)))
	// The path never discloses the resolved filesystem location on
	// failure; it may only escape document_root if DocumentRoot itself
	// is misconfigured, since URL.Path is already clamped at "/".
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		w.WriteHeader(StatusNotFound, "Not found")
		return
	}

	info, err := os.Stat(target)
	if err != nil {
		w.WriteHeader(StatusNotFound, "Not found")
		return
	}

	if info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			w.WriteHeader(StatusRedirectPermanent, r.URL.Path+"/")
			return
		}
		for _, index := range h.DefaultIndices {
			indexPath := filepath.Join(target, index)
			if fi, err := os.Stat(indexPath); err == nil && !fi.IsDir() {
				h.serveFile(w, indexPath, fi)
				return
			}
		}
		if h.EnableDirectoryListing {
			h.serveDirectory(w, root, target)
			return
		}
		w.WriteHeader(StatusNotFound, "Not found")
		return
	}

	h.serveFile(w, target, info)
}

func (h *FileHandler) serveFile(w ResponseWriter, target string, info os.FileInfo) {
	if h.MaxFileSize > 0 && info.Size() > h.MaxFileSize {
		w.WriteHeader(StatusPermanentFailure, "File too large")
		return
	}
	f, err := os.Open(target)
	if err != nil {
		w.WriteHeader(StatusTemporaryFailure, "Temporary failure")
		return
	}
	defer f.Close()

	w.SetMediaType(detectMIME(target))
	io.Copy(w, f)
}

// serveDirectory renders dir as a gemtext link listing (spec §6.3): a
// "../" parent link first when dir isn't the document root, followed
// by each entry as a "./"-relative link so the listing works regardless
// of where the client resolves it from.
func (h *FileHandler) serveDirectory(w ResponseWriter, root, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.WriteHeader(StatusTemporaryFailure, "Error reading directory")
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	w.SetMediaType("text/gemini; charset=utf-8")
	if dir != root {
		fmt.Fprintln(w, LineLink{URL: "../"}.String())
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			fmt.Fprintln(w, LineLink{URL: "./" + name + "/", Name: name + "/"}.String())
		} else {
			fmt.Fprintln(w, LineLink{URL: "./" + name, Name: name}.String())
		}
	}
}
