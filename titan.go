package gemini

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// TitanHandler implements the Titan upload protocol (spec §4.8): an
// auth-token gate, a MIME and size allow-list, an exact-N-byte body
// read, and an atomic write (temp file + fsync + rename) of the result
// under UploadDir. A zero-size request deletes the target instead of
// writing it, when EnableDelete is set.
//
// The request's Body is the reader the server's READING_TITAN_BODY
// phase sets up over the connection; TitanHandler reads it while
// writing the temp file, so the body arrives during ServeGemini; the
// server has not read any of it beforehand.
type TitanHandler struct {
	UploadDir        string
	MaxUploadSize    int64
	AllowedMimeTypes []string // nil means any mime is accepted
	AuthTokens       []string // nil means no token required
	EnableDelete     bool
}

// ServeGemini implements Handler.
func (h *TitanHandler) ServeGemini(ctx context.Context, w ResponseWriter, r *Request) {
	u := r.URL
	if u.Scheme != "titan" {
		w.WriteHeader(StatusBadRequest, "Not a titan request")
		return
	}

	if len(h.AuthTokens) > 0 {
		if !u.HasToken || !containsString(h.AuthTokens, u.Token) {
			w.WriteHeader(StatusCertificateRequired, "Authentication required")
			return
		}
	}

	if !u.HasSize {
		w.WriteHeader(StatusBadRequest, "Missing size parameter")
		return
	}
	if u.Size == 0 {
		h.handleDelete(w, u)
		return
	}
	if h.MaxUploadSize > 0 && u.Size > h.MaxUploadSize {
		w.WriteHeader(StatusPermanentFailure, "Too large")
		return
	}
	if len(h.AllowedMimeTypes) > 0 && !mimeAllowed(h.AllowedMimeTypes, u.Mime) {
		w.WriteHeader(StatusBadRequest, "Disallowed MIME type")
		return
	}

	root, err := filepath.Abs(h.UploadDir)
	if err != nil {
		w.WriteHeader(StatusTemporaryFailure, "Temporary failure")
		return
	}
	target := filepath.Clean(filepath.Join(root, filepath.FromSlash(u.Path)))
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		w.WriteHeader(StatusBadRequest, "Path escapes upload directory")
		return
	}

	if r.Body == nil {
		w.WriteHeader(StatusTemporaryFailure, "Upload body not available")
		return
	}
	if err := writeUploadAtomic(target, r.Body, u.Size); err != nil {
		w.WriteHeader(StatusTemporaryFailure, "Failed to store upload")
		return
	}

	w.WriteHeader(StatusSuccess, "Uploaded")
}

func (h *TitanHandler) handleDelete(w ResponseWriter, u *URL) {
	if !h.EnableDelete {
		w.WriteHeader(StatusPermanentFailure, "Delete not permitted")
		return
	}
	root, err := filepath.Abs(h.UploadDir)
	if err != nil {
		w.WriteHeader(StatusTemporaryFailure, "Temporary failure")
		return
	}
	target := filepath.Clean(filepath.Join(root, filepath.FromSlash(u.Path)))
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		w.WriteHeader(StatusBadRequest, "Path escapes upload directory")
		return
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		w.WriteHeader(StatusTemporaryFailure, "Failed to delete")
		return
	}
	w.WriteHeader(StatusSuccess, "Deleted")
}

func mimeAllowed(allowed []string, mime string) bool {
	base := mime
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		base = strings.TrimSpace(mime[:idx])
	}
	for _, a := range allowed {
		if a == base {
			return true
		}
	}
	return false
}

// writeUploadAtomic reads exactly n bytes from body and writes them to
// target via a sibling temp file that is fsynced and renamed into
// place, so a crash mid-write never leaves a partial file at target.
// The temp file is removed on any failure.
func writeUploadAtomic(target string, body io.Reader, n int64) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".titan-upload-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	succeeded := false
	defer func() {
		if !succeeded {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := io.CopyN(tmp, body, n); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		return err
	}
	succeeded = true
	return nil
}
