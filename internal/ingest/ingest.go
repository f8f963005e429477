package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/scribed/scribed/internal/job"
)

const chunkSize = 32 * 1024

// allowedTypes maps accepted audio MIME types to the file extension used
// when naming provider uploads.
var allowedTypes = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/mp4":   ".m4a",
	"audio/m4a":   ".m4a",
	"audio/aac":   ".aac",
	"audio/ogg":   ".ogg",
	"audio/opus":  ".opus",
	"audio/webm":  ".webm",
	"audio/flac":  ".flac",
}

// CanonicalType normalizes a declared content type (lowercased, parameters
// stripped) and reports whether it is on the allow-list.
func CanonicalType(declared string) (string, bool) {
	mt := strings.ToLower(strings.TrimSpace(declared))
	if idx := strings.Index(mt, ";"); idx != -1 {
		mt = strings.TrimSpace(mt[:idx])
	}
	_, ok := allowedTypes[mt]
	return mt, ok
}

// ExtensionFor returns the upload filename extension for an allowed type.
func ExtensionFor(mimeType string) string {
	if ext, ok := allowedTypes[mimeType]; ok {
		return ext
	}
	return ".bin"
}

// Result describes a successfully spooled upload. The temp file at Path is
// exclusively owned by the caller.
type Result struct {
	Path   string
	Digest string
	Size   int64
}

// Spool consumes r chunk by chunk into a fresh temp file under dir,
// computing the sha256 digest and byte count as it goes. The moment the
// count exceeds maxBytes it fails with job.ErrFileTooLarge; a reader error
// or context cancellation fails with job.ErrAborted. On any failure the
// partial temp file is removed before the error is returned.
func Spool(ctx context.Context, r io.Reader, maxBytes int64, dir string) (*Result, error) {
	f, err := os.CreateTemp(dir, "scribed-*.audio")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	discard := func() {
		f.Close()
		os.Remove(f.Name())
	}

	h := sha256.New()
	buf := make([]byte, chunkSize)
	var size int64

	for {
		if err := ctx.Err(); err != nil {
			discard()
			return nil, fmt.Errorf("%w: %v", job.ErrAborted, err)
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			size += int64(n)
			if size > maxBytes {
				discard()
				return nil, job.ErrFileTooLarge
			}
			h.Write(buf[:n])
			if _, werr := f.Write(buf[:n]); werr != nil {
				discard()
				return nil, fmt.Errorf("write temp file: %w", werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			discard()
			return nil, fmt.Errorf("%w: %v", job.ErrAborted, rerr)
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	return &Result{
		Path:   f.Name(),
		Digest: hex.EncodeToString(h.Sum(nil)),
		Size:   size,
	}, nil
}

// TypeForPath maps a file extension to its canonical audio MIME type, for
// watch-folder submissions where no type is declared.
func TypeForPath(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg", true
	case ".wav":
		return "audio/wav", true
	case ".m4a", ".mp4":
		return "audio/mp4", true
	case ".aac":
		return "audio/aac", true
	case ".ogg":
		return "audio/ogg", true
	case ".opus":
		return "audio/opus", true
	case ".webm":
		return "audio/webm", true
	case ".flac":
		return "audio/flac", true
	default:
		return "", false
	}
}
