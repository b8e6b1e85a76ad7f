package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"scribeit/internal/media"
	"scribeit/internal/models"
)

// Spool copies r into a fresh file under dir. At most media.MaxUploadBytes+1
// bytes are kept so an oversized body is still reported as too large.
// An empty or generic declared type is replaced by the sniffed one.
func Spool(dir, fileName, declaredMime string, r io.Reader) (*models.SpooledMedia, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	name := filepath.Base(strings.TrimSpace(fileName))
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	f, err := os.CreateTemp(dir, "media-*"+filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	path := f.Name()
	cleanup := func() {
		f.Close()
		os.Remove(path)
	}

	size, err := io.Copy(f, io.LimitReader(r, media.MaxUploadBytes+1))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("write spool file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, fmt.Errorf("rewind spool file: %w", err)
	}
	mimeType, err := media.ResolveMimeType(declaredMime, f)
	if err != nil {
		cleanup()
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close spool file: %w", err)
	}
	return &models.SpooledMedia{
		FileName:   name,
		StoredPath: path,
		MimeType:   mimeType,
		Size:       size,
	}, nil
}
