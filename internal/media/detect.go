package media

import (
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// NeedsSniffing reports whether the declared type carries no information.
func NeedsSniffing(declared string) bool {
	switch NormalizeMimeType(declared) {
	case "", "application/octet-stream":
		return true
	}
	return false
}

// DetectMimeType sniffs the content type from the head of r.
func DetectMimeType(r io.Reader) (string, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return "", fmt.Errorf("detect mime type: %w", err)
	}
	return NormalizeMimeType(mt.String()), nil
}

// ResolveMimeType keeps the declared type unless it is empty or generic,
// in which case the content of r decides.
func ResolveMimeType(declared string, r io.Reader) (string, error) {
	if !NeedsSniffing(declared) {
		return NormalizeMimeType(declared), nil
	}
	return DetectMimeType(r)
}
