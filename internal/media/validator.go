package media

import (
	"math"
	"regexp"
	"strings"
)

// MaxUploadBytes is the largest accepted media file (500 MiB).
const MaxUploadBytes int64 = 500 * 1024 * 1024

var allowedMimeTypes = map[string]struct{}{
	"audio/mpeg":  {},
	"audio/mp3":   {},
	"audio/wav":   {},
	"audio/x-wav": {},
	"video/mp4":   {},
	"video/webm":  {},
	"audio/m4a":   {},
	"audio/x-m4a": {},
}

// AllowedMimeTypes lists the accepted types in a stable order.
func AllowedMimeTypes() []string {
	return []string{
		"audio/mpeg", "audio/mp3", "audio/wav", "audio/x-wav",
		"video/mp4", "video/webm", "audio/m4a", "audio/x-m4a",
	}
}

// Descriptor is what the browser tells us about a picked or dropped file.
type Descriptor struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Selection is an accepted file. It is replaced wholesale on re-selection.
type Selection struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Validate accepts d iff its type is allow-listed and it fits the size limit.
// The type check runs first, so an oversized unsupported file reports UnsupportedType.
func Validate(d Descriptor) error {
	if !IsAllowedMimeType(d.MimeType) {
		return NewValidationError(UnsupportedType)
	}
	if d.Size > MaxUploadBytes {
		return NewValidationError(TooLarge)
	}
	return nil
}

// IsAllowedMimeType reports whether mt (case and parameters ignored) is accepted.
func IsAllowedMimeType(mt string) bool {
	_, ok := allowedMimeTypes[NormalizeMimeType(mt)]
	return ok
}

// NormalizeMimeType lowercases mt and drops any parameters.
func NormalizeMimeType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

var extensionPattern = regexp.MustCompile(`\.[^/.]+$`)

// DeriveTitle strips the last dot-delimited extension from fileName.
func DeriveTitle(fileName string) string {
	return extensionPattern.ReplaceAllString(fileName, "")
}

const bytesPerEstimateUnit = 10 * 1024 * 1024

// EstimateMinutes is the quota hint shown before upload: five minutes per 10 MiB, rounded up.
// The backend computes the real charge.
func EstimateMinutes(size int64) int {
	if size <= 0 {
		return 0
	}
	return int(math.Ceil(float64(size) / bytesPerEstimateUnit * 5))
}

var youtubePattern = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.?be)/.+$`)

// ValidateYouTube checks the YouTube form before anything reaches the network.
func ValidateYouTube(rawURL, title string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return NewValidationError(MissingURL)
	}
	if !youtubePattern.MatchString(rawURL) {
		return NewValidationError(InvalidURL)
	}
	if strings.TrimSpace(title) == "" {
		return NewValidationError(MissingTitle)
	}
	return nil
}
