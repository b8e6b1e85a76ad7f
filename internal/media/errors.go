package media

import "errors"

// ErrorKind enumerates local validation failures.
type ErrorKind string

const (
	MissingFile     ErrorKind = "missing_file"
	MissingTitle    ErrorKind = "missing_title"
	UnsupportedType ErrorKind = "unsupported_type"
	TooLarge        ErrorKind = "too_large"
	MissingURL      ErrorKind = "missing_url"
	InvalidURL      ErrorKind = "invalid_url"
)

var messages = map[ErrorKind]string{
	MissingFile:     "Please select a file to upload",
	MissingTitle:    "Please enter a title for your summary",
	UnsupportedType: "Please upload a valid audio or video file (MP3, WAV, MP4, WEBM, M4A)",
	TooLarge:        "File size exceeds 500MB limit",
	MissingURL:      "Please enter a YouTube URL",
	InvalidURL:      "Please enter a valid YouTube URL",
}

// ValidationError blocks a submission locally; it never reaches the network.
type ValidationError struct {
	Kind ErrorKind
}

// NewValidationError builds the error for kind.
func NewValidationError(kind ErrorKind) *ValidationError {
	return &ValidationError{Kind: kind}
}

func (e *ValidationError) Error() string {
	if msg, ok := messages[e.Kind]; ok {
		return msg
	}
	return string(e.Kind)
}

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// IsKind reports whether err is a validation error of kind.
func IsKind(err error, kind ErrorKind) bool {
	ve, ok := AsValidationError(err)
	return ok && ve.Kind == kind
}
