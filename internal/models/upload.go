package models

// SpooledMedia is a received media file held on local disk until it is streamed
// to the backend. The spool file is removed once the job ends or is abandoned.
type SpooledMedia struct {
	FileName   string `json:"file_name"`
	StoredPath string `json:"-"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
}
