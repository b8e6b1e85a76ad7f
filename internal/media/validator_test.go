package media

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsUnsupportedTypeRegardlessOfSize(t *testing.T) {
	for _, size := range []int64{0, 1024, MaxUploadBytes, MaxUploadBytes + 1, 10 * MaxUploadBytes} {
		for _, mt := range []string{"text/plain", "image/png", "application/pdf", "", "audio/ogg"} {
			err := Validate(Descriptor{FileName: "x", MimeType: mt, Size: size})
			require.True(t, IsKind(err, UnsupportedType), "mime=%q size=%d err=%v", mt, size, err)
		}
	}
}

func TestValidateRejectsTooLargeForEveryAllowedType(t *testing.T) {
	for _, mt := range AllowedMimeTypes() {
		err := Validate(Descriptor{FileName: "big", MimeType: mt, Size: MaxUploadBytes + 1})
		require.True(t, IsKind(err, TooLarge), "mime=%q err=%v", mt, err)
		require.NoError(t, Validate(Descriptor{FileName: "ok", MimeType: mt, Size: MaxUploadBytes}))
	}
}

func TestValidateNormalizesDeclaredType(t *testing.T) {
	require.NoError(t, Validate(Descriptor{MimeType: "Audio/MPEG; charset=binary", Size: 1}))
}

func TestFixedMessages(t *testing.T) {
	require.Equal(t, "Please upload a valid audio or video file (MP3, WAV, MP4, WEBM, M4A)", NewValidationError(UnsupportedType).Error())
	require.Equal(t, "File size exceeds 500MB limit", NewValidationError(TooLarge).Error())
	require.Equal(t, "Please select a file to upload", NewValidationError(MissingFile).Error())
	require.Equal(t, "Please enter a title for your summary", NewValidationError(MissingTitle).Error())
}

func TestDeriveTitle(t *testing.T) {
	cases := map[string]string{
		"meeting.final.mp4": "meeting.final",
		"interview.mp3":     "interview",
		"noextension":       "noextension",
		"dir.v2/recording":  "dir.v2/recording",
	}
	for in, want := range cases {
		require.Equal(t, want, DeriveTitle(in), in)
	}
}

func TestEstimateMinutes(t *testing.T) {
	require.Equal(t, 0, EstimateMinutes(0))
	require.Equal(t, 1, EstimateMinutes(1))
	require.Equal(t, 5, EstimateMinutes(10*1024*1024))
	require.Equal(t, 1, EstimateMinutes(2*1024*1024))
	require.Equal(t, 250, EstimateMinutes(MaxUploadBytes))
}

func TestValidateYouTube(t *testing.T) {
	require.NoError(t, ValidateYouTube("https://www.youtube.com/watch?v=abc123", "Standup"))
	require.NoError(t, ValidateYouTube("youtu.be/abc123", "Clip"))
	require.True(t, IsKind(ValidateYouTube("  ", "Standup"), MissingURL))
	require.True(t, IsKind(ValidateYouTube("https://vimeo.com/123", "Standup"), InvalidURL))
	require.True(t, IsKind(ValidateYouTube("https://youtube.com/", "Standup"), InvalidURL))
	require.True(t, IsKind(ValidateYouTube("https://youtube.com/watch?v=1", " "), MissingTitle))
}

func TestResolveMimeType(t *testing.T) {
	mt, err := ResolveMimeType("audio/wav", bytes.NewReader([]byte("anything")))
	require.NoError(t, err)
	require.Equal(t, "audio/wav", mt)

	mt, err = ResolveMimeType("application/octet-stream", bytes.NewReader(append([]byte("ID3"), make([]byte, 64)...)))
	require.NoError(t, err)
	require.Equal(t, "audio/mpeg", mt)

	mt, err = ResolveMimeType("", bytes.NewReader([]byte("just some notes")))
	require.NoError(t, err)
	require.Equal(t, "text/plain", mt)
	require.False(t, IsAllowedMimeType(mt))
}
