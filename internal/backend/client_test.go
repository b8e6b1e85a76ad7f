package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scribeit/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, 5*time.Second)
}

var testCred = Credential{AccessToken: "tok"}

func TestGetResultSendsBearerAndDecodes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/process/result/42", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"summary_id": "42",
			"status":     "completed",
			"title":      "Standup",
			"summary":    "done",
		})
	})
	rec, err := client.GetResult(context.Background(), testCred, "42")
	require.NoError(t, err)
	require.Equal(t, "42", rec.ID)
	require.Equal(t, models.StatusCompleted, rec.Status)
	require.Equal(t, "done", rec.SummaryText)
}

func TestMissingCredentialIssuesNoRequest(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	_, err := client.GetResult(context.Background(), Credential{}, "42")
	require.ErrorIs(t, err, ErrNoCredential)
	require.False(t, called)
}

func TestServerErrorCarriesDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Summary not found"}`)
	})
	_, err := client.GetResult(context.Background(), testCred, "9")
	var se *ServerError
	require.True(t, errors.As(err, &se))
	require.True(t, se.NotFound())
	require.Equal(t, "Summary not found", se.Detail)
}

func TestTransportErrorWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()
	client := NewClient(base, time.Second, time.Second)
	_, err := client.ListSummaries(context.Background(), testCred)
	var te *TransportError
	require.True(t, errors.As(err, &te))
}

func TestUploadMediaStreamsMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/process/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "Weekly sync", r.FormValue("title"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "sync.mp3", header.Filename)
		require.Equal(t, "audio/mpeg", header.Header.Get("Content-Type"))
		body, _ := io.ReadAll(file)
		require.Equal(t, "ID3-audio-bytes", string(body))
		_, _ = io.WriteString(w, `{"message":"File uploaded successfully","summary_id":"s-1"}`)
	})
	id, err := client.UploadMedia(context.Background(), testCred, MediaUpload{
		FileName: "sync.mp3",
		MimeType: "audio/mpeg",
		Title:    "Weekly sync",
		Body:     strings.NewReader("ID3-audio-bytes"),
	})
	require.NoError(t, err)
	require.Equal(t, "s-1", id)
}

func TestSubmitYouTube(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "https://www.youtube.com/watch?v=abc123", body["url"])
		require.Equal(t, "Standup", body["title"])
		_, _ = io.WriteString(w, `{"summary_id": 17}`)
	})
	id, err := client.SubmitYouTube(context.Background(), testCred, "https://www.youtube.com/watch?v=abc123", "Standup")
	require.NoError(t, err)
	require.Equal(t, "17", id)
}

func TestLoginPostsForm(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Incorrect email or password"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"jwt","token_type":"bearer","user":{"id":"u1","email":"a@b.c","first_name":"Ada"}}`)
	})
	res, err := client.Login(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	require.Equal(t, "jwt", res.AccessToken)
	require.Equal(t, "Ada", res.User.DisplayName())

	_, err = client.Login(context.Background(), "a@b.c", "wrong")
	require.True(t, IsUnauthorized(err))
}
