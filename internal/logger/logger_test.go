package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })
	return &buf
}

func TestErrorIncludesRequestIDAndFields(t *testing.T) {
	buf := captureOutput(t)
	Init("scribeit-test")

	ctx := WithRequestID(context.Background(), "req-1")
	Error(ctx, "fetch summary failed", errors.New("boom"), Fields{"summary_id": "42"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "error", line["level"])
	require.Equal(t, "fetch summary failed", line["message"])
	require.Equal(t, "req-1", line["request_id"])
	require.Equal(t, "scribeit-test", line["service"])
	require.Equal(t, "boom", line["error"])
	require.Equal(t, "42", line["summary_id"])
}

func TestMiddlewareSetsRequestID(t *testing.T) {
	captureOutput(t)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware())
	var seen string
	router.GET("/ping", func(c *gin.Context) {
		seen = RequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "from-proxy")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, "from-proxy", seen)
	require.True(t, strings.EqualFold(rec.Header().Get(RequestIDHeader), "from-proxy"))
}
