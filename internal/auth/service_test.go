package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"scribeit/internal/backend"
	"scribeit/internal/config"
	"scribeit/internal/redis"
	"scribeit/internal/storage"
)

type fakeAuthenticator struct {
	token string
	err   error
	calls int
}

func (f *fakeAuthenticator) Login(ctx context.Context, email, password string) (*backend.LoginResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &backend.LoginResult{
		AccessToken: f.token,
		TokenType:   "bearer",
		User:        backend.LoginUser{Email: email, FirstName: "Ada", LastName: "Lovelace"},
	}, nil
}

func TestLoginResolveLogout(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	authn := &fakeAuthenticator{token: "opaque-token"}
	svc := NewService(db, nil, authn, time.Hour, nil)
	ctx := context.Background()

	sess, err := svc.Login(ctx, " ada@example.com ", "secret")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if sess.ID == "" || sess.AccessToken != "opaque-token" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if sess.DisplayName != "Ada Lovelace" || sess.Email != "ada@example.com" {
		t.Fatalf("unexpected identity: %+v", sess)
	}

	got, err := svc.Resolve(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got.AccessToken != "opaque-token" {
		t.Fatalf("expected token carried through, got %q", got.AccessToken)
	}

	if err := svc.Logout(ctx, sess.ID); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if _, err := svc.Resolve(ctx, sess.ID); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession after logout, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	authn := &fakeAuthenticator{err: &backend.ServerError{Op: "login", StatusCode: http.StatusUnauthorized, Detail: "Incorrect email or password"}}
	svc := NewService(db, nil, authn, time.Hour, nil)

	if _, err := svc.Login(context.Background(), "a@b.c", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty email, got %v", err)
	}
	if authn.calls != 1 {
		t.Fatalf("empty email must not reach the backend, calls=%d", authn.calls)
	}
}

func TestLoginReportsStorageFailure(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	if _, err := db.Exec(`DROP TABLE web_sessions`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	svc := NewService(db, nil, &fakeAuthenticator{token: "t"}, time.Hour, nil)
	_, err := svc.Login(context.Background(), "ada@example.com", "secret")
	if err == nil {
		t.Fatalf("expected login to fail without a sessions table")
	}
	if !strings.HasPrefix(err.Error(), "open session: ") || !strings.Contains(err.Error(), "web_sessions") {
		t.Fatalf("expected the storage cause in the error, got %v", err)
	}
}

func TestSessionCappedByTokenExpiry(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	exp := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ada@example.com",
		"exp": exp.Unix(),
	}).SignedString([]byte("backend-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	svc := NewService(db, nil, &fakeAuthenticator{token: token}, 24*time.Hour, nil)

	sess, err := svc.Login(context.Background(), "ada@example.com", "secret")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if !sess.ExpiresAt.Equal(exp) {
		t.Fatalf("expected expiry %v, got %v", exp, sess.ExpiresAt)
	}
}

func TestResolveExpiredSessionIsPurged(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db, nil, &fakeAuthenticator{token: "t"}, time.Hour, nil)
	base := time.Now().UTC()
	svc.now = func() time.Time { return base }
	sess, err := svc.Login(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	svc.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := svc.Resolve(context.Background(), sess.ID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if n := countSessions(t, db); n != 0 {
		t.Fatalf("expired session not removed, %d rows", n)
	}
}

func TestPurgeExpired(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db, nil, &fakeAuthenticator{token: "t"}, time.Hour, nil)
	base := time.Now().UTC()
	svc.now = func() time.Time { return base }
	for i := 0; i < 3; i++ {
		if _, err := svc.Login(context.Background(), "a@b.c", "pw"); err != nil {
			t.Fatalf("Login error: %v", err)
		}
	}
	svc.sessionTTL = 5 * time.Hour
	if _, err := svc.Login(context.Background(), "keep@b.c", "pw"); err != nil {
		t.Fatalf("Login error: %v", err)
	}

	svc.now = func() time.Time { return base.Add(2 * time.Hour) }
	n, err := svc.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 purged, got %d", n)
	}
	if left := countSessions(t, db); left != 1 {
		t.Fatalf("expected 1 session left, got %d", left)
	}
}

func TestTokensSealedAtRest(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	cipher, err := NewTokenCipher([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}
	svc := NewService(db, nil, &fakeAuthenticator{token: "plain-access-token"}, time.Hour, cipher)
	sess, err := svc.Login(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	var stored string
	if err := db.QueryRow(`SELECT access_token FROM web_sessions WHERE id = ?`, sess.ID).Scan(&stored); err != nil {
		t.Fatalf("query token: %v", err)
	}
	if stored == "plain-access-token" || stored == "" {
		t.Fatalf("token stored in clear: %q", stored)
	}
	got, err := svc.Resolve(context.Background(), sess.ID)
	if err != nil || got.AccessToken != "plain-access-token" {
		t.Fatalf("Resolve: token=%q err=%v", got.AccessToken, err)
	}
}

func TestTokenCipherFromEnv(t *testing.T) {
	t.Setenv("SCRIBEIT_TEST_KEY", "")
	c, err := TokenCipherFromEnv("SCRIBEIT_TEST_KEY")
	if err != nil || c != nil {
		t.Fatalf("unset key should yield no cipher, got %v %v", c, err)
	}
	t.Setenv("SCRIBEIT_TEST_KEY", "short")
	if _, err := TokenCipherFromEnv("SCRIBEIT_TEST_KEY"); err == nil {
		t.Fatalf("expected error for bad key")
	}
}

func TestMiddlewareRequiresSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db, nil, &fakeAuthenticator{token: "backend-token"}, time.Hour, nil)
	sess, err := svc.Login(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	router := gin.New()
	router.GET("/private", svc.Middleware(), func(c *gin.Context) {
		c.String(http.StatusOK, CredentialFromContext(c).AccessToken)
	})
	router.GET("/public", svc.OptionalMiddleware(), func(c *gin.Context) {
		if CredentialFromContext(c).Valid() {
			c.String(http.StatusOK, "with credential")
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: svc.SessionCookieName(), Value: sess.ID})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "backend-token" {
		t.Fatalf("cookie auth failed: %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+sess.ID)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer auth failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public", nil))
	if rec.Body.String() != "anonymous" {
		t.Fatalf("expected anonymous, got %q", rec.Body.String())
	}
	req = httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Fatalf("invalid session on optional route: %d %q", rec.Code, rec.Body.String())
	}
}

func TestCSRFMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(nil, nil, nil, time.Hour, nil)
	router := gin.New()
	router.Use(svc.CSRFMiddleware())
	router.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(mutate func(*http.Request)) int {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		mutate(req)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(func(r *http.Request) {}); code != http.StatusNoContent {
		t.Fatalf("cookie-less request should pass, got %d", code)
	}
	if code := send(func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "scribeit_session", Value: "s"})
	}); code != http.StatusForbidden {
		t.Fatalf("missing csrf token should be rejected, got %d", code)
	}
	if code := send(func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "scribeit_session", Value: "s"})
		r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "abc"})
		r.Header.Set("X-CSRF-Token", "abc")
	}); code != http.StatusNoContent {
		t.Fatalf("matching csrf token should pass, got %d", code)
	}
	if code := send(func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "scribeit_session", Value: "s"})
		r.Header.Set("Authorization", "Bearer s")
	}); code != http.StatusNoContent {
		t.Fatalf("bearer request should be exempt, got %d", code)
	}
}

func TestSessionCacheUsesRedis(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	cacheClient, cleanup := newRedisCacheClient(t)
	defer cleanup()

	svc := NewService(db, cacheClient, &fakeAuthenticator{token: "cached-token"}, time.Hour, nil)
	ctx := context.Background()

	sess, err := svc.Login(ctx, "a@b.c", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	key := redisSessionPrefix + sess.ID
	if _, err := cacheClient.Raw().Get(ctx, key).Result(); err != nil {
		t.Fatalf("expected session in redis: %v", err)
	}

	_, _ = db.Exec(`DELETE FROM web_sessions WHERE id = ?`, sess.ID)
	got, err := svc.Resolve(ctx, sess.ID)
	if err != nil || got.AccessToken != "cached-token" {
		t.Fatalf("Resolve via redis failed: %+v %v", got, err)
	}

	if err := svc.Logout(ctx, sess.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := cacheClient.Raw().Get(ctx, key).Result(); err == nil {
		t.Fatalf("expected redis key deleted")
	}
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func countSessions(t *testing.T, db *storage.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM web_sessions`).Scan(&n); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	return n
}

func newRedisCacheClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed session tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Host: host,
			Port: port,
		},
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Raw().FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush db: %v", err)
	}
	return client, func() { client.Close() }
}
