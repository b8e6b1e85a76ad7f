package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"scribeit/internal/backend"
	"scribeit/internal/logger"
	"scribeit/internal/models"
	"scribeit/internal/redis"
	"scribeit/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidSession     = errors.New("invalid session")
	ErrSessionExpired     = errors.New("session expired")
)

const redisSessionPrefix = "session:"

// Authenticator exchanges user credentials for a backend access token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*backend.LoginResult, error)
}

// Service keeps browser sessions. Each session holds the backend access token
// obtained at login; the browser only sees the session id.
type Service struct {
	db             *storage.DB
	cache          *redis.Client
	authn          Authenticator
	cipher         *TokenCipher
	sessionTTL     time.Duration
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
	now            func() time.Time
}

// NewService constructs the session service. cache and cipher may be nil.
func NewService(db *storage.DB, cache *redis.Client, authn Authenticator, ttl time.Duration, cipher *TokenCipher) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:             db,
		cache:          cache,
		authn:          authn,
		cipher:         cipher,
		sessionTTL:     ttl,
		cookieName:     "scribeit_session",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// cachedSession is the redis form of a session. The token stays sealed.
type cachedSession struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	SealedToken string    `json:"token"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login authenticates against the backend and opens a session. The session
// never outlives the access token.
func (s *Service) Login(ctx context.Context, email, password string) (*models.WebSession, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	res, err := s.authn.Login(ctx, email, password)
	if err != nil {
		if backend.IsUnauthorized(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now()
	expiresAt := now.Add(s.sessionTTL)
	if exp, ok := tokenExpiry(res.AccessToken); ok && exp.Before(expiresAt) {
		expiresAt = exp
	}
	if !expiresAt.After(now) {
		return nil, ErrSessionExpired
	}
	sealed, err := s.cipher.Seal(res.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	displayName := res.User.DisplayName()
	if displayName == "" {
		displayName = email
	}

	var lastErr error
	for i := 0; i < 5; i++ {
		id, err := generateToken()
		if err != nil {
			return nil, err
		}
		_, err = s.db.ExecContext(ctx, s.db.Rebind(
			`INSERT INTO web_sessions (id, email, display_name, access_token, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`),
			id, email, displayName, sealed, now, expiresAt,
		)
		if err != nil {
			// only an id collision is worth another attempt
			if storage.IsUniqueViolation(err) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("open session: %w", err)
		}
		sess := &models.WebSession{
			ID:          id,
			Email:       email,
			DisplayName: displayName,
			AccessToken: res.AccessToken,
			CreatedAt:   now,
			ExpiresAt:   expiresAt,
		}
		s.cacheSession(ctx, sess, sealed)
		logger.Info(ctx, "session opened", logger.Fields{"email": email, "expires_at": expiresAt.Format(time.RFC3339)})
		return sess, nil
	}
	return nil, fmt.Errorf("open session: %w", lastErr)
}

// Resolve returns the live session for id.
func (s *Service) Resolve(ctx context.Context, id string) (*models.WebSession, error) {
	if id == "" {
		return nil, ErrInvalidSession
	}
	sess, sealed, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		_ = s.Logout(ctx, id)
		return nil, ErrSessionExpired
	}
	token, err := s.cipher.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	sess.AccessToken = token
	return sess, nil
}

func (s *Service) lookup(ctx context.Context, id string) (*models.WebSession, string, error) {
	if s.cache.Enabled() {
		var cached cachedSession
		err := s.cache.GetJSON(ctx, redisSessionPrefix+id, &cached)
		if err == nil {
			return &models.WebSession{
				ID:          cached.ID,
				Email:       cached.Email,
				DisplayName: cached.DisplayName,
				CreatedAt:   cached.CreatedAt,
				ExpiresAt:   cached.ExpiresAt,
			}, cached.SealedToken, nil
		}
		if !errors.Is(err, redis.ErrCacheMiss) {
			logger.Warn(ctx, "session cache read failed", logger.Fields{"error": err.Error()})
		}
	}

	var (
		sess   models.WebSession
		sealed string
	)
	err := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT id, email, display_name, access_token, created_at, expires_at FROM web_sessions WHERE id = ?`), id,
	).Scan(&sess.ID, &sess.Email, &sess.DisplayName, &sealed, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrInvalidSession
		}
		return nil, "", fmt.Errorf("lookup session: %w", err)
	}
	s.cacheSession(ctx, &sess, sealed)
	return &sess, sealed, nil
}

// Logout deletes the session. Unknown ids are not an error.
func (s *Service) Logout(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if s.cache.Enabled() {
		if err := s.cache.Del(ctx, redisSessionPrefix+id); err != nil {
			logger.Warn(ctx, "session cache delete failed", logger.Fields{"error": err.Error()})
		}
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM web_sessions WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpired removes every expired session row and returns how many went.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM web_sessions WHERE expires_at <= ?`), s.now())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *Service) cacheSession(ctx context.Context, sess *models.WebSession, sealed string) {
	if !s.cache.Enabled() {
		return
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	err := s.cache.SetJSON(ctx, redisSessionPrefix+sess.ID, cachedSession{
		ID:          sess.ID,
		Email:       sess.Email,
		DisplayName: sess.DisplayName,
		SealedToken: sealed,
		CreatedAt:   sess.CreatedAt,
		ExpiresAt:   sess.ExpiresAt,
	}, ttl)
	if err != nil {
		logger.Warn(ctx, "session cache write failed", logger.Fields{"error": err.Error()})
	}
}

// tokenExpiry reads the exp claim without verifying the signature; the
// backend remains the one checking it.
func tokenExpiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time.UTC(), true
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// SessionCookieName returns the cookie name storing the session id.
func (s *Service) SessionCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// SessionTTL reports the configured session lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}
