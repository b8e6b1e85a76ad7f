package models

import "time"

// WebSession binds a browser cookie to the backend access token obtained at login.
type WebSession struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	AccessToken string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *WebSession) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}
