package auth

import (
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/gorilla/securecookie"
)

const csrfTokenBytes = 32

// CSRF issues and checks the per-session token that guards state-changing requests.
type CSRF struct {
	lifetime time.Duration
	now      func() time.Time
}

func NewCSRF(lifetime time.Duration) *CSRF {
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	return &CSRF{lifetime: lifetime, now: time.Now}
}

func (c *CSRF) expired(sess *Session) bool {
	return sess.CSRFToken == "" || c.now().Sub(sess.CSRFIssuedAt) > c.lifetime
}

// Token returns the session's token, issuing a new one when missing or expired.
// changed reports whether sess must be saved.
func (c *CSRF) Token(sess *Session) (token string, changed bool) {
	if !c.expired(sess) {
		return sess.CSRFToken, false
	}
	sess.CSRFToken = hex.EncodeToString(securecookie.GenerateRandomKey(csrfTokenBytes))
	sess.CSRFIssuedAt = c.now()
	return sess.CSRFToken, true
}

// Verify checks token against sess in constant time. An expired token is cleared
// from sess, in which case changed is true.
func (c *CSRF) Verify(sess *Session, token string) (ok bool, changed bool) {
	if sess == nil || sess.CSRFToken == "" {
		return false, false
	}
	if c.expired(sess) {
		sess.CSRFToken = ""
		sess.CSRFIssuedAt = time.Time{}
		return false, true
	}
	if token == "" {
		return false, false
	}
	return subtle.ConstantTimeCompare([]byte(sess.CSRFToken), []byte(token)) == 1, false
}
