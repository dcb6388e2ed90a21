// Package auth implements Redis-backed sessions, CSRF tokens and account management.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionKeyPrefix = "session:"

// Session is the server-side state behind the session cookie.
type Session struct {
	ID           string    `json:"-"`
	UserID       int64     `json:"user_id,omitempty"`
	Role         string    `json:"role,omitempty"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email,omitempty"`
	CSRFToken    string    `json:"csrf_token,omitempty"`
	CSRFIssuedAt time.Time `json:"csrf_issued_at,omitzero"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *Session) Authenticated() bool {
	return s != nil && s.UserID > 0
}

type SessionStore struct {
	rdb redis.Cmdable
	ttl time.Duration
	now func() time.Time
}

func NewSessionStore(rdb redis.Cmdable, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// Create starts an empty anonymous session.
func (s *SessionStore) Create(ctx context.Context) (*Session, error) {
	sess := &Session{ID: uuid.NewString(), CreatedAt: s.now()}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads a session and slides its expiry forward.
func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}

	raw, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	sess.ID = id

	if err := s.rdb.Expire(ctx, sessionKey(id), s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// Regenerate moves sess to a fresh id, dropping the old key. Used at login to
// defeat session fixation.
func (s *SessionStore) Regenerate(ctx context.Context, sess *Session) error {
	oldID := sess.ID
	sess.ID = uuid.NewString()
	if err := s.Save(ctx, sess); err != nil {
		return err
	}
	return s.Destroy(ctx, oldID)
}

// CookieCodec signs session ids for the cookie value.
type CookieCodec struct {
	name string
	sc   *securecookie.SecureCookie
}

func NewCookieCodec(name, hashKey string, maxAge time.Duration) *CookieCodec {
	sc := securecookie.New([]byte(hashKey), nil)
	sc.MaxAge(int(maxAge.Seconds()))
	return &CookieCodec{name: name, sc: sc}
}

func (c *CookieCodec) Name() string {
	return c.name
}

func (c *CookieCodec) Encode(sessionID string) (string, error) {
	return c.sc.Encode(c.name, sessionID)
}

// Decode returns the session id from a cookie value, or "" when it is missing or tampered.
func (c *CookieCodec) Decode(value string) string {
	if value == "" {
		return ""
	}
	var id string
	if err := c.sc.Decode(c.name, value, &id); err != nil {
		return ""
	}
	return id
}
