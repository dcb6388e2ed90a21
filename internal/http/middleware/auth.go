package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"qlink/internal/apperror"
	"qlink/internal/audit"
	"qlink/internal/auth"
	"qlink/internal/config"
	"qlink/internal/helper"
	"qlink/internal/models"
)

const (
	localIdentity = "identity"
	localSession  = "session"

	CSRFField  = "csrf_token"
	CSRFHeader = "X-CSRF-Token"
)

var (
	ErrInvalidToken = apperror.Unauthorized("Invalid or expired token")
	ErrForbidden    = apperror.Forbidden("Unauthorized")
	ErrCSRF         = apperror.Forbidden("Invalid or expired security token")
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID int64
	Name   string
	Email  string
	Role   string
	Bearer bool
}

type TokenValidator interface {
	ValidateToken(token string) (*config.JWTClaims, error)
}

type UserLoader interface {
	CurrentUser(ctx context.Context, userID int64) (*models.User, error)
}

type AuthConfig struct {
	Sessions     *auth.SessionStore
	Cookies      *auth.CookieCodec
	CSRF         *auth.CSRF
	Tokens       TokenValidator
	Users        UserLoader
	CookieSecure bool
	Logger       *slog.Logger
}

// Auth resolves sessions, bearer tokens and CSRF tokens for each request.
type Auth struct {
	cfg AuthConfig
	log *slog.Logger
}

func NewAuth(cfg AuthConfig) *Auth {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Auth{cfg: cfg, log: log}
}

func IdentityFrom(c *fiber.Ctx) *Identity {
	id, _ := c.Locals(localIdentity).(*Identity)
	return id
}

func SessionFrom(c *fiber.Ctx) *auth.Session {
	s, _ := c.Locals(localSession).(*auth.Session)
	return s
}

// RequestMeta copies the caller address and user agent into the request context
// for activity logging.
func RequestMeta() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := audit.WithMeta(c.UserContext(), audit.Meta{
			IP:        c.IP(),
			UserAgent: string(c.Request().Header.UserAgent()),
		})
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, bool, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", false, nil
	}
	parts := strings.Fields(header)
	if len(parts) == 0 || !strings.EqualFold(parts[0], "Bearer") {
		// Other schemes (Basic on /ops) belong to their own route guards.
		return "", false, nil
	}
	if len(parts) != 2 {
		return "", true, ErrInvalidToken
	}
	return parts[1], true, nil
}

// Identify loads the caller from a bearer token or the session cookie. It never
// rejects anonymous requests; RequireAuth does that.
func (a *Auth) Identify() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		token, hasBearer, err := bearerToken(c)
		if err != nil {
			return err
		}
		if hasBearer {
			claims, err := a.cfg.Tokens.ValidateToken(token)
			if err != nil {
				return ErrInvalidToken
			}
			user, err := a.cfg.Users.CurrentUser(ctx, claims.UserID)
			if err != nil {
				return err
			}
			c.Locals(localIdentity, identityOf(user, true))
			return c.Next()
		}

		id := a.cfg.Cookies.Decode(c.Cookies(a.cfg.Cookies.Name()))
		if id == "" {
			return c.Next()
		}
		sess, err := a.cfg.Sessions.Get(ctx, id)
		if errors.Is(err, auth.ErrSessionNotFound) {
			return c.Next()
		}
		if err != nil {
			a.log.Error("load session failed", "error", err)
			return apperror.Internal("", err)
		}
		c.Locals(localSession, sess)

		if !sess.Authenticated() {
			return c.Next()
		}
		user, err := a.cfg.Users.CurrentUser(ctx, sess.UserID)
		if errors.Is(err, auth.ErrSignInRequired) {
			// Deactivated or deleted since login: drop the binding, keep the session.
			sess.UserID, sess.Role, sess.Name, sess.Email = 0, "", "", ""
			if err := a.cfg.Sessions.Save(ctx, sess); err != nil {
				a.log.Warn("reset session failed", "error", err)
			}
			return c.Next()
		}
		if err != nil {
			return err
		}
		c.Locals(localIdentity, identityOf(user, false))
		return c.Next()
	}
}

func identityOf(u *models.User, bearer bool) *Identity {
	return &Identity{UserID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, Bearer: bearer}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if IdentityFrom(c) == nil {
			return auth.ErrSignInRequired
		}
		return c.Next()
	}
}

// RoleAuth allows only the given roles. It expects RequireAuth to run first.
func RoleAuth(allowedRoles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := IdentityFrom(c)
		if id == nil {
			return auth.ErrSignInRequired
		}
		if !helper.HasRole(id.Role, allowedRoles...) {
			return ErrForbidden
		}
		return c.Next()
	}
}

// CSRF verifies the session token on state-changing requests. Bearer requests
// carry no ambient credential and skip the check.
func (a *Auth) CSRF() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		if id := IdentityFrom(c); id != nil && id.Bearer {
			return c.Next()
		}

		token := c.FormValue(CSRFField)
		if token == "" {
			token = c.Get(CSRFHeader)
		}

		sess := SessionFrom(c)
		ok, changed := a.cfg.CSRF.Verify(sess, token)
		if changed {
			if err := a.cfg.Sessions.Save(c.UserContext(), sess); err != nil {
				a.log.Warn("save session failed", "error", err)
			}
		}
		if !ok {
			return ErrCSRF
		}
		return c.Next()
	}
}

// EnsureSession returns the request session, creating an anonymous one (and its
// cookie) when the client has none.
func (a *Auth) EnsureSession(c *fiber.Ctx) (*auth.Session, error) {
	if sess := SessionFrom(c); sess != nil {
		return sess, nil
	}
	sess, err := a.cfg.Sessions.Create(c.UserContext())
	if err != nil {
		a.log.Error("create session failed", "error", err)
		return nil, apperror.Internal("", err)
	}
	if err := a.SetSessionCookie(c, sess); err != nil {
		return nil, err
	}
	c.Locals(localSession, sess)
	return sess, nil
}

// IssueCSRF returns the session's CSRF token, saving the session when a new one was minted.
func (a *Auth) IssueCSRF(c *fiber.Ctx) (string, error) {
	sess, err := a.EnsureSession(c)
	if err != nil {
		return "", err
	}
	token, changed := a.cfg.CSRF.Token(sess)
	if changed {
		if err := a.cfg.Sessions.Save(c.UserContext(), sess); err != nil {
			a.log.Error("save session failed", "error", err)
			return "", apperror.Internal("", err)
		}
	}
	return token, nil
}

func (a *Auth) SetSessionCookie(c *fiber.Ctx, sess *auth.Session) error {
	value, err := a.cfg.Cookies.Encode(sess.ID)
	if err != nil {
		a.log.Error("encode session cookie failed", "error", err)
		return apperror.Internal("", err)
	}
	c.Cookie(&fiber.Cookie{
		Name:     a.cfg.Cookies.Name(),
		Value:    value,
		Path:     "/",
		MaxAge:   int(a.cfg.Sessions.TTL().Seconds()),
		HTTPOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Locals(localSession, sess)
	return nil
}

func (a *Auth) ClearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     a.cfg.Cookies.Name(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
