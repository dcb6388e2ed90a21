package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"qlink/internal/apperror"
	"qlink/internal/audit"
	"qlink/internal/helper"
	"qlink/internal/models"
	"qlink/internal/repository"
)

const PasswordMinLength = 8

var (
	ErrCredentialsRequired = apperror.Invalid("Email and password are required")
	ErrInvalidEmail        = apperror.Invalid("Invalid email format")
	ErrInvalidPhone        = apperror.Invalid("Invalid phone number format")
	ErrPasswordShort       = apperror.Invalid(fmt.Sprintf("Password must be at least %d characters", PasswordMinLength))
	ErrNewPasswordShort    = apperror.Invalid(fmt.Sprintf("New password must be at least %d characters", PasswordMinLength))
	ErrPasswordMismatch    = apperror.Invalid("Passwords do not match")
	ErrEmailRegistered     = apperror.Invalid("Email already registered")
	ErrEmailTakenByOther   = apperror.Invalid("Email already registered by another user")
	ErrNameRequired        = apperror.Invalid("Name is required")
	ErrInvalidRole         = apperror.Invalid("Invalid role")
	ErrBadCredentials      = apperror.Unauthorized("Invalid email or password")
	ErrCurrentPassword     = apperror.Invalid("Current password is incorrect")
	ErrCaptcha             = apperror.Forbidden("reCAPTCHA verification failed")
	ErrUserNotFound        = apperror.NotFound("User not found")
	ErrSignInRequired      = apperror.Unauthorized("Please sign in")
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error)
	UpdateProfile(ctx context.Context, id int64, name, email, phone string) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
	SetActive(ctx context.Context, id int64, active bool) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

type ActivityLogger interface {
	Log(ctx context.Context, a models.Activity) error
}

type TokenIssuer interface {
	GenerateToken(userID int64, name, email, role string) (string, error)
}

type Captcha interface {
	Enabled() bool
	Verify(ctx context.Context, token string) (bool, error)
}

type Options struct {
	Sessions   *SessionStore
	Tokens     TokenIssuer
	Captcha    Captcha
	Activity   ActivityLogger
	BcryptCost int
	Now        func() time.Time
	Logger     *slog.Logger
}

type Service struct {
	users    UserStore
	sessions *SessionStore
	tokens   TokenIssuer
	captcha  Captcha
	activity ActivityLogger
	validate *validator.Validate
	cost     int
	now      func() time.Time
	log      *slog.Logger
}

func NewService(users UserStore, opts Options) *Service {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		users:    users,
		sessions: opts.Sessions,
		tokens:   opts.Tokens,
		captcha:  opts.Captcha,
		activity: opts.Activity,
		validate: validator.New(),
		cost:     opts.BcryptCost,
		now:      opts.Now,
		log:      opts.Logger,
	}
}

func (s *Service) validEmail(email string) bool {
	return s.validate.Var(email, "required,email,max=100") == nil
}

// validPhone accepts any formatting as long as it carries 10 to 15 digits.
func (s *Service) validPhone(phone string) bool {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	return s.validate.Var(digits, "numeric,min=10,max=15") == nil
}

func (s *Service) checkCaptcha(ctx context.Context, token string) error {
	if s.captcha == nil || !s.captcha.Enabled() {
		return nil
	}
	ok, err := s.captcha.Verify(ctx, token)
	if err != nil {
		s.log.Error("recaptcha verify failed", "error", err)
		return apperror.Internal("Failed to verify reCAPTCHA", err)
	}
	if !ok {
		return ErrCaptcha
	}
	return nil
}

func (s *Service) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Login verifies credentials, binds the user to a freshly regenerated session and
// optionally issues a bearer token. sess may be nil when the client has no session yet.
func (s *Service) Login(ctx context.Context, sess *Session, req models.LoginRequest) (*Session, models.LoginResponse, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, models.LoginResponse{}, ErrCredentialsRequired
	}
	if !s.validEmail(email) {
		return nil, models.LoginResponse{}, ErrInvalidEmail
	}
	if err := s.checkCaptcha(ctx, req.RecaptchaToken); err != nil {
		return nil, models.LoginResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, models.LoginResponse{}, ErrBadCredentials
	}
	if err != nil {
		s.log.Error("login lookup failed", "error", err)
		return nil, models.LoginResponse{}, apperror.Internal("Login failed. Please try again.", err)
	}
	// Inactive accounts get the same answer as a wrong password.
	if !user.IsActive {
		return nil, models.LoginResponse{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, models.LoginResponse{}, ErrBadCredentials
	}

	if sess == nil {
		sess = &Session{CreatedAt: s.now()}
	}
	sess.UserID = user.ID
	sess.Role = user.Role
	sess.Name = user.Name
	sess.Email = user.Email
	sess.CSRFToken = ""
	sess.CSRFIssuedAt = time.Time{}
	if err := s.sessions.Regenerate(ctx, sess); err != nil {
		s.log.Error("session regenerate failed", "error", err)
		return nil, models.LoginResponse{}, apperror.Internal("Login failed. Please try again.", err)
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("touch last login failed", "user_id", user.ID, "error", err)
	} else {
		user.LastLogin.Time, user.LastLogin.Valid = now, true
	}
	s.record(ctx, user.ID, models.ActionLogin, "User logged in successfully")

	resp := models.LoginResponse{
		Redirect: helper.LoginRedirect(user.Role),
		User:     models.ToUserResponse(*user),
	}
	if s.tokens != nil {
		token, err := s.tokens.GenerateToken(user.ID, user.Name, user.Email, user.Role)
		if err != nil {
			s.log.Error("generate token failed", "error", err)
			return nil, models.LoginResponse{}, apperror.Internal("Failed to generate token", err)
		}
		resp.Token = token
	}
	return sess, resp, nil
}

func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (int64, error) {
	fields := []struct {
		label string
		value string
	}{
		{"First name", req.FirstName},
		{"Last name", req.LastName},
		{"Email", req.Email},
		{"Phone", req.Phone},
		{"Password", req.Password},
		{"Confirm password", req.ConfirmPassword},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return 0, apperror.Invalid(f.label + " is required")
		}
	}
	if req.Password != req.ConfirmPassword {
		return 0, ErrPasswordMismatch
	}

	email := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.Phone)
	if !s.validEmail(email) {
		return 0, ErrInvalidEmail
	}
	if !s.validPhone(phone) {
		return 0, ErrInvalidPhone
	}
	if len(req.Password) < PasswordMinLength {
		return 0, ErrPasswordShort
	}
	if err := s.checkCaptcha(ctx, req.RecaptchaToken); err != nil {
		return 0, err
	}

	name := strings.TrimSpace(req.FirstName) + " " + strings.TrimSpace(req.LastName)
	id, err := s.createUser(ctx, name, email, phone, req.Password, models.RoleStudent)
	if err != nil {
		return 0, err
	}
	s.record(ctx, id, models.ActionRegister, "New user registered: "+name)
	return id, nil
}

// CreateAccount adds a staff or admin account on behalf of actorID. roles limits what
// the caller may create.
func (s *Service) CreateAccount(ctx context.Context, actorID int64, req models.CreateAccountRequest, roles ...string) (int64, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.Phone)
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" && len(roles) > 0 {
		role = roles[0]
	}

	if name == "" {
		return 0, ErrNameRequired
	}
	if email == "" || req.Password == "" {
		return 0, ErrCredentialsRequired
	}
	if !helper.HasRole(role, roles...) {
		return 0, ErrInvalidRole
	}
	if !s.validEmail(email) {
		return 0, ErrInvalidEmail
	}
	if phone != "" && !s.validPhone(phone) {
		return 0, ErrInvalidPhone
	}
	if len(req.Password) < PasswordMinLength {
		return 0, ErrPasswordShort
	}

	id, err := s.createUser(ctx, name, email, phone, req.Password, role)
	if err != nil {
		return 0, err
	}
	s.record(ctx, actorID, models.ActionRegister, fmt.Sprintf("Created %s account: %s", role, name))
	return id, nil
}

func (s *Service) createUser(ctx context.Context, name, email, phone, password, role string) (int64, error) {
	taken, err := s.users.EmailTaken(ctx, email, 0)
	if err != nil {
		s.log.Error("check email failed", "error", err)
		return 0, apperror.Internal("Registration failed. Please try again.", err)
	}
	if taken {
		return 0, ErrEmailRegistered
	}

	hash, err := s.hash(password)
	if err != nil {
		return 0, apperror.Internal("Registration failed. Please try again.", err)
	}

	id, err := s.users.Create(ctx, &models.User{
		Name:     name,
		Email:    email,
		Phone:    phone,
		Password: hash,
		Role:     role,
		IsActive: true,
	})
	if repository.IsDuplicateKey(err) {
		return 0, ErrEmailRegistered
	}
	if err != nil {
		s.log.Error("create user failed", "error", err)
		return 0, apperror.Internal("Registration failed. Please try again.", err)
	}
	return id, nil
}

// Logout drops the session. A nil or anonymous session is not an error.
func (s *Service) Logout(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	if sess.Authenticated() {
		s.record(ctx, sess.UserID, models.ActionLogout, "User logged out")
	}
	if err := s.sessions.Destroy(ctx, sess.ID); err != nil {
		s.log.Error("destroy session failed", "error", err)
		return apperror.Internal("", err)
	}
	return nil
}

// CurrentUser re-reads the account behind a session or token. Missing and
// deactivated accounts are both reported as signed out.
func (s *Service) CurrentUser(ctx context.Context, userID int64) (*models.User, error) {
	if userID <= 0 {
		return nil, ErrSignInRequired
	}
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSignInRequired
	}
	if err != nil {
		s.log.Error("load current user failed", "user_id", userID, "error", err)
		return nil, apperror.Internal("", err)
	}
	if !user.IsActive {
		return nil, ErrSignInRequired
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID int64, req models.UpdateProfileRequest) (*models.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
		if user.Name == "" {
			return nil, ErrNameRequired
		}
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if !s.validEmail(email) {
			return nil, ErrInvalidEmail
		}
		taken, err := s.users.EmailTaken(ctx, email, userID)
		if err != nil {
			s.log.Error("check email failed", "error", err)
			return nil, apperror.Internal("Failed to update profile. Please try again.", err)
		}
		if taken {
			return nil, ErrEmailTakenByOther
		}
		user.Email = email
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone != "" && !s.validPhone(phone) {
			return nil, ErrInvalidPhone
		}
		user.Phone = phone
	}

	err = s.users.UpdateProfile(ctx, userID, user.Name, user.Email, user.Phone)
	if repository.IsDuplicateKey(err) {
		return nil, ErrEmailTakenByOther
	}
	if err != nil {
		s.log.Error("update profile failed", "error", err)
		return nil, apperror.Internal("Failed to update profile. Please try again.", err)
	}

	s.record(ctx, userID, models.ActionUpdateProfile, "Profile updated")
	return user, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID int64, req models.ChangePasswordRequest) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		return ErrCurrentPassword
	}
	if len(req.NewPassword) < PasswordMinLength {
		return ErrNewPasswordShort
	}

	if err := s.setPassword(ctx, userID, req.NewPassword, "Failed to change password. Please try again."); err != nil {
		return err
	}
	s.record(ctx, userID, models.ActionChangePass, "Password changed successfully")
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, adminID, userID int64, req models.ResetPasswordRequest) error {
	if len(req.NewPassword) < PasswordMinLength {
		return ErrPasswordShort
	}
	if err := s.setPassword(ctx, userID, req.NewPassword, "Failed to reset password. Please try again."); err != nil {
		return err
	}
	s.record(ctx, adminID, models.ActionResetPass, fmt.Sprintf("Password reset by admin for user #%d", userID))
	return nil
}

func (s *Service) setPassword(ctx context.Context, userID int64, password, failMsg string) error {
	hash, err := s.hash(password)
	if err != nil {
		return apperror.Internal(failMsg, err)
	}
	err = s.users.UpdatePassword(ctx, userID, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		s.log.Error("update password failed", "user_id", userID, "error", err)
		return apperror.Internal(failMsg, err)
	}
	return nil
}

// SetActive toggles an account. Deactivated users lose access on their next request.
func (s *Service) SetActive(ctx context.Context, adminID, userID int64, active bool) error {
	action, verb := models.ActionDeactivate, "deactivate"
	if active {
		action, verb = models.ActionActivate, "activate"
	}

	err := s.users.SetActive(ctx, userID, active)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		s.log.Error("set active failed", "user_id", userID, "error", err)
		return apperror.Internal(fmt.Sprintf("Failed to %s user. Please try again.", verb), err)
	}

	s.record(ctx, adminID, action, fmt.Sprintf("User #%d %sd", userID, verb))
	return nil
}

func (s *Service) getUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		s.log.Error("get user failed", "user_id", userID, "error", err)
		return nil, apperror.Internal("", err)
	}
	return user, nil
}

func (s *Service) record(ctx context.Context, userID int64, action, description string) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Log(ctx, audit.Entry(ctx, userID, action, description)); err != nil {
		s.log.Warn("activity log failed", "action", action, "error", err)
	}
}
