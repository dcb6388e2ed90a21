package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"qlink/internal/apperror"
	"qlink/internal/auth"
	"qlink/internal/config"
	"qlink/internal/http/middleware"
	"qlink/internal/models"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, sess *auth.Session, req models.LoginRequest) (*auth.Session, models.LoginResponse, error) {
	args := m.Called(ctx, sess, req)
	if args.Get(0) == nil {
		return nil, models.LoginResponse{}, args.Error(2)
	}
	return args.Get(0).(*auth.Session), args.Get(1).(models.LoginResponse), args.Error(2)
}

func (m *MockAuthService) Register(ctx context.Context, req models.RegisterRequest) (int64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, sess *auth.Session) error {
	return m.Called(ctx, sess).Error(0)
}

func (m *MockAuthService) CurrentUser(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthService) UpdateProfile(ctx context.Context, userID int64, req models.UpdateProfileRequest) (*models.User, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, userID int64, req models.ChangePasswordRequest) error {
	return m.Called(ctx, userID, req).Error(0)
}

func (m *MockAuthService) ResetPassword(ctx context.Context, adminID, userID int64, req models.ResetPasswordRequest) error {
	return m.Called(ctx, adminID, userID, req).Error(0)
}

func (m *MockAuthService) SetActive(ctx context.Context, adminID, userID int64, active bool) error {
	return m.Called(ctx, adminID, userID, active).Error(0)
}

func (m *MockAuthService) CreateAccount(ctx context.Context, actorID int64, req models.CreateAccountRequest, roles ...string) (int64, error) {
	args := m.Called(ctx, actorID, req, roles)
	return args.Get(0).(int64), args.Error(1)
}

type MockQueueService struct {
	mock.Mock
}

func (m *MockQueueService) Join(ctx context.Context, userID, deptID int64) (models.JoinResult, error) {
	args := m.Called(ctx, userID, deptID)
	return args.Get(0).(models.JoinResult), args.Error(1)
}

func (m *MockQueueService) CallNext(ctx context.Context, staffID, deptID int64) (int, error) {
	args := m.Called(ctx, staffID, deptID)
	return args.Int(0), args.Error(1)
}

func (m *MockQueueService) Done(ctx context.Context, staffID, queueID int64) error {
	return m.Called(ctx, staffID, queueID).Error(0)
}

func (m *MockQueueService) Skip(ctx context.Context, staffID, queueID int64) error {
	return m.Called(ctx, staffID, queueID).Error(0)
}

func (m *MockQueueService) Cancel(ctx context.Context, userID, queueID int64) error {
	return m.Called(ctx, userID, queueID).Error(0)
}

func (m *MockQueueService) Status(ctx context.Context, userID int64) (*models.QueueStatusView, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueueStatusView), args.Error(1)
}

func (m *MockQueueService) DepartmentStatus(ctx context.Context) ([]models.DepartmentStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.DepartmentStatus), args.Error(1)
}

func (m *MockQueueService) StaffStatus(ctx context.Context, deptID int64) (models.StaffStatus, error) {
	args := m.Called(ctx, deptID)
	return args.Get(0).(models.StaffStatus), args.Error(1)
}

type MockDepartmentService struct {
	mock.Mock
}

func (m *MockDepartmentService) List(ctx context.Context, activeOnly bool) ([]models.Department, error) {
	args := m.Called(ctx, activeOnly)
	return args.Get(0).([]models.Department), args.Error(1)
}

func (m *MockDepartmentService) Create(ctx context.Context, adminID int64, req models.CreateDepartmentRequest) (int64, error) {
	args := m.Called(ctx, adminID, req)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDepartmentService) Update(ctx context.Context, adminID, id int64, req models.UpdateDepartmentRequest) (*models.Department, error) {
	args := m.Called(ctx, adminID, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Department), args.Error(1)
}

type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) AdminStats(ctx context.Context) (models.AdminStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.AdminStats), args.Error(1)
}

func (m *MockReportService) Overview(ctx context.Context) (models.AnalyticsOverview, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.AnalyticsOverview), args.Error(1)
}

func (m *MockReportService) RecentActivity(ctx context.Context) ([]models.Activity, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Activity), args.Error(1)
}

func (m *MockReportService) Staff(ctx context.Context) ([]models.UserResponse, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.UserResponse), args.Error(1)
}

func (m *MockReportService) Users(ctx context.Context, filter models.UserFilter) (models.UserPage, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(models.UserPage), args.Error(1)
}

func (m *MockReportService) Visitors(ctx context.Context, start, end string) (models.VisitorReport, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).(models.VisitorReport), args.Error(1)
}

type apiFixture struct {
	app      *fiber.App
	sessions *auth.SessionStore
	cookies  *auth.CookieCodec
	csrf     *auth.CSRF
	tokens   *config.TokenIssuer
	accounts *MockAuthService
	queues   *MockQueueService
	depts    *MockDepartmentService
	reports  *MockReportService
}

var testUsers = map[int64]*models.User{
	1: {ID: 1, Name: "Ana", Email: "ana@school.edu", Role: models.RoleStudent, IsActive: true},
	2: {ID: 2, Name: "Ben", Email: "ben@school.edu", Role: models.RoleStaff, IsActive: true},
	3: {ID: 3, Name: "Cai", Email: "cai@school.edu", Role: models.RoleAdmin, IsActive: true},
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	a := &apiFixture{
		sessions: auth.NewSessionStore(rdb, time.Hour),
		cookies:  auth.NewCookieCodec("qlink_session", "handler-test-hash-key-0123456789", time.Hour),
		csrf:     auth.NewCSRF(30 * time.Minute),
		tokens:   config.NewTokenIssuer("handler-secret", time.Hour),
		accounts: new(MockAuthService),
		queues:   new(MockQueueService),
		depts:    new(MockDepartmentService),
		reports:  new(MockReportService),
	}
	for id, u := range testUsers {
		a.accounts.On("CurrentUser", mock.Anything, id).Return(u, nil).Maybe()
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := middleware.NewAuth(middleware.AuthConfig{
		Sessions: a.sessions,
		Cookies:  a.cookies,
		CSRF:     a.csrf,
		Tokens:   a.tokens,
		Users:    a.accounts,
		Logger:   log,
	})

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(log)})
	app.Use(middleware.RequestMeta(), mw.Identify())
	Routes{
		Auth:        mw,
		Accounts:    NewAuthHandler(a.accounts, mw),
		Queues:      NewQueueHandler(a.queues, Hours{OpenAt: "08:00", CloseAt: "17:00", ETAMinutes: 2, Location: time.UTC, Now: func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }}),
		Departments: NewDepartmentHandler(a.depts),
		Admin:       NewAdminHandler(a.reports, a.accounts),
		Ops:         middleware.BasicAuth("ops", "ops-pass"),
	}.Mount(app)
	a.app = app
	return a
}

// session signs userID in and returns the cookie header plus a valid CSRF token.
func (a *apiFixture) session(t *testing.T, userID int64) (string, string) {
	t.Helper()
	ctx := context.Background()
	sess, err := a.sessions.Create(ctx)
	require.NoError(t, err)
	sess.UserID = userID
	token, _ := a.csrf.Token(sess)
	require.NoError(t, a.sessions.Save(ctx, sess))
	value, err := a.cookies.Encode(sess.ID)
	require.NoError(t, err)
	return a.cookies.Name() + "=" + value, token
}

func (a *apiFixture) bearer(t *testing.T, userID int64) string {
	t.Helper()
	u := testUsers[userID]
	token, err := a.tokens.GenerateToken(u.ID, u.Name, u.Email, u.Role)
	require.NoError(t, err)
	return "Bearer " + token
}

type call struct {
	method, path string
	body         string
	form         bool
	cookie, csrf string
	bearer       string
}

func (a *apiFixture) do(t *testing.T, cl call) (*http.Response, map[string]any) {
	t.Helper()
	var body io.Reader
	if cl.body != "" {
		body = strings.NewReader(cl.body)
	}
	req := httptest.NewRequest(cl.method, cl.path, body)
	if cl.body != "" {
		if cl.form {
			req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
		} else {
			req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
		}
	}
	if cl.cookie != "" {
		req.Header.Set("Cookie", cl.cookie)
	}
	if cl.csrf != "" {
		req.Header.Set(middleware.CSRFHeader, cl.csrf)
	}
	if cl.bearer != "" {
		req.Header.Set("Authorization", cl.bearer)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), fiber.MIMEApplicationJSON) && len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	} else {
		out["raw"] = string(raw)
	}
	return resp, out
}

func TestJoinQueue(t *testing.T) {
	a := newAPI(t)
	cookie, token := a.session(t, 1)
	a.queues.On("Join", mock.Anything, int64(1), int64(2)).Return(models.JoinResult{QueueID: 40, TicketNo: 7}, nil).Once()

	resp, body := a.do(t, call{method: http.MethodPost, path: "/api/queues/join", body: "dept_id=2", form: true, cookie: cookie, csrf: token})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(7), body["ticket_no"])
	assert.Equal(t, float64(40), body["queue_id"])
	a.queues.AssertExpectations(t)
}

func TestJoinQueueRejectedBeforeService(t *testing.T) {
	a := newAPI(t)
	cookie, _ := a.session(t, 1)

	resp, body := a.do(t, call{method: http.MethodPost, path: "/api/queues/join", body: `{"dept_id":2}`})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Please sign in", body["message"])

	resp, body = a.do(t, call{method: http.MethodPost, path: "/api/queues/join", body: `{"dept_id":2}`, cookie: cookie, csrf: "forged"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Invalid or expired security token", body["message"])

	a.queues.AssertNotCalled(t, "Join", mock.Anything, mock.Anything, mock.Anything)
}

func TestJoinQueueErrors(t *testing.T) {
	a := newAPI(t)
	cookie, token := a.session(t, 1)

	a.queues.On("Join", mock.Anything, int64(1), int64(0)).Return(models.JoinResult{}, apperror.Invalid("Invalid department"))
	a.queues.On("Join", mock.Anything, int64(1), int64(5)).Return(models.JoinResult{}, apperror.Precondition("You are already queued for this department today"))
	a.queues.On("Join", mock.Anything, int64(1), int64(6)).Return(models.JoinResult{}, apperror.Internal("", io.ErrClosedPipe))

	tests := []struct {
		body   string
		status int
		msg    string
	}{
		{"", http.StatusBadRequest, "Invalid department"},
		{`{"dept_id": 5}`, http.StatusBadRequest, "You are already queued for this department today"},
		{`{"dept_id": 6}`, http.StatusInternalServerError, "Internal server error"},
		{`{"dept_id": `, http.StatusBadRequest, "Invalid request body"},
	}
	for _, tt := range tests {
		resp, body := a.do(t, call{method: http.MethodPost, path: "/api/queues/join", body: tt.body, cookie: cookie, csrf: token})
		assert.Equal(t, tt.status, resp.StatusCode, tt.body)
		assert.Equal(t, tt.msg, body["message"], tt.body)
		assert.Equal(t, false, body["success"], tt.body)
	}
}

func TestStaffRoutes(t *testing.T) {
	a := newAPI(t)
	studentCookie, studentToken := a.session(t, 1)

	resp, body := a.do(t, call{method: http.MethodPost, path: "/api/queues/call-next", body: `{"dept_id":1}`, cookie: studentCookie, csrf: studentToken})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Unauthorized", body["message"])

	a.queues.On("CallNext", mock.Anything, int64(2), int64(1)).Return(12, nil)
	resp, body = a.do(t, call{method: http.MethodPost, path: "/api/queues/call-next", body: `{"dept_id":1}`, bearer: a.bearer(t, 2)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(12), body["ticket_no"])

	a.queues.On("Done", mock.Anything, int64(2), int64(40)).Return(apperror.Precondition("Queue not currently serving"))
	resp, body = a.do(t, call{method: http.MethodPost, path: "/api/queues/done", body: `{"queue_id":40}`, bearer: a.bearer(t, 2)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Queue not currently serving", body["message"])

	a.queues.On("StaffStatus", mock.Anything, int64(1)).Return(models.StaffStatus{
		NowServing: 3,
		NextInLine: []models.WaitingCustomer{{QueueID: 41, TicketNo: 4, CustomerName: "Ana", WaitTime: 6}},
	}, nil)
	resp, body = a.do(t, call{method: http.MethodGet, path: "/api/queues/staff-status?dept_id=1", bearer: a.bearer(t, 2)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["now_serving"])
	assert.Len(t, body["next_in_line"], 1)
}

func TestStatusAndPublicViews(t *testing.T) {
	a := newAPI(t)
	cookie, _ := a.session(t, 1)

	a.queues.On("Status", mock.Anything, int64(1)).Return(nil, nil)
	resp, body := a.do(t, call{method: http.MethodGet, path: "/api/queues/status", cookie: cookie})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["queue"])

	a.queues.On("DepartmentStatus", mock.Anything).Return([]models.DepartmentStatus{{DeptID: 1, Name: "Registrar", NowServing: 2, WaitingCount: 5}}, nil)
	resp, body = a.do(t, call{method: http.MethodGet, path: "/api/queues/department-status"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["departments"], 1)

	a.depts.On("List", mock.Anything, true).Return([]models.Department{{ID: 1, Name: "Registrar", Code: "REG", IsActive: true}}, nil)
	resp, _ = a.do(t, call{method: http.MethodGet, path: "/api/departments"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = a.do(t, call{method: http.MethodGet, path: "/api/config"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["is_open"])
	assert.Equal(t, "08:00", data["open_at"])
}

func TestLoginAndLogout(t *testing.T) {
	a := newAPI(t)

	// An anonymous client first fetches a token, which creates its session.
	resp, body := a.do(t, call{method: http.MethodGet, path: "/api/csrf-token"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := body["csrf_token"].(string)
	setCookie := resp.Header.Get("Set-Cookie")
	require.Contains(t, setCookie, "qlink_session=")
	cookie := strings.SplitN(setCookie, ";", 2)[0]

	req := models.LoginRequest{Email: "ana@school.edu", Password: "secret123"}
	a.accounts.On("Login", mock.Anything, mock.MatchedBy(func(s *auth.Session) bool { return s != nil && !s.Authenticated() }), req).
		Return(&auth.Session{ID: "fresh-session", UserID: 1}, models.LoginResponse{
			Token:    "jwt",
			Redirect: "dashboard.php",
			User:     models.UserResponse{ID: 1, Name: "Ana"},
		}, nil)

	resp, body = a.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: "email=ana%40school.edu&password=secret123", form: true, cookie: cookie, csrf: token})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "dashboard.php", body["redirect"])
	assert.Equal(t, "jwt", body["token"])
	newCookie := resp.Header.Get("Set-Cookie")
	encoded := strings.TrimPrefix(strings.SplitN(newCookie, ";", 2)[0], "qlink_session=")
	assert.Equal(t, "fresh-session", a.cookies.Decode(encoded))

	// The new session comes with its own CSRF token, usable without another round trip.
	fresh, isString := body["csrf_token"].(string)
	require.True(t, isString)
	assert.Len(t, fresh, 64)
	assert.NotEqual(t, token, fresh)
	stored, err := a.sessions.Get(context.Background(), "fresh-session")
	require.NoError(t, err)
	assert.Equal(t, fresh, stored.CSRFToken)

	// Without the token the login never reaches the service.
	resp, _ = a.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"x@y.z","password":"p"}`, cookie: cookie})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	a.accounts.AssertNumberOfCalls(t, "Login", 1)

	userCookie, userToken := a.session(t, 1)
	a.accounts.On("Logout", mock.Anything, mock.MatchedBy(func(s *auth.Session) bool { return s.UserID == 1 })).Return(nil)
	resp, body = a.do(t, call{method: http.MethodPost, path: "/api/auth/logout", cookie: userCookie, csrf: userToken})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Logged out successfully", body["message"])
	assert.Contains(t, resp.Header.Get("Set-Cookie"), "qlink_session=;")
}

func TestRegister(t *testing.T) {
	a := newAPI(t)
	cookie, token := a.session(t, 0)

	a.accounts.On("Register", mock.Anything, mock.MatchedBy(func(r models.RegisterRequest) bool {
		return r.FirstName == "Dee" && r.ConfirmPassword == "password1"
	})).Return(int64(9), nil)

	resp, body := a.do(t, call{
		method: http.MethodPost, path: "/api/auth/register",
		body:   `{"first_name":"Dee","last_name":"Santos","email":"dee@school.edu","phone":"09123456789","password":"password1","confirm_password":"password1"}`,
		cookie: cookie, csrf: token,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(9), body["user_id"])
}

func TestProfileRoutes(t *testing.T) {
	a := newAPI(t)
	cookie, token := a.session(t, 1)

	resp, body := a.do(t, call{method: http.MethodGet, path: "/api/me", cookie: cookie})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ana", body["user"].(map[string]any)["name"])

	a.accounts.On("ChangePassword", mock.Anything, int64(1), models.ChangePasswordRequest{CurrentPassword: "old", NewPassword: "newpassword"}).
		Return(apperror.Invalid("Current password is incorrect"))
	resp, body = a.do(t, call{method: http.MethodPost, path: "/api/me/password", body: `{"current_password":"old","new_password":"newpassword"}`, cookie: cookie, csrf: token})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Current password is incorrect", body["message"])
}

func TestAdminRoutes(t *testing.T) {
	a := newAPI(t)
	admin := a.bearer(t, 3)

	resp, _ := a.do(t, call{method: http.MethodGet, path: "/api/admin/stats", bearer: a.bearer(t, 2)})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	a.reports.On("AdminStats", mock.Anything).Return(models.AdminStats{TotalUsers: 3, DoneToday: 8}, nil)
	resp, body := a.do(t, call{method: http.MethodGet, path: "/api/admin/stats", bearer: admin})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(8), body["stats"].(map[string]any)["done_today"])

	active := true
	a.reports.On("Users", mock.Anything, models.UserFilter{Roles: []string{"staff", "admin"}, IsActive: &active, Search: "ben", Page: 2, Limit: 10}).
		Return(models.UserPage{Total: 11, Page: 2, Limit: 10}, nil)
	resp, body = a.do(t, call{method: http.MethodGet, path: "/api/admin/users?role=staff,admin&is_active=1&search=ben&page=2&limit=10", bearer: admin})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(11), body["data"].(map[string]any)["total"])

	a.accounts.On("SetActive", mock.Anything, int64(3), int64(1), false).Return(nil)
	resp, body = a.do(t, call{method: http.MethodPost, path: "/api/admin/users/1/deactivate", bearer: admin})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "User deactivated successfully", body["message"])

	resp, body = a.do(t, call{method: http.MethodPost, path: "/api/admin/users/abc/activate", bearer: admin})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid id", body["message"])

	a.accounts.On("CreateAccount", mock.Anything, int64(3), mock.Anything, []string{models.RoleStaff, models.RoleAdmin}).Return(int64(21), nil)
	resp, body = a.do(t, call{method: http.MethodPost, path: "/api/admin/staff", body: `{"name":"Eve","email":"eve@school.edu","password":"password1"}`, bearer: admin})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(21), body["user_id"])
}

func TestDepartmentAdmin(t *testing.T) {
	a := newAPI(t)
	admin := a.bearer(t, 3)

	a.depts.On("Create", mock.Anything, int64(3), models.CreateDepartmentRequest{Name: "Library", Code: "lib", IsActive: true}).Return(int64(4), nil)
	resp, body := a.do(t, call{method: http.MethodPost, path: "/api/admin/departments", body: `{"name":"Library","code":"lib"}`, bearer: admin})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(4), body["dept_id"])

	limit := 30
	a.depts.On("Update", mock.Anything, int64(3), int64(4), models.UpdateDepartmentRequest{DailyLimit: &limit}).
		Return(&models.Department{ID: 4, Name: "Library", Code: "LIB", DailyLimit: 30}, nil)
	resp, body = a.do(t, call{method: http.MethodPut, path: "/api/admin/departments/4", body: `{"daily_limit":30}`, bearer: admin})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(30), body["department"].(map[string]any)["daily_limit"])
}

func TestVisitorReportExport(t *testing.T) {
	a := newAPI(t)
	admin := a.bearer(t, 3)

	a.reports.On("Visitors", mock.Anything, "2026-03-01", "2026-03-02").Return(models.VisitorReport{
		StartDate: "2026-03-01",
		EndDate:   "2026-03-02",
		Dates:     []string{"2026-03-01", "2026-03-02"},
		Rows:      []models.VisitorReportRow{{No: 1, DeptID: 1, Department: "Registrar", Counts: []int{1, 2}, Total: 3}},
		Total:     3,
	}, nil)
	a.reports.On("Visitors", mock.Anything, "", "").Return(models.VisitorReport{}, apperror.Invalid("start_date and end_date are required"))

	resp, body := a.do(t, call{method: http.MethodGet, path: "/api/admin/reports/visitors/export?start_date=2026-03-01&end_date=2026-03-02", bearer: admin})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "visitor_report_2026-03-01_2026-03-02.csv")
	assert.Contains(t, body["raw"], "1,Registrar,1,2,3")

	resp, body = a.do(t, call{method: http.MethodGet, path: "/api/admin/reports/visitors", bearer: admin})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "start_date and end_date are required", body["message"])
}

func TestOpsCreateAdmin(t *testing.T) {
	a := newAPI(t)

	resp, _ := a.do(t, call{method: http.MethodPost, path: "/ops/admins", body: `{"name":"Root","email":"root@school.edu","password":"password1"}`})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	a.accounts.On("CreateAccount", mock.Anything, int64(0), mock.Anything, []string{models.RoleAdmin}).Return(int64(1), nil)
	req := httptest.NewRequest(http.MethodPost, "/ops/admins", strings.NewReader(`{"name":"Root","email":"root@school.edu","password":"password1"}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	req.SetBasicAuth("ops", "ops-pass")
	res, err := a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
}
