package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("SESSION_LIFETIME", "")
	t.Setenv("QUEUE_ETA_MINUTES", "")
	t.Setenv("QUEUE_MISSED_AFTER", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, time.Hour, cfg.SessionLifetime)
	assert.Equal(t, 30*time.Minute, cfg.CSRFLifetime)
	assert.Equal(t, 2, cfg.QueueETAMinutes)
	assert.Zero(t, cfg.QueueMissedAfter)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("SESSION_LIFETIME", "7200")
	t.Setenv("CSRF_TOKEN_LIFETIME", "15m")
	t.Setenv("QUEUE_ETA_MINUTES", "5")
	t.Setenv("DB_AUTO_MIGRATE", "true")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()
	assert.Equal(t, "9090", cfg.AppPort)
	assert.Equal(t, 2*time.Hour, cfg.SessionLifetime)
	assert.Equal(t, 15*time.Minute, cfg.CSRFLifetime)
	assert.Equal(t, 5, cfg.QueueETAMinutes)
	assert.True(t, cfg.DBAutoMigrate)
	assert.Equal(t, 0, cfg.RedisDB)
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBUser: "app", DBPassword: "pw", DBHost: "db", DBPort: "3306", DBName: "qlink"}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "app:pw@tcp(db:3306)/qlink")
	assert.Contains(t, dsn, "parseTime=true")
}

func TestDSNFollowsTimezone(t *testing.T) {
	if _, err := time.LoadLocation("Asia/Manila"); err != nil {
		t.Skip("tzdata not available")
	}
	cfg := &Config{DBUser: "app", DBHost: "db", DBPort: "3306", DBName: "qlink", Timezone: "Asia/Manila"}

	parsed, err := mysql.ParseDSN(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, "Asia/Manila", parsed.Loc.String())
	assert.Equal(t, "'+08:00'", parsed.Params["time_zone"])
}

func TestSessionTimeZone(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "'+00:00'", sessionTimeZone(time.UTC, now))
	assert.Equal(t, "'+05:30'", sessionTimeZone(time.FixedZone("IST", 5*3600+1800), now))
	assert.Equal(t, "'-03:00'", sessionTimeZone(time.FixedZone("BRT", -3*3600), now))
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	token, err := issuer.GenerateToken(7, "Ana", "ana@example.com", "staff")
	require.NoError(t, err)

	claims, err := issuer.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "staff", claims.Role)
}

func TestTokenRejectsOtherSecretAndExpiry(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, err := issuer.GenerateToken(7, "Ana", "ana@example.com", "staff")
	require.NoError(t, err)

	_, err = NewTokenIssuer("other", time.Hour).ValidateToken(token)
	assert.Error(t, err)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = issuer.ValidateToken(token)
	assert.Error(t, err)
}

func TestRecaptchaDisabledAcceptsAll(t *testing.T) {
	ok, err := NewRecaptcha("", 0.5).Verify(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecaptchaScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "secret", r.Form.Get("secret"))
		w.Header().Set("Content-Type", "application/json")
		score := "0.1"
		if r.Form.Get("response") == "good" {
			score = "0.9"
		}
		w.Write([]byte(`{"success":true,"score":` + score + `}`))
	}))
	defer srv.Close()

	rc := NewRecaptcha("secret", 0.5)
	rc.endpoint = srv.URL

	ok, err := rc.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rc.Verify(context.Background(), "weak")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rc.Verify(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}
