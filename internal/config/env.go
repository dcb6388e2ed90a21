package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppHost          string
	AppPort          string
	CORSAllowOrigins string
	Timezone         string

	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBAutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string
	JWTTTL    time.Duration

	SessionName     string
	SessionLifetime time.Duration
	SessionHashKey  string
	CookieSecure    bool
	CSRFLifetime    time.Duration

	QueueOpenAt      string
	QueueCloseAt     string
	QueueETAMinutes  int
	QueueMissedAfter time.Duration

	LogLevel  string
	LogFormat string

	BasicAuthUser  string
	BasicAuthPass  string
	LoginRateLimit int

	RecaptchaSecret   string
	RecaptchaMinScore float64
}

func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		log.Println(".env not found, using system environment")
	}
}

// Load reads the environment into Config. Call LoadEnv first to pick up .env.
func Load() *Config {
	return &Config{
		AppHost:          GetEnv("APP_HOST", "0.0.0.0"),
		AppPort:          GetEnv("APP_PORT", "8080"),
		CORSAllowOrigins: GetEnv("CORS_ALLOW_ORIGINS", "*"),
		Timezone:         GetEnv("TIMEZONE", "Local"),

		DBHost:        GetEnv("DB_HOST", "127.0.0.1"),
		DBPort:        GetEnv("DB_PORT", "3306"),
		DBUser:        GetEnv("DB_USER", "root"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        GetEnv("DB_NAME", "qlink"),
		DBAutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),

		RedisAddr:     GetEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret: GetEnv("JWT_SECRET", "change-me"),
		JWTTTL:    getEnvDuration("JWT_TTL", 24*time.Hour),

		SessionName:     GetEnv("SESSION_NAME", "qlink_session"),
		SessionLifetime: getEnvDuration("SESSION_LIFETIME", time.Hour),
		SessionHashKey:  GetEnv("SESSION_HASH_KEY", "change-me-session-hash-key"),
		CookieSecure:    getEnvBool("COOKIE_SECURE", false),
		CSRFLifetime:    getEnvDuration("CSRF_TOKEN_LIFETIME", 30*time.Minute),

		QueueOpenAt:      os.Getenv("QUEUE_OPEN_AT"),
		QueueCloseAt:     os.Getenv("QUEUE_CLOSE_AT"),
		QueueETAMinutes:  getEnvInt("QUEUE_ETA_MINUTES", 2),
		QueueMissedAfter: getEnvDuration("QUEUE_MISSED_AFTER", 0),

		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		BasicAuthUser:  os.Getenv("BASIC_AUTH_USER"),
		BasicAuthPass:  os.Getenv("BASIC_AUTH_PASS"),
		LoginRateLimit: getEnvInt("LOGIN_RATE_LIMIT", 10),

		RecaptchaSecret:   os.Getenv("RECAPTCHA_SECRET_KEY"),
		RecaptchaMinScore: getEnvFloat("RECAPTCHA_MIN_SCORE", 0.5),
	}
}

// Location resolves Timezone, falling back to the local zone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("unknown TIMEZONE %q, using local: %v", c.Timezone, err)
		return time.Local
	}
	return loc
}

func GetEnv(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("30m") or a bare number of seconds ("1800").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}
