package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultWSURL      = "ws://127.0.0.1:8080/ws"
	DefaultAppPort    = "8090"
	DefaultJoinGrace  = 100 * time.Millisecond
	DefaultHeartbeat  = 10 * time.Second
	DefaultRateLimit  = 30
	DefaultRateWindow = time.Minute
)

type Config struct {
	WSURL      string
	JoinGrace  time.Duration
	Heartbeat  time.Duration
	AuthSecret string

	AppPort  string
	LogLevel string
	LogJSON  bool

	// Control API rate limiting; counts in memory when Redis is unset
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	APIRateLimit  int
	APIRateWindow time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests don't touch the real env.
func FromEnv(getenv func(string) string) (*Config, error) {
	wsURL := strings.TrimSpace(getenv("WIZARD_WS_URL"))
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("WIZARD_WS_URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("WIZARD_WS_URL: unsupported scheme %q", u.Scheme)
	}

	port := getenv("APP_PORT")
	if port == "" {
		port = DefaultAppPort
	}

	logLevel := getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		WSURL:         wsURL,
		JoinGrace:     millis(getenv("WIZARD_JOIN_GRACE_MS"), DefaultJoinGrace),
		Heartbeat:     millis(getenv("WIZARD_HEARTBEAT_MS"), DefaultHeartbeat),
		AuthSecret:    getenv("WIZARD_AUTH_SECRET"),
		AppPort:       port,
		LogLevel:      logLevel,
		LogJSON:       getenv("LOG_JSON") == "true",
		RedisAddr:     getenv("REDIS_ADDR"),
		RedisPassword: getenv("REDIS_PASSWORD"),
		RedisDB:       positiveInt(getenv("REDIS_DB"), 0),
		APIRateLimit:  positiveInt(getenv("API_RATE_LIMIT"), DefaultRateLimit),
		APIRateWindow: seconds(getenv("API_RATE_WINDOW_SECONDS"), DefaultRateWindow),
	}, nil
}

func positiveInt(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// millis accepts zero so the join grace wait can be disabled
func millis(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

func seconds(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
