package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider exposes configuration values to the rest of the application.
// Components depend on this interface rather than on *Config so tests can
// supply their own values.
type Provider interface {
	GetServerAddr() string

	GetDBURL() string
	GetDBUser() string
	GetDBPass() string
	GetDBNs() string
	GetDBDb() string
	GetDBQueryTimeout() time.Duration
	GetDBExecuteTimeout() time.Duration

	GetJWTSecret() string
	GetAuthCookieName() string

	GetWSSendBuffer() int
	GetWSEventsPerSecond() float64
	GetWSEventBurst() int
	GetWSHandlerTimeout() time.Duration
	GetWSCloseGrace() time.Duration
	GetWSAllowedOrigins() []string
}

// Config holds all configuration for the application.
type Config struct {
	ServerAddr string

	DBUrl            string
	DBNs             string
	DBDb             string
	DBUser           string
	DBPass           string
	DBQueryTimeout   time.Duration
	DBExecuteTimeout time.Duration

	JWTSecret      string
	AuthCookieName string

	WSSendBuffer      int
	WSEventsPerSecond float64
	WSEventBurst      int
	WSHandlerTimeout  time.Duration
	WSCloseGrace      time.Duration
	WSAllowedOrigins  []string
}

var _ Provider = (*Config)(nil)

// ErrMissingDatabase is returned by Validate when the SurrealDB settings are incomplete.
var ErrMissingDatabase = errors.New("SURREAL_URL, SURREAL_NS and SURREAL_DB must be set")

// New loads configuration from a .env file (if present) and environment variables.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env files.
func FromEnv() *Config {
	return &Config{
		ServerAddr: getString("SERVER_ADDR", ":8080"),

		DBUrl:            os.Getenv("SURREAL_URL"),
		DBUser:           os.Getenv("SURREAL_USER"),
		DBPass:           os.Getenv("SURREAL_PASS"),
		DBNs:             os.Getenv("SURREAL_NS"),
		DBDb:             os.Getenv("SURREAL_DB"),
		DBQueryTimeout:   getDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		DBExecuteTimeout: getDuration("DB_EXECUTE_TIMEOUT", 10*time.Second),

		JWTSecret:      os.Getenv("AUTH_JWT_SECRET"),
		AuthCookieName: getString("AUTH_COOKIE_NAME", "token"),

		WSSendBuffer:      getInt("WS_SEND_BUFFER", 256),
		WSEventsPerSecond: getFloat("WS_EVENTS_PER_SECOND", 20),
		WSEventBurst:      getInt("WS_EVENT_BURST", 40),
		WSHandlerTimeout:  getDuration("WS_HANDLER_TIMEOUT", 10*time.Second),
		WSCloseGrace:      getDuration("WS_CLOSE_GRACE", 2*time.Second),
		WSAllowedOrigins:  getList("WS_ALLOWED_ORIGINS"),
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.DBUrl == "" || c.DBNs == "" || c.DBDb == "" {
		return ErrMissingDatabase
	}
	return nil
}

func (c *Config) GetServerAddr() string              { return c.ServerAddr }
func (c *Config) GetDBURL() string                   { return c.DBUrl }
func (c *Config) GetDBUser() string                  { return c.DBUser }
func (c *Config) GetDBPass() string                  { return c.DBPass }
func (c *Config) GetDBNs() string                    { return c.DBNs }
func (c *Config) GetDBDb() string                    { return c.DBDb }
func (c *Config) GetDBQueryTimeout() time.Duration   { return c.DBQueryTimeout }
func (c *Config) GetDBExecuteTimeout() time.Duration { return c.DBExecuteTimeout }
func (c *Config) GetJWTSecret() string               { return c.JWTSecret }
func (c *Config) GetAuthCookieName() string          { return c.AuthCookieName }
func (c *Config) GetWSSendBuffer() int               { return c.WSSendBuffer }
func (c *Config) GetWSEventsPerSecond() float64      { return c.WSEventsPerSecond }
func (c *Config) GetWSEventBurst() int               { return c.WSEventBurst }
func (c *Config) GetWSHandlerTimeout() time.Duration { return c.WSHandlerTimeout }
func (c *Config) GetWSCloseGrace() time.Duration     { return c.WSCloseGrace }
func (c *Config) GetWSAllowedOrigins() []string      { return c.WSAllowedOrigins }

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("Ignoring invalid %s=%q, using %d", key, v, def)
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
		log.Printf("Ignoring invalid %s=%q, using %v", key, v, def)
	}
	return def
}

// getDuration accepts Go duration strings ("5s") or a bare number of seconds.
func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	log.Printf("Ignoring invalid %s=%q, using %s", key, v, def)
	return def
}

func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
