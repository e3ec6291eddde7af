package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type NSQ struct {
	NsqdTCPAddr    string // e.g. nsqd:4150
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	EventsTopic    string // topic the dispatcher consumes events from
	ExhaustedTopic string // topic exhausted deliveries are published to
	Channel        string // NSQ channel name for the dispatcher
	PublishDLQ     bool   // whether to publish exhausted deliveries at all
}

type Delivery struct {
	AttemptTimeout     time.Duration // per-attempt HTTP timeout
	DefaultMaxAttempts int           // fallback when a subscriber has no retry policy
	DefaultBaseDelay   time.Duration
	DefaultMultiplier  float64
	DefaultMaxDelay    time.Duration
	UserAgent          string
}

type Auth struct {
	TokenSecret string // HMAC secret for API bearer tokens; empty disables auth
	Issuer      string
}

type Config struct {
	AppName  string
	HTTPAddr string // :8080
	DB       DB
	NSQ      NSQ
	Delivery Delivery
	Auth     Auth
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "hookrelay"),
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "hookrelay"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			EventsTopic:    getenv("NSQ_EVENTS_TOPIC", "events"),
			ExhaustedTopic: getenv("NSQ_EXHAUSTED_TOPIC", "deliveries_exhausted"),
			Channel:        getenv("NSQ_CHANNEL", "dispatch"),
			PublishDLQ:     getenvBool("PUBLISH_EXHAUSTED_TOPIC", false),
		},
		Delivery: Delivery{
			AttemptTimeout:     getenvDuration("ATTEMPT_TIMEOUT", 30*time.Second),
			DefaultMaxAttempts: getenvInt("DEFAULT_MAX_ATTEMPTS", 5),
			DefaultBaseDelay:   getenvDuration("DEFAULT_BASE_DELAY", time.Second),
			DefaultMultiplier:  getenvFloat("DEFAULT_BACKOFF_MULTIPLIER", 2.0),
			DefaultMaxDelay:    getenvDuration("DEFAULT_MAX_DELAY", 30*time.Second),
			UserAgent:          getenv("DELIVERY_USER_AGENT", "hookrelay/1.0"),
		},
		Auth: Auth{
			TokenSecret: getenv("API_TOKEN_SECRET", ""),
			Issuer:      getenv("API_TOKEN_ISSUER", "hookrelay"),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
