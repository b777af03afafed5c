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

type Redis struct {
	Addr     string // e.g. redis:6379
	Password string
	DB       int
}

type Queue struct {
	Backend string // "postgres" or "redis"
}

type Dispatcher struct {
	PollInterval time.Duration // how often the queue is polled for due jobs
	Workers      int           // concurrent deliveries per cycle
	MaxAttempts  int           // retries allowed beyond the first attempt
	RetryStep    time.Duration // reschedule delay grows linearly by this step
	HTTPPort     string        // health/metrics port
}

type Ingress struct {
	HTTPPort      string
	AuthPublicKey string // PEM; empty disables bearer auth
	AuthIssuer    string
	AuthAudience  string
}

type NSQ struct {
	NsqdTCPAddr       string // e.g. nsqd:4150
	LookupHTTPAddr    string // e.g. http://nsqlookupd:4161
	DeadLetterTopic   string // topic for dropped jobs
	PublishDeadLetter bool
}

type Config struct {
	AppName    string
	DB         DB
	Redis      Redis
	Queue      Queue
	Dispatcher Dispatcher
	Ingress    Ingress
	NSQ        NSQ
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
		AppName: getenv("APP_NAME", "hookqueue"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "hookqueue"),
		},
		Redis: Redis{
			Addr:     getenv("REDIS_ADDR", "redis:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Queue: Queue{
			Backend: getenv("QUEUE_BACKEND", "postgres"),
		},
		Dispatcher: Dispatcher{
			PollInterval: getenvDuration("POLL_INTERVAL", 5*time.Second),
			Workers:      getenvInt("DISPATCH_WORKERS", 8),
			MaxAttempts:  getenvInt("MAX_ATTEMPTS", 3),
			RetryStep:    getenvDuration("RETRY_STEP", 5*time.Minute),
			HTTPPort:     ":" + getenv("DISPATCHER_HTTP_PORT", "8082"),
		},
		Ingress: Ingress{
			HTTPPort:      ":" + getenv("INGRESS_HTTP_PORT", "8080"),
			AuthPublicKey: getenv("AUTH_PUBLIC_KEY", ""),
			AuthIssuer:    getenv("AUTH_ISSUER", "hookqueue"),
			AuthAudience:  getenv("AUTH_AUDIENCE", "hookqueue-api"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:       getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr:    getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			DeadLetterTopic:   getenv("NSQ_DEAD_LETTER_TOPIC", "webhooks_dead"),
			PublishDeadLetter: getenvBool("PUBLISH_DEAD_LETTER_TOPIC", false),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
