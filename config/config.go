package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the typed process configuration shared by the api and worker binaries.
type Config struct {
	Port    string
	GinMode string
	Verbose bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StoreTimeout  time.Duration

	JWTSecret    string
	VoteTokenTTL time.Duration

	PostgresDSN string

	AWSRegion      string
	AWSAccessKeyID string
	AWSSecretKey   string
	SQSEndpoint    string
	SQSQueueName   string
	SQSQueueURL    string
	PublishTimeout time.Duration

	RecaptchaRequired  bool
	RecaptchaSecret    string
	RecaptchaMinScore  float64
	RecaptchaVerifyURL string

	IPRateLimit    int
	IPRateWindow   time.Duration
	VoteRateLimit  int
	VoteRateWindow time.Duration

	WorkerBatchSize         int
	WorkerWaitTime          time.Duration
	WorkerVisibilityTimeout time.Duration
	WorkerPollInterval      time.Duration
	WorkerErrorBackoff      time.Duration
	WorkerConcurrency       int
}

func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: No .env file found, using environment variables")
	}
}

func GetEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// Load reads the environment (after LoadEnv) into a Config.
// Malformed numeric or duration values are reported instead of silently defaulted.
func Load() (Config, error) {
	var errs []string
	intVal := func(key string, fallback int) int {
		v, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	durVal := func(key string, fallback time.Duration) time.Duration {
		v, err := getEnvDuration(key, fallback)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	floatVal := func(key string, fallback float64) float64 {
		v, err := getEnvFloat(key, fallback)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	secondsVal := func(key string, fallback int) time.Duration {
		return time.Duration(intVal(key, fallback)) * time.Second
	}

	cfg := Config{
		Port:    GetEnv("PORT", "8080"),
		GinMode: GetEnv("GIN_MODE", "release"),
		Verbose: envBool("LOG_VERBOSE", true),

		RedisAddr:     GetEnv("REDIS_URI", "localhost:6379"),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       intVal("REDIS_DB", 0),
		StoreTimeout:  durVal("STORE_TIMEOUT", 500*time.Millisecond),

		JWTSecret:    GetEnv("JWT_SECRET", ""),
		VoteTokenTTL: durVal("VOTE_TOKEN_TTL", 5*time.Minute),

		PostgresDSN: postgresDSN(),

		AWSRegion:      GetEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID: GetEnv("AWS_ACCESS_KEY_ID", "localstack"),
		AWSSecretKey:   GetEnv("AWS_SECRET_ACCESS_KEY", "localstack"),
		SQSEndpoint:    GetEnv("SQS_ENDPOINT", ""),
		SQSQueueName:   GetEnv("SQS_VOTE_QUEUE_NAME", "votes-queue"),
		SQSQueueURL:    GetEnv("SQS_VOTE_QUEUE_URL", ""),
		PublishTimeout: durVal("PUBLISH_TIMEOUT", 2*time.Second),

		RecaptchaRequired:  envBool("RECAPTCHA_REQUIRED", false),
		RecaptchaSecret:    GetEnv("RECAPTCHA_SECRET_KEY", ""),
		RecaptchaMinScore:  floatVal("RECAPTCHA_MIN_SCORE", 0.5),
		RecaptchaVerifyURL: GetEnv("RECAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify"),

		IPRateLimit:    intVal("IP_RATE_LIMIT", 60),
		IPRateWindow:   secondsVal("IP_RATE_WINDOW_SECONDS", 60),
		VoteRateLimit:  intVal("VOTE_RATE_LIMIT", 20),
		VoteRateWindow: secondsVal("VOTE_RATE_WINDOW_SECONDS", 60),

		WorkerBatchSize:         intVal("WORKER_BATCH_SIZE", 10),
		WorkerWaitTime:          secondsVal("WORKER_WAIT_TIME_SECONDS", 20),
		WorkerVisibilityTimeout: secondsVal("WORKER_VISIBILITY_TIMEOUT_SECONDS", 30),
		WorkerPollInterval:      durVal("WORKER_POLL_INTERVAL", time.Second),
		WorkerErrorBackoff:      durVal("WORKER_ERROR_BACKOFF", 5*time.Second),
		WorkerConcurrency:       intVal("WORKER_CONCURRENCY", 1),
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if cfg.IPRateWindow <= 0 || cfg.VoteRateWindow <= 0 {
		return Config{}, fmt.Errorf("invalid configuration: rate limit windows must be positive")
	}
	if cfg.WorkerBatchSize < 1 || cfg.WorkerBatchSize > 10 {
		return Config{}, fmt.Errorf("invalid configuration: WORKER_BATCH_SIZE must be between 1 and 10")
	}
	if cfg.WorkerWaitTime < 0 || cfg.WorkerWaitTime > 20*time.Second {
		return Config{}, fmt.Errorf("invalid configuration: WORKER_WAIT_TIME_SECONDS must be between 0 and 20")
	}
	if cfg.RecaptchaRequired && cfg.RecaptchaSecret == "" {
		return Config{}, fmt.Errorf("invalid configuration: RECAPTCHA_SECRET_KEY is required when RECAPTCHA_REQUIRED is set")
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	return cfg, nil
}

// postgresDSN prefers POSTGRES_DSN and otherwise assembles one from the
// DATABASE_* variables used by the compose setup.
func postgresDSN() string {
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		GetEnv("DATABASE_HOST", "localhost"),
		GetEnv("DATABASE_PORT", "5432"),
		GetEnv("DATABASE_NAME", "voting"),
		GetEnv("DATABASE_USER", "postgres"),
		GetEnv("DATABASE_PASSWORD", "postgres"),
		GetEnv("DATABASE_SSLMODE", "disable"),
	)
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return v, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a number", key, raw)
	}
	return v, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a duration", key, raw)
	}
	return v, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
