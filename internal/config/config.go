package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	LogLevel       string // zap level name; empty picks the environment default
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	DBAutoMigrate  bool   // apply the embedded schema at startup
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing

	Schedule ScheduleConfig
	Notify   NotifyConfig
	Stripe   StripeConfig

	// ReaderEmail, ReaderName and ReaderPassword bootstrap the reader
	// account at startup when all three are set.
	ReaderEmail    string
	ReaderName     string
	ReaderPassword string
}

// NotifyConfig controls session event dispatch.
type NotifyConfig struct {
	RabbitURL string // empty: events are only logged
	Queue     string
	Consumer  bool   // run the notification consumer in-process
	LogDir    string // directory the consumer writes notifications.log to
}

// StripeConfig holds checkout settings.  An empty SecretKey disables
// checkout and the webhook.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	sched, err := LoadSchedule()
	if err != nil {
		log.Fatalf("invalid schedule configuration: %v", err)
	}
	return Config{
		Env:            must("APP_ENV"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		DBAutoMigrate:  envBool("DB_AUTO_MIGRATE", false),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     mustInt("BCRYPT_COST"),
		Schedule:       sched,
		Notify: NotifyConfig{
			RabbitURL: envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
			Queue:     envStr("NOTIFY_QUEUE", "celestia.session.events"),
			Consumer:  envBool("NOTIFY_CONSUMER", false),
			LogDir:    envStr("NOTIFY_LOG_DIR", "logs"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:      envStr("STRIPE_CURRENCY", "usd"),
			SuccessURL:    envStr("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
			CancelURL:     envStr("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
		},
		ReaderEmail:    os.Getenv("READER_EMAIL"),
		ReaderName:     envStr("READER_NAME", "Reader"),
		ReaderPassword: os.Getenv("READER_PASSWORD"),
	}
}

// Production reports whether the app runs with APP_ENV=prod.
func (c Config) Production() bool { return c.Env == "prod" || c.Env == "production" }

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "":
		return d
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
