package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver  string
	DSN       string
	JWTSecret string
	AppPort   string

	SessionTTL time.Duration
	ResetTTL   time.Duration
	// ResetURL is the front-end page that receives ?token=... from the reset email.
	ResetURL string

	RedisURL string
	SMTP     SMTPConfig

	DefaultDashboard DefaultDashboardConfig

	SeedAdminEmail    string
	SeedAdminPassword string
}

type SMTPConfig struct {
	Addr     string
	User     string
	Password string
	From     string
}

// DefaultDashboardConfig is the fixed content of the dashboard every active
// user is provisioned with.
type DefaultDashboardConfig struct {
	Name        string
	URL         string
	Description string
}

func Load() Config {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ .env file not found, using system environment variables")
	} else {
		log.Println("✅ .env file loaded successfully!")
	}

	cfg := Config{
		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DSN:        getEnv("DB_DSN", os.Getenv("MYSQL_DSN")),
		JWTSecret:  os.Getenv("JWT_SECRET"),
		AppPort:    getEnv("APP_PORT", "8080"),
		SessionTTL: getDuration("SESSION_TTL", 24*time.Hour),
		ResetTTL:   getDuration("RESET_TTL", time.Hour),
		ResetURL:   getEnv("RESET_URL", "http://localhost:3000/reset-password"),
		RedisURL:   os.Getenv("REDIS_URL"),
		SMTP: SMTPConfig{
			Addr:     os.Getenv("SMTP_ADDR"),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "no-reply@localhost"),
		},
		DefaultDashboard: DefaultDashboardConfig{
			Name:        getEnv("DEFAULT_DASHBOARD_NAME", "Production Overview"),
			URL:         getEnv("DEFAULT_DASHBOARD_URL", "https://app.powerbi.com/view?r=production-overview"),
			Description: getEnv("DEFAULT_DASHBOARD_DESCRIPTION", "Production dashboard with real-time metrics and indicators"),
		},
		SeedAdminEmail:    os.Getenv("SEED_ADMIN_EMAIL"),
		SeedAdminPassword: os.Getenv("SEED_ADMIN_PASSWORD"),
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-only"
	}

	return cfg
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	if c.DSN == "" {
		errs = append(errs, errors.New("DB_DSN (or MYSQL_DSN) not set in environment"))
	}
	if c.SeedAdminEmail != "" && c.SeedAdminPassword == "" {
		errs = append(errs, errors.New("SEED_ADMIN_PASSWORD is required when SEED_ADMIN_EMAIL is set"))
	}
	return errors.Join(errs...)
}

// String masks secrets so the config can be logged at start-up.
func (c Config) String() string {
	return fmt.Sprintf("Config{driver: %s, port: %s, redis: %t, smtp: %t, jwt: ***}",
		c.DBDriver, c.AppPort, c.RedisURL != "", c.SMTP.Addr != "")
}

func getEnv(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("⚠️ invalid %s=%q, using %s", key, v, defaultVal)
		return defaultVal
	}
	return d
}
