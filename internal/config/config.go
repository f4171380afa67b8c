// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings
type Config struct {
	Port        string
	Environment string

	// Database
	DBDriver string // postgres, sqlite or memory
	DBDSN    string

	// Logging
	LogLevel string
	LogFile  string

	// Twilio / WhatsApp
	TwilioAccountSID         string
	TwilioAuthToken          string
	TwilioWhatsAppFrom       string
	DisableWebhookValidation bool
	PublicBaseURL            string
	SendTimeout              time.Duration

	// Operator
	AdminPhone     string
	AdminJWTSecret string
	SupportContact string

	// Catalog
	CatalogFile string

	// Rate limiting
	RateLimitBackend string // store or redis
	RateLimitMax     int
	RateLimitWindow  time.Duration
	RedisURL         string

	// Generative providers, tried in this order
	AIProviders   []string
	AITimeout     time.Duration
	AIHistory     int
	AIMaxTokens   int
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	DeepSeekKey   string
	DeepSeekModel string
	GeminiAPIKey  string
	GeminiModel   string
	GroqAPIKey    string
	GroqModel     string

	// Spreadsheet mirror
	SheetsSpreadsheetID string
	SheetsCredentials   string

	// Jobs
	HandoffReminderInterval time.Duration
	HandoffStaleAfter       time.Duration
}

// LoadDotEnv loads a .env file for local development. Missing files are fine.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env", "environments/.env.development"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			return
		}
	}
}

// Load reads configuration from the environment and fails fast when a
// required value is missing or malformed.
func Load() (*Config, error) {
	c := &Config{
		Port:                     getEnv("PORT", "8080"),
		Environment:              getEnv("ENVIRONMENT", "production"),
		DBDriver:                 getEnv("DB_DRIVER", "postgres"),
		DBDSN:                    os.Getenv("DATABASE_URL"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		LogFile:                  os.Getenv("LOG_FILE"),
		TwilioAccountSID:         os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:          os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppFrom:       os.Getenv("TWILIO_WHATSAPP_FROM"),
		DisableWebhookValidation: getBool("DISABLE_WEBHOOK_VALIDATION", false),
		PublicBaseURL:            strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		AdminPhone:               os.Getenv("ADMIN_PHONE"),
		AdminJWTSecret:           os.Getenv("ADMIN_JWT_SECRET"),
		SupportContact:           os.Getenv("SUPPORT_CONTACT"),
		CatalogFile:              os.Getenv("CATALOG_FILE"),
		RateLimitBackend:         getEnv("RATE_LIMIT_BACKEND", "store"),
		RedisURL:                 os.Getenv("REDIS_URL"),
		OpenAIAPIKey:             os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:            getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:              getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		DeepSeekKey:              os.Getenv("DEEPSEEK_API_KEY"),
		DeepSeekModel:            getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
		GeminiAPIKey:             os.Getenv("GEMINI_API_KEY"),
		GeminiModel:              getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GroqAPIKey:               os.Getenv("GROQ_API_KEY"),
		GroqModel:                getEnv("GROQ_MODEL", "llama-3.1-8b-instant"),
		SheetsSpreadsheetID:      os.Getenv("SHEETS_SPREADSHEET_ID"),
		SheetsCredentials:        os.Getenv("SHEETS_CREDENTIALS_FILE"),
	}

	if c.SupportContact == "" {
		c.SupportContact = c.AdminPhone
	}

	var err error
	if c.RateLimitMax, err = getInt("RATE_LIMIT_MAX", 30); err != nil {
		return nil, err
	}
	if c.AIHistory, err = getInt("AI_HISTORY_MESSAGES", 10); err != nil {
		return nil, err
	}
	if c.AIMaxTokens, err = getInt("AI_MAX_TOKENS", 300); err != nil {
		return nil, err
	}
	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"RATE_LIMIT_WINDOW", time.Minute, &c.RateLimitWindow},
		{"AI_TIMEOUT", 20 * time.Second, &c.AITimeout},
		{"SEND_TIMEOUT", 15 * time.Second, &c.SendTimeout},
		{"HANDOFF_REMINDER_INTERVAL", 30 * time.Minute, &c.HandoffReminderInterval},
		{"HANDOFF_STALE_AFTER", 2 * time.Hour, &c.HandoffStaleAfter},
	}
	for _, d := range durations {
		if *d.dest, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	c.AIProviders = splitList(getEnv("AI_PROVIDERS", "gemini,openai,deepseek"))

	required := map[string]string{
		"TWILIO_ACCOUNT_SID":   c.TwilioAccountSID,
		"TWILIO_AUTH_TOKEN":    c.TwilioAuthToken,
		"TWILIO_WHATSAPP_FROM": c.TwilioWhatsAppFrom,
		"ADMIN_PHONE":          c.AdminPhone,
		"ADMIN_JWT_SECRET":     c.AdminJWTSecret,
	}
	if c.DBDriver == "postgres" {
		required["DATABASE_URL"] = c.DBDSN
	}
	if c.RateLimitBackend == "redis" {
		required["REDIS_URL"] = c.RedisURL
	}
	for key, val := range required {
		if val == "" {
			return nil, fmt.Errorf("missing required environment variable: %s", key)
		}
	}

	switch c.DBDriver {
	case "postgres", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.RateLimitBackend {
	case "store", "redis":
	default:
		return nil, fmt.Errorf("unsupported RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
	}

	return c, nil
}

// IsDevelopment reports whether development-only routes should be exposed
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(strings.ToLower(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
