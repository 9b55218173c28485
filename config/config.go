// Package config loads runtime configuration for the email-sleuth engine:
// environment variables (via .env, teacher-style), overlaid by an optional
// TOML file, with defaults matching the engine's reference behavior.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"emailsleuth/internal/engine"
)

// Config is the full, immutable runtime configuration. It is built once at
// startup and never mutated afterward.
type Config struct {
	Server  ServerConfig
	Logging LoggingConfig

	MaxConcurrency int
	Engine         engine.Config
}

// ServerConfig configures the thin HTTP demo entrypoint.
type ServerConfig struct {
	Port string
	Host string
}

// LoggingConfig configures the shared zap logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// fileOverlay mirrors the subset of options a TOML config file may
// override, matching the original implementation's ConfigFile layer.
type fileOverlay struct {
	UserAgent                  *string   `toml:"user_agent"`
	RequestTimeoutSeconds      *int      `toml:"request_timeout_seconds"`
	CommonPagesToScrape        *[]string `toml:"common_pages_to_scrape"`
	DNSServers                 *[]string `toml:"dns_servers"`
	DNSTimeoutSeconds          *int      `toml:"dns_timeout_seconds"`
	SMTPSenderEmail            *string   `toml:"smtp_sender_email"`
	SMTPTimeoutSeconds         *int      `toml:"smtp_timeout_seconds"`
	MaxVerificationAttempts    *int      `toml:"max_verification_attempts"`
	SleepBetweenRequestsMinMs  *int      `toml:"sleep_between_requests_min_ms"`
	SleepBetweenRequestsMaxMs  *int      `toml:"sleep_between_requests_max_ms"`
	GenericEmailPrefixes       *[]string `toml:"generic_email_prefixes"`
	ConfidenceThreshold        *int      `toml:"confidence_threshold"`
	GenericConfidenceThreshold *int      `toml:"generic_confidence_threshold"`
	MaxAlternatives            *int      `toml:"max_alternatives"`
	MaxConcurrency             *int      `toml:"max_concurrency"`
}

// DNSConfig is returned alongside Config because the engine's DNS
// resolver is constructed outside this package (it needs a *zap.Logger the
// caller already holds), but still wants the same configured server list
// and timeout/attempts budget.
type DNSConfig struct {
	Servers  []string
	Timeout  time.Duration
	Attempts int
}

// Load reads .env (if present), applies hardcoded defaults matching the
// reference implementation, then overlays an optional TOML file named by
// EMAIL_SLEUTH_CONFIG_FILE.
func Load() (*Config, DNSConfig, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 8),
		Engine: engine.Config{
			UserAgent:                  getEnv("USER_AGENT", "email-sleuth/1.0"),
			RequestTimeout:             time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,
			CommonPagesToScrape:        defaultCommonPages(),
			SMTPSenderEmail:            getEnv("SMTP_SENDER_EMAIL", "verify-probe@example.com"),
			SMTPTimeout:                time.Duration(getEnvInt("SMTP_TIMEOUT_SECONDS", 10)) * time.Second,
			MaxVerificationAttempts:    getEnvInt("MAX_VERIFICATION_ATTEMPTS", 2),
			MinSleep:                   time.Duration(getEnvInt("SLEEP_MIN_MS", 100)) * time.Millisecond,
			MaxSleep:                   time.Duration(getEnvInt("SLEEP_MAX_MS", 500)) * time.Millisecond,
			GenericEmailPrefixes:       toSet(defaultGenericPrefixes()),
			ConfidenceThreshold:        uint8(getEnvInt("CONFIDENCE_THRESHOLD", 4)),
			GenericConfidenceThreshold: uint8(getEnvInt("GENERIC_CONFIDENCE_THRESHOLD", 7)),
			MaxAlternatives:            getEnvInt("MAX_ALTERNATIVES", 5),
		},
	}

	dnsCfg := DNSConfig{
		Servers:  defaultDNSServers(),
		Timeout:  time.Duration(getEnvInt("DNS_TIMEOUT_SECONDS", 5)) * time.Second,
		Attempts: getEnvInt("DNS_ATTEMPTS", 2),
	}

	if path := os.Getenv("EMAIL_SLEUTH_CONFIG_FILE"); path != "" {
		if err := applyTOMLOverlay(path, cfg, &dnsCfg); err != nil {
			return nil, DNSConfig{}, err
		}
	}

	return cfg, dnsCfg, nil
}

func applyTOMLOverlay(path string, cfg *Config, dnsCfg *DNSConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading TOML overlay %s: %w", path, err)
	}

	var overlay fileOverlay
	if err := toml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parsing TOML overlay %s: %w", path, err)
	}

	if overlay.UserAgent != nil {
		cfg.Engine.UserAgent = *overlay.UserAgent
	}
	if overlay.RequestTimeoutSeconds != nil {
		cfg.Engine.RequestTimeout = time.Duration(*overlay.RequestTimeoutSeconds) * time.Second
	}
	if overlay.CommonPagesToScrape != nil {
		cfg.Engine.CommonPagesToScrape = *overlay.CommonPagesToScrape
	}
	if overlay.DNSServers != nil {
		dnsCfg.Servers = *overlay.DNSServers
	}
	if overlay.DNSTimeoutSeconds != nil {
		dnsCfg.Timeout = time.Duration(*overlay.DNSTimeoutSeconds) * time.Second
	}
	if overlay.SMTPSenderEmail != nil {
		cfg.Engine.SMTPSenderEmail = *overlay.SMTPSenderEmail
	}
	if overlay.SMTPTimeoutSeconds != nil {
		cfg.Engine.SMTPTimeout = time.Duration(*overlay.SMTPTimeoutSeconds) * time.Second
	}
	if overlay.MaxVerificationAttempts != nil {
		cfg.Engine.MaxVerificationAttempts = *overlay.MaxVerificationAttempts
	}
	if overlay.SleepBetweenRequestsMinMs != nil {
		cfg.Engine.MinSleep = time.Duration(*overlay.SleepBetweenRequestsMinMs) * time.Millisecond
	}
	if overlay.SleepBetweenRequestsMaxMs != nil {
		cfg.Engine.MaxSleep = time.Duration(*overlay.SleepBetweenRequestsMaxMs) * time.Millisecond
	}
	if overlay.GenericEmailPrefixes != nil {
		cfg.Engine.GenericEmailPrefixes = toSet(*overlay.GenericEmailPrefixes)
	}
	if overlay.ConfidenceThreshold != nil {
		cfg.Engine.ConfidenceThreshold = uint8(*overlay.ConfidenceThreshold)
	}
	if overlay.GenericConfidenceThreshold != nil {
		cfg.Engine.GenericConfidenceThreshold = uint8(*overlay.GenericConfidenceThreshold)
	}
	if overlay.MaxAlternatives != nil {
		cfg.Engine.MaxAlternatives = *overlay.MaxAlternatives
	}
	if overlay.MaxConcurrency != nil {
		cfg.MaxConcurrency = *overlay.MaxConcurrency
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}

func defaultDNSServers() []string {
	return []string{"8.8.8.8", "8.8.4.4", "1.1.1.1", "1.0.0.1"}
}

func defaultCommonPages() []string {
	return []string{
		"contact", "contact-us", "about", "about-us", "team", "our-team",
		"people", "staff", "leadership", "management", "company",
		"who-we-are", "meet-the-team", "staff-directory", "contacts",
	}
}

func defaultGenericPrefixes() []string {
	return []string{
		"info", "contact", "hello", "help", "support", "admin", "office",
		"sales", "press", "media", "marketing", "jobs", "careers", "hiring",
		"privacy", "security", "legal", "team", "people", "general",
		"feedback", "enquiries", "inquiries", "mail", "email", "pitch",
		"invest", "investors", "ir", "webmaster", "newsletter", "apply",
		"partner", "partners", "ventures",
	}
}

// Logger builds the shared *zap.Logger, unchanged from the teacher's
// level/format switch.
func (c *Config) Logger() (*zap.Logger, error) {
	var zapCfg zap.Config

	if c.Logging.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch c.Logging.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zapCfg.Build()
}
