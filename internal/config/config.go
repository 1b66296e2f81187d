// Package config provides environment configuration for the dialog listener.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Default status sets mirror the CRM workflow. All of them are
// configuration, not business logic: they can be replaced wholesale
// through the environment.
var (
	defaultStatusGroupNew = []string{
		"new", "gotovo-k-soglasovaniiu", "agree-absence",
	}
	defaultStatusGroupAgreement = []string{
		"client-confirmed", "ne-dozvonilis", "perezvonit-pozdnee",
		"klient-zhdet-foto-s-zakupki", "vizit-v-shourum",
		"ozhidaet-oplaty", "gotovim-kp", "soglasovanie-kp",
		"kp-gotovo-k-zashchite", "proekt-visiak", "soglasovano",
		"oplacheno", "proverka-nalichiia", "oplata-ne-proshla",
	}
	defaultPaymentStatuses = []string{
		"oplacheno", "novyi-oplachen",
		"predoplata-poluchena", "novyi-predoplachen", "prepayed",
		"servisnoe-obsluzhivanie-oplacheno", "vyezd-biologa-oplachen",
	}
	defaultCategories = []string{
		"contact_established", "needs_identified", "qualification",
		"presentation", "objection_raised", "objection_handled",
		"agreements_voiced", "payment_requested", "next_step_agreed",
	}
)

// Config holds all configuration for the application.
type Config struct {
	// CRM API. The bot message gateway lives on its own host, separate
	// from the v5 REST API.
	CRMBaseURL  string
	FeedBaseURL string
	CRMAPIKey   string
	BotToken    string

	// Transcript storage
	DialogsDir    string
	RetentionDays int

	// Feed reconnect policy
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	MaxReconnectAttempts  int
	KeepaliveInterval     time.Duration
	KeepaliveTimeout      time.Duration

	// Classifier
	OpenAIAPIKey    string
	AnthropicAPIKey string
	ClassifierModel string
	Categories      []string

	// Telegram notifier
	TelegramToken           string
	TelegramChatID          int64
	TelegramSummaryTopicID  int
	TelegramWarningsTopicID int

	// Export sinks
	RichFormURL  string
	BasicFormURL string

	// Order matching
	OrderFreshnessDays   int
	StatusGroupNew       []string
	StatusGroupAgreement []string
	PaymentStatuses      []string
	InvalidClosureMethod string

	// Security scan
	AllowedPaymentDomains []string

	// First-contact follow-up task. The performer id is only a fallback;
	// tasks normally go to the dialog's responsible manager.
	FirstContactChannel     string
	FirstContactPerformerID int64

	// Closure pipeline
	MaxConcurrentClosures int

	// Report scheduler
	ReportTime     string
	ReportTimezone string

	// Ops HTTP surface
	OpsPort           string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// CRM
		CRMBaseURL:  getEnv("CRM_BASE_URL", "https://demo.retailcrm.ru"),
		FeedBaseURL: getEnv("CRM_FEED_URL", "https://mg-s1.retailcrm.pro"),
		CRMAPIKey:   getEnv("CRM_API_KEY", ""),
		BotToken:    getEnv("CRM_BOT_TOKEN", ""),

		// Storage
		DialogsDir:    getEnv("DIALOGS_DIR", "dialogs"),
		RetentionDays: getIntEnv("DIALOG_RETENTION_DAYS", 3),

		// Feed
		ReconnectInitialDelay: getDurationEnv("FEED_RECONNECT_DELAY", 5*time.Second),
		ReconnectMaxDelay:     getDurationEnv("FEED_RECONNECT_MAX_DELAY", 60*time.Second),
		MaxReconnectAttempts:  getIntEnv("FEED_MAX_RECONNECT_ATTEMPTS", 10),
		KeepaliveInterval:     getDurationEnv("FEED_KEEPALIVE_INTERVAL", 30*time.Second),
		KeepaliveTimeout:      getDurationEnv("FEED_KEEPALIVE_TIMEOUT", 10*time.Second),

		// Classifier
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		ClassifierModel: getEnv("CLASSIFIER_MODEL", ""),
		Categories:      getSliceEnv("CLASSIFIER_CATEGORIES", defaultCategories),

		// Telegram
		TelegramToken:           getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:          getInt64Env("TELEGRAM_CHAT_ID", 0),
		TelegramSummaryTopicID:  getIntEnv("TELEGRAM_TOPIC_ID", 0),
		TelegramWarningsTopicID: getIntEnv("TELEGRAM_WARNINGS_TOPIC_ID", 0),

		// Export
		RichFormURL:  getEnv("RICH_FORM_URL", ""),
		BasicFormURL: getEnv("BASIC_FORM_URL", ""),

		// Matching
		OrderFreshnessDays:   getIntEnv("ORDER_FRESHNESS_DAYS", 2),
		StatusGroupNew:       getSliceEnv("STATUS_GROUP_NEW", defaultStatusGroupNew),
		StatusGroupAgreement: getSliceEnv("STATUS_GROUP_AGREEMENT", defaultStatusGroupAgreement),
		PaymentStatuses:      getSliceEnv("PAYMENT_STATUSES", defaultPaymentStatuses),
		InvalidClosureMethod: getEnv("INVALID_CLOSURE_METHOD", "missed-call"),

		// Security scan
		AllowedPaymentDomains: getSliceEnv("ALLOWED_PAYMENT_DOMAINS", nil),

		// Follow-up task
		FirstContactChannel:     getEnv("FIRST_CONTACT_CHANNEL", "Avito"),
		FirstContactPerformerID: getInt64Env("FIRST_CONTACT_PERFORMER_ID", 0),

		// Pipeline
		MaxConcurrentClosures: getIntEnv("MAX_CONCURRENT_CLOSURES", 8),

		// Report
		ReportTime:     getEnv("REPORT_TIME", "23:00"),
		ReportTimezone: getEnv("REPORT_TIMEZONE", "Europe/Moscow"),

		// Ops
		OpsPort:           getEnv("OPS_PORT", "8080"),
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// ActionableStatuses returns the union of the "new" and "agreement" status
// groups as a lookup set.
func (c *Config) ActionableStatuses() map[string]struct{} {
	return toSet(append(append([]string{}, c.StatusGroupNew...), c.StatusGroupAgreement...))
}

// ValidClosureStatuses returns the statuses eligible for rich-tier export.
func (c *Config) ValidClosureStatuses() map[string]struct{} {
	return c.ActionableStatuses()
}

// PaymentStatusSet returns the paid-order statuses as a lookup set.
func (c *Config) PaymentStatusSet() map[string]struct{} {
	return toSet(c.PaymentStatuses)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
