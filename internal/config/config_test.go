package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.CRMBaseURL != "https://demo.retailcrm.ru" {
		t.Errorf("CRMBaseURL = %q", cfg.CRMBaseURL)
	}
	if cfg.FeedBaseURL != "https://mg-s1.retailcrm.pro" {
		t.Errorf("FeedBaseURL = %q", cfg.FeedBaseURL)
	}
	if cfg.RetentionDays != 3 {
		t.Errorf("RetentionDays = %d, want 3", cfg.RetentionDays)
	}
	if cfg.ReconnectInitialDelay != 5*time.Second || cfg.ReconnectMaxDelay != 60*time.Second {
		t.Errorf("reconnect delays = %v/%v", cfg.ReconnectInitialDelay, cfg.ReconnectMaxDelay)
	}
	if cfg.MaxReconnectAttempts != 10 {
		t.Errorf("MaxReconnectAttempts = %d, want 10", cfg.MaxReconnectAttempts)
	}
	if cfg.KeepaliveInterval != 30*time.Second || cfg.KeepaliveTimeout != 10*time.Second {
		t.Errorf("keepalive = %v/%v", cfg.KeepaliveInterval, cfg.KeepaliveTimeout)
	}
	if cfg.OrderFreshnessDays != 2 {
		t.Errorf("OrderFreshnessDays = %d, want 2", cfg.OrderFreshnessDays)
	}
	if cfg.InvalidClosureMethod != "missed-call" {
		t.Errorf("InvalidClosureMethod = %q", cfg.InvalidClosureMethod)
	}
	if cfg.ReportTime != "23:00" || cfg.ReportTimezone != "Europe/Moscow" {
		t.Errorf("report trigger = %q %q", cfg.ReportTime, cfg.ReportTimezone)
	}
	if len(cfg.Categories) != 9 {
		t.Errorf("Categories = %d entries, want 9", len(cfg.Categories))
	}
	if cfg.FirstContactChannel != "Avito" {
		t.Errorf("FirstContactChannel = %q", cfg.FirstContactChannel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CRM_BASE_URL", "https://shop.retailcrm.ru")
	t.Setenv("CRM_FEED_URL", "https://mg-s2.retailcrm.pro")
	t.Setenv("DIALOG_RETENTION_DAYS", "7")
	t.Setenv("FEED_RECONNECT_DELAY", "2s")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001234567890")
	t.Setenv("STATUS_GROUP_NEW", "fresh,incoming")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := Load()

	if cfg.CRMBaseURL != "https://shop.retailcrm.ru" {
		t.Errorf("CRMBaseURL = %q", cfg.CRMBaseURL)
	}
	if cfg.FeedBaseURL != "https://mg-s2.retailcrm.pro" {
		t.Errorf("FeedBaseURL = %q", cfg.FeedBaseURL)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d", cfg.RetentionDays)
	}
	if cfg.ReconnectInitialDelay != 2*time.Second {
		t.Errorf("ReconnectInitialDelay = %v", cfg.ReconnectInitialDelay)
	}
	if cfg.TelegramChatID != -1001234567890 {
		t.Errorf("TelegramChatID = %d", cfg.TelegramChatID)
	}
	if len(cfg.StatusGroupNew) != 2 || cfg.StatusGroupNew[0] != "fresh" {
		t.Errorf("StatusGroupNew = %v", cfg.StatusGroupNew)
	}
	if !cfg.TracingEnabled {
		t.Error("TracingEnabled = false")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DIALOG_RETENTION_DAYS", "not-a-number")
	t.Setenv("FEED_RECONNECT_DELAY", "soon")

	cfg := Load()
	if cfg.RetentionDays != 3 {
		t.Errorf("RetentionDays = %d, want default 3", cfg.RetentionDays)
	}
	if cfg.ReconnectInitialDelay != 5*time.Second {
		t.Errorf("ReconnectInitialDelay = %v, want default 5s", cfg.ReconnectInitialDelay)
	}
}

func TestActionableStatuses(t *testing.T) {
	cfg := &Config{
		StatusGroupNew:       []string{"new", "agree-absence"},
		StatusGroupAgreement: []string{"soglasovano"},
	}
	set := cfg.ActionableStatuses()
	for _, status := range []string{"new", "agree-absence", "soglasovano"} {
		if _, ok := set[status]; !ok {
			t.Errorf("%q missing from actionable set", status)
		}
	}
	if _, ok := set["cancelled"]; ok {
		t.Error("cancelled should not be actionable")
	}
}

func TestPaymentStatusSet(t *testing.T) {
	cfg := &Config{PaymentStatuses: []string{"oplacheno", "prepayed"}}
	set := cfg.PaymentStatusSet()
	if len(set) != 2 {
		t.Errorf("set = %v", set)
	}
	if _, ok := set["oplacheno"]; !ok {
		t.Error("oplacheno missing")
	}
}
