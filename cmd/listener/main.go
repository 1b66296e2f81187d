// Package main is the entry point for the dialog listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/crmops/chatwatch/internal/classify"
	"github.com/crmops/chatwatch/internal/config"
	"github.com/crmops/chatwatch/internal/crm"
	"github.com/crmops/chatwatch/internal/export"
	"github.com/crmops/chatwatch/internal/feed"
	"github.com/crmops/chatwatch/internal/notify"
	"github.com/crmops/chatwatch/internal/ops"
	"github.com/crmops/chatwatch/internal/pipeline"
	"github.com/crmops/chatwatch/internal/report"
	"github.com/crmops/chatwatch/internal/router"
	"github.com/crmops/chatwatch/internal/store"
	"github.com/crmops/chatwatch/pkg/logger"
	"github.com/crmops/chatwatch/pkg/tracing"
)

func main() {
	// Load .env if present, then configuration
	_ = godotenv.Load()
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting dialog listener")

	// Initialize tracing if enabled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chatwatch", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Telegram notifier
	telegram, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID,
		cfg.TelegramSummaryTopicID, cfg.TelegramWarningsTopicID, log)
	if err != nil {
		log.Error("failed to create telegram notifier", zap.Error(err))
		os.Exit(1)
	}

	// CRM client and order matcher
	crmClient := crm.NewClient(cfg.CRMBaseURL, cfg.CRMAPIKey, log)
	matcher := crm.NewMatcher(crmClient, crm.MatcherConfig{
		FreshnessWindow:    time.Duration(cfg.OrderFreshnessDays) * 24 * time.Hour,
		ActionableStatuses: cfg.ActionableStatuses(),
	}, log)

	// Transcript classifier
	var analyzer *classify.Analyzer
	var llmClient classify.Client
	if cfg.AnthropicAPIKey != "" {
		llmClient, err = classify.NewClient(classify.ProviderAnthropic, cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client, classification disabled", zap.Error(err))
		}
	} else if cfg.OpenAIAPIKey != "" {
		llmClient, err = classify.NewClient(classify.ProviderOpenAI, cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn("failed to create OpenAI client, classification disabled", zap.Error(err))
		}
	}
	if llmClient != nil {
		analyzer = classify.NewAnalyzer(llmClient, cfg.ClassifierModel, cfg.Categories, log)
	}

	// Export sinks
	forms := export.NewFormsClient(cfg.RichFormURL, cfg.BasicFormURL, log)

	// Transcript store
	st, err := store.New(cfg.DialogsDir, log)
	if err != nil {
		log.Error("failed to open transcript store", zap.Error(err))
		os.Exit(1)
	}

	// Closure pipeline
	var pipelineAnalyzer pipeline.Analyzer
	if analyzer != nil {
		pipelineAnalyzer = analyzer
	}
	pl := pipeline.New(st, matcher, crmClient, pipelineAnalyzer, forms, telegram, pipeline.Config{
		ValidStatuses:   cfg.ValidClosureStatuses(),
		InvalidMethod:   cfg.InvalidClosureMethod,
		FreshnessWindow: time.Duration(cfg.OrderFreshnessDays) * 24 * time.Hour,
	}, log)

	// Event router
	rt := router.New(st, pl, telegram, crmClient, router.Config{
		AllowedPaymentDomains:   cfg.AllowedPaymentDomains,
		FirstContactChannel:     cfg.FirstContactChannel,
		FirstContactPerformerID: cfg.FirstContactPerformerID,
		MaxConcurrentClosures:   cfg.MaxConcurrentClosures,
	}, log)

	// Event feed
	manager := feed.NewManager(feed.Config{
		BaseURL:           cfg.FeedBaseURL,
		BotToken:          cfg.BotToken,
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		MaxAttempts:       cfg.MaxReconnectAttempts,
		KeepaliveInterval: cfg.KeepaliveInterval,
		KeepaliveTimeout:  cfg.KeepaliveTimeout,
	}, rt.HandleEvent, log)

	if err := manager.Probe(ctx); err != nil {
		log.Error("bot token probe failed", zap.Error(err))
		os.Exit(1)
	}

	feedErr := make(chan error, 1)
	go func() {
		feedErr <- manager.Run(ctx)
	}()

	// Daily report scheduler
	aggregator := report.NewAggregator(st, pl, matcher, crmClient, crmClient,
		cfg.PaymentStatuses, time.Duration(cfg.RetentionDays)*24*time.Hour, log)
	scheduler, err := report.NewScheduler(aggregator, telegram, cfg.ReportTime, cfg.ReportTimezone, log)
	if err != nil {
		log.Error("failed to create report scheduler", zap.Error(err))
		os.Exit(1)
	}
	go scheduler.Run(ctx)

	// Ops HTTP server
	opsServer := ops.NewServer(cfg.OpsPort, manager, cfg.RateLimitRequests, cfg.RateLimitWindow, log)
	go func() {
		if err := opsServer.Start(); err != nil {
			log.Error("ops server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal or feed exhaustion
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-feedErr:
		if errors.Is(err, feed.ErrReconnectExhausted) {
			log.Error("event feed gave up reconnecting", zap.Error(err))
		} else if err != nil {
			log.Error("event feed stopped", zap.Error(err))
		}
	}

	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("ops server forced to shutdown", zap.Error(err))
	}

	log.Info("listener stopped")
}
