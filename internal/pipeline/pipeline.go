// Package pipeline processes dialog closures: it loads the transcript,
// resolves order context, decides the export tier and always moves the
// dialog to the closed location.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/crmops/chatwatch/internal/classify"
	"github.com/crmops/chatwatch/internal/export"
	"github.com/crmops/chatwatch/internal/model"
	"github.com/crmops/chatwatch/internal/store"
	"github.com/crmops/chatwatch/pkg/logger"
	"github.com/crmops/chatwatch/pkg/metrics"
)

const valueUnknown = "Unknown"

// TranscriptStore is the slice of the store the pipeline needs.
type TranscriptStore interface {
	Load(dialogID int64, phone string) (*model.Dialog, error)
	Close(dialogID int64, phone string) error
}

// Matcher resolves order context for a phone number.
type Matcher interface {
	Match(ctx context.Context, phone string) model.MatchResult
}

// Directory resolves manager display data and registry links.
type Directory interface {
	Manager(ctx context.Context, managerID int64) (*model.Manager, error)
	OrderEditLink(order *model.Order) string
}

// Analyzer produces the structured classification of a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (*classify.Result, error)
	Categories() []string
}

// Exporter submits records to the spreadsheet sinks.
type Exporter interface {
	SendRich(ctx context.Context, record *export.RichRecord) error
	SendBasic(ctx context.Context, record *export.BasicRecord) error
}

// SummarySender delivers the rich-tier summary to the routine topic.
type SummarySender interface {
	SendSummary(ctx context.Context, html string) error
}

// Config holds the externally configured tier-decision rules.
type Config struct {
	// ValidStatuses is the status set eligible for full classification.
	ValidStatuses map[string]struct{}
	// InvalidMethod disqualifies an order from full classification.
	InvalidMethod string
	// FreshnessWindow is the maximum order age for full classification.
	FreshnessWindow time.Duration
}

// Pipeline is the closure pipeline.
type Pipeline struct {
	store     TranscriptStore
	matcher   Matcher
	directory Directory
	analyzer  Analyzer
	exporter  Exporter
	notifier  SummarySender
	cfg       Config
	logger    *logger.Logger

	now func() time.Time
}

// New creates a closure pipeline. analyzer and notifier may be nil; the
// pipeline then always takes the basic tier.
func New(
	st TranscriptStore,
	matcher Matcher,
	directory Directory,
	analyzer Analyzer,
	exporter Exporter,
	notifier SummarySender,
	cfg Config,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		store:     st,
		matcher:   matcher,
		directory: directory,
		analyzer:  analyzer,
		exporter:  exporter,
		notifier:  notifier,
		cfg:       cfg,
		logger:    log,
	}
}

// Close processes one dialog closure end to end. All downstream failures
// degrade to the basic export tier; the transition to the closed location
// happens regardless, so a dialog can never be stranded in active by a
// failing collaborator.
func (p *Pipeline) Close(ctx context.Context, dialogID int64, phone string) {
	start := time.Now()
	jobID := uuid.NewString()
	log := p.logger.WithDialog(dialogID, phone).With(zap.String("closure_id", jobID))

	ctx, span := otel.Tracer("chatwatch/pipeline").Start(ctx, "dialog.close")
	span.SetAttributes(attribute.Int64("dialog.id", dialogID))
	defer span.End()

	dialog, err := p.store.Load(dialogID, phone)
	if err != nil {
		// A duplicate trigger lands here after the first run moved the
		// file; a genuinely lost transcript also lands here. Both are
		// non-fatal.
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("transcript not found in either location, skipping closure")
		} else {
			log.Error("failed to load transcript", zap.Error(err))
		}
		return
	}

	tier := "basic"
	defer func() {
		if err := p.store.Close(dialogID, phone); err != nil {
			log.Error("failed to move transcript to closed", zap.Error(err))
		}
		metrics.RecordClosure(tier, time.Since(start).Seconds())
		log.Info("closure finished", zap.String("tier", tier), zap.Duration("took", time.Since(start)))
	}()

	transcript := dialog.Transcript()
	match := p.matcher.Match(ctx, phone)

	order := match.NewOrder
	if order == nil {
		order = match.LatestOrder
	}

	orderLink := valueUnknown
	totalSumm := valueUnknown
	customerType := valueUnknown
	managerName := valueUnknown

	if order != nil {
		orderLink = p.directory.OrderEditLink(order)
		totalSumm = fmt.Sprintf("%.2f", order.TotalSumm)
		if order.IsB2B() {
			customerType = "Legal entity"
		} else {
			customerType = "Individual"
		}
		if order.ManagerID != 0 {
			manager, err := p.directory.Manager(ctx, order.ManagerID)
			if err != nil {
				log.Warn("manager lookup failed", zap.Int64("manager_id", order.ManagerID), zap.Error(err))
			} else {
				managerName = manager.DisplayName()
			}
		}
	}

	if p.eligibleForClassification(order, log) {
		if p.runRichTier(ctx, transcript, orderLink, totalSumm, customerType, managerName, phone, log) {
			tier = "rich"
			return
		}
	}

	basic := &export.BasicRecord{
		OrderLink:    orderLink,
		TotalSumm:    totalSumm,
		CustomerType: customerType,
		Transcript:   transcript,
	}
	if err := p.exporter.SendBasic(ctx, basic); err != nil {
		log.Error("basic export failed", zap.Error(err))
	}
}

// eligibleForClassification applies the tier decision: all three
// conditions must hold.
func (p *Pipeline) eligibleForClassification(order *model.Order, log *logger.Logger) bool {
	if p.analyzer == nil || order == nil {
		return false
	}
	if _, ok := p.cfg.ValidStatuses[order.Status]; !ok {
		log.Info("order status outside valid set, basic tier", zap.String("status", order.Status))
		return false
	}
	if p.cfg.InvalidMethod != "" && order.OrderMethod == p.cfg.InvalidMethod {
		log.Info("order method disqualifies classification", zap.String("method", order.OrderMethod))
		return false
	}
	clock := p.now
	if clock == nil {
		clock = time.Now
	}
	if order.CreatedAt.IsZero() || order.CreatedAt.Before(clock().Add(-p.cfg.FreshnessWindow)) {
		log.Info("order too old for classification", zap.Time("created_at", order.CreatedAt.Time))
		return false
	}
	return true
}

func (p *Pipeline) runRichTier(ctx context.Context, transcript, orderLink, totalSumm, customerType, managerName, phone string, log *logger.Logger) bool {
	result, err := p.analyzer.Analyze(ctx, transcript)
	if err != nil {
		log.Error("classification failed, falling back to basic tier", zap.Error(err))
		return false
	}

	scores := make([]int, len(p.analyzer.Categories()))
	for i, category := range p.analyzer.Categories() {
		scores[i] = result.Scores[category]
	}

	rich := &export.RichRecord{
		OrderLink:    orderLink,
		TotalSumm:    totalSumm,
		CustomerType: customerType,
		ManagerName:  managerName,
		Transcript:   transcript,
		Scores:       scores,
	}
	if err := p.exporter.SendRich(ctx, rich); err != nil {
		log.Error("rich export failed, falling back to basic tier", zap.Error(err))
		return false
	}

	if p.notifier != nil {
		summary := fmt.Sprintf(
			"<b>👤 Manager:</b> %s\n<b>📱 Client phone:</b> %s\n<b>🔗 Order:</b> <a href='%s'>link</a>\n\n%s",
			managerName, phone, orderLink, result.Summary,
		)
		if err := p.notifier.SendSummary(ctx, summary); err != nil {
			log.Error("summary delivery failed", zap.Error(err))
		}
	}
	return true
}
