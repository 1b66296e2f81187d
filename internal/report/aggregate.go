// Package report computes and publishes the daily operational report.
package report

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crmops/chatwatch/internal/crm"
	"github.com/crmops/chatwatch/internal/model"
	"github.com/crmops/chatwatch/internal/store"
	"github.com/crmops/chatwatch/pkg/logger"
	"github.com/crmops/chatwatch/pkg/metrics"
)

// Working-hours boundaries for the unanswered-chat metrics.
const (
	workStartHour    = 9
	workEndHour      = 20
	reportCutoffHour = 23
	reportCutoffMin  = 30

	slowFirstResponse = 5 * time.Minute
)

// Store is the slice of the transcript store the aggregator needs.
type Store interface {
	ListActive() ([]store.Ref, error)
	ListClosed() ([]store.Ref, error)
	Load(dialogID int64, phone string) (*model.Dialog, error)
	Purge(olderThan time.Time) (int, error)
}

// Closer force-runs the closure pipeline for a dialog.
type Closer interface {
	Close(ctx context.Context, dialogID int64, phone string)
}

// Matcher resolves order context for a phone number.
type Matcher interface {
	Match(ctx context.Context, phone string) model.MatchResult
}

// PaidOrderSource lists same-day paid orders from the registry.
type PaidOrderSource interface {
	PaidSameDay(ctx context.Context, day time.Time, paymentStatuses []string) ([]model.Order, error)
}

// LinkBuilder renders registry links for the report. Report order links use
// the internal order id rather than the slug.
type LinkBuilder interface {
	OrderEditLinkByID(order *model.Order) string
	CustomerSearchLink(phone string) string
}

// Aggregator sweeps the store and computes the day's metrics.
type Aggregator struct {
	store           Store
	closer          Closer
	matcher         Matcher
	paidOrders      PaidOrderSource
	links           LinkBuilder
	paymentStatuses []string
	retention       time.Duration
	logger          *logger.Logger
}

// NewAggregator creates a metrics aggregator.
func NewAggregator(
	st Store,
	closer Closer,
	matcher Matcher,
	paidOrders PaidOrderSource,
	links LinkBuilder,
	paymentStatuses []string,
	retention time.Duration,
	log *logger.Logger,
) *Aggregator {
	return &Aggregator{
		store:           st,
		closer:          closer,
		matcher:         matcher,
		paidOrders:      paidOrders,
		links:           links,
		paymentStatuses: paymentStatuses,
		retention:       retention,
		logger:          log,
	}
}

// CollectToday prepares the day's dialog set: purges transcripts past
// retention, force-closes active dialogs whose last message is dated
// today, then loads every closed dialog attributed to today.
func (a *Aggregator) CollectToday(ctx context.Context, day time.Time) ([]*model.Dialog, error) {
	cutoff := day.Add(-a.retention)
	if removed, err := a.store.Purge(cutoff); err != nil {
		a.logger.Warn("retention purge failed", zap.Error(err))
	} else if removed > 0 {
		a.logger.Info("retention purge done", zap.Int("removed", removed))
	}

	active, err := a.store.ListActive()
	if err != nil {
		return nil, err
	}
	for _, ref := range active {
		dialog, err := a.store.Load(ref.DialogID, ref.Phone)
		if err != nil {
			a.logger.Warn("failed to load active dialog",
				zap.Int64("dialog_id", ref.DialogID),
				zap.Error(err),
			)
			continue
		}
		if !sameDay(dialog.LastMessageTime(), day) {
			continue
		}
		a.logger.Info("force-closing stale active dialog", zap.Int64("dialog_id", ref.DialogID))
		// Synchronous so the dialog lands in closed before the scan below.
		a.closer.Close(ctx, ref.DialogID, ref.Phone)
	}

	closed, err := a.store.ListClosed()
	if err != nil {
		return nil, err
	}

	var today []*model.Dialog
	for _, ref := range closed {
		dialog, err := a.store.Load(ref.DialogID, ref.Phone)
		if err != nil {
			a.logger.Warn("failed to load closed dialog",
				zap.Int64("dialog_id", ref.DialogID),
				zap.Error(err),
			)
			continue
		}
		if len(dialog.Messages) == 0 || !sameDay(dialog.LastMessageTime(), day) {
			continue
		}
		today = append(today, dialog)
	}

	a.logger.Info("collected today's dialogs", zap.Int("count", len(today)))
	return today, nil
}

// AnalyzeTiming computes the per-dialog response-speed classification.
// Pure over the message sequence, so shuffling the dialog set cannot
// change aggregate counts.
func AnalyzeTiming(dialog *model.Dialog) model.DialogTiming {
	var timing model.DialogTiming
	messages := dialog.Messages
	if len(messages) == 0 {
		return timing
	}

	var firstClient *model.Message
	firstResponseSeen := false

	for i := range messages {
		msg := &messages[i]

		if i > 0 && msg.Sender == model.SenderManager && messages[i-1].Sender == model.SenderClient {
			timing.ResponseTimes = append(timing.ResponseTimes, msg.Time.Sub(messages[i-1].Time))
		}

		if msg.Sender == model.SenderClient && firstClient == nil {
			firstClient = msg
		}

		if firstClient != nil && !firstResponseSeen && msg.Sender == model.SenderManager && msg.Time.After(firstClient.Time) {
			firstResponseSeen = true
			if msg.Time.Sub(firstClient.Time) > slowFirstResponse {
				timing.FirstResponseTooSlow = true
			}
		}
	}

	last := messages[len(messages)-1]
	if last.Sender == model.SenderClient {
		t := last.Time
		minutes := t.Hour()*60 + t.Minute()
		workStart := workStartHour * 60
		workEnd := workEndHour * 60
		cutoff := reportCutoffHour*60 + reportCutoffMin

		switch {
		case minutes >= workStart && minutes <= workEnd:
			timing.UnansweredWorking = true
		case minutes > workEnd && minutes <= cutoff:
			timing.UnansweredNonWorking = true
		}
	}

	return timing
}

// Aggregate computes the daily report over the given dialog set. The
// result is independent of dialog order.
func (a *Aggregator) Aggregate(ctx context.Context, day time.Time, dialogs []*model.Dialog) *model.DailyReport {
	report := &model.DailyReport{
		Date:           day,
		TotalInquiries: len(dialogs),
	}

	var allResponses []time.Duration
	inquiryPhones := make(map[string]struct{})

	for _, dialog := range dialogs {
		timing := AnalyzeTiming(dialog)
		allResponses = append(allResponses, timing.ResponseTimes...)
		if timing.FirstResponseTooSlow {
			report.SlowFirstResponse++
		}
		if timing.UnansweredWorking {
			report.UnansweredWorking++
		}
		if timing.UnansweredNonWorking {
			report.UnansweredNonWorking++
		}

		if normalized := crm.NormalizePhone(dialog.Phone); normalized != "" {
			inquiryPhones[normalized] = struct{}{}
		}

		match := a.matcher.Match(ctx, dialog.Phone)
		if match.NewOrder != nil {
			report.OrdersCreated++
			if match.NewOrder.IsB2B() {
				report.LegalCount++
			} else {
				report.PhysicalCount++
			}
		}
		if !match.ClientActive {
			report.ClientsWithoutOrder = append(report.ClientsWithoutOrder, a.clientLink(dialog.Phone, match.LatestOrder))
		}
	}

	if len(allResponses) > 0 {
		var total time.Duration
		for _, d := range allResponses {
			total += d
		}
		report.AvgResponseTime = total / time.Duration(len(allResponses))
		report.HasResponseTimes = true
	}

	a.addSameDayClose(ctx, day, inquiryPhones, report)
	return report
}

func (a *Aggregator) clientLink(phone string, latest *model.Order) string {
	if latest != nil {
		return a.links.OrderEditLinkByID(latest)
	}
	return a.links.CustomerSearchLink(phone)
}

// addSameDayClose counts orders created and paid on the report day whose
// customer also inquired that day.
func (a *Aggregator) addSameDayClose(ctx context.Context, day time.Time, inquiryPhones map[string]struct{}, report *model.DailyReport) {
	orders, err := a.paidOrders.PaidSameDay(ctx, day, a.paymentStatuses)
	if err != nil {
		metrics.RecordExternalFailure("registry")
		a.logger.Error("same-day paid order lookup failed", zap.Error(err))
		return
	}

	for i := range orders {
		order := &orders[i]
		normalized := crm.NormalizePhone(order.CustomerPhone())
		if normalized == "" {
			continue
		}
		if _, inquired := inquiryPhones[normalized]; !inquired {
			continue
		}
		report.SameDayCount++
		report.SameDaySum += order.TotalSumm
	}
}

func sameDay(t, day time.Time) bool {
	if t.IsZero() {
		return false
	}
	y1, m1, d1 := t.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
