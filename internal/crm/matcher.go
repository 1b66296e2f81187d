package crm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crmops/chatwatch/internal/model"
	"github.com/crmops/chatwatch/pkg/logger"
	"github.com/crmops/chatwatch/pkg/metrics"
)

// Registry is the slice of the order registry the matcher needs.
type Registry interface {
	OrdersByPhone(ctx context.Context, phone string, limit int) ([]model.Order, error)
	OrderModifiedBetween(ctx context.Context, orderID int64, from, to time.Time) (bool, error)
}

// MatcherConfig holds the externally configured matching rules.
type MatcherConfig struct {
	// FreshnessWindow is the maximum age for an order to count as new.
	FreshnessWindow time.Duration
	// ActionableStatuses is the status set that marks an order as new or
	// in progress.
	ActionableStatuses map[string]struct{}
}

// Matcher classifies which order, if any, is current for a phone number.
type Matcher struct {
	registry Registry
	cfg      MatcherConfig
	logger   *logger.Logger

	now func() time.Time
}

// NewMatcher creates an order matcher.
func NewMatcher(registry Registry, cfg MatcherConfig, log *logger.Logger) *Matcher {
	return &Matcher{
		registry: registry,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
	}
}

// Match looks up the client's orders and classifies them. It never fails:
// unnormalizable phones, order-less clients and registry errors all
// degrade to the empty result.
//
// Two tiers answer two different questions: a fresh order in an
// actionable status means an order was created for this inquiry, while
// any same-day modification of the latest order merely means the client
// does not need follow-up.
func (m *Matcher) Match(ctx context.Context, phone string) model.MatchResult {
	var result model.MatchResult

	normalized := NormalizePhone(phone)
	if normalized == "" {
		m.logger.Warn("phone failed normalization, skipping order lookup",
			zap.String("phone", phone),
		)
		return result
	}

	orders, err := m.registry.OrdersByPhone(ctx, normalized, ordersPageLimit)
	if err != nil {
		metrics.RecordExternalFailure("registry")
		m.logger.Error("order lookup failed",
			zap.String("phone", normalized),
			zap.Error(err),
		)
		return result
	}
	if len(orders) == 0 {
		m.logger.Debug("no orders for client", zap.String("phone", normalized))
		return result
	}

	result.LatestOrder = latestByCreation(orders)

	cutoff := m.now().Add(-m.cfg.FreshnessWindow)
	for i := range orders {
		order := &orders[i]
		if order.CreatedAt.IsZero() || order.CreatedAt.Before(cutoff) {
			continue
		}
		if _, ok := m.cfg.ActionableStatuses[order.Status]; !ok {
			continue
		}
		result.NewOrder = order
		result.ClientActive = true
		m.logger.Info("actionable order matched",
			zap.String("phone", normalized),
			zap.Int64("order_id", order.ID),
			zap.String("status", order.Status),
		)
		break
	}

	if !result.ClientActive && result.LatestOrder != nil {
		if m.modifiedToday(ctx, result.LatestOrder.ID) {
			result.ClientActive = true
			m.logger.Info("client active via latest order modification",
				zap.String("phone", normalized),
				zap.Int64("order_id", result.LatestOrder.ID),
			)
		}
	}

	return result
}

func (m *Matcher) modifiedToday(ctx context.Context, orderID int64) bool {
	now := m.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24*time.Hour - time.Second)

	modified, err := m.registry.OrderModifiedBetween(ctx, orderID, dayStart, dayEnd)
	if err != nil {
		metrics.RecordExternalFailure("registry")
		m.logger.Error("order history lookup failed",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
		return false
	}
	return modified
}

func latestByCreation(orders []model.Order) *model.Order {
	latest := &orders[0]
	for i := 1; i < len(orders); i++ {
		if orders[i].CreatedAt.After(latest.CreatedAt.Time) {
			latest = &orders[i]
		}
	}
	return latest
}
