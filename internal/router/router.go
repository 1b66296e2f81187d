// Package router decodes feed events and drives the transcript store, the
// closure pipeline and the first-contact side-channel.
package router

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/crmops/chatwatch/internal/crm"
	"github.com/crmops/chatwatch/internal/model"
	"github.com/crmops/chatwatch/pkg/logger"
	"github.com/crmops/chatwatch/pkg/metrics"
)

// Feed sender types.
const (
	feedSenderManager  = "user"
	feedSenderCustomer = "customer"
)

var urlRe = regexp.MustCompile(`https?://[^\s]+`)

// Appender is the slice of the transcript store the router needs.
type Appender interface {
	Append(dialogID int64, phone string, sender model.Sender, text string, ts time.Time) error
}

// ClosureRunner runs the closure pipeline for one dialog.
type ClosureRunner interface {
	Close(ctx context.Context, dialogID int64, phone string)
}

// WarningSender delivers security warnings.
type WarningSender interface {
	SendWarning(ctx context.Context, text string) error
}

// TaskCreator creates follow-up tasks against the registry.
type TaskCreator interface {
	CreateTask(ctx context.Context, task crm.Task) error
}

// Config holds router settings.
type Config struct {
	// AllowedPaymentDomains is the allow-list for links in manager
	// messages.
	AllowedPaymentDomains []string
	// FirstContactChannel is the channel whose first contact triggers a
	// follow-up task when the phone is unknown.
	FirstContactChannel string
	// FirstContactPerformerID is the fallback task performer when the
	// event's responsible id cannot be used.
	FirstContactPerformerID int64
	// MaxConcurrentClosures caps simultaneous closure pipelines.
	MaxConcurrentClosures int
}

// Router consumes decoded events one at a time. Closure processing is
// dispatched onto background goroutines so the event stream never blocks
// on pipeline completion.
type Router struct {
	store    Appender
	pipeline ClosureRunner
	notifier WarningSender
	tasks    TaskCreator
	cfg      Config
	logger   *logger.Logger

	// taskedDialogs guarantees at-most-once follow-up task creation per
	// dialog; entries are removed on closure so a reopened dialog may
	// trigger a new task.
	mu            sync.Mutex
	taskedDialogs map[int64]struct{}

	sem chan struct{}

	clock func() time.Time
}

// New creates an event router.
func New(st Appender, pl ClosureRunner, notifier WarningSender, tasks TaskCreator, cfg Config, log *logger.Logger) *Router {
	if cfg.MaxConcurrentClosures <= 0 {
		cfg.MaxConcurrentClosures = 8
	}
	return &Router{
		store:         st,
		pipeline:      pl,
		notifier:      notifier,
		tasks:         tasks,
		cfg:           cfg,
		logger:        log,
		taskedDialogs: make(map[int64]struct{}),
		sem:           make(chan struct{}, cfg.MaxConcurrentClosures),
		clock:         time.Now,
	}
}

// HandleEvent consumes one raw feed event. A returned error marks the
// event undecodable; the caller logs and skips it.
func (r *Router) HandleEvent(ctx context.Context, raw []byte) error {
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("event is not valid JSON")
	}

	eventType := gjson.GetBytes(raw, "type").String()
	metrics.FeedEventsTotal.WithLabelValues(eventType).Inc()

	switch eventType {
	case "message_new":
		return r.handleMessage(ctx, raw)
	case "dialog_closed":
		return r.handleClosed(ctx, raw)
	default:
		r.logger.Debug("ignoring event", zap.String("type", eventType))
		return nil
	}
}

func (r *Router) handleMessage(ctx context.Context, raw []byte) error {
	msg := gjson.GetBytes(raw, "data.message")

	dialogID := msg.Get("dialog.id").Int()
	if dialogID == 0 {
		return fmt.Errorf("message event without dialog id")
	}

	senderType := msg.Get("from.type").String()
	var sender model.Sender
	switch senderType {
	case feedSenderManager:
		sender = model.SenderManager
	case feedSenderCustomer:
		sender = model.SenderClient
	default:
		// System and bot senders are not part of the conversation.
		r.logger.Debug("ignoring message sender",
			zap.Int64("dialog_id", dialogID),
			zap.String("sender_type", senderType),
		)
		return nil
	}

	phone := msg.Get("chat.customer.phone").String()
	text, ok := messageText(msg)
	if !ok {
		r.logger.Debug("ignoring message type",
			zap.Int64("dialog_id", dialogID),
			zap.String("message_type", msg.Get("type").String()),
		)
		return nil
	}

	if sender == model.SenderManager {
		r.scanForUnauthorizedLinks(ctx, dialogID, msg.Get("from.name").String(), text)
	}

	if err := r.store.Append(dialogID, phone, sender, text, r.clock()); err != nil {
		r.logger.Error("failed to append message",
			zap.Int64("dialog_id", dialogID),
			zap.Error(err),
		)
	}

	r.maybeCreateFirstContactTask(ctx, dialogID, phone, msg)
	return nil
}

func messageText(msg gjson.Result) (string, bool) {
	switch msg.Get("type").String() {
	case "text":
		content := msg.Get("content")
		if content.IsObject() {
			return content.Get("text").String(), true
		}
		return content.String(), true
	case "image":
		return "[image]", true
	default:
		return "", false
	}
}

// scanForUnauthorizedLinks checks manager-authored text for payment links
// outside the allow-list and raises a warning for each hit.
func (r *Router) scanForUnauthorizedLinks(ctx context.Context, dialogID int64, managerName, text string) {
	for _, link := range urlRe.FindAllString(text, -1) {
		parsed, err := url.Parse(link)
		if err != nil {
			continue
		}
		domain := strings.TrimPrefix(parsed.Hostname(), "www.")
		if r.domainAllowed(domain) {
			r.logger.Debug("allow-listed link", zap.Int64("dialog_id", dialogID), zap.String("domain", domain))
			continue
		}

		metrics.SuspiciousLinksTotal.Inc()
		r.logger.Warn("suspicious link in manager message",
			zap.Int64("dialog_id", dialogID),
			zap.String("manager", managerName),
			zap.String("url", link),
		)

		warning := fmt.Sprintf(
			"🚨 Suspicious activity\n\nManager: %s\nDialog ID: %d\nDetected link: %s\n\nMessage: %s",
			managerName, dialogID, link, text,
		)
		go func() {
			sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := r.notifier.SendWarning(sendCtx, warning); err != nil {
				r.logger.Error("failed to deliver link warning", zap.Int64("dialog_id", dialogID), zap.Error(err))
			}
		}()
	}
}

func (r *Router) domainAllowed(domain string) bool {
	for _, allowed := range r.cfg.AllowedPaymentDomains {
		if domain == allowed {
			return true
		}
	}
	return false
}

// maybeCreateFirstContactTask enqueues one follow-up task for a dialog on
// the configured channel when the customer's phone is unknown and a
// manager is assigned.
func (r *Router) maybeCreateFirstContactTask(ctx context.Context, dialogID int64, phone string, msg gjson.Result) {
	if r.tasks == nil || r.cfg.FirstContactChannel == "" {
		return
	}
	if msg.Get("chat.channel.name").String() != r.cfg.FirstContactChannel {
		return
	}
	if phone != "" {
		return
	}
	responsible := msg.Get("chat.last_dialog.responsible.external_id").String()
	if responsible == "" {
		return
	}
	// The task goes to the manager already responsible for the dialog;
	// the configured performer is only a fallback for unusable ids.
	performerID, err := strconv.ParseInt(responsible, 10, 64)
	if err != nil || performerID == 0 {
		performerID = r.cfg.FirstContactPerformerID
	}

	r.mu.Lock()
	if _, done := r.taskedDialogs[dialogID]; done {
		r.mu.Unlock()
		return
	}
	r.taskedDialogs[dialogID] = struct{}{}
	r.mu.Unlock()

	task := crm.Task{
		Text:        fmt.Sprintf("First contact on %s: dialog %d has no phone number, request it from the client", r.cfg.FirstContactChannel, dialogID),
		PerformerID: performerID,
		Datetime:    r.clock().Add(time.Hour).Format("2006-01-02 15:04"),
	}
	go func() {
		taskCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.tasks.CreateTask(taskCtx, task); err != nil {
			metrics.RecordExternalFailure("registry")
			r.logger.Error("failed to create follow-up task",
				zap.Int64("dialog_id", dialogID),
				zap.Error(err),
			)
			return
		}
		metrics.FollowupTasksTotal.Inc()
	}()
}

func (r *Router) handleClosed(ctx context.Context, raw []byte) error {
	dialog := gjson.GetBytes(raw, "data.dialog")

	dialogID := dialog.Get("id").Int()
	if dialogID == 0 {
		return fmt.Errorf("dialog_closed event without dialog id")
	}
	phone := dialog.Get("chat.customer.phone").String()

	r.mu.Lock()
	delete(r.taskedDialogs, dialogID)
	r.mu.Unlock()

	r.logger.Info("dialog closed",
		zap.Int64("dialog_id", dialogID),
		zap.String("phone", phone),
	)

	// Pipelines run in the background, gated by the semaphore; the feed
	// read loop never waits on a closure.
	go func() {
		r.sem <- struct{}{}
		defer func() { <-r.sem }()
		r.pipeline.Close(ctx, dialogID, phone)
	}()
	return nil
}

// PendingFirstContactTasks reports dialogs currently held in the dedupe
// set. Used in tests and the ready probe.
func (r *Router) PendingFirstContactTasks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.taskedDialogs)
}
