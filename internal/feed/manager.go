// Package feed maintains the persistent subscription to the CRM event feed.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/crmops/chatwatch/pkg/logger"
	"github.com/crmops/chatwatch/pkg/metrics"
)

// ErrReconnectExhausted is returned when the maximum number of consecutive
// reconnect attempts is reached without a successful connection. It is
// fatal to the listener subsystem and must reach the operator.
var ErrReconnectExhausted = errors.New("maximum reconnect attempts exhausted")

// State is the connection lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateBackoff
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoff:
		return "backoff"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handler consumes one raw event from the feed. A non-nil error means the
// event could not be decoded; it is logged and skipped without tearing
// down the connection.
type Handler func(ctx context.Context, raw []byte) error

// Config holds feed connection settings. BaseURL is the message gateway
// host, not the CRM REST API.
type Config struct {
	BaseURL           string
	BotToken          string
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	MaxAttempts       int
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration
}

// Manager owns the websocket subscription and its reconnect state machine:
// Connecting -> Open -> Backoff -> Connecting, terminal Failed after
// MaxAttempts consecutive failures.
type Manager struct {
	cfg     Config
	handler Handler
	logger  *logger.Logger
	dialer  *websocket.Dialer
	httpc   *http.Client

	state atomic.Int32
}

// NewManager creates a connection manager delivering events to handler.
func NewManager(cfg Config, handler Handler, log *logger.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		handler: handler,
		logger:  log,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// NewBackoff builds the reconnect delay schedule: the delay doubles from
// initial up to max, with no jitter.
func NewBackoff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Probe validates the bot token against the message gateway before
// subscribing, so a misconfigured token fails fast.
func (m *Manager) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.BaseURL+"/api/bot/v1/bots", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Bot-Token", m.cfg.BotToken)

	resp, err := m.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach CRM bot API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return errors.New("CRM bot token rejected")
	}
	return nil
}

// Run holds the subscription until ctx is cancelled, reconnecting with
// exponential backoff on transport errors. Returns ErrReconnectExhausted
// after MaxAttempts consecutive failures without a successful open.
func (m *Manager) Run(ctx context.Context) error {
	bo := NewBackoff(m.cfg.InitialDelay, m.cfg.MaxDelay)
	attempts := 0

	for {
		m.setState(StateConnecting)
		if attempts > 0 {
			m.logger.Info("reconnecting to event feed",
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", m.cfg.MaxAttempts),
			)
		} else {
			m.logger.Info("connecting to event feed")
		}

		opened, err := m.runOnce(ctx)
		if ctx.Err() != nil {
			m.setState(StateFailed)
			return ctx.Err()
		}
		if err != nil {
			m.logger.Error("event feed connection lost", zap.Error(err))
		}
		if opened {
			// A successful open period resets the failure budget.
			attempts = 0
			bo.Reset()
		}

		attempts++
		metrics.FeedReconnectsTotal.Inc()
		if attempts >= m.cfg.MaxAttempts {
			m.setState(StateFailed)
			return ErrReconnectExhausted
		}

		delay := bo.NextBackOff()
		m.setState(StateBackoff)
		m.logger.Info("waiting before reconnect", zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			m.setState(StateFailed)
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (m *Manager) wsURL() string {
	base := m.cfg.BaseURL
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/api/bot/v1/ws?events=message_new,dialog_closed"
}

// runOnce dials the feed and pumps events until the connection dies.
// Returns whether the connection reached Open.
func (m *Manager) runOnce(ctx context.Context) (bool, error) {
	header := http.Header{}
	header.Set("X-Bot-Token", m.cfg.BotToken)

	conn, resp, err := m.dialer.DialContext(ctx, m.wsURL(), header)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("failed to dial event feed (status %d): %w", resp.StatusCode, err)
		}
		return false, fmt.Errorf("failed to dial event feed: %w", err)
	}
	defer conn.Close()

	m.setState(StateOpen)
	metrics.FeedConnected.Set(1)
	defer metrics.FeedConnected.Set(0)
	m.logger.Info("event feed connected")

	// The keep-alive probe detects silently-dead connections: a missed
	// pong lets the read deadline expire, which fails ReadMessage and
	// forces a reconnect.
	deadline := m.cfg.KeepaliveInterval + m.cfg.KeepaliveTimeout
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(m.cfg.KeepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// Unblocks the read loop on shutdown.
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.cfg.KeepaliveTimeout)); err != nil {
					m.logger.Warn("keepalive ping failed", zap.Error(err))
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		if err := m.handler(ctx, data); err != nil {
			// Decode errors on a single event never tear down the feed.
			metrics.FeedDecodeFailuresTotal.Inc()
			m.logger.Error("skipping undecodable event", zap.Error(err))
		}
	}
}
