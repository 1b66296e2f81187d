// Package crm talks to the external order registry and classifies which
// order a conversation corresponds to.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crmops/chatwatch/internal/model"
	"github.com/crmops/chatwatch/pkg/logger"
)

// ErrNotFound is returned when the registry has no matching record.
var ErrNotFound = errors.New("record not found")

const (
	ordersPageLimit   = 50
	paidOrdersLimit   = 100
	crmDateLayout     = "2006-01-02"
	crmDateTimeLayout = "2006-01-02 15:04:05"
)

// Client is the HTTP client for the order registry API.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *logger.Logger
}

// NewClient creates a registry client. Every call uses a bounded timeout so
// background tasks cannot get stuck indefinitely.
func NewClient(baseURL, apiKey string, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		logger:  log,
	}
}

type apiEnvelope struct {
	Success  bool            `json:"success"`
	ErrorMsg string          `json:"errorMsg"`
	Orders   []model.Order   `json:"orders"`
	User     *model.Manager  `json:"user"`
	History  json.RawMessage `json:"history"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, form url.Values) (*apiEnvelope, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read registry response: %w", err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode registry response from %s: %w", path, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 400 || !env.Success {
		msg := env.ErrorMsg
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("registry call %s rejected: %s", path, msg)
	}
	return &env, nil
}

// OrdersByPhone lists orders for a normalized customer phone, newest first,
// bounded by the registry page size.
func (c *Client) OrdersByPhone(ctx context.Context, phone string, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = ordersPageLimit
	}
	q := url.Values{}
	q.Set("filter[customer]", phone)
	q.Set("limit", strconv.Itoa(limit))

	env, err := c.do(ctx, http.MethodGet, "/api/v5/orders", q, nil)
	if err != nil {
		return nil, err
	}
	return env.Orders, nil
}

// OrderModifiedBetween reports whether the order has history entries in
// the given interval. Queried on demand rather than via webhooks so the
// answer reflects current registry truth.
func (c *Client) OrderModifiedBetween(ctx context.Context, orderID int64, from, to time.Time) (bool, error) {
	q := url.Values{}
	q.Set("filter[orderId]", strconv.FormatInt(orderID, 10))
	q.Set("filter[startDate]", from.Format(crmDateTimeLayout))
	q.Set("filter[endDate]", to.Format(crmDateTimeLayout))

	env, err := c.do(ctx, http.MethodGet, "/api/v5/orders/history", q, nil)
	if err != nil {
		return false, err
	}

	var entries []json.RawMessage
	if len(env.History) > 0 {
		if err := json.Unmarshal(env.History, &entries); err != nil {
			return false, fmt.Errorf("failed to decode order history: %w", err)
		}
	}
	return len(entries) > 0, nil
}

// Manager fetches a manager record from the directory by id.
func (c *Client) Manager(ctx context.Context, managerID int64) (*model.Manager, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/v5/users/"+strconv.FormatInt(managerID, 10), nil, nil)
	if err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, ErrNotFound
	}
	return env.User, nil
}

// PaidSameDay lists orders created on day that also reached one of the
// payment statuses on day.
func (c *Client) PaidSameDay(ctx context.Context, day time.Time, paymentStatuses []string) ([]model.Order, error) {
	date := day.Format(crmDateLayout)
	q := url.Values{}
	q.Set("filter[createdAtFrom]", date)
	q.Set("filter[createdAtTo]", date)
	q.Set("filter[statusUpdatedAtFrom]", date)
	q.Set("filter[statusUpdatedAtTo]", date)
	q.Set("limit", strconv.Itoa(paidOrdersLimit))
	for _, status := range paymentStatuses {
		q.Add("filter[extendedStatus][]", status)
	}

	env, err := c.do(ctx, http.MethodGet, "/api/v5/orders", q, nil)
	if err != nil {
		return nil, err
	}
	return env.Orders, nil
}

// Task is a follow-up task created against the registry.
type Task struct {
	Text        string `json:"text"`
	PerformerID int64  `json:"performerId"`
	Datetime    string `json:"datetime"`
	Commentary  string `json:"commentary,omitempty"`
}

// CreateTask creates a follow-up task.
func (c *Client) CreateTask(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	form := url.Values{}
	form.Set("task", string(payload))

	if _, err := c.do(ctx, http.MethodPost, "/api/v5/tasks/create", nil, form); err != nil {
		return err
	}
	c.logger.Info("follow-up task created", zap.Int64("performer_id", task.PerformerID))
	return nil
}

// OrderEditLink renders the registry edit URL for an order, preferring the
// human-facing slug and falling back to the internal id.
func (c *Client) OrderEditLink(order *model.Order) string {
	if order == nil {
		return ""
	}
	ref := order.Slug
	if ref == 0 {
		ref = order.ID
	}
	return fmt.Sprintf("%s/orders/%d/edit", c.baseURL, ref)
}

// OrderEditLinkByID renders the registry edit URL from the internal order id.
// Report client links use the id, unlike the slug-first pipeline links.
func (c *Client) OrderEditLinkByID(order *model.Order) string {
	if order == nil {
		return ""
	}
	return fmt.Sprintf("%s/orders/%d/edit", c.baseURL, order.ID)
}

// CustomerSearchLink renders a registry customer-search URL for a phone,
// used as fallback when the client has no orders at all.
func (c *Client) CustomerSearchLink(phone string) string {
	return fmt.Sprintf("%s/customers?filter[text]=%s", c.baseURL, url.QueryEscape(phone))
}
