// Package export submits closed-dialog records to the spreadsheet sinks.
//
// Both sinks are Google Forms; a submission is one form-encoded POST with
// fixed entry IDs taken from the form definitions.
package export

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crmops/chatwatch/pkg/logger"
	"github.com/crmops/chatwatch/pkg/metrics"
)

// Rich-tier form fields.
const (
	richEntryOrderLink    = "entry.408402535"
	richEntryTotalSumm    = "entry.711063137"
	richEntryCustomerType = "entry.90684815"
	richEntryManagerName  = "entry.1744925750"
	richEntryTranscript   = "entry.1791797075"
)

// Score fields of the rich form, aligned with the category list order.
var richScoreEntryIDs = []string{
	"entry.1213746785",
	"entry.812648406",
	"entry.567411627",
	"entry.154941084",
	"entry.45434250",
	"entry.830702183",
	"entry.2001468013",
	"entry.1565546251",
	"entry.1047583326",
}

// Basic-tier form fields.
const (
	basicEntryOrderLink    = "entry.193846571"
	basicEntryTotalSumm    = "entry.584917230"
	basicEntryCustomerType = "entry.902741856"
	basicEntryTranscript   = "entry.337105948"
)

// RichRecord is the full export of a classified dialog.
type RichRecord struct {
	OrderLink    string
	TotalSumm    string
	CustomerType string
	ManagerName  string
	Transcript   string
	// Scores in category-list order.
	Scores []int
}

// BasicRecord is the minimal export for dialogs that did not qualify for
// classification.
type BasicRecord struct {
	OrderLink    string
	TotalSumm    string
	CustomerType string
	Transcript   string
}

// FormsClient posts records to the two form sinks.
type FormsClient struct {
	richURL  string
	basicURL string
	httpc    *http.Client
	logger   *logger.Logger
}

// NewFormsClient creates an export client.
func NewFormsClient(richURL, basicURL string, log *logger.Logger) *FormsClient {
	return &FormsClient{
		richURL:  richURL,
		basicURL: basicURL,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		logger:   log,
	}
}

// SendRich submits the full-classification record.
func (c *FormsClient) SendRich(ctx context.Context, record *RichRecord) error {
	form := url.Values{}
	form.Set(richEntryOrderLink, record.OrderLink)
	form.Set(richEntryTotalSumm, record.TotalSumm)
	form.Set(richEntryCustomerType, record.CustomerType)
	form.Set(richEntryManagerName, record.ManagerName)
	form.Set(richEntryTranscript, record.Transcript)
	for i, score := range record.Scores {
		if i >= len(richScoreEntryIDs) {
			break
		}
		form.Set(richScoreEntryIDs[i], fmt.Sprintf("%d", score))
	}

	if err := c.post(ctx, c.richURL, form); err != nil {
		metrics.RecordExternalFailure("rich_sink")
		return fmt.Errorf("rich export failed: %w", err)
	}
	c.logger.Info("rich export sent", zap.String("order_link", record.OrderLink))
	return nil
}

// SendBasic submits the minimal record.
func (c *FormsClient) SendBasic(ctx context.Context, record *BasicRecord) error {
	form := url.Values{}
	form.Set(basicEntryOrderLink, record.OrderLink)
	form.Set(basicEntryTotalSumm, record.TotalSumm)
	form.Set(basicEntryCustomerType, record.CustomerType)
	form.Set(basicEntryTranscript, record.Transcript)

	if err := c.post(ctx, c.basicURL, form); err != nil {
		metrics.RecordExternalFailure("basic_sink")
		return fmt.Errorf("basic export failed: %w", err)
	}
	c.logger.Info("basic export sent", zap.String("order_link", record.OrderLink))
	return nil
}

func (c *FormsClient) post(ctx context.Context, formURL string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, formURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("form submission rejected: %s", resp.Status)
	}
	return nil
}
