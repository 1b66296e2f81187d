package classify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/crmops/chatwatch/pkg/logger"
	"github.com/crmops/chatwatch/pkg/metrics"
)

const promptTemplate = `You are a sales quality auditor. Evaluate the customer support transcript below.

Score each of the following categories with an integer from 0 to 10,
where 0 means the behavior is absent and 10 means it is handled perfectly:
%s

Respond with exactly this structure:
1. A fenced json block containing one object whose keys are the category
   names above and whose values are the integer scores.
2. The line ---SUMMARY---
3. A short free-text summary of the conversation: what the client wanted,
   how the manager handled it, and the outcome.

Transcript:
%s`

// Result is the structured outcome of a transcript analysis.
type Result struct {
	Scores  map[string]int
	Summary string
}

// Analyzer scores transcripts against a fixed category list.
type Analyzer struct {
	client     Client
	model      string
	categories []string
	logger     *logger.Logger
}

// NewAnalyzer creates an analyzer backed by the given provider.
func NewAnalyzer(client Client, model string, categories []string, log *logger.Logger) *Analyzer {
	return &Analyzer{
		client:     client,
		model:      model,
		categories: categories,
		logger:     log,
	}
}

// Categories returns the fixed category list in scoring order.
func (a *Analyzer) Categories() []string {
	return a.categories
}

// Analyze sends the transcript to the provider and parses the structured
// response. Any failure is an ExternalServiceFailure: the caller falls
// back to the basic export tier.
func (a *Analyzer) Analyze(ctx context.Context, transcript string) (*Result, error) {
	quoted := make([]string, len(a.categories))
	for i, cat := range a.categories {
		quoted[i] = "'" + cat + "'"
	}
	prompt := fmt.Sprintf(promptTemplate, strings.Join(quoted, ", "), transcript)

	resp, err := a.client.Complete(ctx, &CompletionRequest{
		Model:       a.model,
		Prompt:      prompt,
		Temperature: 0.1,
	})
	if err != nil {
		metrics.RecordExternalFailure("classifier")
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}

	result, err := parseResponse(resp.Content)
	if err != nil {
		metrics.RecordExternalFailure("classifier")
		return nil, fmt.Errorf("unusable classifier response: %w", err)
	}

	a.logger.Debug("transcript analyzed",
		zap.String("provider", a.client.Name()),
		zap.Int64("latency_ms", resp.LatencyMs),
		zap.Int("categories", len(result.Scores)),
	)
	return result, nil
}
