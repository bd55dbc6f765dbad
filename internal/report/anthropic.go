package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/gosight/logflow/internal/analytics"
	"github.com/gosight/logflow/internal/config"
)

const anthropicPrompt = `You are a product analytics assistant. The JSON below summarises user
interaction data collected during %s. Write a short report with four
sections: insights, recommendations, warnings and next steps. Be concrete and
refer to the element names and numbers in the data.

%s`

// Anthropic asks Claude for a narrative report over the aggregated metrics.
// Only aggregates are sent, never the raw event log.
type Anthropic struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func NewAnthropic(cfg config.AnthropicConfig) *Anthropic {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	client := anthropic.NewClient(opts...)
	return NewAnthropicFromClient(&client, cfg)
}

func NewAnthropicFromClient(client *anthropic.Client, cfg config.AnthropicConfig) *Anthropic {
	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaude3_5Sonnet20241022
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Anthropic{client: client, model: model, maxTokens: maxTokens}
}

func (a *Anthropic) Generate(ctx context.Context, req Request) (Result, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return Result{}, err
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return Result{}, errors.New("anthropic returned no text")
	}

	return jsonResult(map[string]any{
		"report": map[string]any{
			"timeRange": req.TimeRange,
			"narrative": sb.String(),
			"model":     string(a.model),
		},
	})
}

// promptMetrics is the aggregate view sent to the model
type promptMetrics struct {
	TotalEvents    int                      `json:"totalEvents"`
	Sessions       analytics.SessionSummary `json:"sessions"`
	ConversionRate float64                  `json:"conversionRate"`
	Top            []analytics.Ranked       `json:"topElements"`
	Types          []analytics.TypeShare    `json:"eventTypes"`
}

func buildPrompt(req Request) (string, error) {
	m := promptMetrics{
		TotalEvents:    len(req.Events),
		Sessions:       analytics.SessionStats(req.Sessions),
		ConversionRate: analytics.ConversionRate(req.Events, req.Sessions),
		Top:            analytics.TopN(req.Events, 10),
		Types:          analytics.TypeBreakdown(req.Events),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	timeRange := req.TimeRange
	if timeRange == "" {
		timeRange = "the recorded period"
	}
	return fmt.Sprintf(anthropicPrompt, timeRange, data), nil
}

// compile-time checks
var (
	_ Generator = (*Summary)(nil)
	_ Generator = (*HTTP)(nil)
	_ Generator = (*Anthropic)(nil)
)
