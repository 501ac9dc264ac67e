package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic is the Claude-backed provider.
type Anthropic struct {
	api     *anthropic.Client
	model   anthropic.Model
	pricing map[string]ModelPricing
}

// NewAnthropic creates an Anthropic provider with the given API key and model.
func NewAnthropic(apiKey, model string, pricing map[string]ModelPricing) *Anthropic {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	if pricing == nil {
		pricing = DefaultPricing
	}
	return &Anthropic{
		api:     &client,
		model:   anthropic.Model(model),
		pricing: pricing,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

// Generate sends one message to the Anthropic API and returns the text
// content with token usage and cost.
func (a *Anthropic) Generate(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	start := time.Now()
	msg, err := a.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	})
	if err != nil {
		return nil, &Error{Kind: ErrTransient, Provider: a.Name(), Err: fmt.Errorf("anthropic API call: %w", err)}
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, &Error{Kind: ErrTransient, Provider: a.Name(), Err: fmt.Errorf("no text content in API response")}
	}

	usage := TokenUsage{
		Input:  int(msg.Usage.InputTokens),
		Output: int(msg.Usage.OutputTokens),
	}
	if usage.Output == 0 {
		usage.Output = estimateTokens(text)
	}

	return &Response{
		Content: text,
		Model:   string(a.model),
		Usage:   usage,
		Cost:    CallCost(a.pricing, string(a.model), usage),
		Elapsed: time.Since(start),
	}, nil
}
