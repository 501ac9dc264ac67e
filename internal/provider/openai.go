package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAI is the GPT-backed fallback provider, speaking the OpenAI-compatible
// chat completions API over plain HTTP.
type OpenAI struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	pricing map[string]ModelPricing
}

// NewOpenAI creates an OpenAI provider. An empty baseURL targets the public
// OpenAI endpoint; point it elsewhere for Azure or compatible gateways.
func NewOpenAI(apiKey, model, baseURL string, pricing map[string]ModelPricing) *OpenAI {
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	if pricing == nil {
		pricing = DefaultPricing
	}
	return &OpenAI{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
		pricing: pricing,
	}
}

func (o *OpenAI) Name() string { return "openai" }

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate sends one chat completion request and returns the text content
// with token usage and cost.
func (o *OpenAI) Generate(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := openaiRequest{
		Model: o.model,
		Messages: []openaiMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: ErrPermanent, Provider: o.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: ErrPermanent, Provider: o.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: ErrTransient, Provider: o.Name(), Err: fmt.Errorf("send request: %w", err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Error{Kind: ErrTransient, Provider: o.Name(), Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return nil, &Error{Kind: ErrPermanent, Provider: o.Name(), Err: fmt.Errorf("auth failed (status %d): %s", httpResp.StatusCode, respBody)}
	case httpResp.StatusCode != http.StatusOK:
		return nil, &Error{Kind: ErrTransient, Provider: o.Name(), Err: fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, respBody)}
	}

	var result openaiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &Error{Kind: ErrTransient, Provider: o.Name(), Err: fmt.Errorf("parse response: %w", err)}
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return nil, &Error{Kind: ErrTransient, Provider: o.Name(), Err: fmt.Errorf("empty completion in API response")}
	}

	text := result.Choices[0].Message.Content
	usage := TokenUsage{
		Input:  result.Usage.PromptTokens,
		Output: result.Usage.CompletionTokens,
	}
	if usage.Input == 0 {
		usage.Input = estimateTokens(req.System + req.User)
	}
	if usage.Output == 0 {
		usage.Output = estimateTokens(text)
	}

	return &Response{
		Content: text,
		Model:   o.model,
		Usage:   usage,
		Cost:    CallCost(o.pricing, o.model, usage),
		Elapsed: time.Since(start),
	}, nil
}
