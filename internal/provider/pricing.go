package provider

// ModelPricing holds per-1K-token rates in USD.
type ModelPricing struct {
	Input  float64
	Output float64
}

// DefaultPricing lists the rates for the models the gateway routes to.
// Unknown models cost zero; callers still get the call, just no accounting.
var DefaultPricing = map[string]ModelPricing{
	"claude-sonnet-4-20250514":   {Input: 0.003, Output: 0.015},
	"claude-haiku-4-5-20251001":  {Input: 0.001, Output: 0.005},
	"claude-opus-4-20250514":     {Input: 0.015, Output: 0.075},
	"gpt-4-turbo":                {Input: 0.01, Output: 0.03},
	"gpt-4o":                     {Input: 0.005, Output: 0.015},
}

// CallCost computes the dollar cost of one call against the pricing table.
func CallCost(pricing map[string]ModelPricing, model string, usage TokenUsage) float64 {
	rates, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(usage.Input)/1000*rates.Input + float64(usage.Output)/1000*rates.Output
}

// estimateTokens approximates a token count when the provider response omits
// usage data. Four characters per token is the usual rough cut.
func estimateTokens(text string) int {
	return len(text) / 4
}
