package llm

import (
	"time"
)

// Provider names recognized by the registry.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// ProviderConfig holds the full tuning profile for one provider: model,
// pricing, rate ceilings, context window, and retry behavior. A provider
// client takes a snapshot of this struct at construction and never reads
// shared config afterwards.
type ProviderConfig struct {
	// Name identifies the provider (openai, anthropic, google).
	Name string `yaml:"name" validate:"required,oneof=openai anthropic google"`
	// Model is the model identifier sent on every request.
	Model string `yaml:"model" validate:"required"`
	// APIKeyEnv names the environment variable holding the credential.
	APIKeyEnv string `yaml:"api_key_env" validate:"required"`
	// BaseURL overrides the provider's default endpoint. Empty uses the
	// default.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	// MaxTokens caps the generation length requested from the model.
	MaxTokens int `yaml:"max_tokens" validate:"gt=0"`
	// Temperature is the sampling temperature sent on every request.
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`

	// CostPer1KInput and CostPer1KOutput are the dollar rates used for
	// both pre-flight estimates and post-call accounting.
	CostPer1KInput  float64 `yaml:"cost_per_1k_input" validate:"gte=0"`
	CostPer1KOutput float64 `yaml:"cost_per_1k_output" validate:"gte=0"`

	// RequestsPerMinute and TokensPerMinute bound the sliding rate
	// windows.
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"gt=0"`
	TokensPerMinute   int `yaml:"tokens_per_minute" validate:"gt=0"`

	// ContextWindow is the provider's maximum context size in tokens,
	// used for escalation when a request needs more room than the
	// preferred provider offers.
	ContextWindow int `yaml:"context_window" validate:"gt=0"`

	// Timeout bounds each HTTP call.
	Timeout time.Duration `yaml:"timeout"`
	// MaxRetries bounds the retry wrapper around a full generation.
	MaxRetries int `yaml:"max_retries" validate:"gte=0"`
	// RetryBaseDelay seeds the exponential backoff; the delay doubles on
	// each attempt.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
}

// EstimateCost computes the dollar cost of a call from token counts using
// this config's rates. It is monotonically non-decreasing in both arguments.
func (c ProviderConfig) EstimateCost(inputTokens, outputTokens int) float64 {
	inputCost := float64(inputTokens) / 1000 * c.CostPer1KInput
	outputCost := float64(outputTokens) / 1000 * c.CostPer1KOutput
	return inputCost + outputCost
}

// DefaultProviderConfigs returns the built-in tuning profiles for the three
// supported providers. Callers may override individual fields before
// handing the map to a registry.
func DefaultProviderConfigs() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		ProviderOpenAI: {
			Name:              ProviderOpenAI,
			Model:             "gpt-4-turbo-preview",
			APIKeyEnv:         "OPENAI_API_KEY",
			MaxTokens:         4096,
			Temperature:       0.7,
			CostPer1KInput:    0.01,
			CostPer1KOutput:   0.03,
			RequestsPerMinute: 500,
			TokensPerMinute:   150000,
			ContextWindow:     128000,
			Timeout:           60 * time.Second,
			MaxRetries:        3,
			RetryBaseDelay:    time.Second,
		},
		ProviderAnthropic: {
			Name:              ProviderAnthropic,
			Model:             "claude-3-opus-20240229",
			APIKeyEnv:         "ANTHROPIC_API_KEY",
			MaxTokens:         4096,
			Temperature:       0.7,
			CostPer1KInput:    0.015,
			CostPer1KOutput:   0.075,
			RequestsPerMinute: 1000,
			TokensPerMinute:   100000,
			ContextWindow:     200000,
			Timeout:           60 * time.Second,
			MaxRetries:        3,
			RetryBaseDelay:    time.Second,
		},
		ProviderGoogle: {
			Name:              ProviderGoogle,
			Model:             "gemini-1.5-pro",
			APIKeyEnv:         "GEMINI_API_KEY",
			MaxTokens:         8192,
			Temperature:       0.7,
			CostPer1KInput:    0.00125,
			CostPer1KOutput:   0.005,
			RequestsPerMinute: 360,
			TokensPerMinute:   1000000,
			ContextWindow:     1000000,
			Timeout:           60 * time.Second,
			MaxRetries:        3,
			RetryBaseDelay:    time.Second,
		},
	}
}

// Per-complexity (input, output) token buckets used for pre-selection cost
// estimates. These are deliberately coarse; the real cost gate runs per
// request against the actual prompt.
var complexityTokenBuckets = map[string][2]int{
	"simple":   {1000, 2000},
	"moderate": {1500, 3000},
	"complex":  {2000, 4000},
}

// Document output-size heuristics in tokens, used when estimating cost
// before a call whose real output length is unknown.
const (
	estimatedBRDOutputTokens = 2000
	estimatedPRDOutputTokens = 2500
)
