package llm

import (
	"sync"
)

// BaseProvider provides common, thread-safe functionality for all LLM
// providers, primarily for managing the model name.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the name of the model currently configured for the provider.
// It is safe for concurrent use.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel updates the model name for the provider.
// It is safe for concurrent use.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// RequestOptions represents a standardized set of configuration parameters
// for an LLM request, consolidated across providers.
type RequestOptions struct {
	// MaxTokens specifies the maximum number of tokens to generate.
	MaxTokens int
	// Model is the identifier of the language model to use for the request.
	Model string
	// Temperature controls the randomness of the output. A nil value
	// indicates that the provider's default should be used.
	Temperature *float64
	// System provides instructions guiding the model's behavior and
	// response format.
	System string
}

// DefaultMaxTokens is the generation cap applied when callers do not
// specify one.
const DefaultMaxTokens = 4096

// ParseRequestOptions extracts and validates LLM request parameters from a
// map, using provided defaults for any missing or invalid entries.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens: extractInt(opts, "max_tokens", DefaultMaxTokens, IsPositiveInt),
		Model:     extractString(opts, "model", defaultModel, IsNonEmptyString),
		System:    extractString(opts, "system", "", nil),
	}

	if temp := extractFloat64(opts, "temperature", -1, IsValidTemperature); temp != -1 {
		options.Temperature = &temp
	}

	return options
}

func extractInt(opts map[string]any, key string, defaultVal int, valid func(int) bool) int {
	if opts == nil {
		return defaultVal
	}
	val, ok := opts[key].(int)
	if !ok {
		return defaultVal
	}
	if valid != nil && !valid(val) {
		return defaultVal
	}
	return val
}

func extractString(opts map[string]any, key string, defaultVal string, valid func(string) bool) string {
	if opts == nil {
		return defaultVal
	}
	val, ok := opts[key].(string)
	if !ok {
		return defaultVal
	}
	if valid != nil && !valid(val) {
		return defaultVal
	}
	return val
}

func extractFloat64(opts map[string]any, key string, defaultVal float64, valid func(float64) bool) float64 {
	if opts == nil {
		return defaultVal
	}
	val, ok := opts[key].(float64)
	if !ok {
		return defaultVal
	}
	if valid != nil && !valid(val) {
		return defaultVal
	}
	return val
}

// TokenCounter provides a utility for estimating token counts from text
// when an exact tokenizer is not available for a given model.
type TokenCounter struct {
	// CharactersPerToken represents the average number of characters per
	// token. An approximation tuned for English text.
	CharactersPerToken float64
}

// NewTokenCounter creates a new TokenCounter with a default
// character-per-token ratio.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{CharactersPerToken: 4.0}
}

// EstimateTokens calculates an estimated token count for a given string.
func (tc *TokenCounter) EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(float64(len(text)) / tc.CharactersPerToken)
}

// GetTokenCount returns the actual token count if it is available and
// positive, otherwise falls back to estimating from the text.
func (tc *TokenCounter) GetTokenCount(actualCount int, text string) int {
	if actualCount > 0 {
		return actualCount
	}
	return tc.EstimateTokens(text)
}
