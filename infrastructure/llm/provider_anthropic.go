package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	// AnthropicDefaultModel is used when no model is configured.
	AnthropicDefaultModel   = "claude-3-opus-20240229"
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicAPIVersion     = "2023-06-01"
)

func init() {
	RegisterProviderFactory(ProviderAnthropic, newAnthropicProvider)
}

// anthropicProvider implements the CoreLLM interface against Anthropic's
// messages endpoint. Authentication uses the x-api-key header plus a
// version header; the generated text lives at content[0].text in the
// response envelope.
type anthropicProvider struct {
	BaseProvider
	apiKey          string
	baseURL         string
	httpClient      *http.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// newAnthropicProvider creates an Anthropic provider instance, validating
// the API key and endpoint configuration.
func newAnthropicProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	baseURL := anthropicDefaultBaseURL
	if config.BaseURL != "" {
		validated, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		baseURL = validated
	}

	return &anthropicProvider{
		BaseProvider:    BaseProvider{model: model},
		apiKey:          config.APIKey,
		baseURL:         baseURL,
		httpClient:      &http.Client{Timeout: ValidateTimeout(config.Timeout)},
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: ProviderAnthropic},
	}, nil
}

// DoRequest sends a messages request to the Anthropic API and returns the
// generated content along with token usage.
func (p *anthropicProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	body, err := json.Marshal(anthropicRequest{
		Model:       options.Model,
		MaxTokens:   options.MaxTokens,
		System:      options.System,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		Temperature: options.Temperature,
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, 0, p.errorClassifier.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", 0, 0, p.errorClassifier.ClassifyHTTPResponse(resp, string(respBody))
	}

	var apiResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", 0, 0, NewProviderError(ProviderAnthropic, ErrorTypeInvalidResponse,
			resp.StatusCode, "failed to decode response body", err)
	}

	if len(apiResp.Content) == 0 {
		return "", 0, 0, NewProviderError(ProviderAnthropic, ErrorTypeInvalidResponse,
			resp.StatusCode, "response contained no content blocks", ErrNoResponseChoice)
	}

	content := apiResp.Content[0].Text
	tokensIn := p.tokenCounter.GetTokenCount(apiResp.Usage.InputTokens, prompt)
	tokensOut := p.tokenCounter.GetTokenCount(apiResp.Usage.OutputTokens, content)

	return content, tokensIn, tokensOut, nil
}
