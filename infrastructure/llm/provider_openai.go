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
	// OpenAIDefaultModel is used when no model is configured.
	OpenAIDefaultModel   = "gpt-4-turbo-preview"
	openAIDefaultBaseURL = "https://api.openai.com/v1"
)

func init() {
	RegisterProviderFactory(ProviderOpenAI, newOpenAIProvider)
}

// openAIProvider implements the CoreLLM interface against OpenAI's chat
// completions endpoint. Authentication uses a bearer token; the generated
// text lives at choices[0].message.content in the response envelope.
type openAIProvider struct {
	BaseProvider
	apiKey          string
	baseURL         string
	httpClient      *http.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// newOpenAIProvider creates an OpenAI provider instance, validating the
// API key and endpoint configuration.
func newOpenAIProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	baseURL := openAIDefaultBaseURL
	if config.BaseURL != "" {
		validated, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		baseURL = validated
	}

	return &openAIProvider{
		BaseProvider:    BaseProvider{model: model},
		apiKey:          config.APIKey,
		baseURL:         baseURL,
		httpClient:      &http.Client{Timeout: ValidateTimeout(config.Timeout)},
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: ProviderOpenAI},
	}, nil
}

// DoRequest sends a chat completion request to the OpenAI API and returns
// the generated content along with token usage.
func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	messages := make([]openAIMessage, 0, 2)
	if options.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: options.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(openAIRequest{
		Model:       options.Model,
		Messages:    messages,
		MaxTokens:   options.MaxTokens,
		Temperature: options.Temperature,
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, 0, p.errorClassifier.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", 0, 0, p.errorClassifier.ClassifyHTTPResponse(resp, string(respBody))
	}

	var apiResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", 0, 0, NewProviderError(ProviderOpenAI, ErrorTypeInvalidResponse,
			resp.StatusCode, "failed to decode response body", err)
	}

	if len(apiResp.Choices) == 0 {
		return "", 0, 0, NewProviderError(ProviderOpenAI, ErrorTypeInvalidResponse,
			resp.StatusCode, "response contained no choices", ErrNoResponseChoice)
	}

	content := apiResp.Choices[0].Message.Content
	tokensIn := p.tokenCounter.GetTokenCount(apiResp.Usage.PromptTokens, prompt)
	tokensOut := p.tokenCounter.GetTokenCount(apiResp.Usage.CompletionTokens, content)

	return content, tokensIn, tokensOut, nil
}
