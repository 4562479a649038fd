package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	// GoogleDefaultModel is used when no model is configured.
	GoogleDefaultModel   = "gemini-1.5-pro"
	googleDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

func init() {
	RegisterProviderFactory(ProviderGoogle, newGoogleProvider)
}

// googleProvider implements the CoreLLM interface against the Gemini
// generateContent endpoint. Authentication uses an API key passed as a
// query parameter; the generated text lives at
// candidates[0].content.parts[0].text in the response envelope.
type googleProvider struct {
	BaseProvider
	apiKey          string
	baseURL         string
	httpClient      *http.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googleGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type googleRequest struct {
	Contents          []googleContent        `json:"contents"`
	SystemInstruction *googleContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  googleGenerationConfig `json:"generationConfig"`
}

type googleResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// newGoogleProvider creates a Gemini provider instance, validating the API
// key and endpoint configuration.
func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	baseURL := googleDefaultBaseURL
	if config.BaseURL != "" {
		validated, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		baseURL = validated
	}

	return &googleProvider{
		BaseProvider:    BaseProvider{model: model},
		apiKey:          config.APIKey,
		baseURL:         baseURL,
		httpClient:      &http.Client{Timeout: ValidateTimeout(config.Timeout)},
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: ProviderGoogle},
	}, nil
}

// DoRequest sends a generateContent request to the Gemini API and returns
// the generated content along with token usage.
func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	req := googleRequest{
		Contents: []googleContent{{Role: "user", Parts: []googlePart{{Text: prompt}}}},
		GenerationConfig: googleGenerationConfig{
			Temperature:     options.Temperature,
			MaxOutputTokens: options.MaxTokens,
		},
	}
	if options.System != "" {
		req.SystemInstruction = &googleContent{Parts: []googlePart{{Text: options.System}}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		p.baseURL, options.Model, url.QueryEscape(p.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, 0, p.errorClassifier.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", 0, 0, p.errorClassifier.ClassifyHTTPResponse(resp, string(respBody))
	}

	var apiResp googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", 0, 0, NewProviderError(ProviderGoogle, ErrorTypeInvalidResponse,
			resp.StatusCode, "failed to decode response body", err)
	}

	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", 0, 0, NewProviderError(ProviderGoogle, ErrorTypeInvalidResponse,
			resp.StatusCode, "response contained no candidates", ErrNoResponseChoice)
	}

	content := apiResp.Candidates[0].Content.Parts[0].Text
	tokensIn := p.tokenCounter.GetTokenCount(apiResp.UsageMetadata.PromptTokenCount, prompt)
	tokensOut := p.tokenCounter.GetTokenCount(apiResp.UsageMetadata.CandidatesTokenCount, content)

	return content, tokensIn, tokensOut, nil
}
