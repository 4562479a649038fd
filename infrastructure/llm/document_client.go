package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/specforge/specforge/internal/domain"
)

// rateEstimateMultiplier scales the idea length into the token estimate
// handed to the rate window before the full prompt is built.
const rateEstimateMultiplier = 2

// DocumentClient generates structured documents through one provider.
// It owns the full per-call pipeline: rate-window acquisition, prompt
// formatting, the pre-flight cost gate, the provider call, payload
// extraction, normalization, decoding, and cost accounting. A retry
// wrapper around the whole pipeline absorbs transient failures up to the
// configured ceiling.
type DocumentClient struct {
	provider  string
	config    ProviderConfig
	core      CoreLLM
	window    *RateWindow
	estimator TokenEstimator
	logger    zerolog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// DocumentClientOption customizes a document client.
type DocumentClientOption func(*DocumentClient)

// WithClientLogger sets the client's logger.
func WithClientLogger(logger zerolog.Logger) DocumentClientOption {
	return func(c *DocumentClient) { c.logger = logger }
}

// WithTokenEstimator overrides the token estimator used for rate-window
// and cost estimates.
func WithTokenEstimator(estimator TokenEstimator) DocumentClientOption {
	return func(c *DocumentClient) { c.estimator = estimator }
}

// NewDocumentClient creates a document client for one provider. The rate
// window may be shared with other clients of the same provider.
func NewDocumentClient(provider string, config ProviderConfig, core CoreLLM, window *RateWindow, opts ...DocumentClientOption) *DocumentClient {
	c := &DocumentClient{
		provider:  provider,
		config:    config,
		core:      core,
		window:    window,
		estimator: &SimpleTokenEstimator{},
		logger:    zerolog.Nop(),
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the provider name this client generates through.
func (c *DocumentClient) Provider() string { return c.provider }

// GenerateBRD expands the request's idea into a business requirements
// document and reports the cost of doing so.
func (c *DocumentClient) GenerateBRD(ctx context.Context, req domain.GenerationRequest) (*domain.BRDDocument, *domain.CostMetadata, error) {
	prompt := BuildBRDPrompt(req)

	var doc domain.BRDDocument
	cost, err := c.generate(ctx, req, prompt, estimatedBRDOutputTokens, func(fields map[string]any) error {
		repaired := RepairBRDFields(fields)
		return decodeDocument(repaired, &doc)
	})
	if err != nil {
		return nil, nil, err
	}

	stampBRD(&doc, c.now())
	if err := domain.ValidateStruct(&doc); err != nil {
		return nil, nil, NewProviderError(c.provider, ErrorTypeInvalidResponse, 0,
			fmt.Sprintf("generated BRD failed field validation: %v", err), err)
	}
	return &doc, cost, nil
}

// GeneratePRD expands the request's idea into a product requirements
// document. When brd is non-nil the PRD is derived from it and linked back
// via the related BRD ID.
func (c *DocumentClient) GeneratePRD(ctx context.Context, req domain.GenerationRequest, brd *domain.BRDDocument) (*domain.PRDDocument, *domain.CostMetadata, error) {
	prompt := BuildPRDPrompt(req, brd)

	var doc domain.PRDDocument
	cost, err := c.generate(ctx, req, prompt, estimatedPRDOutputTokens, func(fields map[string]any) error {
		repaired := RepairPRDFields(fields)
		return decodeDocument(repaired, &doc)
	})
	if err != nil {
		return nil, nil, err
	}

	stampPRD(&doc, c.now())
	if brd != nil {
		doc.RelatedBRDID = brd.DocumentID
	}
	if err := domain.ValidateStruct(&doc); err != nil {
		return nil, nil, NewProviderError(c.provider, ErrorTypeInvalidResponse, 0,
			fmt.Sprintf("generated PRD failed field validation: %v", err), err)
	}
	return &doc, cost, nil
}

// generate runs the full pipeline for one document under the retry
// wrapper. The decode callback turns the repaired payload into the
// caller's document type.
func (c *DocumentClient) generate(
	ctx context.Context,
	req domain.GenerationRequest,
	prompt string,
	outputHeuristic int,
	decode func(fields map[string]any) error,
) (*domain.CostMetadata, error) {
	var cost *domain.CostMetadata

	err := c.withRetry(ctx, func() error {
		start := c.now()

		// Rate-window admission uses a coarse idea-length estimate; the
		// window delays but never rejects.
		rateEstimate := c.estimator.EstimateTokens(req.UserIdea) * rateEstimateMultiplier
		if err := c.window.Acquire(ctx, rateEstimate); err != nil {
			return err
		}

		inputEstimate := c.estimator.EstimateTokens(prompt)
		estimate := c.config.EstimateCost(inputEstimate, outputHeuristic)
		if req.MaxCost > 0 && estimate > req.MaxCost {
			return NewCostExceededError(c.provider, estimate, req.MaxCost)
		}

		response, tokensIn, tokensOut, err := c.core.DoRequest(ctx, prompt, map[string]any{
			"system":      systemPrompt,
			"max_tokens":  c.config.MaxTokens,
			"temperature": c.config.Temperature,
		})
		if err != nil {
			return err
		}

		fields, err := ExtractJSONPayload(response)
		if err != nil {
			return NewProviderError(c.provider, ErrorTypeInvalidResponse, 0,
				"response text contained no JSON document", err)
		}

		if err := decode(fields); err != nil {
			return NewProviderError(c.provider, ErrorTypeInvalidResponse, 0,
				"repaired payload did not decode into a document", err)
		}

		if tokensIn <= 0 {
			tokensIn = inputEstimate
		}
		if tokensOut <= 0 {
			tokensOut = outputHeuristic
		}

		cost = &domain.CostMetadata{
			Provider:        c.provider,
			Model:           c.core.GetModel(),
			InputTokens:     tokensIn,
			OutputTokens:    tokensOut,
			CostPer1KInput:  c.config.CostPer1KInput,
			CostPer1KOutput: c.config.CostPer1KOutput,
			TotalCost:       c.config.EstimateCost(tokensIn, tokensOut),
			GenerationTime:  c.now().Sub(start),
		}

		c.logger.Info().
			Str("model", cost.Model).
			Int("tokens_in", tokensIn).
			Int("tokens_out", tokensOut).
			Float64("cost", cost.TotalCost).
			Dur("duration", cost.GenerationTime).
			Msg("document generated")

		return nil
	})
	if err != nil {
		return nil, err
	}
	return cost, nil
}

// withRetry executes fn up to MaxRetries times, backing off exponentially
// between attempts. Only transient provider errors are retried; a
// rate-limit error with a provider hint waits at least the hinted delay.
// After the ceiling the last error propagates unchanged.
func (c *DocumentClient) withRetry(ctx context.Context, fn func() error) error {
	maxAttempts := c.config.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryableError(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts-1 {
			break
		}

		delay := c.config.RetryBaseDelay * (1 << attempt)
		var pErr *ProviderError
		if errors.As(lastErr, &pErr) && pErr.RetryAfter > delay {
			delay = pErr.RetryAfter
		}

		c.logger.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("transient provider failure, retrying")

		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// decodeDocument marshals a repaired field map back to JSON and decodes it
// into the target document. Timestamps are stripped first; the client
// stamps them itself so malformed model dates never fail a decode.
func decodeDocument(fields map[string]any, target any) error {
	delete(fields, "created_at")
	delete(fields, "updated_at")
	delete(fields, "created_date")
	delete(fields, "last_modified")
	delete(fields, "usage")

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("re-encode repaired fields: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func stampBRD(doc *domain.BRDDocument, now time.Time) {
	if doc.Version == "" {
		doc.Version = "1.0"
	}
	doc.CreatedAt = now.UTC()
	doc.UpdatedAt = now.UTC()
}

func stampPRD(doc *domain.PRDDocument, now time.Time) {
	if doc.Version == "" {
		doc.Version = "1.0"
	}
	doc.CreatedAt = now.UTC()
	doc.UpdatedAt = now.UTC()
}
