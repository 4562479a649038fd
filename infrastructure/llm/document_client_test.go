package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specforge/specforge/internal/domain"
)

const validBRDResponse = `{
	"document_id": "BRD-000042",
	"title": "Inventory Tracker",
	"executive_summary": "A system for tracking warehouse inventory in real time.",
	"business_context": "Manual stock counts cause fulfillment errors.",
	"problem_statement": "Warehouse staff cannot see accurate stock levels.",
	"objectives": [
		{"objective_id": "OBJ-001", "description": "Reduce stockouts", "success_criteria": ["Stockouts below 1%"], "priority": "high"}
	],
	"stakeholders": [
		{"name": "Warehouse Manager", "role": "operations", "interest_level": "high", "influence_level": "medium"}
	],
	"success_metrics": ["Stockout rate", "Count accuracy"]
}`

const validPRDResponse = `{
	"document_id": "PRD-000042",
	"product_name": "Inventory Tracker",
	"product_overview": "Real-time stock visibility for warehouse teams.",
	"user_stories": [
		{"story_id": "US-001", "story": "As a picker, I want live stock levels so that I avoid empty bins.", "acceptance_criteria": ["Levels refresh within 5 seconds"], "priority": "high"}
	]
}`

func testProviderConfig() ProviderConfig {
	return ProviderConfig{
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
		Timeout:           time.Second,
		MaxRetries:        3,
		RetryBaseDelay:    time.Millisecond,
	}
}

func testRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		UserIdea: "A warehouse inventory tracking system with real-time stock visibility for pickers and managers.",
		MaxCost:  2.0,
	}.Defaulted()
}

// newTestClient builds a client whose retry sleeps are recorded instead of
// executed.
func newTestClient(t *testing.T, cfg ProviderConfig, mock *MockCoreLLM) (*DocumentClient, *[]time.Duration) {
	t.Helper()
	client := NewDocumentClient(cfg.Name, cfg, mock, NewRateWindow(cfg.RequestsPerMinute, cfg.TokensPerMinute))

	var slept []time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return client, &slept
}

func TestDocumentClient_GenerateBRD(t *testing.T) {
	t.Run("decodes and stamps a valid response", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Response = validBRDResponse
		mock.TokensIn = 1200
		mock.TokensOut = 900

		cfg := testProviderConfig()
		client, _ := newTestClient(t, cfg, mock)
		fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		client.now = func() time.Time { return fixed }

		doc, cost, err := client.GenerateBRD(context.Background(), testRequest())
		require.NoError(t, err)

		assert.Equal(t, "BRD-000042", doc.DocumentID)
		assert.Equal(t, "Inventory Tracker", doc.Title)
		assert.Equal(t, "1.0", doc.Version)
		assert.Equal(t, fixed, doc.CreatedAt)
		assert.Equal(t, fixed, doc.UpdatedAt)

		require.NotNil(t, cost)
		assert.Equal(t, ProviderOpenAI, cost.Provider)
		assert.Equal(t, 1200, cost.InputTokens)
		assert.Equal(t, 900, cost.OutputTokens)
		assert.InDelta(t, 1.2/1000*10+0.9/1000*30, cost.TotalCost, 1e-9)
	})

	t.Run("passes system prompt and generation options to the core", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Response = validBRDResponse

		client, _ := newTestClient(t, testProviderConfig(), mock)
		_, _, err := client.GenerateBRD(context.Background(), testRequest())
		require.NoError(t, err)

		assert.Contains(t, mock.LastPrompt, "warehouse inventory")
		assert.Equal(t, systemPrompt, mock.LastOpts["system"])
		assert.Equal(t, 4096, mock.LastOpts["max_tokens"])
		assert.Equal(t, 0.7, mock.LastOpts["temperature"])
	})

	t.Run("falls back to estimates when usage is missing", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Response = validBRDResponse
		mock.TokensIn = 0
		mock.TokensOut = 0

		client, _ := newTestClient(t, testProviderConfig(), mock)
		_, cost, err := client.GenerateBRD(context.Background(), testRequest())
		require.NoError(t, err)

		assert.Greater(t, cost.InputTokens, 0)
		assert.Equal(t, estimatedBRDOutputTokens, cost.OutputTokens)
	})

	t.Run("fails before calling the provider when the estimate exceeds the ceiling", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Response = validBRDResponse

		req := testRequest()
		req.MaxCost = 0.01

		client, slept := newTestClient(t, testProviderConfig(), mock)
		_, _, err := client.GenerateBRD(context.Background(), req)

		var pErr *ProviderError
		require.ErrorAs(t, err, &pErr)
		assert.Equal(t, ErrorTypeCostExceeded, pErr.Type)
		assert.Equal(t, 0, mock.GetCallCount())
		assert.Empty(t, *slept)
	})

	t.Run("normalizes a malformed but recoverable response", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Response = "```json\n" + `{
			"document_id": "brd 7",
			"project_name": "Recovered Project",
			"problem": "The old tool is unusable.",
			"objectives": [
				{"id": "1", "description": "Ship it", "success_criteria": "Launched"}
			],
			"stakeholders": [
				{"name": "Sponsor", "interest_influence": "high"}
			]
		}` + "\n```"

		client, _ := newTestClient(t, testProviderConfig(), mock)
		doc, _, err := client.GenerateBRD(context.Background(), testRequest())
		require.NoError(t, err)

		assert.Equal(t, "BRD-000007", doc.DocumentID)
		assert.Equal(t, "Recovered Project", doc.Title)
		assert.Equal(t, "The old tool is unusable.", doc.ProblemStatement)
		assert.Equal(t, "OBJ-001", doc.Objectives[0].ObjectiveID)
		assert.Equal(t, []string{"Launched"}, doc.Objectives[0].SuccessCriteria)
		assert.Equal(t, "high", doc.Stakeholders[0].InterestLevel)
		assert.Equal(t, "high", doc.Stakeholders[0].InfluenceLevel)
	})

	t.Run("returns invalid response when validation fails after repair", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Response = strings.Replace(validBRDResponse, `"interest_level": "high"`, `"interest_level": "ultra"`, 1)

		client, _ := newTestClient(t, testProviderConfig(), mock)
		_, _, err := client.GenerateBRD(context.Background(), testRequest())

		var pErr *ProviderError
		require.ErrorAs(t, err, &pErr)
		assert.Equal(t, ErrorTypeInvalidResponse, pErr.Type)
		assert.Contains(t, pErr.Message, "InterestLevel")
		assert.Equal(t, 1, mock.GetCallCount())
	})
}

func TestDocumentClient_GeneratePRD(t *testing.T) {
	t.Run("links the PRD back to the source BRD", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Response = validPRDResponse

		brd := &domain.BRDDocument{
			DocumentID: "BRD-000042",
			Title:      "Inventory Tracker",
			Objectives: []domain.BusinessObjective{
				{ObjectiveID: "OBJ-001", Description: "Reduce stockouts", SuccessCriteria: []string{"x"}},
			},
		}

		client, _ := newTestClient(t, testProviderConfig(), mock)
		doc, _, err := client.GeneratePRD(context.Background(), testRequest(), brd)
		require.NoError(t, err)

		assert.Equal(t, "PRD-000042", doc.DocumentID)
		assert.Equal(t, "BRD-000042", doc.RelatedBRDID)
		assert.Contains(t, mock.LastPrompt, "Reduce stockouts")
	})

	t.Run("generates standalone without a BRD link", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Response = validPRDResponse

		client, _ := newTestClient(t, testProviderConfig(), mock)
		doc, _, err := client.GeneratePRD(context.Background(), testRequest(), nil)
		require.NoError(t, err)
		assert.Empty(t, doc.RelatedBRDID)
	})
}

func TestDocumentClient_Retry(t *testing.T) {
	t.Run("retries transient failures and succeeds", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Response = validBRDResponse
		mock.FailUntilAttempt = 2

		client, slept := newTestClient(t, testProviderConfig(), mock)
		_, _, err := client.GenerateBRD(context.Background(), testRequest())

		require.NoError(t, err)
		assert.Equal(t, 3, mock.GetCallCount())
		require.Len(t, *slept, 2)
		assert.Equal(t, time.Millisecond, (*slept)[0])
		assert.Equal(t, 2*time.Millisecond, (*slept)[1])
	})

	t.Run("propagates the last error after the retry ceiling", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Response = validBRDResponse
		mock.FailUntilAttempt = 10

		client, slept := newTestClient(t, testProviderConfig(), mock)
		_, _, err := client.GenerateBRD(context.Background(), testRequest())

		var pErr *ProviderError
		require.ErrorAs(t, err, &pErr)
		assert.Equal(t, ErrorTypeConnection, pErr.Type)
		assert.Equal(t, 3, mock.GetCallCount())
		assert.Len(t, *slept, 2)
	})

	t.Run("does not retry terminal errors", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Error = NewProviderError(ProviderOpenAI, ErrorTypeAuthentication, 401, "bad credential", nil)

		client, slept := newTestClient(t, testProviderConfig(), mock)
		_, _, err := client.GenerateBRD(context.Background(), testRequest())

		require.Error(t, err)
		assert.Equal(t, 1, mock.GetCallCount())
		assert.Empty(t, *slept)
	})

	t.Run("honors a rate limit retry hint over the backoff", func(t *testing.T) {
		hinted := NewProviderError(ProviderOpenAI, ErrorTypeRateLimit, 429, "slow down", nil)
		hinted.RetryAfter = 5 * time.Second

		mock := NewMockCoreLLM()
		mock.Response = validBRDResponse
		mock.Error = hinted
		mock.FailUntilAttempt = 1

		client, slept := newTestClient(t, testProviderConfig(), mock)
		_, _, err := client.GenerateBRD(context.Background(), testRequest())

		require.NoError(t, err)
		require.Len(t, *slept, 1)
		assert.Equal(t, 5*time.Second, (*slept)[0])
	})

	t.Run("retries an unparseable response then succeeds", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Responses = []string{"I am sorry, I cannot do that.", validBRDResponse}

		client, _ := newTestClient(t, testProviderConfig(), mock)
		doc, _, err := client.GenerateBRD(context.Background(), testRequest())

		require.NoError(t, err)
		assert.Equal(t, "BRD-000042", doc.DocumentID)
		assert.Equal(t, 2, mock.GetCallCount())
	})

	t.Run("single attempt when retries are disabled", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.FailUntilAttempt = 10

		cfg := testProviderConfig()
		cfg.MaxRetries = 0

		client, _ := newTestClient(t, cfg, mock)
		_, _, err := client.GenerateBRD(context.Background(), testRequest())

		require.Error(t, err)
		assert.Equal(t, 1, mock.GetCallCount())
	})
}
