package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specforge/specforge/internal/domain"
	"github.com/specforge/specforge/internal/ports"
)

// phaseGenerator returns a fresh document per call and records each
// request, so tests can inspect the chained prompts.
type phaseGenerator struct {
	mu       sync.Mutex
	name     string
	model    string
	cost     domain.CostMetadata
	err      error
	requests []domain.GenerationRequest
	calls    int
}

func (g *phaseGenerator) GenerateBRD(_ context.Context, req domain.GenerationRequest) (*domain.BRDDocument, *domain.CostMetadata, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	g.calls++
	if g.err != nil {
		return nil, nil, g.err
	}
	doc := sampleBRD()
	doc.DocumentID = fmt.Sprintf("BRD-%06d", 100+g.calls)
	doc.ExecutiveSummary = g.name + " pass output"
	cost := g.cost
	cost.Model = g.model
	return doc, &cost, nil
}

func (g *phaseGenerator) GeneratePRD(_ context.Context, req domain.GenerationRequest, brd *domain.BRDDocument) (*domain.PRDDocument, *domain.CostMetadata, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	g.calls++
	if g.err != nil {
		return nil, nil, g.err
	}
	doc := samplePRD()
	doc.DocumentID = fmt.Sprintf("PRD-%06d", 100+g.calls)
	doc.ProductOverview = g.name + " pass output"
	if brd != nil {
		doc.RelatedBRDID = brd.DocumentID
	}
	cost := g.cost
	cost.Model = g.model
	return doc, &cost, nil
}

type multiPassFixture struct {
	registry *mockRegistry
	google   *phaseGenerator
	openai   *phaseGenerator
	claude   *phaseGenerator
}

func newMultiPassFixture() *multiPassFixture {
	google := &phaseGenerator{name: "draft", model: "gemini-1.5-pro", cost: domain.CostMetadata{Provider: "google", InputTokens: 1000, OutputTokens: 2000, TotalCost: 0.01}}
	openai := &phaseGenerator{name: "refine", model: "gpt-4-turbo-preview", cost: domain.CostMetadata{Provider: "openai", InputTokens: 3000, OutputTokens: 2000, TotalCost: 0.09}}
	claude := &phaseGenerator{name: "polish", model: "claude-3-opus-20240229", cost: domain.CostMetadata{Provider: "anthropic", InputTokens: 5000, OutputTokens: 2000, TotalCost: 0.225}}
	return &multiPassFixture{
		registry: &mockRegistry{
			generators: map[string]ports.DocumentGenerator{
				"google": google, "openai": openai, "anthropic": claude,
			},
			available: map[string]bool{"google": true, "openai": true, "anthropic": true},
		},
		google: google,
		openai: openai,
		claude: claude,
	}
}

func TestMultiPassGenerator_GenerateBRD(t *testing.T) {
	t.Run("runs draft, refine, and polish in order", func(t *testing.T) {
		f := newMultiPassFixture()
		gen, err := NewMultiPassGenerator(f.registry)
		require.NoError(t, err)

		doc, cost, err := gen.GenerateBRD(context.Background(), validRequest(domain.DocumentTypeBRD))
		require.NoError(t, err)

		assert.Equal(t, 1, f.google.calls)
		assert.Equal(t, 1, f.openai.calls)
		assert.Equal(t, 1, f.claude.calls)
		require.NotNil(t, doc)
		assert.Equal(t, "polish pass output", doc.ExecutiveSummary)

		// The draft phase sees the raw idea; later phases see the
		// previous document plus their own instructions.
		assert.NotContains(t, f.google.requests[0].UserIdea, "PREVIOUS DRAFT")
		assert.Contains(t, f.openai.requests[0].UserIdea, "PREVIOUS DRAFT:")
		assert.Contains(t, f.openai.requests[0].UserIdea, "draft pass output")
		assert.Contains(t, f.openai.requests[0].UserIdea, "Improve structure and completeness")
		assert.Contains(t, f.openai.requests[0].UserIdea, "ORIGINAL USER IDEA:")
		assert.Contains(t, f.claude.requests[0].UserIdea, "refine pass output")
		assert.Contains(t, f.claude.requests[0].UserIdea, "Polish the language")

		require.NotNil(t, cost)
		assert.Equal(t, "multi-pass", cost.Provider)
		assert.Equal(t, "gemini-1.5-pro+gpt-4-turbo-preview+claude-3-opus-20240229", cost.Model)
	})

	t.Run("later phases keep the first draft's identity", func(t *testing.T) {
		f := newMultiPassFixture()
		gen, err := NewMultiPassGenerator(f.registry)
		require.NoError(t, err)

		doc, _, err := gen.GenerateBRD(context.Background(), validRequest(domain.DocumentTypeBRD))
		require.NoError(t, err)
		assert.Equal(t, "BRD-000101", doc.DocumentID)
	})

	t.Run("combined cost sums phases with a weighted rate", func(t *testing.T) {
		f := newMultiPassFixture()
		gen, err := NewMultiPassGenerator(f.registry)
		require.NoError(t, err)

		_, cost, err := gen.GenerateBRD(context.Background(), validRequest(domain.DocumentTypeBRD))
		require.NoError(t, err)

		assert.Equal(t, 9000, cost.InputTokens)
		assert.Equal(t, 6000, cost.OutputTokens)
		assert.InDelta(t, 0.325, cost.TotalCost, 1e-9)
		// 0.325 dollars over 15000 tokens is ~0.0217 per 1K.
		assert.InDelta(t, 0.325/15.0, cost.CostPer1KInput, 1e-9)

		require.NotNil(t, cost.Breakdown)
		assert.InDelta(t, 0.01, cost.Breakdown["draft"], 1e-9)
		assert.InDelta(t, 0.09, cost.Breakdown["refine"], 1e-9)
		assert.InDelta(t, 0.225, cost.Breakdown["polish"], 1e-9)
	})

	t.Run("phase failure aborts with no partial result", func(t *testing.T) {
		f := newMultiPassFixture()
		f.openai.err = errors.New("refinement provider down")
		gen, err := NewMultiPassGenerator(f.registry)
		require.NoError(t, err)

		doc, cost, err := gen.GenerateBRD(context.Background(), validRequest(domain.DocumentTypeBRD))
		require.Error(t, err)
		assert.ErrorContains(t, err, "refine")
		assert.Nil(t, doc)
		assert.Nil(t, cost)
		assert.Equal(t, 0, f.claude.calls)
	})

	t.Run("equal split divides the ceiling across phases", func(t *testing.T) {
		f := newMultiPassFixture()
		gen, err := NewMultiPassGenerator(f.registry, WithBudgetPolicy(BudgetEqualSplit))
		require.NoError(t, err)

		req := validRequest(domain.DocumentTypeBRD)
		req.MaxCost = 3.0
		_, _, err = gen.GenerateBRD(context.Background(), req)
		require.NoError(t, err)

		assert.InDelta(t, 1.0, f.google.requests[0].MaxCost, 1e-9)
		assert.InDelta(t, 1.0, f.openai.requests[0].MaxCost, 1e-9)
		assert.InDelta(t, 1.0, f.claude.requests[0].MaxCost, 1e-9)
	})

	t.Run("unconstrained leaves the full ceiling on every phase", func(t *testing.T) {
		f := newMultiPassFixture()
		gen, err := NewMultiPassGenerator(f.registry)
		require.NoError(t, err)

		req := validRequest(domain.DocumentTypeBRD)
		req.MaxCost = 3.0
		_, _, err = gen.GenerateBRD(context.Background(), req)
		require.NoError(t, err)

		assert.InDelta(t, 3.0, f.openai.requests[0].MaxCost, 1e-9)
	})

	t.Run("skips phases without credentials", func(t *testing.T) {
		f := newMultiPassFixture()
		f.registry.available["google"] = false
		gen, err := NewMultiPassGenerator(f.registry)
		require.NoError(t, err)

		doc, cost, err := gen.GenerateBRD(context.Background(), validRequest(domain.DocumentTypeBRD))
		require.NoError(t, err)

		assert.Equal(t, 0, f.google.calls)
		assert.Equal(t, 1, f.openai.calls)
		assert.Equal(t, 1, f.claude.calls)
		assert.Equal(t, "polish pass output", doc.ExecutiveSummary)

		// The refine phase becomes the opening pass and sees the raw idea.
		assert.NotContains(t, f.openai.requests[0].UserIdea, "PREVIOUS DRAFT")
		assert.Len(t, cost.Breakdown, 2)
	})

	t.Run("requires at least one credentialed phase", func(t *testing.T) {
		f := newMultiPassFixture()
		f.registry.available = map[string]bool{}

		_, err := NewMultiPassGenerator(f.registry)
		assert.ErrorContains(t, err, "no phase provider has credentials")
	})
}

func TestMultiPassGenerator_GeneratePRD(t *testing.T) {
	t.Run("every phase derives from the same BRD", func(t *testing.T) {
		f := newMultiPassFixture()
		gen, err := NewMultiPassGenerator(f.registry)
		require.NoError(t, err)

		brd := sampleBRD()
		doc, cost, err := gen.GeneratePRD(context.Background(), validRequest(domain.DocumentTypePRD), brd)
		require.NoError(t, err)

		require.NotNil(t, doc)
		assert.Equal(t, "BRD-000101", doc.RelatedBRDID)
		assert.Equal(t, "polish pass output", doc.ProductOverview)
		assert.Equal(t, "PRD-000101", doc.DocumentID)
		assert.Equal(t, "multi-pass", cost.Provider)
		assert.Len(t, cost.Breakdown, 3)
	})

	t.Run("standalone PRD chain works without a BRD", func(t *testing.T) {
		f := newMultiPassFixture()
		gen, err := NewMultiPassGenerator(f.registry)
		require.NoError(t, err)

		doc, _, err := gen.GeneratePRD(context.Background(), validRequest(domain.DocumentTypePRD), nil)
		require.NoError(t, err)
		assert.Empty(t, doc.RelatedBRDID)
	})
}
