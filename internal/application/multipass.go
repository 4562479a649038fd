package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/specforge/specforge/internal/domain"
	"github.com/specforge/specforge/internal/ports"
)

// BudgetPolicy decides how a multi-pass run spends the request's cost
// ceiling across its phases.
type BudgetPolicy string

const (
	// BudgetUnconstrained leaves the full ceiling on every phase; the
	// run as a whole may spend up to three times a single-pass budget.
	BudgetUnconstrained BudgetPolicy = "unconstrained"
	// BudgetEqualSplit divides the ceiling evenly across the phases so
	// the combined spend stays within the original ceiling.
	BudgetEqualSplit BudgetPolicy = "equal_split"
)

// multiPassLabel is the composite provider name stamped on combined cost
// records.
const multiPassLabel = "multi-pass"

// phase is one step of the draft, refine, polish chain.
type phase struct {
	name         string
	provider     string
	instructions string
}

// multiPassPhases is the fixed provider chain: a cheap fast draft, a
// structural refinement, and a final polish by the strongest model.
var multiPassPhases = []phase{
	{
		name:         "draft",
		provider:     "google",
		instructions: "Produce a complete first draft covering every required field.",
	},
	{
		name:         "refine",
		provider:     "openai",
		instructions: "Improve structure and completeness. Fill thin sections with specific, measurable detail and remove repetition.",
	},
	{
		name:         "polish",
		provider:     "anthropic",
		instructions: "Polish the language for an executive audience. Tighten wording, resolve inconsistencies, and sharpen every metric.",
	},
}

// MultiPassGenerator chains several providers over one request: each phase
// rewrites the previous phase's document under new instructions. Any phase
// failure aborts the whole run; there is no partial result.
type MultiPassGenerator struct {
	registry ProviderRegistry
	policy   BudgetPolicy
	logger   zerolog.Logger
}

// MultiPassOption customizes a multi-pass generator.
type MultiPassOption func(*MultiPassGenerator)

// WithBudgetPolicy sets how the cost ceiling is spread across phases.
func WithBudgetPolicy(policy BudgetPolicy) MultiPassOption {
	return func(m *MultiPassGenerator) { m.policy = policy }
}

// WithMultiPassLogger sets the generator's logger.
func WithMultiPassLogger(logger zerolog.Logger) MultiPassOption {
	return func(m *MultiPassGenerator) { m.logger = logger }
}

// NewMultiPassGenerator creates a multi-pass generator over the registry's
// providers. Phases whose provider has no credential are skipped; at least
// one phase must remain.
func NewMultiPassGenerator(registry ProviderRegistry, opts ...MultiPassOption) (*MultiPassGenerator, error) {
	m := &MultiPassGenerator{
		registry: registry,
		policy:   BudgetUnconstrained,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if len(m.activePhases()) == 0 {
		return nil, fmt.Errorf("multi-pass: no phase provider has credentials")
	}
	return m, nil
}

func (m *MultiPassGenerator) activePhases() []phase {
	var active []phase
	for _, p := range multiPassPhases {
		if m.registry.Available(p.provider) {
			active = append(active, p)
		}
	}
	return active
}

// GenerateBRD runs the phase chain for a BRD. The returned cost record sums
// every phase and carries a per-phase breakdown.
func (m *MultiPassGenerator) GenerateBRD(ctx context.Context, req domain.GenerationRequest) (*domain.BRDDocument, *domain.CostMetadata, error) {
	req = req.Defaulted()
	phases := m.activePhases()

	var (
		doc        *domain.BRDDocument
		phaseCosts []domain.PhaseCost
		models     []string
	)

	for i, p := range phases {
		gen, err := m.registry.Generator(p.provider)
		if err != nil {
			return nil, nil, fmt.Errorf("multi-pass %s phase: %w", p.name, err)
		}

		phaseReq := m.phaseRequest(req, p, serializeBRDPhase(doc))
		next, cost, err := gen.GenerateBRD(ctx, phaseReq)
		if err != nil {
			return nil, nil, fmt.Errorf("multi-pass %s phase (%s): %w", p.name, p.provider, err)
		}

		if i > 0 && doc != nil {
			// Identity and lineage belong to the first draft.
			next.DocumentID = doc.DocumentID
			next.CreatedAt = doc.CreatedAt
		}
		doc = next
		phaseCosts = append(phaseCosts, domain.PhaseCost{Name: p.name, Cost: *cost})
		models = append(models, cost.Model)

		m.logger.Info().
			Str("phase", p.name).
			Str("provider", p.provider).
			Float64("cost", cost.TotalCost).
			Msg("multi-pass phase completed")
	}

	combined := domain.CombineSequential(multiPassLabel, strings.Join(models, "+"), phaseCosts)
	return doc, &combined, nil
}

// GeneratePRD runs the phase chain for a PRD, optionally deriving every
// phase from the same source BRD.
func (m *MultiPassGenerator) GeneratePRD(ctx context.Context, req domain.GenerationRequest, brd *domain.BRDDocument) (*domain.PRDDocument, *domain.CostMetadata, error) {
	req = req.Defaulted()
	phases := m.activePhases()

	var (
		doc        *domain.PRDDocument
		phaseCosts []domain.PhaseCost
		models     []string
	)

	for i, p := range phases {
		gen, err := m.registry.Generator(p.provider)
		if err != nil {
			return nil, nil, fmt.Errorf("multi-pass %s phase: %w", p.name, err)
		}

		phaseReq := m.phaseRequest(req, p, serializePRDPhase(doc))
		next, cost, err := gen.GeneratePRD(ctx, phaseReq, brd)
		if err != nil {
			return nil, nil, fmt.Errorf("multi-pass %s phase (%s): %w", p.name, p.provider, err)
		}

		if i > 0 && doc != nil {
			next.DocumentID = doc.DocumentID
			next.CreatedAt = doc.CreatedAt
		}
		doc = next
		phaseCosts = append(phaseCosts, domain.PhaseCost{Name: p.name, Cost: *cost})
		models = append(models, cost.Model)

		m.logger.Info().
			Str("phase", p.name).
			Str("provider", p.provider).
			Float64("cost", cost.TotalCost).
			Msg("multi-pass phase completed")
	}

	combined := domain.CombineSequential(multiPassLabel, strings.Join(models, "+"), phaseCosts)
	return doc, &combined, nil
}

// phaseRequest builds the request one phase sends to its provider. The
// first phase sees the original idea; later phases see the previous
// document, the phase instructions, and the original idea.
func (m *MultiPassGenerator) phaseRequest(req domain.GenerationRequest, p phase, previous string) domain.GenerationRequest {
	out := req
	if m.policy == BudgetEqualSplit && req.MaxCost > 0 {
		out.MaxCost = req.MaxCost / float64(len(m.activePhases()))
	}

	if previous == "" {
		return out
	}

	var b strings.Builder
	b.WriteString("PREVIOUS DRAFT:\n")
	b.WriteString(previous)
	b.WriteString("\n\nREFINEMENT INSTRUCTIONS:\n")
	b.WriteString(p.instructions)
	b.WriteString("\n\nORIGINAL USER IDEA:\n")
	b.WriteString(req.UserIdea)
	return out.WithIdea(b.String())
}

func serializeBRDPhase(doc *domain.BRDDocument) string {
	if doc == nil {
		return ""
	}
	return serializeBRD(doc)
}

func serializePRDPhase(doc *domain.PRDDocument) string {
	if doc == nil {
		return ""
	}
	return serializePRD(doc)
}

var _ ports.DocumentGenerator = (*MultiPassGenerator)(nil)
