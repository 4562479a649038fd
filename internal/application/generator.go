// Package application orchestrates document generation: provider selection,
// single and multi-pass generation, quality validation, and persistence.
// It depends only on the domain types and the ports; concrete providers,
// stores, and validators are injected at startup.
package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/specforge/specforge/internal/domain"
	"github.com/specforge/specforge/internal/ports"
)

// ideaChunkSize is the character budget for one prompt-sized slice of an
// oversized idea.
const ideaChunkSize = 3000

// ProviderRegistry selects a provider for a task and hands out its document
// generator.
type ProviderRegistry interface {
	// SelectProvider picks a provider from the task's complexity, the
	// caller's cost ceiling, and any required context size.
	SelectProvider(complexity domain.ComplexityLevel, maxCost float64, requiredContextTokens int) (string, error)

	// Generator returns the named provider's document generator.
	Generator(name string) (ports.DocumentGenerator, error)

	// Available reports whether the named provider has a credential.
	Available(name string) bool
}

// GenerationService is the application-level entry point for generating,
// validating, and persisting documents.
type GenerationService struct {
	registry  ProviderRegistry
	repo      ports.DocumentRepository
	validator ports.DocumentValidator
	logger    zerolog.Logger

	now   func() time.Time
	newID func() string

	defaultMaxCost float64
}

// ServiceOption customizes a generation service.
type ServiceOption func(*GenerationService)

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *GenerationService) { s.logger = logger }
}

// WithDefaultMaxCost overrides the built-in dollar ceiling applied to
// requests that do not set one.
func WithDefaultMaxCost(ceiling float64) ServiceOption {
	return func(s *GenerationService) { s.defaultMaxCost = ceiling }
}

// NewGenerationService wires a generation service from its collaborators.
func NewGenerationService(registry ProviderRegistry, repo ports.DocumentRepository, validator ports.DocumentValidator, opts ...ServiceOption) *GenerationService {
	s := &GenerationService{
		registry:  registry,
		repo:      repo,
		validator: validator,
		logger:    zerolog.Nop(),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs one generation request end to end: provider selection,
// document generation (BRD, PRD, or a linked pair), quality validation,
// and persistence. Documents that fail quality validation are returned
// with a failed status but never persisted.
func (s *GenerationService) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error) {
	if req.MaxCost == 0 && s.defaultMaxCost > 0 {
		req.MaxCost = s.defaultMaxCost
	}
	req = req.Defaulted()
	if err := domain.ValidateStruct(&req); err != nil {
		return nil, fmt.Errorf("invalid generation request: %w", err)
	}

	requestID := s.newID()
	start := s.now()
	req, chunked := condenseOversizedIdea(req)

	provider, err := s.registry.SelectProvider(req.Complexity, req.MaxCost, 0)
	if err != nil {
		return nil, err
	}
	gen, err := s.registry.Generator(provider)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("request_id", requestID).
		Str("provider", provider).
		Str("document_type", string(req.DocumentType)).
		Msg("generation started")

	resp := &domain.GenerationResponse{
		RequestID:     requestID,
		Status:        domain.StatusProcessing,
		CostBreakdown: map[string]float64{},
	}

	var brdCost, prdCost *domain.CostMetadata

	if req.DocumentType == domain.DocumentTypeBRD || req.DocumentType == domain.DocumentTypeBoth {
		brd, cost, err := gen.GenerateBRD(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("generate BRD: %w", err)
		}
		resp.BRDDocument = brd
		brdCost = cost
		resp.CostBreakdown["brd_cost"] = cost.TotalCost
	}

	if req.DocumentType == domain.DocumentTypePRD || req.DocumentType == domain.DocumentTypeBoth {
		prd, cost, err := gen.GeneratePRD(ctx, req, resp.BRDDocument)
		if err != nil {
			return nil, fmt.Errorf("generate PRD: %w", err)
		}
		resp.PRDDocument = prd
		prdCost = cost
		resp.CostBreakdown["prd_cost"] = cost.TotalCost
	}

	switch {
	case brdCost != nil && prdCost != nil:
		combined := domain.CombinePair(*brdCost, *prdCost)
		resp.Cost = &combined
	case brdCost != nil:
		resp.Cost = brdCost
	case prdCost != nil:
		resp.Cost = prdCost
	}
	if resp.Cost != nil {
		resp.CostBreakdown["total_cost"] = resp.Cost.TotalCost
	}

	resp.ValidationResults = s.validateDocuments(ctx, resp)
	resp.Metadata = map[string]any{
		"provider":         provider,
		"model":            modelLabel(resp.Cost),
		"duration_seconds": s.now().Sub(start).Seconds(),
		"chunked_input":    chunked,
	}

	for _, result := range resp.ValidationResults {
		if result.Status == domain.ValidationFailed {
			resp.Status = domain.StatusFailed
			resp.ErrorMessage = (&domain.ValidationFailedError{
				DocumentID: result.DocumentID,
				Result:     result,
			}).Error()
			s.logger.Warn().
				Str("request_id", requestID).
				Str("document_id", result.DocumentID).
				Float64("score", result.Score).
				Msg("document failed quality validation, not persisted")
			return resp, nil
		}
	}

	if err := s.persist(ctx, requestID, provider, resp, "generated", nil); err != nil {
		return nil, fmt.Errorf("persist generation: %w", err)
	}

	resp.Status = domain.StatusCompleted
	s.logger.Info().
		Str("request_id", requestID).
		Float64("total_cost", resp.CostBreakdown["total_cost"]).
		Msg("generation completed")
	return resp, nil
}

// Regenerate produces a new version of a stored document, steering the
// rewrite with the caller's improvement instructions. The revised document
// keeps its identifier and bumps its version.
func (s *GenerationService) Regenerate(ctx context.Context, documentID string, improvements []string) (*domain.GenerationResponse, error) {
	switch {
	case strings.HasPrefix(documentID, "BRD-"):
		return s.regenerateBRD(ctx, documentID, improvements)
	case strings.HasPrefix(documentID, "PRD-"):
		return s.regeneratePRD(ctx, documentID, improvements)
	default:
		return nil, fmt.Errorf("unrecognized document id %q: %w", documentID, domain.ErrDocumentNotFound)
	}
}

func (s *GenerationService) regenerateBRD(ctx context.Context, documentID string, improvements []string) (*domain.GenerationResponse, error) {
	existing, err := s.repo.GetBRD(ctx, documentID)
	if err != nil {
		return nil, err
	}

	req := regenerationRequest(existing.Title, serializeBRD(existing), improvements)
	provider, gen, err := s.selectGenerator(req)
	if err != nil {
		return nil, err
	}

	requestID := s.newID()
	doc, cost, err := gen.GenerateBRD(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("regenerate BRD: %w", err)
	}

	doc.DocumentID = existing.DocumentID
	doc.Version = bumpVersion(existing.Version)
	doc.CreatedAt = existing.CreatedAt

	resp := &domain.GenerationResponse{
		RequestID:     requestID,
		Status:        domain.StatusProcessing,
		BRDDocument:   doc,
		Cost:          cost,
		CostBreakdown: map[string]float64{"brd_cost": cost.TotalCost, "total_cost": cost.TotalCost},
	}
	resp.ValidationResults = s.validateDocuments(ctx, resp)
	for _, result := range resp.ValidationResults {
		if result.Status == domain.ValidationFailed {
			resp.Status = domain.StatusFailed
			resp.ErrorMessage = (&domain.ValidationFailedError{DocumentID: result.DocumentID, Result: result}).Error()
			return resp, nil
		}
	}

	if err := s.persist(ctx, requestID, provider, resp, "regenerated", improvements); err != nil {
		return nil, fmt.Errorf("persist regeneration: %w", err)
	}
	resp.Status = domain.StatusCompleted
	return resp, nil
}

func (s *GenerationService) regeneratePRD(ctx context.Context, documentID string, improvements []string) (*domain.GenerationResponse, error) {
	existing, err := s.repo.GetPRD(ctx, documentID)
	if err != nil {
		return nil, err
	}

	req := regenerationRequest(existing.ProductName, serializePRD(existing), improvements)
	req.DocumentType = domain.DocumentTypePRD
	provider, gen, err := s.selectGenerator(req)
	if err != nil {
		return nil, err
	}

	var brd *domain.BRDDocument
	if existing.RelatedBRDID != "" {
		if linked, err := s.repo.GetBRD(ctx, existing.RelatedBRDID); err == nil {
			brd = linked
		}
	}

	requestID := s.newID()
	doc, cost, err := gen.GeneratePRD(ctx, req, brd)
	if err != nil {
		return nil, fmt.Errorf("regenerate PRD: %w", err)
	}

	doc.DocumentID = existing.DocumentID
	doc.Version = bumpVersion(existing.Version)
	doc.CreatedAt = existing.CreatedAt
	doc.RelatedBRDID = existing.RelatedBRDID

	resp := &domain.GenerationResponse{
		RequestID:     requestID,
		Status:        domain.StatusProcessing,
		PRDDocument:   doc,
		Cost:          cost,
		CostBreakdown: map[string]float64{"prd_cost": cost.TotalCost, "total_cost": cost.TotalCost},
	}
	resp.ValidationResults = s.validateDocuments(ctx, resp)
	for _, result := range resp.ValidationResults {
		if result.Status == domain.ValidationFailed {
			resp.Status = domain.StatusFailed
			resp.ErrorMessage = (&domain.ValidationFailedError{DocumentID: result.DocumentID, Result: result}).Error()
			return resp, nil
		}
	}

	if err := s.persist(ctx, requestID, provider, resp, "regenerated", improvements); err != nil {
		return nil, fmt.Errorf("persist regeneration: %w", err)
	}
	resp.Status = domain.StatusCompleted
	return resp, nil
}

func (s *GenerationService) selectGenerator(req domain.GenerationRequest) (string, ports.DocumentGenerator, error) {
	provider, err := s.registry.SelectProvider(req.Complexity, req.MaxCost, 0)
	if err != nil {
		return "", nil, err
	}
	gen, err := s.registry.Generator(provider)
	if err != nil {
		return "", nil, err
	}
	return provider, gen, nil
}

// validateDocuments scores every document carried by the response.
func (s *GenerationService) validateDocuments(ctx context.Context, resp *domain.GenerationResponse) []domain.ValidationResult {
	var results []domain.ValidationResult
	if resp.BRDDocument != nil {
		results = append(results, s.validator.ValidateBRD(ctx, resp.BRDDocument))
	}
	if resp.PRDDocument != nil {
		results = append(results, s.validator.ValidatePRD(ctx, resp.PRDDocument))
	}
	return results
}

// persist stores the documents, their history entries, and their validation
// results. The per-document writes run concurrently; any failure aborts the
// whole persistence step.
func (s *GenerationService) persist(ctx context.Context, requestID, provider string, resp *domain.GenerationResponse, action string, improvements []string) error {
	g, ctx := errgroup.WithContext(ctx)

	if brd := resp.BRDDocument; brd != nil {
		g.Go(func() error { return s.repo.SaveBRD(ctx, brd) })
		g.Go(func() error {
			return s.repo.SaveHistory(ctx, s.historyEntry(requestID, provider, brd.DocumentID, action, resp.Cost, improvements))
		})
	}
	if prd := resp.PRDDocument; prd != nil {
		g.Go(func() error { return s.repo.SavePRD(ctx, prd) })
		g.Go(func() error {
			return s.repo.SaveHistory(ctx, s.historyEntry(requestID, provider, prd.DocumentID, action, resp.Cost, improvements))
		})
	}
	for _, result := range resp.ValidationResults {
		g.Go(func() error { return s.repo.SaveValidationResult(ctx, result) })
	}

	return g.Wait()
}

func (s *GenerationService) historyEntry(requestID, provider, documentID, action string, cost *domain.CostMetadata, improvements []string) domain.HistoryEntry {
	entry := domain.HistoryEntry{
		EntryID:      s.newID(),
		DocumentID:   documentID,
		RequestID:    requestID,
		Action:       action,
		Provider:     provider,
		CreatedAt:    s.now().UTC(),
		Improvements: improvements,
	}
	if cost != nil {
		entry.Model = cost.Model
		entry.Cost = cost.TotalCost
		entry.Tokens = cost.TotalTokens()
		entry.Duration = cost.GenerationTime
	}
	return entry
}

// condenseOversizedIdea splits an idea past the chunk budget: the first
// chunk stays as the idea and the remainder travels as additional context,
// so no part of the input is silently dropped.
func condenseOversizedIdea(req domain.GenerationRequest) (domain.GenerationRequest, bool) {
	if len(req.UserIdea) <= ideaChunkSize {
		return req, false
	}

	head := req.UserIdea[:ideaChunkSize]
	rest := req.UserIdea[ideaChunkSize:]

	if req.AdditionalContext == nil {
		req.AdditionalContext = map[string]any{}
	} else {
		copied := make(map[string]any, len(req.AdditionalContext)+1)
		for k, v := range req.AdditionalContext {
			copied[k] = v
		}
		req.AdditionalContext = copied
	}
	req.AdditionalContext["idea_continuation"] = rest
	return req.WithIdea(head), true
}

func modelLabel(cost *domain.CostMetadata) string {
	if cost == nil {
		return ""
	}
	return cost.Model
}

func bumpVersion(version string) string {
	if version == "" {
		return "1.1"
	}
	var major, minor int
	if _, err := fmt.Sscanf(version, "%d.%d", &major, &minor); err != nil {
		return "1.1"
	}
	return fmt.Sprintf("%d.%d", major, minor+1)
}

func regenerationRequest(title, serialized string, improvements []string) domain.GenerationRequest {
	var b strings.Builder
	fmt.Fprintf(&b, "Revise the document %q.\n\nCURRENT DOCUMENT:\n", title)
	b.WriteString(serialized)
	b.WriteString("\n\nIMPROVEMENTS REQUESTED:\n")
	for _, imp := range improvements {
		b.WriteString("- ")
		b.WriteString(imp)
		b.WriteString("\n")
	}

	return domain.GenerationRequest{
		UserIdea: b.String(),
	}.Defaulted()
}

func serializeBRD(doc *domain.BRDDocument) string {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return doc.Title
	}
	return string(raw)
}

func serializePRD(doc *domain.PRDDocument) string {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return doc.ProductName
	}
	return string(raw)
}
