package ports

import (
	"context"

	"github.com/specforge/specforge/internal/domain"
)

// DocumentGenerator produces structured documents from a free-form idea.
// Implementations own provider selection, rate limiting, cost enforcement,
// and repair of malformed model output; callers receive either a document
// that decodes cleanly or an error.
type DocumentGenerator interface {
	// GenerateBRD expands the request's idea into a business requirements
	// document and reports the cost of doing so.
	GenerateBRD(ctx context.Context, req domain.GenerationRequest) (*domain.BRDDocument, *domain.CostMetadata, error)

	// GeneratePRD expands the request's idea into a product requirements
	// document. When brd is non-nil the PRD is derived from it and linked
	// back via the related BRD ID.
	GeneratePRD(ctx context.Context, req domain.GenerationRequest, brd *domain.BRDDocument) (*domain.PRDDocument, *domain.CostMetadata, error)
}

// DocumentValidator scores a generated document's quality.
// Validation never mutates the document.
type DocumentValidator interface {
	ValidateBRD(ctx context.Context, doc *domain.BRDDocument) domain.ValidationResult
	ValidatePRD(ctx context.Context, doc *domain.PRDDocument) domain.ValidationResult
}
