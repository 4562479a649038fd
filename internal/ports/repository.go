package ports

import (
	"context"

	"github.com/specforge/specforge/internal/domain"
)

// ListFilter narrows list and search operations over stored documents.
// Zero-valued fields match everything.
type ListFilter struct {
	// Type limits results to one document type when non-empty.
	Type domain.DocumentType
	// Query is a free-text match against titles and summaries. Only
	// search operations consult it.
	Query string
	// Limit caps the number of results; zero means no cap.
	Limit int
	// Offset skips the first N results for paging.
	Offset int
}

// DocumentRepository persists generated documents and their audit trail.
// Implementations must be safe for concurrent use.
//
// Lookups for identifiers that do not exist return
// domain.ErrDocumentNotFound.
type DocumentRepository interface {
	// SaveBRD stores or overwrites a BRD under its document ID.
	SaveBRD(ctx context.Context, doc *domain.BRDDocument) error

	// SavePRD stores or overwrites a PRD under its document ID.
	SavePRD(ctx context.Context, doc *domain.PRDDocument) error

	// GetBRD loads a BRD by document ID.
	GetBRD(ctx context.Context, documentID string) (*domain.BRDDocument, error)

	// GetPRD loads a PRD by document ID.
	GetPRD(ctx context.Context, documentID string) (*domain.PRDDocument, error)

	// ListDocuments returns summaries of stored documents matching the
	// filter, newest first.
	ListDocuments(ctx context.Context, filter ListFilter) ([]domain.DocumentSummary, error)

	// SearchDocuments returns summaries whose title or summary text
	// matches the filter query, newest first.
	SearchDocuments(ctx context.Context, filter ListFilter) ([]domain.DocumentSummary, error)

	// DeleteDocument removes a document and its attached history and
	// validation records.
	DeleteDocument(ctx context.Context, documentID string) error

	// SaveHistory appends one generation event to a document's audit
	// trail.
	SaveHistory(ctx context.Context, entry domain.HistoryEntry) error

	// GetHistory returns a document's audit trail, oldest first.
	GetHistory(ctx context.Context, documentID string) ([]domain.HistoryEntry, error)

	// SaveValidationResult stores the quality review outcome for a
	// document, overwriting any previous result.
	SaveValidationResult(ctx context.Context, result domain.ValidationResult) error

	// GetValidationResult loads the stored quality review for a document.
	GetValidationResult(ctx context.Context, documentID string) (*domain.ValidationResult, error)

	// GetLinkedPRDs returns the PRDs whose related BRD ID points at the
	// given BRD.
	GetLinkedPRDs(ctx context.Context, brdID string) ([]*domain.PRDDocument, error)
}
