package storage

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/specforge/specforge/internal/domain"
	"github.com/specforge/specforge/internal/ports"
)

// CachedStore wraps a repository with TTL-bounded LRU caches for document
// reads. Writes go straight through and invalidate the cached copy, so a
// read after a write always sees the stored version. List, search, and
// history reads are never cached; they must reflect the store directly.
type CachedStore struct {
	inner ports.DocumentRepository

	brds *expirable.LRU[string, *domain.BRDDocument]
	prds *expirable.LRU[string, *domain.PRDDocument]
}

// NewCachedStore wraps inner with caches holding up to size documents per
// type, each expiring after ttl.
func NewCachedStore(inner ports.DocumentRepository, size int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		inner: inner,
		brds:  expirable.NewLRU[string, *domain.BRDDocument](size, nil, ttl),
		prds:  expirable.NewLRU[string, *domain.PRDDocument](size, nil, ttl),
	}
}

// SaveBRD writes through and drops the cached copy.
func (c *CachedStore) SaveBRD(ctx context.Context, doc *domain.BRDDocument) error {
	if err := c.inner.SaveBRD(ctx, doc); err != nil {
		return err
	}
	c.brds.Remove(doc.DocumentID)
	return nil
}

// SavePRD writes through and drops the cached copy.
func (c *CachedStore) SavePRD(ctx context.Context, doc *domain.PRDDocument) error {
	if err := c.inner.SavePRD(ctx, doc); err != nil {
		return err
	}
	c.prds.Remove(doc.DocumentID)
	return nil
}

// GetBRD serves from cache when possible.
func (c *CachedStore) GetBRD(ctx context.Context, documentID string) (*domain.BRDDocument, error) {
	if doc, ok := c.brds.Get(documentID); ok {
		return doc, nil
	}
	doc, err := c.inner.GetBRD(ctx, documentID)
	if err != nil {
		return nil, err
	}
	c.brds.Add(documentID, doc)
	return doc, nil
}

// GetPRD serves from cache when possible.
func (c *CachedStore) GetPRD(ctx context.Context, documentID string) (*domain.PRDDocument, error) {
	if doc, ok := c.prds.Get(documentID); ok {
		return doc, nil
	}
	doc, err := c.inner.GetPRD(ctx, documentID)
	if err != nil {
		return nil, err
	}
	c.prds.Add(documentID, doc)
	return doc, nil
}

func (c *CachedStore) ListDocuments(ctx context.Context, filter ports.ListFilter) ([]domain.DocumentSummary, error) {
	return c.inner.ListDocuments(ctx, filter)
}

func (c *CachedStore) SearchDocuments(ctx context.Context, filter ports.ListFilter) ([]domain.DocumentSummary, error) {
	return c.inner.SearchDocuments(ctx, filter)
}

// DeleteDocument deletes through and drops any cached copy.
func (c *CachedStore) DeleteDocument(ctx context.Context, documentID string) error {
	if err := c.inner.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	c.brds.Remove(documentID)
	c.prds.Remove(documentID)
	return nil
}

func (c *CachedStore) SaveHistory(ctx context.Context, entry domain.HistoryEntry) error {
	return c.inner.SaveHistory(ctx, entry)
}

func (c *CachedStore) GetHistory(ctx context.Context, documentID string) ([]domain.HistoryEntry, error) {
	return c.inner.GetHistory(ctx, documentID)
}

func (c *CachedStore) SaveValidationResult(ctx context.Context, result domain.ValidationResult) error {
	return c.inner.SaveValidationResult(ctx, result)
}

func (c *CachedStore) GetValidationResult(ctx context.Context, documentID string) (*domain.ValidationResult, error) {
	return c.inner.GetValidationResult(ctx, documentID)
}

func (c *CachedStore) GetLinkedPRDs(ctx context.Context, brdID string) ([]*domain.PRDDocument, error) {
	return c.inner.GetLinkedPRDs(ctx, brdID)
}

var _ ports.DocumentRepository = (*CachedStore)(nil)
