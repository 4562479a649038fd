// Package storage provides the document repository implementations: a
// filesystem JSON store, a Postgres store, and an in-memory caching
// decorator that can wrap either.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/specforge/specforge/internal/domain"
	"github.com/specforge/specforge/internal/ports"
)

// Subdirectories of the store root, one per record kind.
const (
	brdDir        = "brd"
	prdDir        = "prd"
	historyDir    = "history"
	validationDir = "validation"
)

// FileStore persists documents as pretty-printed JSON files under a root
// directory, one file per document keyed by document ID. A process-wide
// mutex serializes writes; reads of distinct files can proceed together.
type FileStore struct {
	root   string
	logger zerolog.Logger
	mu     sync.RWMutex
}

// FileStoreOption customizes a file store.
type FileStoreOption func(*FileStore)

// WithFileStoreLogger sets the store's logger.
func WithFileStoreLogger(logger zerolog.Logger) FileStoreOption {
	return func(s *FileStore) { s.logger = logger }
}

// NewFileStore creates the store's directory layout under root and returns
// a ready store.
func NewFileStore(root string, opts ...FileStoreOption) (*FileStore, error) {
	s := &FileStore{root: root, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	for _, dir := range []string{brdDir, prdDir, historyDir, validationDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", dir, err)
		}
	}
	return s, nil
}

// SaveBRD stores or overwrites a BRD under its document ID.
func (s *FileStore) SaveBRD(_ context.Context, doc *domain.BRDDocument) error {
	return s.writeJSON(filepath.Join(brdDir, doc.DocumentID+".json"), doc)
}

// SavePRD stores or overwrites a PRD under its document ID.
func (s *FileStore) SavePRD(_ context.Context, doc *domain.PRDDocument) error {
	return s.writeJSON(filepath.Join(prdDir, doc.DocumentID+".json"), doc)
}

// GetBRD loads a BRD by document ID.
func (s *FileStore) GetBRD(_ context.Context, documentID string) (*domain.BRDDocument, error) {
	var doc domain.BRDDocument
	if err := s.readJSON(filepath.Join(brdDir, documentID+".json"), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetPRD loads a PRD by document ID.
func (s *FileStore) GetPRD(_ context.Context, documentID string) (*domain.PRDDocument, error) {
	var doc domain.PRDDocument
	if err := s.readJSON(filepath.Join(prdDir, documentID+".json"), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns summaries of stored documents matching the filter,
// newest first.
func (s *FileStore) ListDocuments(ctx context.Context, filter ports.ListFilter) ([]domain.DocumentSummary, error) {
	summaries, err := s.collectSummaries(ctx, filter.Type)
	if err != nil {
		return nil, err
	}
	return page(summaries, filter), nil
}

// SearchDocuments returns summaries whose title matches the filter query,
// case-insensitively, newest first.
func (s *FileStore) SearchDocuments(ctx context.Context, filter ports.ListFilter) ([]domain.DocumentSummary, error) {
	summaries, err := s.collectSummaries(ctx, filter.Type)
	if err != nil {
		return nil, err
	}

	if q := strings.ToLower(filter.Query); q != "" {
		matched := summaries[:0]
		for _, sum := range summaries {
			if strings.Contains(strings.ToLower(sum.Title), q) {
				matched = append(matched, sum)
			}
		}
		summaries = matched
	}
	return page(summaries, filter), nil
}

// DeleteDocument removes a document together with its history and
// validation records. Deleting an unknown ID returns
// domain.ErrDocumentNotFound.
func (s *FileStore) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docPath := filepath.Join(s.root, documentDir(documentID), documentID+".json")
	if err := os.Remove(docPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrDocumentNotFound
		}
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}

	// Attached records are best-effort; the document itself is gone.
	_ = os.Remove(filepath.Join(s.root, historyDir, documentID+".json"))
	_ = os.Remove(filepath.Join(s.root, validationDir, documentID+".json"))

	s.logger.Debug().Str("document_id", documentID).Msg("document deleted")
	return nil
}

// SaveHistory appends one entry to the document's audit trail file.
func (s *FileStore) SaveHistory(_ context.Context, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel := filepath.Join(historyDir, entry.DocumentID+".json")
	var entries []domain.HistoryEntry
	if err := s.readJSONLocked(rel, &entries); err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		return err
	}
	entries = append(entries, entry)
	return s.writeJSONLocked(rel, entries)
}

// GetHistory returns the document's audit trail, oldest first. A document
// with no recorded history yields an empty slice, not an error.
func (s *FileStore) GetHistory(_ context.Context, documentID string) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	err := s.readJSON(filepath.Join(historyDir, documentID+".json"), &entries)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveValidationResult stores the quality review for a document,
// overwriting any previous result.
func (s *FileStore) SaveValidationResult(_ context.Context, result domain.ValidationResult) error {
	return s.writeJSON(filepath.Join(validationDir, result.DocumentID+".json"), result)
}

// GetValidationResult loads the stored quality review for a document.
func (s *FileStore) GetValidationResult(_ context.Context, documentID string) (*domain.ValidationResult, error) {
	var result domain.ValidationResult
	if err := s.readJSON(filepath.Join(validationDir, documentID+".json"), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetLinkedPRDs returns the PRDs whose related BRD ID points at the given
// BRD.
func (s *FileStore) GetLinkedPRDs(ctx context.Context, brdID string) ([]*domain.PRDDocument, error) {
	s.mu.RLock()
	names, err := listJSONFiles(filepath.Join(s.root, prdDir))
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var linked []*domain.PRDDocument
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := s.GetPRD(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		if doc.RelatedBRDID == brdID {
			linked = append(linked, doc)
		}
	}
	return linked, nil
}

func (s *FileStore) collectSummaries(ctx context.Context, docType domain.DocumentType) ([]domain.DocumentSummary, error) {
	var summaries []domain.DocumentSummary

	if docType == "" || docType == domain.DocumentTypeBRD {
		brds, err := s.brdSummaries(ctx)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, brds...)
	}
	if docType == "" || docType == domain.DocumentTypePRD {
		prds, err := s.prdSummaries(ctx)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, prds...)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func (s *FileStore) brdSummaries(ctx context.Context) ([]domain.DocumentSummary, error) {
	s.mu.RLock()
	names, err := listJSONFiles(filepath.Join(s.root, brdDir))
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var out []domain.DocumentSummary
	for _, name := range names {
		doc, err := s.GetBRD(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.logger.Warn().Str("file", name).Err(err).Msg("skipping unreadable BRD")
			continue
		}
		out = append(out, domain.DocumentSummary{
			DocumentID: doc.DocumentID,
			Type:       domain.DocumentTypeBRD,
			Title:      doc.Title,
			Version:    doc.Version,
			CreatedAt:  doc.CreatedAt,
			UpdatedAt:  doc.UpdatedAt,
		})
	}
	return out, nil
}

func (s *FileStore) prdSummaries(ctx context.Context) ([]domain.DocumentSummary, error) {
	s.mu.RLock()
	names, err := listJSONFiles(filepath.Join(s.root, prdDir))
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var out []domain.DocumentSummary
	for _, name := range names {
		doc, err := s.GetPRD(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.logger.Warn().Str("file", name).Err(err).Msg("skipping unreadable PRD")
			continue
		}
		out = append(out, domain.DocumentSummary{
			DocumentID: doc.DocumentID,
			Type:       domain.DocumentTypePRD,
			Title:      doc.ProductName,
			Version:    doc.Version,
			CreatedAt:  doc.CreatedAt,
			UpdatedAt:  doc.UpdatedAt,
		})
	}
	return out, nil
}

func (s *FileStore) writeJSON(rel string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSONLocked(rel, value)
}

// writeJSONLocked writes via a temp file and rename so readers never see a
// half-written document.
func (s *FileStore) writeJSONLocked(rel string, value any) error {
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}

	path := filepath.Join(s.root, rel)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit %s: %w", rel, err)
	}
	return nil
}

func (s *FileStore) readJSON(rel string, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readJSONLocked(rel, out)
}

func (s *FileStore) readJSONLocked(rel string, out any) error {
	raw, err := os.ReadFile(filepath.Join(s.root, rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrDocumentNotFound
		}
		return fmt.Errorf("read %s: %w", rel, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", rel, err)
	}
	return nil
}

func listJSONFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func documentDir(documentID string) string {
	if strings.HasPrefix(documentID, "PRD-") {
		return prdDir
	}
	return brdDir
}

func page(summaries []domain.DocumentSummary, filter ports.ListFilter) []domain.DocumentSummary {
	if filter.Offset > 0 {
		if filter.Offset >= len(summaries) {
			return nil
		}
		summaries = summaries[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(summaries) {
		summaries = summaries[:filter.Limit]
	}
	return summaries
}

var _ ports.DocumentRepository = (*FileStore)(nil)
