package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specforge/specforge/internal/domain"
	"github.com/specforge/specforge/internal/ports"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func testBRD(id string, created time.Time) *domain.BRDDocument {
	return &domain.BRDDocument{
		DocumentID:       id,
		Version:          "1.0",
		Title:            "Inventory Sync " + id,
		ExecutiveSummary: "Keep warehouse counts accurate.",
		BusinessContext:  "Stock drifts between systems.",
		ProblemStatement: "Counts diverge daily.",
		Objectives: []domain.BusinessObjective{
			{ObjectiveID: "OBJ-001", Description: "Eliminate drift", SuccessCriteria: []string{"Zero daily variance"}},
		},
		Stakeholders: []domain.Stakeholder{
			{Name: "Ops Lead", InterestLevel: "high", InfluenceLevel: "high"},
		},
		SuccessMetrics: []string{"Variance per day"},
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func testPRD(id, brdID string, created time.Time) *domain.PRDDocument {
	return &domain.PRDDocument{
		DocumentID:      id,
		Version:         "1.0",
		RelatedBRDID:    brdID,
		ProductName:     "Sync Service " + id,
		ProductOverview: "Reconciles counts across systems.",
		UserStories: []domain.UserStory{
			{StoryID: "US-001", Story: "As an operator, I want alerts so that I can react.", AcceptanceCriteria: []string{"Alert within 5 minutes"}},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestFileStore_DocumentRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("BRD save and load", func(t *testing.T) {
		doc := testBRD("BRD-000001", now)
		require.NoError(t, store.SaveBRD(ctx, doc))

		loaded, err := store.GetBRD(ctx, "BRD-000001")
		require.NoError(t, err)
		assert.Equal(t, doc.Title, loaded.Title)
		assert.Equal(t, doc.Objectives, loaded.Objectives)
		assert.True(t, doc.CreatedAt.Equal(loaded.CreatedAt))
	})

	t.Run("PRD save and load", func(t *testing.T) {
		doc := testPRD("PRD-000001", "BRD-000001", now)
		require.NoError(t, store.SavePRD(ctx, doc))

		loaded, err := store.GetPRD(ctx, "PRD-000001")
		require.NoError(t, err)
		assert.Equal(t, doc.ProductName, loaded.ProductName)
		assert.Equal(t, "BRD-000001", loaded.RelatedBRDID)
	})

	t.Run("overwrite keeps the newest version", func(t *testing.T) {
		doc := testBRD("BRD-000001", now)
		doc.Version = "1.1"
		require.NoError(t, store.SaveBRD(ctx, doc))

		loaded, err := store.GetBRD(ctx, "BRD-000001")
		require.NoError(t, err)
		assert.Equal(t, "1.1", loaded.Version)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := store.GetBRD(ctx, "BRD-999999")
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

		_, err = store.GetPRD(ctx, "PRD-999999")
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})
}

func TestFileStore_ListAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.SaveBRD(ctx, testBRD("BRD-000001", base.Add(-2*time.Hour))))
	require.NoError(t, store.SaveBRD(ctx, testBRD("BRD-000002", base.Add(-1*time.Hour))))
	require.NoError(t, store.SavePRD(ctx, testPRD("PRD-000001", "BRD-000001", base)))

	t.Run("lists all types newest first", func(t *testing.T) {
		summaries, err := store.ListDocuments(ctx, ports.ListFilter{})
		require.NoError(t, err)
		require.Len(t, summaries, 3)
		assert.Equal(t, "PRD-000001", summaries[0].DocumentID)
		assert.Equal(t, "BRD-000002", summaries[1].DocumentID)
		assert.Equal(t, "BRD-000001", summaries[2].DocumentID)
	})

	t.Run("filters by type", func(t *testing.T) {
		summaries, err := store.ListDocuments(ctx, ports.ListFilter{Type: domain.DocumentTypePRD})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, domain.DocumentTypePRD, summaries[0].Type)
	})

	t.Run("limit and offset page through results", func(t *testing.T) {
		firstPage, err := store.ListDocuments(ctx, ports.ListFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, firstPage, 2)

		secondPage, err := store.ListDocuments(ctx, ports.ListFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		require.Len(t, secondPage, 1)
		assert.Equal(t, "BRD-000001", secondPage[0].DocumentID)

		empty, err := store.ListDocuments(ctx, ports.ListFilter{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("search matches titles case-insensitively", func(t *testing.T) {
		summaries, err := store.SearchDocuments(ctx, ports.ListFilter{Query: "sync service"})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, "PRD-000001", summaries[0].DocumentID)

		none, err := store.SearchDocuments(ctx, ports.ListFilter{Query: "unrelated"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestFileStore_HistoryAndValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("history appends in order", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, store.SaveHistory(ctx, domain.HistoryEntry{
				EntryID:    fmt.Sprintf("entry-%d", i),
				DocumentID: "BRD-000001",
				Action:     "generated",
				CreatedAt:  now.Add(time.Duration(i) * time.Minute),
			}))
		}

		entries, err := store.GetHistory(ctx, "BRD-000001")
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "entry-0", entries[0].EntryID)
		assert.Equal(t, "entry-2", entries[2].EntryID)
	})

	t.Run("no history yields empty, not an error", func(t *testing.T) {
		entries, err := store.GetHistory(ctx, "BRD-424242")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("validation result round-trip", func(t *testing.T) {
		result := domain.ValidationResult{
			DocumentID: "BRD-000001",
			Status:     domain.ValidationWarning,
			Score:      72.5,
			Issues: []domain.ValidationIssue{
				{Field: "scope", Severity: domain.SeverityMajor, Message: "missing scope"},
			},
		}
		require.NoError(t, store.SaveValidationResult(ctx, result))

		loaded, err := store.GetValidationResult(ctx, "BRD-000001")
		require.NoError(t, err)
		assert.Equal(t, domain.ValidationWarning, loaded.Status)
		assert.InDelta(t, 72.5, loaded.Score, 1e-9)
		require.Len(t, loaded.Issues, 1)
	})
}

func TestFileStore_LinkedPRDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SavePRD(ctx, testPRD("PRD-000001", "BRD-000001", now)))
	require.NoError(t, store.SavePRD(ctx, testPRD("PRD-000002", "BRD-000001", now)))
	require.NoError(t, store.SavePRD(ctx, testPRD("PRD-000003", "BRD-000009", now)))

	linked, err := store.GetLinkedPRDs(ctx, "BRD-000001")
	require.NoError(t, err)
	assert.Len(t, linked, 2)

	none, err := store.GetLinkedPRDs(ctx, "BRD-555555")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFileStore_DeleteDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveBRD(ctx, testBRD("BRD-000001", now)))
	require.NoError(t, store.SaveHistory(ctx, domain.HistoryEntry{EntryID: "e1", DocumentID: "BRD-000001", CreatedAt: now}))
	require.NoError(t, store.SaveValidationResult(ctx, domain.ValidationResult{DocumentID: "BRD-000001", Status: domain.ValidationPassed}))

	require.NoError(t, store.DeleteDocument(ctx, "BRD-000001"))

	_, err := store.GetBRD(ctx, "BRD-000001")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	entries, err := store.GetHistory(ctx, "BRD-000001")
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = store.GetValidationResult(ctx, "BRD-000001")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	assert.ErrorIs(t, store.DeleteDocument(ctx, "BRD-000001"), domain.ErrDocumentNotFound)
}

func TestFileStore_ConcurrentWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("BRD-%06d", n)
			assert.NoError(t, store.SaveBRD(ctx, testBRD(id, now)))
			assert.NoError(t, store.SaveHistory(ctx, domain.HistoryEntry{
				EntryID:    fmt.Sprintf("entry-%d", n),
				DocumentID: "BRD-000000",
				CreatedAt:  now,
			}))
		}(i)
	}
	wg.Wait()

	summaries, err := store.ListDocuments(ctx, ports.ListFilter{Type: domain.DocumentTypeBRD})
	require.NoError(t, err)
	assert.Len(t, summaries, 20)

	entries, err := store.GetHistory(ctx, "BRD-000000")
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}
