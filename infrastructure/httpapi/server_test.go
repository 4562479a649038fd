package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specforge/specforge/infrastructure/llm"
	"github.com/specforge/specforge/infrastructure/storage"
	"github.com/specforge/specforge/internal/domain"
	"github.com/specforge/specforge/internal/validation"
)

// stubService returns canned responses and records calls.
type stubService struct {
	generateResp   *domain.GenerationResponse
	generateErr    error
	regenerateResp *domain.GenerationResponse
	regenerateErr  error

	lastRequest      domain.GenerationRequest
	lastDocumentID   string
	lastImprovements []string
}

func (s *stubService) Generate(_ context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error) {
	s.lastRequest = req
	if s.generateErr != nil {
		return nil, s.generateErr
	}
	return s.generateResp, nil
}

func (s *stubService) Regenerate(_ context.Context, documentID string, improvements []string) (*domain.GenerationResponse, error) {
	s.lastDocumentID = documentID
	s.lastImprovements = improvements
	if s.regenerateErr != nil {
		return nil, s.regenerateErr
	}
	return s.regenerateResp, nil
}

type fixture struct {
	server  *Server
	service *stubService
	repo    *storage.FileStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	service := &stubService{}
	return &fixture{
		server:  NewServer(service, repo, validation.NewQualityValidator()),
		service: service,
		repo:    repo,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func storedBRD(t *testing.T, repo *storage.FileStore, id string) *domain.BRDDocument {
	t.Helper()
	doc := &domain.BRDDocument{
		DocumentID:       id,
		Version:          "1.0",
		Title:            "Order Tracking",
		ExecutiveSummary: "Customers see live order status.",
		BusinessContext:  "Support tickets are dominated by status questions.",
		ProblemStatement: "No self-service order visibility.",
		Objectives: []domain.BusinessObjective{
			{ObjectiveID: "OBJ-001", Description: "Cut status tickets", SuccessCriteria: []string{"Reduce status tickets by 40 percent within one quarter, a clear business metric"}},
		},
		Scope: domain.Scope{InScope: []string{"Tracking page"}},
		Requirements: []domain.BusinessRequirement{
			{RequirementID: "BR-001", Description: "Expose carrier tracking events to customers", AcceptanceCriteria: []string{"Events visible within 10 minutes"}},
		},
		Stakeholders: []domain.Stakeholder{
			{Name: "Support Lead", InterestLevel: "high", InfluenceLevel: "high"},
			{Name: "Logistics", InterestLevel: "medium", InfluenceLevel: "medium"},
		},
		SuccessMetrics: []string{"Status tickets per week"},
		Risks:          []domain.Risk{{Description: "Carrier API instability"}},
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, repo.SaveBRD(context.Background(), doc))
	return doc
}

func TestGenerateEndpoint(t *testing.T) {
	validBody := `{"user_idea": "A customer-facing order tracking portal with carrier integration and alerts.", "document_type": "brd"}`

	t.Run("returns the generation response", func(t *testing.T) {
		f := newFixture(t)
		f.service.generateResp = &domain.GenerationResponse{
			RequestID: "req-1",
			Status:    domain.StatusCompleted,
		}

		rec := f.do(t, http.MethodPost, "/api/v1/generate", validBody)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp domain.GenerationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "req-1", resp.RequestID)
		assert.Equal(t, domain.DocumentTypeBRD, f.service.lastRequest.DocumentType)
	})

	t.Run("failed validation maps to 422", func(t *testing.T) {
		f := newFixture(t)
		f.service.generateResp = &domain.GenerationResponse{
			RequestID:    "req-2",
			Status:       domain.StatusFailed,
			ErrorMessage: "document BRD-000001 failed quality validation with score 41.0",
		}

		rec := f.do(t, http.MethodPost, "/api/v1/generate", validBody)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("malformed body maps to 400", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/generate", "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cost ceiling maps to 402", func(t *testing.T) {
		f := newFixture(t)
		f.service.generateErr = fmt.Errorf("generate BRD: %w", llm.NewCostExceededError("openai", 0.35, 0.10))

		rec := f.do(t, http.MethodPost, "/api/v1/generate", validBody)
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	})

	t.Run("no provider maps to 503", func(t *testing.T) {
		f := newFixture(t)
		f.service.generateErr = llm.NewNoProviderError()

		rec := f.do(t, http.MethodPost, "/api/v1/generate", validBody)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestRegenerateEndpoint(t *testing.T) {
	t.Run("passes improvements through", func(t *testing.T) {
		f := newFixture(t)
		f.service.regenerateResp = &domain.GenerationResponse{RequestID: "req-3", Status: domain.StatusCompleted}

		rec := f.do(t, http.MethodPost, "/api/v1/regenerate/BRD-000001",
			`{"improvements": ["add a timeline", "quantify the metrics"]}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "BRD-000001", f.service.lastDocumentID)
		assert.Equal(t, []string{"add a timeline", "quantify the metrics"}, f.service.lastImprovements)
	})

	t.Run("unknown document maps to 404", func(t *testing.T) {
		f := newFixture(t)
		f.service.regenerateErr = fmt.Errorf("load document: %w", domain.ErrDocumentNotFound)

		rec := f.do(t, http.MethodPost, "/api/v1/regenerate/BRD-999999", `{"improvements": []}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDocumentEndpoints(t *testing.T) {
	t.Run("get returns a stored BRD", func(t *testing.T) {
		f := newFixture(t)
		storedBRD(t, f.repo, "BRD-000001")

		rec := f.do(t, http.MethodGet, "/api/v1/documents/BRD-000001", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var doc domain.BRDDocument
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, "Order Tracking", doc.Title)
	})

	t.Run("get unknown document maps to 404", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/api/v1/documents/BRD-999999", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unrecognized prefix maps to 404", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/api/v1/documents/DOC-1", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete removes the document", func(t *testing.T) {
		f := newFixture(t)
		storedBRD(t, f.repo, "BRD-000001")

		rec := f.do(t, http.MethodDelete, "/api/v1/documents/BRD-000001", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(t, http.MethodDelete, "/api/v1/documents/BRD-000001", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListAndSearchEndpoints(t *testing.T) {
	t.Run("list returns summaries", func(t *testing.T) {
		f := newFixture(t)
		storedBRD(t, f.repo, "BRD-000001")
		storedBRD(t, f.repo, "BRD-000002")

		rec := f.do(t, http.MethodGet, "/api/v1/documents?type=brd&limit=1", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var summaries []domain.DocumentSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
		assert.Len(t, summaries, 1)
	})

	t.Run("empty store yields an empty array", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/api/v1/documents", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	})

	t.Run("invalid type maps to 400", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/api/v1/documents?type=memo", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("search requires q", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/api/v1/search", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("search matches titles", func(t *testing.T) {
		f := newFixture(t)
		storedBRD(t, f.repo, "BRD-000001")

		rec := f.do(t, http.MethodGet, "/api/v1/search?q=order+tracking", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var summaries []domain.DocumentSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
		require.Len(t, summaries, 1)
		assert.Equal(t, "BRD-000001", summaries[0].DocumentID)
	})
}

func TestValidateEndpoint(t *testing.T) {
	t.Run("revalidates and persists the result", func(t *testing.T) {
		f := newFixture(t)
		storedBRD(t, f.repo, "BRD-000001")

		rec := f.do(t, http.MethodPost, "/api/v1/validate/BRD-000001", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var result domain.ValidationResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, "BRD-000001", result.DocumentID)
		assert.Greater(t, result.Score, 0.0)

		stored, err := f.repo.GetValidationResult(context.Background(), "BRD-000001")
		require.NoError(t, err)
		assert.Equal(t, result.Status, stored.Status)
	})

	t.Run("unknown document maps to 404", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/validate/BRD-999999", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHistoryEndpoint(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.SaveHistory(context.Background(), domain.HistoryEntry{
		EntryID:    "e1",
		DocumentID: "BRD-000001",
		Action:     "generated",
		CreatedAt:  time.Now().UTC(),
	}))

	rec := f.do(t, http.MethodGet, "/api/v1/history/BRD-000001", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []domain.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "generated", entries[0].Action)

	rec = f.do(t, http.MethodGet, "/api/v1/history/BRD-000002", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
