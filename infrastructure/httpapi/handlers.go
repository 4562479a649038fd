package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/specforge/specforge/internal/domain"
	"github.com/specforge/specforge/internal/ports"
)

// generate runs a full generation request and returns the documents, cost
// breakdown, and validation results.
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.service.Generate(r.Context(), req)
	if err != nil {
		s.logger.Error().Err(err).Msg("generation failed")
		respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if resp.Status == domain.StatusFailed {
		// The documents are returned for inspection but were not stored.
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, resp)
}

type regenerateRequest struct {
	Improvements []string `json:"improvements"`
}

// regenerate produces a new version of a stored document.
func (s *Server) regenerate(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	var req regenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.service.Regenerate(r.Context(), documentID, req.Improvements)
	if err != nil {
		s.logger.Error().Err(err).Str("document_id", documentID).Msg("regeneration failed")
		respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if resp.Status == domain.StatusFailed {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, resp)
}

// validate re-runs quality validation on a stored document and persists the
// fresh result.
func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	var result domain.ValidationResult
	switch {
	case strings.HasPrefix(documentID, "BRD-"):
		doc, err := s.repo.GetBRD(r.Context(), documentID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		result = s.validator.ValidateBRD(r.Context(), doc)
	case strings.HasPrefix(documentID, "PRD-"):
		doc, err := s.repo.GetPRD(r.Context(), documentID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		result = s.validator.ValidatePRD(r.Context(), doc)
	default:
		respondError(w, http.StatusNotFound, "document not found")
		return
	}

	if err := s.repo.SaveValidationResult(r.Context(), result); err != nil {
		s.logger.Error().Err(err).Str("document_id", documentID).Msg("saving validation result failed")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// getDocument returns a stored document by ID, dispatching on the prefix.
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	switch {
	case strings.HasPrefix(documentID, "BRD-"):
		doc, err := s.repo.GetBRD(r.Context(), documentID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, doc)
	case strings.HasPrefix(documentID, "PRD-"):
		doc, err := s.repo.GetPRD(r.Context(), documentID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, doc)
	default:
		respondError(w, http.StatusNotFound, "document not found")
	}
}

// deleteDocument removes a document and its attached records.
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	if err := s.repo.DeleteDocument(r.Context(), documentID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// listDocuments returns summaries, optionally filtered by type and paged
// with limit/offset query parameters.
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	summaries, err := s.repo.ListDocuments(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing documents failed")
		respondServiceError(w, err)
		return
	}
	if summaries == nil {
		summaries = []domain.DocumentSummary{}
	}
	respondJSON(w, http.StatusOK, summaries)
}

// searchDocuments returns summaries whose title matches the q parameter.
func (s *Server) searchDocuments(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Query = r.URL.Query().Get("q")
	if filter.Query == "" {
		respondError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	summaries, err := s.repo.SearchDocuments(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("search failed")
		respondServiceError(w, err)
		return
	}
	if summaries == nil {
		summaries = []domain.DocumentSummary{}
	}
	respondJSON(w, http.StatusOK, summaries)
}

// getHistory returns a document's audit trail, oldest first.
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	entries, err := s.repo.GetHistory(r.Context(), documentID)
	if err != nil {
		s.logger.Error().Err(err).Str("document_id", documentID).Msg("loading history failed")
		respondServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func filterFromQuery(r *http.Request) (ports.ListFilter, error) {
	q := r.URL.Query()
	filter := ports.ListFilter{}

	switch docType := q.Get("type"); docType {
	case "", string(domain.DocumentTypeBRD), string(domain.DocumentTypePRD):
		filter.Type = domain.DocumentType(docType)
	default:
		return filter, errInvalidDocType
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, errInvalidPaging
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, errInvalidPaging
		}
		filter.Offset = offset
	}
	return filter, nil
}
