package domain

import "time"

// HistoryEntry records one generation or regeneration event for a document.
// Entries are append-only; a document's history is the ordered list of its
// entries from first generation to the latest revision.
type HistoryEntry struct {
	EntryID    string    `json:"entry_id"`
	DocumentID string    `json:"document_id"`
	RequestID  string    `json:"request_id"`
	// Action is "generated" for the initial run and "regenerated" for
	// revision runs.
	Action    string        `json:"action"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Cost      float64       `json:"cost"`
	Tokens    int           `json:"tokens"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
	// Improvements carries the caller-supplied revision instructions for
	// regeneration runs.
	Improvements []string `json:"improvements,omitempty"`
}

// DocumentSummary is a lightweight listing of a stored document, returned
// by list and search operations to avoid loading full document bodies.
type DocumentSummary struct {
	DocumentID string       `json:"document_id"`
	Type       DocumentType `json:"type"`
	Title      string       `json:"title"`
	Version    string       `json:"version"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
