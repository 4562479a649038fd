package domain

// ValidationStatus classifies the outcome of a document quality review.
type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
	ValidationWarning ValidationStatus = "warning"
)

// IssueSeverity ranks how strongly a validation issue affects the score.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityMajor    IssueSeverity = "major"
	SeverityMinor    IssueSeverity = "minor"
)

// ValidationIssue describes one problem found during quality review,
// anchored to the document field it concerns.
type ValidationIssue struct {
	Field      string        `json:"field"`
	Severity   IssueSeverity `json:"severity"`
	Message    string        `json:"message"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// ValidationResult is the full outcome of reviewing one generated document.
type ValidationResult struct {
	DocumentID string           `json:"document_id"`
	Status     ValidationStatus `json:"status"`
	// Score is the overall quality score on a 0-100 scale.
	Score float64 `json:"score"`
	// CompletenessPercent reports the share of expected sections present.
	CompletenessPercent float64           `json:"completeness_percent"`
	WordCount           int               `json:"word_count"`
	ReadabilityScore    float64           `json:"readability_score"`
	Issues              []ValidationIssue `json:"issues,omitempty"`
	Suggestions         []string          `json:"suggestions,omitempty"`
}

// IsValid reports whether the document cleared the failure threshold.
func (r ValidationResult) IsValid() bool {
	return r.Status != ValidationFailed
}

// NeedsReview reports whether a human should look at the document before
// it is published downstream.
func (r ValidationResult) NeedsReview() bool {
	return r.Status == ValidationWarning || r.Status == ValidationFailed
}

// CriticalIssues returns only the critical-severity issues.
func (r ValidationResult) CriticalIssues() []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			out = append(out, issue)
		}
	}
	return out
}
