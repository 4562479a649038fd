// Package validation scores generated documents against quality criteria:
// SMART objectives, section completeness, word count, and readability.
// Scoring starts from 100 and deducts per issue; the final score maps to
// passed, warning, or failed.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/specforge/specforge/internal/domain"
	"github.com/specforge/specforge/internal/ports"
)

// Score thresholds for the overall verdict.
const (
	failThreshold    = 60.0
	warningThreshold = 80.0
)

// smartKeywords maps each SMART dimension to the terms that signal it in
// success criteria text.
var smartKeywords = map[string][]string{
	"specific":   {"specific", "exact", "precise", "defined", "clear"},
	"measurable": {"measure", "metric", "kpi", "percent", "%", "number", "count", "rate"},
	"achievable": {"achievable", "realistic", "feasible", "practical", "possible"},
	"relevant":   {"relevant", "aligned", "business", "value", "goal", "objective"},
	"time_bound": {"date", "deadline", "timeline", "month", "quarter", "year", "week", "days"},
}

// vagueTerms flag success criteria that gesture at improvement without a
// concrete target.
var vagueTerms = []string{
	"better", "improve", "enhance", "good", "bad",
	"more", "less", "some", "many", "few",
}

var storyFormatRe = regexp.MustCompile(`(?i)as an?\b`)

// QualityValidator implements ports.DocumentValidator with rule-based
// scoring. It is stateless and safe for concurrent use.
type QualityValidator struct {
	logger zerolog.Logger
}

// Option customizes a quality validator.
type Option func(*QualityValidator)

// WithLogger sets the validator's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(v *QualityValidator) { v.logger = logger }
}

// NewQualityValidator creates a rule-based document validator.
func NewQualityValidator(opts ...Option) *QualityValidator {
	v := &QualityValidator{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateBRD scores a business requirements document. Deductions come from
// weak objectives, missing scope, thin stakeholder coverage, underspecified
// requirements, and missing sections.
func (v *QualityValidator) ValidateBRD(_ context.Context, doc *domain.BRDDocument) domain.ValidationResult {
	var (
		issues      []domain.ValidationIssue
		suggestions []string
		score       = 100.0
	)

	objIssues := v.checkObjectives(doc.Objectives)
	issues = append(issues, objIssues...)
	score -= float64(len(objIssues)) * 5

	if len(doc.Scope.InScope) == 0 {
		issues = append(issues, domain.ValidationIssue{
			Field:      "scope",
			Severity:   domain.SeverityMajor,
			Message:    "missing or incomplete scope definition",
			Suggestion: "Add clear in-scope and out-of-scope items",
		})
		score -= 10
	}

	if len(doc.Stakeholders) < 2 {
		issues = append(issues, domain.ValidationIssue{
			Field:      "stakeholders",
			Severity:   domain.SeverityMajor,
			Message:    "insufficient stakeholder identification",
			Suggestion: "Identify at least 3 key stakeholders",
		})
		score -= 5
	}

	reqIssues := v.checkRequirements(doc.Requirements)
	issues = append(issues, reqIssues...)
	score -= float64(len(reqIssues)) * 3

	completeness := brdCompleteness(doc)
	if completeness < 80 {
		suggestions = append(suggestions, fmt.Sprintf(
			"Document completeness: %.0f%%. Consider adding missing sections.", completeness))
		score -= (100 - completeness) / 5
	}

	result := domain.ValidationResult{
		DocumentID:          doc.DocumentID,
		Score:               clampScore(score),
		CompletenessPercent: completeness,
		WordCount:           documentWordCount(doc),
		ReadabilityScore:    readabilityScore(doc),
		Issues:              issues,
		Suggestions:         suggestions,
	}
	result.Status = verdict(result.Score, issues)

	v.logger.Debug().
		Str("document_id", doc.DocumentID).
		Float64("score", result.Score).
		Str("status", string(result.Status)).
		Int("issues", len(issues)).
		Msg("BRD validated")
	return result
}

// ValidatePRD scores a product requirements document. Deductions come from
// malformed user stories, thin technical requirements, sparse features, and
// missing sections.
func (v *QualityValidator) ValidatePRD(_ context.Context, doc *domain.PRDDocument) domain.ValidationResult {
	var (
		issues      []domain.ValidationIssue
		suggestions []string
		score       = 100.0
	)

	if len(doc.UserStories) == 0 {
		issues = append(issues, domain.ValidationIssue{
			Field:      "user_stories",
			Severity:   domain.SeverityCritical,
			Message:    "no user stories defined",
			Suggestion: "Add at least 5 user stories",
		})
		score -= 20
	} else {
		storyIssues := v.checkUserStories(doc.UserStories)
		issues = append(issues, storyIssues...)
		score -= float64(len(storyIssues)) * 3
	}

	techIssues := v.checkTechnicalRequirements(doc.TechnicalRequirements)
	issues = append(issues, techIssues...)
	score -= float64(len(techIssues)) * 3

	if len(doc.Features) < 5 {
		issues = append(issues, domain.ValidationIssue{
			Field:      "features",
			Severity:   domain.SeverityMinor,
			Message:    "insufficient feature coverage",
			Suggestion: "Add more detailed feature descriptions",
		})
		score -= 10
	}

	completeness := prdCompleteness(doc)
	if completeness < 80 {
		suggestions = append(suggestions, fmt.Sprintf(
			"Document completeness: %.0f%%. Consider adding missing sections.", completeness))
		score -= (100 - completeness) / 5
	}

	if doc.RelatedBRDID != "" {
		suggestions = append(suggestions, fmt.Sprintf("PRD is linked to BRD: %s", doc.RelatedBRDID))
	}

	result := domain.ValidationResult{
		DocumentID:          doc.DocumentID,
		Score:               clampScore(score),
		CompletenessPercent: completeness,
		WordCount:           documentWordCount(doc),
		ReadabilityScore:    readabilityScore(doc),
		Issues:              issues,
		Suggestions:         suggestions,
	}
	result.Status = verdict(result.Score, issues)

	v.logger.Debug().
		Str("document_id", doc.DocumentID).
		Float64("score", result.Score).
		Str("status", string(result.Status)).
		Int("issues", len(issues)).
		Msg("PRD validated")
	return result
}

func (v *QualityValidator) checkObjectives(objectives []domain.BusinessObjective) []domain.ValidationIssue {
	if len(objectives) == 0 {
		return []domain.ValidationIssue{{
			Field:      "objectives",
			Severity:   domain.SeverityCritical,
			Message:    "no business objectives defined",
			Suggestion: "Add at least 3 SMART business objectives",
		}}
	}

	var issues []domain.ValidationIssue
	for i, obj := range objectives {
		if smartScore(obj.SuccessCriteria) < 3 {
			issues = append(issues, domain.ValidationIssue{
				Field:      fmt.Sprintf("objectives[%d].success_criteria", i),
				Severity:   domain.SeverityMajor,
				Message:    fmt.Sprintf("objective %s lacks SMART criteria", obj.ObjectiveID),
				Suggestion: "Make success criteria Specific, Measurable, Achievable, Relevant, and Time-bound",
			})
		}
		for _, criterion := range obj.SuccessCriteria {
			if isVague(criterion) {
				issues = append(issues, domain.ValidationIssue{
					Field:      fmt.Sprintf("objectives[%d].success_criteria", i),
					Severity:   domain.SeverityMajor,
					Message:    fmt.Sprintf("success criterion too vague: %q", truncate(criterion, 50)),
					Suggestion: "Add specific metrics and targets",
				})
			}
		}
	}
	return issues
}

func (v *QualityValidator) checkRequirements(requirements []domain.BusinessRequirement) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	for i, req := range requirements {
		if len(req.AcceptanceCriteria) == 0 {
			issues = append(issues, domain.ValidationIssue{
				Field:      fmt.Sprintf("requirements[%d]", i),
				Severity:   domain.SeverityMajor,
				Message:    fmt.Sprintf("requirement %s lacks acceptance criteria", req.RequirementID),
				Suggestion: "Add clear acceptance criteria",
			})
		}
		if len(req.Description) < 20 {
			issues = append(issues, domain.ValidationIssue{
				Field:      fmt.Sprintf("requirements[%d].description", i),
				Severity:   domain.SeverityMinor,
				Message:    "requirement description too brief",
				Suggestion: "Provide a more detailed requirement description",
			})
		}
	}
	return issues
}

func (v *QualityValidator) checkUserStories(stories []domain.UserStory) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	for i, story := range stories {
		if !storyFormatRe.MatchString(story.Story) {
			issues = append(issues, domain.ValidationIssue{
				Field:      fmt.Sprintf("user_stories[%d]", i),
				Severity:   domain.SeverityMajor,
				Message:    "user story does not follow the standard format",
				Suggestion: "Use format: 'As a [user], I want [feature] so that [benefit]'",
			})
		}
		if len(story.AcceptanceCriteria) < 2 {
			issues = append(issues, domain.ValidationIssue{
				Field:      fmt.Sprintf("user_stories[%d].acceptance_criteria", i),
				Severity:   domain.SeverityMajor,
				Message:    "insufficient acceptance criteria",
				Suggestion: "Add at least 2-3 acceptance criteria",
			})
		}
	}
	return issues
}

func (v *QualityValidator) checkTechnicalRequirements(reqs []domain.TechnicalRequirement) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	for i, req := range reqs {
		if len(req.TechnologyStack) == 0 {
			issues = append(issues, domain.ValidationIssue{
				Field:      fmt.Sprintf("technical_requirements[%d].technology_stack", i),
				Severity:   domain.SeverityMinor,
				Message:    "no technology stack specified",
				Suggestion: "Specify required technologies",
			})
		}
	}
	return issues
}

// smartScore counts how many SMART dimensions the combined criteria text
// touches, 0 through 5.
func smartScore(criteria []string) int {
	combined := strings.ToLower(strings.Join(criteria, " "))
	score := 0
	for _, keywords := range smartKeywords {
		for _, kw := range keywords {
			if strings.Contains(combined, kw) {
				score++
				break
			}
		}
	}
	return score
}

// isVague flags criteria that use relative language without any concrete
// number or percentage to anchor it.
func isVague(text string) bool {
	if len(text) < 10 {
		return true
	}
	lower := strings.ToLower(text)

	hasVague := false
	for _, term := range vagueTerms {
		if strings.Contains(lower, term) {
			hasVague = true
			break
		}
	}
	hasSpecific := strings.ContainsAny(text, "0123456789%")
	return hasVague && !hasSpecific
}

func brdCompleteness(doc *domain.BRDDocument) float64 {
	checks := []bool{
		doc.DocumentID != "",
		doc.Title != "",
		doc.ExecutiveSummary != "",
		doc.BusinessContext != "",
		len(doc.Objectives) > 0,
		len(doc.Scope.InScope) > 0,
		len(doc.Stakeholders) > 0,
		len(doc.Requirements) > 0,
		len(doc.Risks) > 0,
	}
	return completenessPercent(checks)
}

func prdCompleteness(doc *domain.PRDDocument) float64 {
	checks := []bool{
		doc.DocumentID != "",
		doc.ProductName != "",
		doc.ProductOverview != "",
		len(doc.UserStories) > 0,
		len(doc.Features) > 0,
		len(doc.TechnicalRequirements) > 0,
		len(doc.PerformanceRequirements) > 0,
	}
	return completenessPercent(checks)
}

func completenessPercent(checks []bool) float64 {
	present := 0
	for _, ok := range checks {
		if ok {
			present++
		}
	}
	return float64(present) / float64(len(checks)) * 100
}

// documentWordCount walks every string in the document's JSON form and sums
// the word counts.
func documentWordCount(doc any) int {
	raw, err := json.Marshal(doc)
	if err != nil {
		return 0
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return 0
	}
	return countWords(decoded)
}

func countWords(value any) int {
	switch v := value.(type) {
	case string:
		return len(strings.Fields(v))
	case map[string]any:
		total := 0
		for _, item := range v {
			total += countWords(item)
		}
		return total
	case []any:
		total := 0
		for _, item := range v {
			total += countWords(item)
		}
		return total
	default:
		return 0
	}
}

// readabilityScore buckets the document by average sentence length. Shorter
// sentences score higher.
func readabilityScore(doc any) float64 {
	raw, err := json.Marshal(doc)
	if err != nil {
		return 50.0
	}
	text := string(raw)
	sentences := strings.Count(text, ".") + 1
	words := len(strings.Fields(text))
	if words == 0 {
		return 50.0
	}

	avg := float64(words) / float64(sentences)
	switch {
	case avg < 15:
		return 90.0
	case avg < 20:
		return 75.0
	case avg < 25:
		return 60.0
	default:
		return 45.0
	}
}

// verdict maps a score to the overall status. Scores below the failure
// threshold fail outright; below the warning threshold, or with more than
// three major issues, warn.
func verdict(score float64, issues []domain.ValidationIssue) domain.ValidationStatus {
	major := 0
	for _, issue := range issues {
		if issue.Severity == domain.SeverityMajor {
			major++
		}
	}

	switch {
	case score < failThreshold:
		return domain.ValidationFailed
	case score < warningThreshold || major > 3:
		return domain.ValidationWarning
	default:
		return domain.ValidationPassed
	}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	return score
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ ports.DocumentValidator = (*QualityValidator)(nil)
