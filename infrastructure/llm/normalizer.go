package llm

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Placeholder values used when a required narrative field cannot be
// recovered from any alternate location in the response.
const (
	placeholderTitle            = "Untitled Project"
	placeholderProblemStatement = "Problem statement to be defined based on business objectives."
	placeholderNarrative        = "To be defined."
	placeholderSuccessMetric    = "Success metrics to be defined"
)

// RepairBRDFields normalizes a raw BRD payload decoded from model output
// into the canonical field shape. It is a total function: every input maps
// to a best-effort repaired output and no input causes an error.
//
// Repairs applied: document and objective identifiers are coerced to their
// canonical digit shapes, combined stakeholder ratings are split into
// interest and influence levels, legacy field names are renamed, and
// required root narrative fields are backfilled from nested objects,
// alternate keys, or placeholders.
func RepairBRDFields(fields map[string]any) map[string]any {
	fixed := cloneFields(fields)

	if id, ok := fixed["document_id"].(string); ok {
		fixed["document_id"] = coerceID("BRD", id, 6)
	} else {
		fixed["document_id"] = coerceID("BRD", "", 6)
	}

	repairStakeholders(fixed)
	repairObjectives(fixed)
	backfillRootFields(fixed)

	return fixed
}

// RepairPRDFields normalizes a raw PRD payload decoded from model output
// into the canonical field shape. Like RepairBRDFields it is total.
func RepairPRDFields(fields map[string]any) map[string]any {
	fixed := cloneFields(fields)

	if id, ok := fixed["document_id"].(string); ok {
		fixed["document_id"] = coerceID("PRD", id, 6)
	} else {
		fixed["document_id"] = coerceID("PRD", "", 6)
	}

	repairUserStories(fixed)
	repairTechnicalRequirements(fixed)

	if _, ok := fixed["product_name"].(string); !ok || fixed["product_name"] == "" {
		if v := lookupAlternate(fixed, []string{"name", "title", "project_name"}); v != nil {
			fixed["product_name"] = v
		} else {
			fixed["product_name"] = placeholderTitle
		}
	}
	if s, ok := fixed["product_overview"].(string); !ok || s == "" {
		if v := lookupAlternate(fixed, []string{"overview", "description", "summary"}); v != nil {
			fixed["product_overview"] = v
		} else {
			fixed["product_overview"] = placeholderNarrative
		}
	}

	return fixed
}

// coerceID forces an identifier into the canonical PREFIX-N shape by
// extracting digits and zero-padding or truncating to the required count.
// When the input carries no digits at all, a random suffix is generated.
func coerceID(prefix, raw string, digitCount int) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	d := digits.String()
	switch {
	case len(d) >= digitCount:
		d = d[:digitCount]
	case len(d) > 0:
		d = strings.Repeat("0", digitCount-len(d)) + d
	default:
		low := intPow10(digitCount - 1)
		d = fmt.Sprintf("%d", low+rand.Intn(9*low))
	}

	return prefix + "-" + d
}

func intPow10(n int) int {
	out := 1
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}

// repairStakeholders splits a combined interest/influence rating into the
// canonical two-field shape, defaulting unset levels to "medium".
func repairStakeholders(fixed map[string]any) {
	stakeholders, ok := fixed["stakeholders"].([]any)
	if !ok {
		return
	}

	for _, raw := range stakeholders {
		s, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		if combined, ok := s["interest_influence"]; ok {
			delete(s, "interest_influence")
			if _, exists := s["interest_level"]; !exists {
				s["interest_level"] = combined
			}
			if _, exists := s["influence_level"]; !exists {
				s["influence_level"] = combined
			}
		}

		if _, exists := s["interest_level"]; !exists {
			s["interest_level"] = "medium"
		}
		if _, exists := s["influence_level"]; !exists {
			s["influence_level"] = "medium"
		}
	}
}

// repairObjectives coerces objective identifiers, renames legacy fields,
// and lifts scalar success criteria into lists.
func repairObjectives(fixed map[string]any) {
	objectives, ok := fixed["objectives"].([]any)
	if !ok {
		return
	}

	for _, raw := range objectives {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		renameLegacyField(obj, "id", "objective_id")
		renameLegacyField(obj, "kpis", "kpi_metrics")

		if id, ok := obj["objective_id"].(string); ok {
			obj["objective_id"] = coerceID("OBJ", id, 3)
		} else {
			obj["objective_id"] = coerceID("OBJ", "", 3)
		}

		if criteria, ok := obj["success_criteria"].(string); ok {
			obj["success_criteria"] = []any{criteria}
		}
	}
}

// repairUserStories coerces story identifiers and renames legacy fields.
func repairUserStories(fixed map[string]any) {
	stories, ok := fixed["user_stories"].([]any)
	if !ok {
		return
	}

	for _, raw := range stories {
		story, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		renameLegacyField(story, "id", "story_id")
		renameLegacyField(story, "description", "story")
		renameLegacyField(story, "title", "story")

		if id, ok := story["story_id"].(string); ok {
			story["story_id"] = coerceID("US", id, 3)
		} else {
			story["story_id"] = coerceID("US", "", 3)
		}

		if criteria, ok := story["acceptance_criteria"].(string); ok {
			story["acceptance_criteria"] = []any{criteria}
		}
	}
}

// repairTechnicalRequirements coerces requirement identifiers and renames
// legacy fields.
func repairTechnicalRequirements(fixed map[string]any) {
	reqs, ok := fixed["technical_requirements"].([]any)
	if !ok {
		return
	}

	for _, raw := range reqs {
		req, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		renameLegacyField(req, "id", "requirement_id")

		if id, ok := req["requirement_id"].(string); ok {
			req["requirement_id"] = coerceID("TR", id, 3)
		} else {
			req["requirement_id"] = coerceID("TR", "", 3)
		}
	}
}

// rootFieldAlternates maps required BRD root fields to alternate key names
// models commonly emit instead.
var rootFieldAlternates = map[string][]string{
	"title":             {"project_name", "name", "document_title"},
	"problem_statement": {"problem", "business_problem", "challenge"},
	"success_metrics":   {"metrics", "kpis", "success_criteria"},
	"executive_summary": {"summary", "overview"},
	"business_context":  {"context", "background"},
}

// backfillRootFields ensures the required BRD narrative fields exist,
// recovering them from nested document objects or alternate key names and
// falling back to explicit placeholders.
func backfillRootFields(fixed map[string]any) {
	required := []string{"title", "executive_summary", "business_context", "problem_statement", "success_metrics"}

	for _, field := range required {
		if present(fixed, field) {
			continue
		}

		// Models sometimes nest the whole document under a wrapper key.
		recovered := false
		for _, nested := range []string{"document", "brd", "brd_document"} {
			if inner, ok := fixed[nested].(map[string]any); ok && present(inner, field) {
				fixed[field] = inner[field]
				recovered = true
				break
			}
		}
		if recovered {
			continue
		}

		if v := lookupAlternate(fixed, rootFieldAlternates[field]); v != nil {
			fixed[field] = v
			continue
		}

		switch field {
		case "title":
			fixed[field] = placeholderTitle
		case "problem_statement":
			fixed[field] = placeholderProblemStatement
		case "success_metrics":
			fixed[field] = []any{placeholderSuccessMetric}
		default:
			fixed[field] = placeholderNarrative
		}
	}
}

// lookupAlternate returns the first non-empty value stored under any of
// the alternate keys. Keys within an edit distance of one also match, which
// recovers values stored under slightly misspelled field names.
func lookupAlternate(fields map[string]any, alternates []string) any {
	for _, alt := range alternates {
		if present(fields, alt) {
			return fields[alt]
		}
		for key := range fields {
			if key != alt && levenshtein.ComputeDistance(key, alt) == 1 && present(fields, key) {
				return fields[key]
			}
		}
	}
	return nil
}

func renameLegacyField(m map[string]any, from, to string) {
	if v, ok := m[from]; ok {
		if _, exists := m[to]; !exists {
			m[to] = v
			delete(m, from)
		}
	}
}

func present(m map[string]any, key string) bool {
	v, ok := m[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

// cloneFields shallow-copies the root map so repairs never mutate the
// caller's decoded payload. Nested objects are repaired in place.
func cloneFields(fields map[string]any) map[string]any {
	fixed := make(map[string]any, len(fields))
	for k, v := range fields {
		fixed[k] = v
	}
	return fixed
}
