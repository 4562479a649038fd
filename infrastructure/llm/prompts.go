package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/specforge/specforge/internal/domain"
)

// systemPrompt steers every generation call toward strict JSON output.
const systemPrompt = "You are a senior business analyst. Respond with a single valid JSON object and nothing else. No markdown, no commentary."

// BuildBRDPrompt formats the provider-independent BRD generation prompt
// from a request. The prompt pins the exact JSON field shape, including the
// canonical identifier formats, so responses decode with minimal repair.
func BuildBRDPrompt(req domain.GenerationRequest) string {
	var b strings.Builder

	b.WriteString("Generate a Business Requirements Document (BRD) as JSON.\n\n")
	b.WriteString("User's Idea:\n")
	b.WriteString(req.UserIdea)
	b.WriteString("\n\n")
	writeAdditionalContext(&b, req.AdditionalContext)

	b.WriteString(`Return a JSON object with exactly these fields:
{
  "document_id": "BRD-" followed by 6 digits,
  "version": "1.0",
  "title": string,
  "executive_summary": string with market opportunity, solution, and expected impact,
  "business_context": string with market analysis and competitive landscape,
  "problem_statement": string quantifying the problem and who it affects,
  "objectives": [{"objective_id": "OBJ-" + 3 digits, "description": string, "success_criteria": [string], "business_value": string, "priority": "high"|"medium"|"low", "kpi_metrics": [string]}],
  "scope": {"in_scope": [string], "out_of_scope": [string]},
  "stakeholders": [{"name": string, "role": string, "interest_level": "high"|"medium"|"low", "influence_level": "high"|"medium"|"low"}],
  "requirements": [{"requirement_id": string, "description": string, "priority": "high"|"medium"|"low"}],
  "assumptions": [string],
  "constraints": [string],
  "risks": [{"risk_id": string, "description": string, "impact": string, "probability": string, "mitigation": string}],
  "success_metrics": [string],
  "timeline": {"milestones": [{"name": string, "target_date": string, "deliverables": [string]}]}
}

Include at least 3 objectives, 5 stakeholders, and 5 success metrics.
Be specific and data-driven. Return ONLY the JSON object.`)

	writeLanguage(&b, req.Language)
	return b.String()
}

// BuildPRDPrompt formats the provider-independent PRD generation prompt.
// When a BRD is supplied the PRD is derived from it and linked via
// related_brd_id.
func BuildPRDPrompt(req domain.GenerationRequest, brd *domain.BRDDocument) string {
	var b strings.Builder

	b.WriteString("Generate a Product Requirements Document (PRD) as JSON.\n\n")
	b.WriteString("User's Idea:\n")
	b.WriteString(req.UserIdea)
	b.WriteString("\n\n")

	if brd != nil {
		fmt.Fprintf(&b, "This PRD elaborates BRD %s titled %q. Set \"related_brd_id\" to %q and keep the product direction consistent with these objectives:\n",
			brd.DocumentID, brd.Title, brd.DocumentID)
		for _, obj := range brd.Objectives {
			b.WriteString("- ")
			b.WriteString(obj.Description)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	writeAdditionalContext(&b, req.AdditionalContext)

	b.WriteString(`Return a JSON object with exactly these fields:
{
  "document_id": "PRD-" followed by 6 digits,
  "related_brd_id": "BRD-" + 6 digits or null,
  "version": "1.0",
  "product_name": string,
  "product_overview": string,
  "target_audience": [string],
  "value_proposition": string,
  "user_stories": [{"story_id": "US-" + 3 digits, "story": "As a ..., I want ..., so that ...", "acceptance_criteria": [string], "priority": "high"|"medium"|"low", "story_points": 1-13, "dependencies": [string]}],
  "features": [{"name": string, "description": string, "priority": "high"|"medium"|"low"}],
  "technical_requirements": [{"requirement_id": "TR-" + 3 digits, "category": string, "description": string, "technology_stack": [string], "constraints": [string]}],
  "performance_requirements": [string],
  "security_requirements": [string],
  "technology_stack": [string],
  "metrics_and_kpis": [string],
  "release_plan": {"phases": [{"name": string, "scope": [string]}]},
  "dependencies": [string],
  "risks": [{"risk_id": string, "description": string, "impact": string, "probability": string, "mitigation": string}]
}

Include at least 8 user stories and 5 technical requirements.
Stories must be implementation-ready. Return ONLY the JSON object.`)

	writeLanguage(&b, req.Language)
	return b.String()
}

func writeAdditionalContext(b *strings.Builder, context map[string]any) {
	if len(context) == 0 {
		return
	}
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("Additional context:\n")
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %v\n", k, context[k])
	}
	b.WriteString("\n")
}

func writeLanguage(b *strings.Builder, language string) {
	if language != "" && language != "en" {
		fmt.Fprintf(b, "\n\nWrite all narrative text in the language with ISO 639-1 code %q.", language)
	}
}
