// Package domain defines the core document model for the generation system:
// business requirement documents (BRD), product requirement documents (PRD),
// generation requests and responses, cost metadata, and validation results.
// Types in this package are plain data with no provider or storage concerns;
// they are created by the LLM layer, checked by the validator, and persisted
// by the repository.
package domain

import "time"

// DocumentType identifies which document kind a generation request targets.
type DocumentType string

// Supported document types.
const (
	// DocumentTypeBRD requests a business requirements document only.
	DocumentTypeBRD DocumentType = "brd"
	// DocumentTypePRD requests a product requirements document only.
	DocumentTypePRD DocumentType = "prd"
	// DocumentTypeBoth requests a linked BRD and PRD pair.
	DocumentTypeBoth DocumentType = "both"
)

// ComplexityLevel classifies a generation task for provider selection.
// Higher complexity prefers higher-quality, more expensive providers.
type ComplexityLevel string

// Task complexity tiers.
const (
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityModerate ComplexityLevel = "moderate"
	ComplexityComplex  ComplexityLevel = "complex"
)

// Priority expresses the importance of objectives, stories, and requirements.
type Priority string

// Priority levels.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// BusinessObjective is a single business objective with SMART success criteria.
type BusinessObjective struct {
	// ObjectiveID follows the canonical OBJ-NNN format.
	ObjectiveID     string   `json:"objective_id" validate:"required,docid=OBJ-3"`
	Description     string   `json:"description" validate:"required"`
	SuccessCriteria []string `json:"success_criteria" validate:"required,min=1"`
	BusinessValue   string   `json:"business_value"`
	Priority        Priority `json:"priority" validate:"omitempty,oneof=high medium low"`
	KPIMetrics      []string `json:"kpi_metrics,omitempty"`
}

// Stakeholder describes a party with interest in or influence over the project.
type Stakeholder struct {
	Name           string `json:"name" validate:"required"`
	Role           string `json:"role"`
	InterestLevel  string `json:"interest_level" validate:"required,oneof=high medium low"`
	InfluenceLevel string `json:"influence_level" validate:"required,oneof=high medium low"`
}

// Risk captures an identified project risk with its assessment and mitigation.
type Risk struct {
	RiskID      string `json:"risk_id,omitempty"`
	Description string `json:"description"`
	Impact      string `json:"impact,omitempty"`
	Probability string `json:"probability,omitempty"`
	Mitigation  string `json:"mitigation,omitempty"`
}

// Scope separates what the project commits to deliver from what it does not.
type Scope struct {
	InScope    []string `json:"in_scope"`
	OutOfScope []string `json:"out_of_scope"`
}

// BusinessRequirement is a single business-level requirement in a BRD.
type BusinessRequirement struct {
	RequirementID      string   `json:"requirement_id,omitempty"`
	Category           string   `json:"category,omitempty"`
	Description        string   `json:"description"`
	Rationale          string   `json:"rationale,omitempty"`
	Priority           string   `json:"priority,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
}

// BRDDocument is a business requirements document produced by the generation
// pipeline. Identity is the DocumentID; a validated document is never mutated.
type BRDDocument struct {
	// DocumentID follows the canonical BRD-NNNNNN format.
	DocumentID string    `json:"document_id" validate:"required,docid=BRD-6"`
	Version    string    `json:"version,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Title            string `json:"title" validate:"required"`
	ExecutiveSummary string `json:"executive_summary" validate:"required"`
	BusinessContext  string `json:"business_context" validate:"required"`
	ProblemStatement string `json:"problem_statement" validate:"required"`

	Objectives   []BusinessObjective   `json:"objectives" validate:"required,min=1,dive"`
	Scope        Scope                 `json:"scope"`
	Requirements []BusinessRequirement `json:"requirements,omitempty"`
	Constraints  []string              `json:"constraints,omitempty"`
	Assumptions  []string              `json:"assumptions,omitempty"`
	Risks        []Risk                `json:"risks,omitempty"`

	Stakeholders []Stakeholder `json:"stakeholders" validate:"required,min=1,dive"`

	SuccessMetrics []string       `json:"success_metrics" validate:"required,min=1"`
	Timeline       map[string]any `json:"timeline,omitempty"`
}

// UserStory is a single user story in the "As a ... I want ... so that ..."
// format with its acceptance criteria and estimation.
type UserStory struct {
	// StoryID follows the canonical US-NNN format.
	StoryID            string   `json:"story_id" validate:"required,docid=US-3"`
	PersonaID          string   `json:"persona_id,omitempty"`
	Story              string   `json:"story" validate:"required"`
	AcceptanceCriteria []string `json:"acceptance_criteria" validate:"required,min=1"`
	Priority           Priority `json:"priority" validate:"omitempty,oneof=high medium low"`
	StoryPoints        int      `json:"story_points" validate:"omitempty,min=1,max=13"`
	Dependencies       []string `json:"dependencies,omitempty"`
}

// TechnicalRequirement describes an architecture, integration, data, or
// infrastructure requirement in a PRD.
type TechnicalRequirement struct {
	// RequirementID follows the canonical TR-NNN format.
	RequirementID   string   `json:"requirement_id" validate:"required,docid=TR-3"`
	Category        string   `json:"category,omitempty"`
	Description     string   `json:"description" validate:"required"`
	TechnologyStack []string `json:"technology_stack,omitempty"`
	Constraints     []string `json:"constraints,omitempty"`
}

// PRDDocument is a product requirements document. When generated as part of
// a BRD+PRD pair, RelatedBRDID links back to the originating BRD.
type PRDDocument struct {
	// DocumentID follows the canonical PRD-NNNNNN format.
	DocumentID string    `json:"document_id" validate:"required,docid=PRD-6"`
	Version    string    `json:"version,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	// RelatedBRDID carries the document ID of the BRD this PRD elaborates,
	// or empty when the PRD was generated standalone.
	RelatedBRDID string `json:"related_brd_id,omitempty" validate:"omitempty,docid=BRD-6"`

	ProductName      string   `json:"product_name" validate:"required"`
	ProductOverview  string   `json:"product_overview" validate:"required"`
	TargetAudience   []string `json:"target_audience,omitempty"`
	ValueProposition string   `json:"value_proposition,omitempty"`

	UserStories           []UserStory            `json:"user_stories" validate:"required,min=1,dive"`
	Features              []map[string]any       `json:"features,omitempty"`
	TechnicalRequirements []TechnicalRequirement `json:"technical_requirements,omitempty" validate:"omitempty,dive"`

	PerformanceRequirements []string `json:"performance_requirements,omitempty"`
	SecurityRequirements    []string `json:"security_requirements,omitempty"`
	TechnologyStack         []string `json:"technology_stack,omitempty"`
	Dependencies            []string `json:"dependencies,omitempty"`

	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	MetricsAndKPIs     []string `json:"metrics_and_kpis,omitempty"`

	ReleasePlan map[string]any `json:"release_plan,omitempty"`
	Risks       []Risk         `json:"risks,omitempty"`
}
