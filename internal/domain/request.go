package domain

// GenerationRequest describes a single document-generation task.
// Requests are passed by value through the pipeline and never mutated in
// place; refinement phases construct new requests that embed prior output.
type GenerationRequest struct {
	// UserIdea is the free-form product or business idea to expand.
	UserIdea string `json:"user_idea" validate:"required,min=50,max=10000"`
	// DocumentType selects BRD, PRD, or a linked pair.
	DocumentType DocumentType `json:"document_type" validate:"omitempty,oneof=brd prd both"`
	// Complexity hints at the task difficulty for provider selection.
	Complexity ComplexityLevel `json:"complexity" validate:"omitempty,oneof=simple moderate complex"`
	// MaxCost is the hard dollar ceiling for this request. A provider call
	// whose estimate exceeds the ceiling fails before any network traffic.
	MaxCost float64 `json:"max_cost" validate:"omitempty,gt=0,lte=10"`
	// Language is a two-letter ISO 639-1 code for the output language.
	Language string `json:"language,omitempty" validate:"omitempty,len=2,lowercase"`
	// AdditionalContext carries caller-supplied free-form hints that are
	// appended to the generation prompt.
	AdditionalContext map[string]any `json:"additional_context,omitempty"`
}

// WithIdea returns a copy of the request with the idea text replaced.
// The original request is left untouched.
func (r GenerationRequest) WithIdea(idea string) GenerationRequest {
	r.UserIdea = idea
	return r
}

// Defaulted returns a copy with zero-valued fields replaced by defaults:
// document type "both", moderate complexity, and a $2 cost ceiling.
func (r GenerationRequest) Defaulted() GenerationRequest {
	if r.DocumentType == "" {
		r.DocumentType = DocumentTypeBoth
	}
	if r.Complexity == "" {
		r.Complexity = ComplexityModerate
	}
	if r.MaxCost == 0 {
		r.MaxCost = 2.0
	}
	if r.Language == "" {
		r.Language = "en"
	}
	return r
}

// GenerationStatus reports the lifecycle state of a generation request.
type GenerationStatus string

// Generation statuses.
const (
	StatusProcessing GenerationStatus = "processing"
	StatusCompleted  GenerationStatus = "completed"
	StatusFailed     GenerationStatus = "failed"
)

// GenerationResponse is the result returned to callers of the generation
// service. On failure the documents generated before the failure are still
// included so callers can inspect partial output, but they are not persisted.
type GenerationResponse struct {
	RequestID string           `json:"request_id"`
	Status    GenerationStatus `json:"status"`

	BRDDocument *BRDDocument `json:"brd_document,omitempty"`
	PRDDocument *PRDDocument `json:"prd_document,omitempty"`

	// Metadata carries timing and provenance details about the run.
	Metadata map[string]any `json:"generation_metadata,omitempty"`
	// CostBreakdown maps a cost label (brd_cost, prd_cost, total_cost)
	// to its dollar amount.
	CostBreakdown map[string]float64 `json:"cost_breakdown,omitempty"`
	// Cost is the combined cost record for the whole request.
	Cost *CostMetadata `json:"cost_metadata,omitempty"`

	ValidationResults []ValidationResult `json:"validation_results,omitempty"`
	ErrorMessage      string             `json:"error_message,omitempty"`
}
