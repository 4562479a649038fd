package domain

import "time"

// CostMetadata records the token usage and dollar cost of one provider call.
// Combined records for multi-call pipelines are built by summing constituent
// records; a CostMetadata is never mutated after construction.
type CostMetadata struct {
	// Provider names the LLM backend that served the call, or a composite
	// label such as "multi-pass" for combined records.
	Provider string `json:"provider"`
	// Model is the model identifier used for the call.
	Model string `json:"model_name"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// CostPer1KInput and CostPer1KOutput are the rates applied to this call.
	// For combined records they hold the token-weighted average rate.
	CostPer1KInput  float64 `json:"cost_per_1k_input"`
	CostPer1KOutput float64 `json:"cost_per_1k_output"`

	// TotalCost is the dollar cost of the call.
	TotalCost float64 `json:"total_cost"`
	// GenerationTime is the wall-clock latency; combined records sum the
	// latencies of their parts.
	GenerationTime time.Duration `json:"generation_time"`
	Cached         bool          `json:"cached"`

	// Breakdown maps a phase or document label to its individual dollar
	// cost. Populated only on combined records.
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

// TotalTokens returns the combined input and output token count.
func (c CostMetadata) TotalTokens() int {
	return c.InputTokens + c.OutputTokens
}

// CombinePair merges two cost records into one, as used when a single
// request produces both a BRD and a PRD. Token counts, dollar totals, and
// latencies sum; per-1K rates are averaged.
func CombinePair(a, b CostMetadata) CostMetadata {
	return CostMetadata{
		Provider:        a.Provider + "+" + b.Provider,
		Model:           a.Model + "+" + b.Model,
		InputTokens:     a.InputTokens + b.InputTokens,
		OutputTokens:    a.OutputTokens + b.OutputTokens,
		CostPer1KInput:  (a.CostPer1KInput + b.CostPer1KInput) / 2,
		CostPer1KOutput: (a.CostPer1KOutput + b.CostPer1KOutput) / 2,
		TotalCost:       a.TotalCost + b.TotalCost,
		GenerationTime:  a.GenerationTime + b.GenerationTime,
		Cached:          a.Cached || b.Cached,
	}
}

// PhaseCost labels one phase's cost record inside a sequential pipeline.
type PhaseCost struct {
	Name string
	Cost CostMetadata
}

// CombineSequential merges the per-phase costs of a sequential multi-provider
// pipeline into a single record. Token counts, dollar totals, and latencies
// sum exactly; the per-1K rate becomes the token-weighted average
// (total cost / total tokens * 1000); the breakdown map retains each
// phase's individual dollar cost.
func CombineSequential(provider, model string, phases []PhaseCost) CostMetadata {
	combined := CostMetadata{
		Provider:  provider,
		Model:     model,
		Breakdown: make(map[string]float64, len(phases)),
	}

	for _, p := range phases {
		combined.InputTokens += p.Cost.InputTokens
		combined.OutputTokens += p.Cost.OutputTokens
		combined.TotalCost += p.Cost.TotalCost
		combined.GenerationTime += p.Cost.GenerationTime
		combined.Cached = combined.Cached || p.Cost.Cached
		combined.Breakdown[p.Name] = p.Cost.TotalCost
	}

	if total := combined.TotalTokens(); total > 0 {
		avg := combined.TotalCost / (float64(total) / 1000)
		combined.CostPer1KInput = avg
		combined.CostPer1KOutput = avg
	}

	return combined
}
