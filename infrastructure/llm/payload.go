package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONPayload turns a model's text output into a decoded JSON object.
// Models frequently wrap JSON in markdown code fences or surround it with
// prose, so extraction proceeds in stages: parse the text as-is, strip any
// code-fence wrapping and retry, and finally search for the outermost
// `{...}` span. An error is returned only when no stage yields valid JSON.
func ExtractJSONPayload(text string) (map[string]any, error) {
	candidates := []string{text, stripCodeFences(text)}

	if span := locateObjectSpan(text); span != "" {
		candidates = append(candidates, span)
	}

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(candidate), &fields); err == nil {
			return fields, nil
		}
	}

	return nil, fmt.Errorf("no JSON object found in response text")
}

// stripCodeFences removes a markdown code-fence wrapper from the text,
// handling both ```json and bare ``` fences.
func stripCodeFences(text string) string {
	for _, marker := range []string{"```json", "```"} {
		start := strings.Index(text, marker)
		if start < 0 {
			continue
		}
		start += len(marker)
		end := strings.Index(text[start:], "```")
		if end < 0 {
			return strings.TrimSpace(text[start:])
		}
		return strings.TrimSpace(text[start : start+end])
	}
	return text
}

// locateObjectSpan returns the substring from the first '{' to the last '}'
// in the text, or empty when no such span exists.
func locateObjectSpan(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
