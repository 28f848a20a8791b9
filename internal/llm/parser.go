package llm

import (
	"encoding/json"
	"strings"
)

// batchItem is one parsed classification from a provider response.
type batchItem struct {
	Label      string  `json:"label"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence"`
}

// cleanMarkdownWrapper strips a markdown code fence from around a response.
// Models wrap JSON in ```json fences often enough that every parse path has
// to tolerate it.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```")
	if idx := strings.Index(content, "\n"); idx >= 0 {
		// Drop the language tag line (```json, ```JSON, bare ```).
		content = content[idx+1:]
	}
	if idx := strings.LastIndex(content, "```"); idx >= 0 {
		content = content[:idx]
	}
	return strings.TrimSpace(content)
}

// parseBatchItems parses a provider response into exactly want items.
//
// The happy path is a JSON array of {label, category, confidence}; a wrapped
// {"results": [...]} object is also accepted. A response that is not JSON at
// all downgrades every slot to the raw trimmed text with confidence 0 rather
// than failing the batch. Length mismatches pad with unknowns or drop
// extras.
func parseBatchItems(content string, want int) []batchItem {
	cleaned := cleanMarkdownWrapper(content)

	var parsed []batchItem
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		var wrapped struct {
			Results []batchItem `json:"results"`
		}
		if err := json.Unmarshal([]byte(cleaned), &wrapped); err == nil && len(wrapped.Results) > 0 {
			parsed = wrapped.Results
		} else {
			// Non-JSON fallback: downgrade to the raw text, never crash.
			fallback := strings.TrimSpace(cleaned)
			items := make([]batchItem, want)
			for i := range items {
				items[i] = batchItem{Label: fallback, Confidence: 0}
			}
			return items
		}
	}

	items := make([]batchItem, want)
	for i := range items {
		if i >= len(parsed) {
			items[i] = batchItem{Label: "unknown", Confidence: 0}
			continue
		}
		item := parsed[i]
		item.Label = strings.TrimSpace(item.Label)
		if item.Label == "" {
			item.Label = "unknown"
			item.Confidence = 0
		}
		if item.Confidence < 0 {
			item.Confidence = 0
		} else if item.Confidence > 1 {
			item.Confidence = 1
		}
		items[i] = item
	}
	return items
}
