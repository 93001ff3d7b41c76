// Package agents implements the six analysis stages: CPT extraction, ICD
// selection, CCI bundling checks, LCD coverage, modifier assignment, and
// RVU calculation. The extraction stages call the AI model service and
// parse its JSON replies; the reference stages run against seeded data
// services.
package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeModelJSON parses a model reply into out, tolerating a markdown
// code fence and leading prose around the JSON object.
func decodeModelJSON(reply string, out any) error {
	cleaned := strings.TrimSpace(reply)
	if idx := strings.Index(cleaned, "```"); idx >= 0 {
		cleaned = cleaned[idx+3:]
		cleaned = strings.TrimPrefix(cleaned, "json")
		if end := strings.Index(cleaned, "```"); end >= 0 {
			cleaned = cleaned[:end]
		}
	}
	start := strings.IndexAny(cleaned, "{[")
	if start < 0 {
		return fmt.Errorf("no JSON payload in model reply")
	}
	cleaned = cleaned[start:]
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), out); err != nil {
		return fmt.Errorf("decode model reply: %w", err)
	}
	return nil
}
