// Package utils holds the JSON recovery helpers shared by every component
// that parses model output. LLM responses arrive wrapped in conversation,
// code fences, or mildly broken JSON; the helpers here turn that into
// something encoding/json will accept, or fail cleanly.
package utils

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// StripFraming removes conversational filler and markdown code fences from
// a model response, then narrows to the outermost JSON value. The result
// is best-effort: callers still run it through SmartUnmarshal.
func StripFraming(resp string) string {
	cleaned := strings.ReplaceAll(resp, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	// Narrow to the outermost object or array so a leading "Sure, here is
	// the JSON you asked for:" does not poison the parse.
	objStart := strings.Index(cleaned, "{")
	arrStart := strings.Index(cleaned, "[")
	start, closer := objStart, "}"
	if objStart < 0 || (arrStart >= 0 && arrStart < objStart) {
		start, closer = arrStart, "]"
	}
	if start >= 0 {
		if end := strings.LastIndex(cleaned, closer); end > start {
			cleaned = cleaned[start : end+1]
		}
	}
	return cleaned
}

// RepairJSON fixes common LLM JSON defects (single quotes, unquoted keys,
// trailing commas, unclosed brackets).
func RepairJSON(malformed string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformed)
	if err != nil {
		return "", fmt.Errorf("json repair failed: %w", err)
	}
	return repaired, nil
}

// SmartUnmarshal tries progressively more lenient parsers until one of
// them fills the schema: standard JSON, then json-repair, then Hjson.
func SmartUnmarshal(input string, schema interface{}) error {
	cleaned := StripFraming(input)

	if err := json.Unmarshal([]byte(cleaned), schema); err == nil {
		return nil
	}

	if repaired, err := RepairJSON(cleaned); err == nil {
		if err := json.Unmarshal([]byte(repaired), schema); err == nil {
			return nil
		}
	}

	if err := hjson.Unmarshal([]byte(cleaned), schema); err == nil {
		return nil
	}

	return fmt.Errorf("all parsing strategies failed for model response")
}
