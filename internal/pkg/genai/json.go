package genai

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a single-shot response carries no parseable JSON
// object. This is fatal for the call; retrying the same prompt without a
// backoff signal is not expected to self-correct.
var ErrNoJSON = errors.New("no JSON object in AI response")

// UnmarshalJSONResponse extracts a JSON object from a model response that may
// wrap it in markdown fences or surrounding prose, and unmarshals it into out.
func UnmarshalJSONResponse(raw string, out interface{}) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```JSON")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err == nil {
			return nil
		}
	}

	return ErrNoJSON
}
