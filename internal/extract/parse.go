package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gleanhq/glean/internal/docmodel"
)

// errNoFields marks a syntactically valid pass response that held no usable
// field entries. Targeted passes treat it as an empty result, not a failure.
var errNoFields = errors.New("pass output contained no usable fields")

// parsePassJSON recovers a JSON document from model output, tolerating
// markdown code fences and surrounding prose.
func parsePassJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty pass output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONCandidate(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	for _, candidate := range candidates {
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			normalized, mErr := json.Marshal(parsed)
			if mErr != nil {
				return nil, fmt.Errorf("failed to normalize pass output: %w", mErr)
			}
			return normalized, nil
		}
	}
	return nil, fmt.Errorf("no parseable JSON in pass output")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractJSONCandidate(content string) string {
	start := strings.Index(content, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(content, "}")
	if end < start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}

// parseCandidates converts one pass response into field candidates tagged
// with the pass that produced them. Entries that are bare values (not the
// {value, confidence} shape) are accepted with a default confidence, since
// models under minimal prompts often return flat maps.
func parseCandidates(content string, kind docmodel.PassKind, seq int) ([]docmodel.FieldCandidate, error) {
	raw, err := parsePassJSON(content)
	if err != nil {
		return nil, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("pass output is not a field map: %w", err)
	}

	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)

	candidates := make([]docmodel.FieldCandidate, 0, len(doc))
	for _, name := range names {
		c, ok := parseFieldEntry(name, doc[name])
		if !ok {
			continue
		}
		c.Pass = kind
		c.PassSeq = seq
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil, errNoFields
	}
	return candidates, nil
}

func parseFieldEntry(name string, raw json.RawMessage) (docmodel.FieldCandidate, bool) {
	c := docmodel.FieldCandidate{Name: name, Confidence: 0.5}

	var entry struct {
		Value        json.RawMessage `json:"value"`
		Confidence   *float64        `json:"confidence"`
		OriginalText string          `json:"original_text"`
	}
	if err := json.Unmarshal(raw, &entry); err == nil && entry.Value != nil {
		var value any
		if err := json.Unmarshal(entry.Value, &value); err != nil {
			return c, false
		}
		if value == nil || value == "" {
			return c, false
		}
		c.Value = value
		c.OriginalText = entry.OriginalText
		if entry.Confidence != nil {
			c.Confidence = clamp01(*entry.Confidence)
		}
		return c, true
	}

	// Bare value form: "field": "some value".
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return c, false
	}
	if value == nil || value == "" {
		return c, false
	}
	if _, isMap := value.(map[string]any); isMap {
		// A map without a "value" key is not a field entry.
		return c, false
	}
	c.Value = value
	return c, true
}

// parseDetection parses the document-type detection line protocol
// ("TYPE|confidence"). Unparseable responses fall back to unknown with a
// neutral confidence rather than failing the document.
func parseDetection(content string) Detection {
	line := strings.TrimSpace(content)
	if stripped := stripCodeFences(line); stripped != "" {
		line = stripped
	}
	line = strings.Trim(line, `"`)

	typeStr, confStr, found := strings.Cut(line, "|")
	if !found {
		return Detection{Type: docmodel.DocTypeUnknown, Confidence: 0.5}
	}

	detected := docmodel.ParseDocumentType(strings.ToLower(strings.TrimSpace(typeStr)))
	conf, err := strconv.ParseFloat(strings.TrimSpace(confStr), 64)
	if err != nil {
		conf = 0.5
	}
	return Detection{Type: detected, Confidence: clamp01(conf)}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
