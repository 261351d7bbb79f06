// Package contract normalizes raw model output into trustworthy structured
// artifacts. Generation output is untrusted free-form text: it may wrap the
// payload in prose or markdown fences, use inconsistent quoting, or arrive
// truncated. The contract either produces a structured value containing the
// stage's declared top-level keys or signals a parse failure; it never panics
// and no error escapes past the engine that applies it.
package contract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ParseError reports that raw model output could not be decoded into the
// expected structured shape. Engines recover from it by building the stage's
// fallback artifact.
type ParseError struct {
	Stage  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("stage %s: parse failure: %s", e.Stage, e.Reason)
}

// FallbackFunc builds a stage's fixed default artifact from the topic alone.
// It must be total: no I/O, no parsing, never fails.
type FallbackFunc func(topic string) map[string]any

// Contract declares how one stage's raw output is validated and degraded.
type Contract struct {
	Stage        string
	RequiredKeys []string
	Fallback     FallbackFunc
}

// Normalize strips known code-fence wrappers from raw text, extracts the JSON
// payload, and validates the stage's required top-level keys. It returns
// either a complete structured value or a *ParseError; nothing in between.
func (c Contract) Normalize(raw string) (map[string]any, error) {
	trimmed := stripFences(raw)
	if trimmed == "" {
		return nil, &ParseError{Stage: c.Stage, Reason: "empty response"}
	}

	if data, ok := decodeObject(trimmed); ok {
		return c.validated(data)
	}

	// The payload may be embedded in prose, or followed by smaller
	// JSON-ish fragments such as inline format examples. Try candidates
	// largest first and accept the first one that both decodes and
	// carries the stage's required keys; the real payload is almost
	// always the biggest balanced object in the response.
	candidates := scanObjects(trimmed)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].size() > candidates[j].size()
	})

	var firstDecoded map[string]any
	for _, cand := range candidates {
		data, ok := decodeObject(cand.text)
		if !ok {
			continue
		}
		if len(c.missingKeys(data)) == 0 {
			return data, nil
		}
		if firstDecoded == nil {
			firstDecoded = data
		}
	}
	if firstDecoded != nil {
		// Everything decodable was incomplete; report the best attempt.
		return c.validated(firstDecoded)
	}
	return nil, &ParseError{Stage: c.Stage, Reason: "no decodable JSON object found"}
}

func (c Contract) validated(data map[string]any) (map[string]any, error) {
	if missing := c.missingKeys(data); len(missing) > 0 {
		return nil, &ParseError{
			Stage:  c.Stage,
			Reason: fmt.Sprintf("missing required keys: %s", strings.Join(missing, ", ")),
		}
	}
	return data, nil
}

// BuildFallback returns the stage's fixed default artifact for the topic.
func (c Contract) BuildFallback(topic string) map[string]any {
	return c.Fallback(topic)
}

func (c Contract) missingKeys(data map[string]any) []string {
	var missing []string
	for _, key := range c.RequiredKeys {
		if _, ok := data[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// stripFences removes leading/trailing markdown code-fence markers.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```JSON", "```"} {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeObject attempts a strict JSON object parse.
func decodeObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return nil, false
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return nil, false
	}
	return data, true
}
