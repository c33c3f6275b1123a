package dualmodel

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedJSONRe   = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	braceSpanRe    = regexp.MustCompile(`(?s)\{.*\}`)
	extractorChain = []func(string) (map[string]any, bool){
		tryDirectJSON,
		tryFencedJSON,
		tryBraceSpan,
	}
)

// ExtractJSON recovers a JSON object from free-form model text. Strategies
// are attempted in order: direct parse, fenced ```json block, first
// balanced {...} span. Returns an error only when every strategy fails.
func ExtractJSON(text string) (map[string]any, error) {
	for _, attempt := range extractorChain {
		if obj, ok := attempt(text); ok {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("no JSON object found in text: %s", truncate(text, 100))
}

func tryDirectJSON(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func tryFencedJSON(text string) (map[string]any, bool) {
	m := fencedJSONRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(m[1]), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func tryBraceSpan(text string) (map[string]any, bool) {
	m := braceSpanRe.FindString(text)
	if m == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(m), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
