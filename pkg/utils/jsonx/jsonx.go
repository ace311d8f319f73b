// Package jsonx extracts structured data from raw LLM output. Models wrap
// JSON in code fences, prose, or both; the extractor tries a sequence of
// increasingly permissive strategies and reports which one produced the
// value, so callers can distinguish a legitimately empty result from a
// parse failure.
package jsonx

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Strategy identifies which extraction strategy produced a Result.
type Strategy string

const (
	// StrategyDirect parsed the whole (fence-stripped) string as JSON.
	StrategyDirect Strategy = "direct"
	// StrategyKeyedWindow parsed the first-{ to last-} window, or a
	// brace-delimited fragment containing the expected key.
	StrategyKeyedWindow Strategy = "keyed_window"
	// StrategyObject parsed any {...} substring.
	StrategyObject Strategy = "object"
	// StrategyArray parsed any [...] substring.
	StrategyArray Strategy = "array"
	// StrategyQuoted collected double-quoted substrings as a flat list.
	// Applied only for the facts key.
	StrategyQuoted Strategy = "quoted"
)

// FactsKey is the one expected key for which the quoted-substring fallback
// applies: a fact list degraded to prose is still recoverable as strings.
const FactsKey = "facts"

// MemoryKey is the expected key of reconciliation output: an object whose
// "memory" field holds the operation list.
const MemoryKey = "memory"

// Result is the outcome of an extraction attempt. Exactly one of Value or
// Err is meaningful: on success Value holds the decoded data and Strategy
// names the strategy that won; on failure Err carries the reason and Value
// is nil.
type Result struct {
	Value    any
	Strategy Strategy
	Err      error
}

// Ok reports whether extraction succeeded.
func (r Result) Ok() bool {
	return r.Err == nil
}

// StringList converts the extracted value to a list of strings, dropping
// non-string elements. Returns nil when the value is not a list.
func (r Result) StringList() []string {
	items, ok := r.Value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

var (
	objectRe = regexp.MustCompile(`(?s)\{.*\}`)
	arrayRe  = regexp.MustCompile(`(?s)\[.*\]`)
)

// Extract pulls structured data out of raw LLM output. When expectedKey is
// non-empty and the parsed value is an object, the value under that key is
// returned instead of the whole object (an absent key yields an empty
// list). Extraction never panics; malformed input yields a Result with a
// non-nil Err.
func Extract(raw string, expectedKey string) Result {
	text := stripFences(strings.TrimSpace(raw))
	if text == "" {
		return Result{Err: goerr.New("empty response text")}
	}

	// Strategy 1: the whole string is JSON.
	var value any
	if err := json.Unmarshal([]byte(text), &value); err == nil {
		return Result{Value: applyKey(value, expectedKey), Strategy: StrategyDirect}
	}

	// Strategy 2: brace window containing the expected key.
	if expectedKey != "" {
		if v, ok := extractKeyedWindow(text, expectedKey); ok {
			return Result{Value: v, Strategy: StrategyKeyedWindow}
		}
	}

	// Strategy 3: any {...} substring.
	if m := objectRe.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), &value); err == nil {
			return Result{Value: applyKey(value, expectedKey), Strategy: StrategyObject}
		}
	}

	// Strategy 4: any [...] substring.
	if m := arrayRe.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), &value); err == nil {
			if _, ok := value.([]any); ok {
				return Result{Value: value, Strategy: StrategyArray}
			}
		}
	}

	// Strategy 5: quoted substrings as a flat fact list.
	if expectedKey == FactsKey {
		if quoted := extractQuoted(text); len(quoted) > 0 {
			return Result{Value: quoted, Strategy: StrategyQuoted}
		}
	}

	return Result{Err: goerr.New("no parsable JSON content",
		goerr.Value("head", truncate(text, 200)))}
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// applyKey unwraps value[key] when value is an object and key is set.
// A missing key yields an empty list, matching the pipeline's
// degrade-to-empty policy.
func applyKey(value any, key string) any {
	if key == "" {
		return value
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return value
	}
	if v, ok := obj[key]; ok {
		return v
	}
	return []any{}
}

func extractKeyedWindow(text, key string) (any, bool) {
	// Widest window first: first '{' to last '}'.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		var obj map[string]any
		if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err == nil {
			if v, ok := obj[key]; ok {
				return v, true
			}
		}
	}

	// Narrow fragment: a single brace pair mentioning the key.
	fragmentRe, err := regexp.Compile(`(?s)\{[^{}]*"` + regexp.QuoteMeta(key) + `"[^{}]*\}`)
	if err != nil {
		return nil, false
	}
	if m := fragmentRe.FindString(text); m != "" {
		var obj map[string]any
		if err := json.Unmarshal([]byte(m), &obj); err == nil {
			if v, ok := obj[key]; ok {
				return v, true
			}
		}
	}

	return nil, false
}

var quotedRe = regexp.MustCompile(`"([^"]+)"`)

func extractQuoted(text string) []any {
	matches := quotedRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]any, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
