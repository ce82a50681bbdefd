// Package sanitize recovers structured data from free-form generative model
// output. Nothing in this package returns an error: every stage either
// narrows the text further or gives up and reports where it stopped.
package sanitize

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Stage names reported in Result.Stage when recovery stops early.
const (
	StageEmpty  = "empty"
	StageLocate = "locate"
	StageParse  = "parse"
)

var (
	fenceRe         = regexp.MustCompile("```[A-Za-z0-9_+-]*")
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
)

// Result is the outcome of Sanitize.
type Result struct {
	// Object is the parsed JSON object, nil when parsing failed.
	Object map[string]any
	// Text is the cleaned candidate text handed to the JSON parser.
	Text string
	// Stage names the stage that failed, empty on success.
	Stage string
}

// Parsed reports whether a JSON object was recovered.
func (r Result) Parsed() bool {
	return r.Object != nil
}

// Sanitize runs the recovery stages over raw and returns the best-effort object.
func Sanitize(raw string) Result {
	cleaned := StripFences(raw)

	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return Result{Stage: StageEmpty}
	}

	candidate, ok := locateObject(cleaned)
	if !ok {
		return Result{Text: cleaned, Stage: StageLocate}
	}

	candidate = RemoveTrailingCommas(candidate)
	candidate = closeUnterminatedString(candidate)

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil || obj == nil {
		return Result{Text: candidate, Stage: StageParse}
	}

	return Result{Object: obj, Text: candidate}
}

// StripFences removes markdown code fence markers and their language tags.
func StripFences(s string) string {
	return fenceRe.ReplaceAllString(s, "")
}

// RemoveTrailingCommas drops commas that directly precede a closing brace or bracket.
func RemoveTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// locateObject cuts s down to the span between the first '{' and the last '}'.
// Output truncated before its closing brace keeps the tail and gets one appended.
func locateObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}

	end := strings.LastIndex(s, "}")
	if end < start {
		return s[start:] + "}", true
	}

	return s[start : end+1], true
}

// closeUnterminatedString inserts a quote before the final '}' when the
// number of unescaped quotes is odd.
func closeUnterminatedString(s string) string {
	if countQuotes(s)%2 == 0 {
		return s
	}

	idx := strings.LastIndex(s, "}")
	if idx == -1 {
		return s + `"`
	}

	return s[:idx] + `"` + s[idx:]
}

func countQuotes(s string) int {
	count := 0
	escaped := false
	for _, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '"':
			count++
		}
	}
	return count
}
