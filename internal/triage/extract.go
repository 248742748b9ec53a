package triage

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ExtractReason classifies why payload extraction failed.
type ExtractReason string

const (
	// NoPayloadFound means the text contains no object-like payload at all.
	NoPayloadFound ExtractReason = "no_payload_found"

	// MalformedPayload means a candidate payload was found but could not
	// be parsed (truncated, trailing garbage inside the braces, etc).
	MalformedPayload ExtractReason = "malformed_payload"
)

// ExtractionError is the typed failure returned by Extract. It keeps the
// raw text so callers can embed it in a degraded record for transparency.
type ExtractionError struct {
	Reason ExtractReason
	Raw    string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract: %s", e.Reason)
}

// fenceRe strips markdown code fences the model frequently wraps its
// payload in, with or without a language tag.
var fenceRe = regexp.MustCompile("(?i)```(?:json)?")

// Extract isolates the first balanced JSON object embedded in raw model
// text and returns it as a generic mapping. It is a pure function and
// never panics: any input, including empty strings and binary garbage,
// yields either a mapping or an *ExtractionError.
//
// The scan strips code fences, finds the first '{', and walks to its
// matching '}' with depth counting that is aware of string values, so
// braces and escaped quotes inside strings do not confuse it. When the
// text holds several candidate payloads the first balanced one wins.
func Extract(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ExtractionError{Reason: NoPayloadFound, Raw: raw}
	}

	text := fenceRe.ReplaceAllString(raw, "")

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, &ExtractionError{Reason: NoPayloadFound, Raw: raw}
	}

	var (
		depth    int
		inString bool
		escaped  bool
	)
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// braces inside string values are payload text, not structure
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				var m map[string]any
				if err := json.Unmarshal([]byte(text[start:i+1]), &m); err != nil {
					return nil, &ExtractionError{Reason: MalformedPayload, Raw: raw}
				}
				return m, nil
			}
		}
	}

	// opening brace with no matching close: truncated output
	return nil, &ExtractionError{Reason: MalformedPayload, Raw: raw}
}
