// Package jsonextract recovers JSON documents from raw model output, which
// routinely arrives wrapped in markdown fences, surrounded by prose, or with
// minor syntax damage.
package jsonextract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MalformedOutputError reports that no recovery step produced valid JSON. It
// carries both the raw model output and the best cleaned candidate so callers
// can log them.
type MalformedOutputError struct {
	Raw     string
	Cleaned string
	Err     error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed model output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

var (
	fenceRe         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	// Control bytes the decoder rejects inside string literals. Newline and
	// tab stay as-is: they legitimately separate tokens in pretty-printed
	// output.
	controlCharRe = regexp.MustCompile("[\x00-\x08\x0b-\x1f]")
)

// Clean strips markdown fences and surrounding prose, returning the best
// JSON candidate substring. It does not guarantee the result parses.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	return s
}

// Extract decodes a JSON object from raw model output, trying progressively
// more aggressive recovery:
//  1. strip fences and parse;
//  2. parse the substring between the first '{' and last '}';
//  3. \u-escape stray control bytes and retry;
//  4. repair trailing commas and retry.
func Extract(raw string) (map[string]any, error) {
	var out map[string]any
	cleaned, err := extractInto(raw, "{", "}", &out)
	if err != nil {
		return nil, &MalformedOutputError{Raw: raw, Cleaned: cleaned, Err: err}
	}
	return out, nil
}

// ExtractSlice is Extract for top-level JSON arrays.
func ExtractSlice(raw string) ([]any, error) {
	var out []any
	cleaned, err := extractInto(raw, "[", "]", &out)
	if err != nil {
		return nil, &MalformedOutputError{Raw: raw, Cleaned: cleaned, Err: err}
	}
	return out, nil
}

func extractInto(raw, openTok, closeTok string, v any) (string, error) {
	s := Clean(raw)

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return s, nil
	}

	// Prose around the document: cut to the outermost delimiters.
	start := strings.Index(s, openTok)
	end := strings.LastIndex(s, closeTok)
	if start >= 0 && end > start {
		s = s[start : end+1]
		if err := json.Unmarshal([]byte(s), v); err == nil {
			return s, nil
		}
	}

	// Stray control bytes inside string literals.
	escaped := escapeControlChars(s)
	if escaped != s {
		if err := json.Unmarshal([]byte(escaped), v); err == nil {
			return escaped, nil
		}
	}

	// Common damage: trailing commas before a closing delimiter.
	repaired := trailingCommaRe.ReplaceAllString(escaped, "$1")
	err := json.Unmarshal([]byte(repaired), v)
	if err == nil {
		return repaired, nil
	}
	return repaired, err
}

func escapeControlChars(s string) string {
	return controlCharRe.ReplaceAllStringFunc(s, func(m string) string {
		return fmt.Sprintf(`\u%04x`, m[0])
	})
}
