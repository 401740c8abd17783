package utils

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when no decodable JSON object or array can be
// found inside the text.
var ErrNoJSON = errors.New("no JSON payload found in text")

// DecodeJSONObject decodes the first JSON object or array found in text
// into v. Model output is untrusted: the payload may arrive bare, wrapped
// in a markdown fence, or buried in surrounding prose. Two stages:
//
//  1. direct decode of the whole (fence-stripped) text,
//  2. scan for the first balanced {...} or [...] span and decode that.
//
// Both failures collapse into ErrNoJSON so callers can apply a uniform
// soft-failure policy instead of distinguishing parse errors.
func DecodeJSONObject(text string, v interface{}) error {
	trimmed := stripFences(strings.TrimSpace(text))
	if json.Unmarshal([]byte(trimmed), v) == nil {
		return nil
	}
	span, ok := firstBalancedSpan(trimmed)
	if !ok {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(span), v); err != nil {
		return ErrNoJSON
	}
	return nil
}

// stripFences removes a surrounding ```json ... ``` (or plain ```) fence.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := strings.TrimPrefix(s, "```")
	if idx := strings.Index(body, "\n"); idx >= 0 {
		body = body[idx+1:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// firstBalancedSpan returns the first balanced brace or bracket span,
// respecting string literals and escapes.
func firstBalancedSpan(s string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
