package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkBlockPattern matches <think>...</think> reasoning blocks anywhere in a reply.
var thinkBlockPattern = regexp.MustCompile(`(?is)<think>.*?</think>`)

// unclosedThinkPattern matches a reasoning block the model never closed.
var unclosedThinkPattern = regexp.MustCompile(`(?is)<think>.*$`)

// StripThinking removes reasoning blocks from a model reply. An unclosed
// <think> swallows the rest of the reply.
func StripThinking(response string) string {
	cleaned := thinkBlockPattern.ReplaceAllString(response, "")
	cleaned = unclosedThinkPattern.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// ExtractJSON extracts JSON content from a reply that may contain <think>
// blocks, markdown code fences or surrounding prose.
func ExtractJSON(response string) (string, error) {
	cleaned := StripThinking(response)

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if jsonStr, ok := extractBalancedJSON(cleaned, '{', '}'); ok && json.Valid([]byte(jsonStr)) {
			return jsonStr, nil
		}
	}

	if arrStart >= 0 {
		if jsonStr, ok := extractBalancedJSON(cleaned, '[', ']'); ok && json.Valid([]byte(jsonStr)) {
			return jsonStr, nil
		}
	}

	if json.Valid([]byte(cleaned)) && cleaned != "" {
		return cleaned, nil
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// extractBalancedJSON finds the first balanced structure starting with openChar,
// skipping brackets inside JSON strings.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// ParseJSONResponse extracts JSON from a reply and unmarshals it into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return result, nil
}
