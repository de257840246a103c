package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Pre-compiled patterns for the cleanup strategies. Model output wraps JSON
// in code fences, leaves trailing commas, and occasionally emits comments;
// these recover the payload without re-prompting.
var (
	codeFenceRegex     = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\n?([\\s\\S]*?)\n?`{3}")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	lineCommentRegex   = regexp.MustCompile(`(?m)^\s*//.*$`)
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex         = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// maxParseInput bounds parser input to prevent memory blowups on runaway
// model output.
const maxParseInput = 10 * 1024 * 1024

// ParseResult represents the result of a JSON parse operation.
type ParseResult[T any] struct {
	Success bool
	Data    T
	Error   string
}

// Parse extracts a JSON value of type T from model output, tolerating the
// common formatting quirks of LLM responses.
//
// Strategy sequence:
//  1. Direct JSON parse
//  2. Remove code fences and retry
//  3. Strip trailing commas and comments and retry
//  4. Extract the outermost JSON object/array from mixed content and retry
//
// context names the call site for log messages.
func Parse[T any](text string, context string) ParseResult[T] {
	if len(text) > maxParseInput {
		return parseError[T](fmt.Sprintf("input exceeds size limit (%d > %d bytes)", len(text), maxParseInput), context)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return parseError[T]("empty input", context)
	}

	if data, err := tryParse[T](trimmed); err == nil {
		return ParseResult[T]{Success: true, Data: data}
	}

	withoutFences := trimmed
	if match := codeFenceRegex.FindStringSubmatch(trimmed); match != nil {
		withoutFences = strings.TrimSpace(match[1])
		if data, err := tryParse[T](withoutFences); err == nil {
			return ParseResult[T]{Success: true, Data: data}
		}
	}

	cleaned := trailingCommaRegex.ReplaceAllString(withoutFences, "$1")
	cleaned = lineCommentRegex.ReplaceAllString(cleaned, "")
	if data, err := tryParse[T](cleaned); err == nil {
		return ParseResult[T]{Success: true, Data: data}
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if data, err := tryParse[T](extracted); err == nil {
			return ParseResult[T]{Success: true, Data: data}
		}
	}

	slog.Warn("all JSON parsing strategies failed",
		"context", context,
		"textPreview", truncate(text, 100))
	return parseError[T]("all JSON parsing strategies failed", context)
}

func tryParse[T any](text string) (T, error) {
	var data T
	err := json.Unmarshal([]byte(text), &data)
	return data, err
}

// extractJSON pulls the outermost JSON object (preferred) or array out of
// mixed prose-and-JSON content.
func extractJSON(text string) string {
	if match := objectRegex.FindString(text); match != "" {
		return match
	}
	return arrayRegex.FindString(text)
}

func parseError[T any](msg, context string) ParseResult[T] {
	if context != "" {
		msg = fmt.Sprintf("%s (%s)", msg, context)
	}
	return ParseResult[T]{Success: false, Error: msg}
}

// truncate shortens text for log previews
func truncate(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars] + "..."
}
