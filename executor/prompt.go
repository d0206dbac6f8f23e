package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/opmesh/core"
)

// DefaultInstructions frames an operation for a language model backend.
const DefaultInstructions = "You are an infrastructure provider. Carry out the operation described " +
	"by the JSON document and reply with a single JSON value describing the outcome. " +
	"Do not add any text outside the JSON value."

// Prompt renders op, bound to provider, as an indented JSON document.
func Prompt(provider string, op core.Operation) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(op.WithProvider(provider)); err != nil {
		return "", fmt.Errorf("render operation: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// ParseResult decodes a model reply. A reply that is a JSON value (optionally
// inside a fenced code block) is decoded; anything else is returned as
// {"text": reply}.
func ParseResult(reply string) core.Result {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	var v any
	if text != "" && json.Unmarshal([]byte(text), &v) == nil {
		return v
	}
	return map[string]any{"text": strings.TrimSpace(reply)}
}
