package executor

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/hupe1980/opmesh/core"
)

var templateFuncs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// RenderInstructions expands {{ }} placeholders in text. The template sees
// .provider, .action, .type and .parameters of the operation.
//
//	"You operate {{ .provider | upper }} in {{ default \"us-east\" .parameters.region }}."
func RenderInstructions(text, provider string, op core.Operation) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("instructions").Funcs(templateFuncs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse instructions: %w", err)
	}

	params := op.Parameters
	if params == nil {
		params = map[string]any{}
	}
	data := map[string]any{
		"provider":   provider,
		"action":     op.Action,
		"type":       op.Type,
		"parameters": params,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render instructions: %w", err)
	}
	return buf.String(), nil
}
