package engine

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/opmesh/core"
)

const resultPrefix = "result."

// EvaluateCondition decides whether a sequential workflow continues after
// step. Unrecognized conditions evaluate to true.
func EvaluateCondition(condition string, step core.StepResult) bool {
	switch {
	case condition == "success":
		return step.Success
	case condition == "failure":
		return !step.Success
	case strings.HasPrefix(condition, resultPrefix):
		return truthy(lookup(step.Result, strings.TrimPrefix(condition, resultPrefix)))
	default:
		return true
	}
}

// lookup resolves a dotted path inside the JSON form of result. Segments are
// literal keys (or array indices); unresolvable paths yield a non-existent
// gjson.Result.
func lookup(result core.Result, path string) gjson.Result {
	if result == nil || path == "" {
		return gjson.Result{}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return gjson.Result{}
	}
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		if seg == "" {
			return gjson.Result{}
		}
		segments[i] = escapeSegment(seg)
	}
	return gjson.GetBytes(raw, strings.Join(segments, "."))
}

// escapeSegment escapes gjson path syntax so seg matches a key verbatim.
func escapeSegment(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		switch r {
		case '\\', '.', '*', '?', '|', '#', '@', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// truthy applies JavaScript-style truthiness: missing, null, false, 0, NaN
// and "" are false; objects and arrays are true even when empty.
func truthy(v gjson.Result) bool {
	if !v.Exists() {
		return false
	}
	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.True, gjson.JSON:
		return true
	case gjson.Number:
		return v.Num != 0 && !math.IsNaN(v.Num)
	case gjson.String:
		return v.Str != ""
	default:
		return false
	}
}
