package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/hupe1980/opmesh/core"
)

const (
	summaryPreviewLen = 200
	summaryKeyLimit   = 5
)

// encode serializes v as compact JSON without HTML escaping.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// compressResult returns the bytes to store for a result: the verbatim
// encoding when it fits within threshold, otherwise an encoded summary.
func compressResult(result core.Result, threshold int) (stored json.RawMessage, compressed bool, err error) {
	raw, err := encode(result)
	if err != nil {
		return nil, false, fmt.Errorf("serialize result: %w", err)
	}
	if len(raw) <= threshold {
		return raw, false, nil
	}

	summary, err := summarize(raw)
	if err != nil {
		return nil, false, err
	}
	out, err := encode(summary)
	if err != nil {
		return nil, false, fmt.Errorf("serialize summary: %w", err)
	}
	return out, true, nil
}

// summarize builds the CompressedSummary of an oversized serialized result.
func summarize(raw []byte) (core.CompressedSummary, error) {
	keys, err := topLevelKeys(raw, summaryKeyLimit)
	if err != nil {
		return core.CompressedSummary{}, fmt.Errorf("summarize result: %w", err)
	}
	return core.CompressedSummary{
		Summary:      preview(raw, summaryPreviewLen) + "...",
		Type:         jsonType(raw),
		Keys:         keys,
		Compressed:   true,
		OriginalSize: len(raw),
	}, nil
}

// preview returns at most n runes of raw.
func preview(raw []byte, n int) string {
	i := 0
	for count := 0; i < len(raw) && count < n; count++ {
		_, size := utf8.DecodeRune(raw[i:])
		i += size
	}
	return string(raw[:i])
}

func jsonType(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "undefined"
	}
	switch trimmed[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

// topLevelKeys returns up to limit keys of a JSON object in serialized order,
// or up to limit indices of a JSON array. Scalars have no keys.
func topLevelKeys(raw []byte, limit int) ([]string, error) {
	keys := []string{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return keys, nil
	}

	for i := 0; len(keys) < limit && dec.More(); i++ {
		if delim == '{' {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := keyTok.(string)
			keys = append(keys, key)
		} else {
			keys = append(keys, strconv.Itoa(i))
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
	return keys, nil
}
