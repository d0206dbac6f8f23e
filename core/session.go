package core

import (
	"encoding/json"
	"slices"
	"time"
)

// CompressedSummary replaces a stored result whose serialized form exceeded
// the compression threshold.
type CompressedSummary struct {
	Summary      string   `json:"summary"`
	Type         string   `json:"type"`
	Keys         []string `json:"keys"`
	Compressed   bool     `json:"compressed"`
	OriginalSize int      `json:"originalSize"`
}

// OperationRecord is one entry of a session's operation log.
//
// Result holds the serialized result exactly as it was stored: either the
// verbatim JSON encoding of the executor output or, when Compressed is set,
// the encoding of a CompressedSummary.
type OperationRecord struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Operation  Operation       `json:"operation"`
	Result     json.RawMessage `json:"result"`
	Provider   string          `json:"provider"`
	Action     string          `json:"action"`
	Compressed bool            `json:"-"`
}

// Summary decodes the stored CompressedSummary. ok is false for verbatim results.
func (r OperationRecord) Summary() (summary CompressedSummary, ok bool) {
	if !r.Compressed {
		return CompressedSummary{}, false
	}
	if err := json.Unmarshal(r.Result, &summary); err != nil {
		return CompressedSummary{}, false
	}
	return summary, true
}

// Decode unmarshals the stored result into v.
func (r OperationRecord) Decode(v any) error {
	return json.Unmarshal(r.Result, v)
}

// Clone returns a deep copy of the record's slices and parameter map.
func (r OperationRecord) Clone() OperationRecord {
	r.Operation = r.Operation.Clone()
	r.Result = slices.Clone(r.Result)
	return r
}

// Session is a snapshot of a caller-scoped operation log. The context store
// owns the live session; values handed out are copies.
type Session struct {
	ID             string            `json:"id"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastActivityAt time.Time         `json:"lastActivityAt"`
	Operations     []OperationRecord `json:"operations"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	ops := make([]OperationRecord, len(s.Operations))
	for i, rec := range s.Operations {
		ops[i] = rec.Clone()
	}
	s.Operations = ops
	return s
}
