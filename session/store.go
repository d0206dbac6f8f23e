package session

import (
	"sync"
	"time"

	"github.com/hupe1980/opmesh/core"
	"github.com/hupe1980/opmesh/logging"
)

// Options configures a Store.
type Options struct {
	// MaxContextSize bounds the serialized size (bytes of JSON) of a
	// session's operation list.
	MaxContextSize int

	// CompressionThreshold is the serialized result size above which a
	// CompressedSummary is stored instead of the result.
	CompressionThreshold int

	// RelevantLimit caps the records returned by GetRelevantContext.
	RelevantLimit int

	// MaxAge is the inactivity period after which CleanupExpiredSessions
	// removes a session when called with a zero max age.
	MaxAge time.Duration

	Clock  core.Clock
	Logger logging.Logger
}

// DefaultOptions returns the stock context budget.
func DefaultOptions() Options {
	return Options{
		MaxContextSize:       10000,
		CompressionThreshold: 5000,
		RelevantLimit:        5,
		MaxAge:               24 * time.Hour,
		Clock:                core.SystemClock{},
		Logger:               logging.NoOpLogger{},
	}
}

type entry struct {
	record core.OperationRecord
	size   int
}

type sessionState struct {
	id             string
	createdAt      time.Time
	lastActivityAt time.Time
	entries        []entry
	entriesSize    int // sum of entry sizes
}

// listSize is the length of the JSON array encoding of the operation list.
func (s *sessionState) listSize() int {
	if len(s.entries) == 0 {
		return 2
	}
	return 2 + s.entriesSize + len(s.entries) - 1
}

func (s *sessionState) snapshot() core.Session {
	ops := make([]core.OperationRecord, len(s.entries))
	for i, e := range s.entries {
		ops[i] = e.record.Clone()
	}
	return core.Session{ID: s.id, CreatedAt: s.createdAt, LastActivityAt: s.lastActivityAt, Operations: ops}
}

// Store is the in-memory context store. It exclusively owns its sessions and
// is safe for concurrent access; every mutation happens under the write lock.
type Store struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// NewStore constructs an empty store.
func NewStore(optFns ...func(o *Options)) *Store {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}
	if opts.RelevantLimit <= 0 {
		opts.RelevantLimit = DefaultOptions().RelevantLimit
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Store{opts: opts, sessions: map[string]*sessionState{}}
}

// GetOrCreateSession returns a snapshot of the session, creating it on first
// use. Either way its last activity time is refreshed.
func (s *Store) GetOrCreateSession(sessionID string) core.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchLocked(sessionID).snapshot()
}

// Session returns a snapshot of an existing session without touching it.
func (s *Store) Session(sessionID string) (core.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return core.Session{}, false
	}
	return st.snapshot(), true
}

// AddOperationResult appends the result of op to the session log and returns
// the new record id. Results whose serialized size exceeds the compression
// threshold are stored as a core.CompressedSummary. Afterwards the oldest
// records are evicted until the serialized list fits MaxContextSize; the
// newest record is always kept.
func (s *Store) AddOperationResult(sessionID string, op core.Operation, result core.Result) (string, error) {
	stored, compressed, err := compressResult(result, s.opts.CompressionThreshold)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.touchLocked(sessionID)
	rec := core.OperationRecord{
		ID:         core.NewID(),
		Timestamp:  s.opts.Clock.Now(),
		Operation:  op.Clone(),
		Result:     stored,
		Provider:   op.Provider,
		Action:     op.Action,
		Compressed: compressed,
	}
	encoded, err := encode(rec)
	if err != nil {
		return "", err
	}
	st.entries = append(st.entries, entry{record: rec, size: len(encoded)})
	st.entriesSize += len(encoded)

	evicted := 0
	for st.listSize() > s.opts.MaxContextSize && len(st.entries) > 1 {
		st.entriesSize -= st.entries[0].size
		st.entries[0] = entry{}
		st.entries = st.entries[1:]
		evicted++
	}
	if compressed || evicted > 0 {
		s.opts.Logger.Debug("Context bounded", "session_id", sessionID, "compressed", compressed, "evicted", evicted, "size", st.listSize())
	}
	return rec.ID, nil
}

// GetRelevantContext returns, most recent first and capped at RelevantLimit,
// the records of the session that share op's provider or action, or that are
// related to op (both mutate the same type). Unknown sessions yield nil.
func (s *Store) GetRelevantContext(sessionID string, op core.Operation) []core.OperationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	var out []core.OperationRecord
	for i := len(st.entries) - 1; i >= 0 && len(out) < s.opts.RelevantLimit; i-- {
		rec := st.entries[i].record
		if isRelevant(rec, op) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// CleanupExpiredSessions deletes every session whose last activity predates
// now - maxAge and returns how many were removed. A non-positive maxAge
// uses the configured MaxAge.
func (s *Store) CleanupExpiredSessions(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = s.opts.MaxAge
	}
	cutoff := s.opts.Clock.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, st := range s.sessions {
		if st.lastActivityAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.opts.Logger.Info("Expired sessions removed", "count", removed, "remaining", len(s.sessions))
	}
	return removed
}

// DeleteSession removes a session and reports whether it existed.
func (s *Store) DeleteSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return ok
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ContextSize returns the serialized size of the session's operation list,
// or 0 for unknown sessions.
func (s *Store) ContextSize(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return 0
	}
	return st.listSize()
}

// touchLocked returns the session state, creating it when missing, and
// refreshes its activity time. Caller must hold the write lock.
func (s *Store) touchLocked(sessionID string) *sessionState {
	now := s.opts.Clock.Now()
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &sessionState{id: sessionID, createdAt: now}
		s.sessions[sessionID] = st
		s.opts.Logger.Debug("Session created", "session_id", sessionID)
	}
	st.lastActivityAt = now
	return st
}

var _ core.ContextStore = (*Store)(nil)
