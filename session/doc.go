// Package session implements the context store: a per-session, size bounded
// log of executed operations that later workflow steps consult for context.
//
// Store keeps, for every session id, an ordered list of core.OperationRecord
// values. Large results are replaced by a core.CompressedSummary before they
// are appended, and the oldest records are evicted whenever the serialized
// size of the list exceeds the configured budget. At least one record always
// survives eviction.
//
// Sessions are created lazily and removed by CleanupExpiredSessions, which is
// meant to be driven by an external periodic scheduler (see package scheduler).
package session
