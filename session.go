package sentinel

import (
	"fmt"
	"sync"
	"time"
)

// ThreadBucketSeconds is the width of the time bucket used to derive thread
// ids. Two messages from the same user within the same bucket land in the
// same conversation thread.
const ThreadBucketSeconds = 1800

// ThreadKey derives a deterministic thread id from a user id and a point in
// time: "user_<id>_<unix/1800>". The same user in the same half-hour bucket
// always maps to the same id; crossing the bucket boundary yields a new one.
func ThreadKey(userID string, t time.Time) string {
	return fmt.Sprintf("user_%s_%d", userID, t.Unix()/ThreadBucketSeconds)
}

// SubThreadID derives a specialist's thread id from its parent thread id.
// The derivation is deterministic and collision-free across distinct
// (parent, specialist) pairs, giving each specialist an isolated history
// scope under the same user session.
func SubThreadID(parent, specialist string) string {
	return parent + "_" + specialist
}

// sessionEntry tracks one user's active thread.
type sessionEntry struct {
	threadID string
	lastSeen time.Time
}

// Sessions maps users to their active conversation thread. A message that
// arrives within the idle window continues the user's current thread even if
// the wall clock crossed a bucket boundary; after the window expires the next
// message mints a fresh id from the current bucket.
//
// Safe for concurrent use. Stale entries are swept opportunistically.
type Sessions struct {
	mu        sync.Mutex
	idle      time.Duration
	entries   map[string]*sessionEntry
	lastSweep time.Time
	now       func() time.Time // stubbed in tests
}

// NewSessions creates a session registry with the given idle window.
// A non-positive idle window falls back to the thread bucket width.
func NewSessions(idle time.Duration) *Sessions {
	if idle <= 0 {
		idle = ThreadBucketSeconds * time.Second
	}
	return &Sessions{
		idle:    idle,
		entries: make(map[string]*sessionEntry),
		now:     time.Now,
	}
}

// Resolve returns the thread id for the user's current session, minting a
// new one if the user has no session or the previous one went idle.
func (s *Sessions) Resolve(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	if e, ok := s.entries[userID]; ok && now.Sub(e.lastSeen) <= s.idle {
		e.lastSeen = now
		return e.threadID
	}

	id := ThreadKey(userID, now)
	s.entries[userID] = &sessionEntry{threadID: id, lastSeen: now}
	return id
}

// Len returns the number of tracked sessions, including idle ones not yet swept.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// sweepLocked evicts entries idle past the window. Runs at most once per
// idle period to keep Resolve O(1) in the common case.
func (s *Sessions) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < s.idle {
		return
	}
	s.lastSweep = now
	for user, e := range s.entries {
		if now.Sub(e.lastSeen) > s.idle {
			delete(s.entries, user)
		}
	}
}
