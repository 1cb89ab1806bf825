package attendance

import (
	"sort"
	"sync"
	"time"
)

// Session marks each identity at most once per process run. The pending
// set is fixed when the session is created and only shrinks.
type Session struct {
	mu      sync.Mutex
	pending map[string]struct{}
	marked  map[string]time.Time
}

// NewSession creates a session whose pending set is names.
func NewSession(names []string) *Session {
	s := &Session{
		pending: make(map[string]struct{}, len(names)),
		marked:  make(map[string]time.Time),
	}
	for _, n := range names {
		s.pending[n] = struct{}{}
	}
	return s
}

// Mark marks name at now. It returns true only for the first mark of a
// pending name; every other call is a no-op.
func (s *Session) Mark(name string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[name]; !ok {
		return false
	}
	delete(s.pending, name)
	s.marked[name] = now
	return true
}

// MarkedAt returns when name was marked in this run.
func (s *Session) MarkedAt(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.marked[name]
	return t, ok
}

// Pending returns the names not yet marked, sorted.
func (s *Session) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.pending)
}

// Marked returns a copy of the names marked so far with their times.
func (s *Session) Marked() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.marked))
	for k, v := range s.marked {
		out[k] = v
	}
	return out
}

// Forget removes name from both sets, so it can no longer be marked.
func (s *Session) Forget(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, name)
	delete(s.marked, name)
}

// ClearMarks drops the recorded marks. Names already marked stay out of
// the pending set.
func (s *Session) ClearMarks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = make(map[string]time.Time)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
