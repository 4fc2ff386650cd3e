package conversation

import (
	"sort"
	"sync"
	"time"

	"decision-workers/internal/common/logger"
	"decision-workers/internal/common/metrics"
)

// Sessions keeps one Tracker per conversation. Trackers share no state.
type Sessions struct {
	mu       sync.Mutex
	trackers map[string]*Tracker
	lastSeen map[string]time.Time
	logger   logger.Logger
	opts     []TrackerOption
	now      func() time.Time
}

// NewSessions applies opts to every tracker it creates.
func NewSessions(log logger.Logger, opts ...TrackerOption) *Sessions {
	return &Sessions{
		trackers: make(map[string]*Tracker),
		lastSeen: make(map[string]time.Time),
		logger:   log,
		opts:     opts,
		now:      time.Now,
	}
}

// Get returns the session's tracker, creating it on first use.
func (s *Sessions) Get(sessionID string) *Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen[sessionID] = s.now()
	if t, ok := s.trackers[sessionID]; ok {
		return t
	}
	t := NewTracker(sessionID, s.logger, s.opts...)
	s.trackers[sessionID] = t
	metrics.ActiveSessions.Inc()
	return t
}

func (s *Sessions) Lookup(sessionID string) (*Tracker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[sessionID]
	if ok {
		s.lastSeen[sessionID] = s.now()
	}
	return t, ok
}

// End resets and forgets the session. It reports whether the session existed.
func (s *Sessions) End(sessionID string) bool {
	s.mu.Lock()
	t, ok := s.trackers[sessionID]
	delete(s.trackers, sessionID)
	delete(s.lastSeen, sessionID)
	s.mu.Unlock()

	if !ok {
		return false
	}
	t.Reset()
	metrics.ActiveSessions.Dec()
	return true
}

func (s *Sessions) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.trackers))
	for id := range s.trackers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep ends every session not used for longer than maxIdle and returns their ids.
// Sessions with an action still in flight are kept; a failed execution does not hold a
// session open.
func (s *Sessions) Sweep(maxIdle time.Duration) []string {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	var idle []string
	for id, seen := range s.lastSeen {
		if seen.Before(cutoff) && !s.trackers[id].executing() {
			idle = append(idle, id)
		}
	}
	s.mu.Unlock()

	sort.Strings(idle)
	ended := idle[:0]
	for _, id := range idle {
		if s.End(id) {
			ended = append(ended, id)
		}
	}
	if len(ended) > 0 {
		s.logger.Info("idle sessions ended", map[string]interface{}{
			"count":   len(ended),
			"maxIdle": maxIdle.String(),
		})
	}
	return ended
}
