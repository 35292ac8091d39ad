package router

import (
	"sync"
	"time"

	"github.com/deathguppie/kathoros/internal/core"
	"github.com/deathguppie/kathoros/internal/registry"
)

// maxPendingRequests caps parked approvals across all sessions. Beyond
// the cap, the oldest parked request is evicted and implicitly denied.
const maxPendingRequests = 256

// pendingRequest is a request parked at the approval gate. Everything
// needed to resume execution is captured here; the original gates are
// not re-run on resume.
type pendingRequest struct {
	req      core.ToolRequest
	sess     core.SessionContext
	def      registry.ToolDefinition
	paths    map[string]string // raw arg path -> resolved absolute path
	parkedAt time.Time
}

// pendingStore holds requests awaiting a human decision, keyed by
// request ID.
type pendingStore struct {
	mu      sync.Mutex
	waiting map[string]*pendingRequest
	order   []string
}

func newPendingStore() *pendingStore {
	return &pendingStore{waiting: make(map[string]*pendingRequest)}
}

// park stores a request awaiting approval. Returns the evicted entry's
// request ID and how long it had been waiting if the cap was hit.
func (s *pendingStore) park(id string, p *pendingRequest) (string, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-parking an existing ID replaces the entry in place; appending
	// again would double-count it toward the cap and leave a dangling
	// order slot after take.
	if _, exists := s.waiting[id]; exists {
		s.waiting[id] = p
		return "", 0
	}

	evicted := ""
	var waited time.Duration
	if len(s.order) >= maxPendingRequests {
		evicted = s.order[0]
		if old, ok := s.waiting[evicted]; ok {
			waited = time.Since(old.parkedAt)
		}
		s.order = s.order[1:]
		delete(s.waiting, evicted)
	}
	s.waiting[id] = p
	s.order = append(s.order, id)
	return evicted, waited
}

// take removes and returns the parked request, if present. A request can
// be resumed exactly once.
func (s *pendingStore) take(id string) (*pendingRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.waiting[id]
	if !ok {
		return nil, false
	}
	delete(s.waiting, id)
	for i, queued := range s.order {
		if queued == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return p, true
}

// pendingIDs lists parked request IDs for a session, oldest first.
func (s *pendingStore) pendingIDs(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, id := range s.order {
		if p, ok := s.waiting[id]; ok && p.sess.SessionID == sessionID {
			ids = append(ids, id)
		}
	}
	return ids
}
