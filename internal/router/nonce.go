package router

import "sync"

// maxNoncesPerSession caps replay-tracking memory per session. Oldest
// nonces are evicted first once the cap is reached.
const maxNoncesPerSession = 1024

// nonceStore tracks recently seen nonces per session for replay
// prevention. Safe for concurrent routing across sessions; each
// session's set is updated under the store lock.
type nonceStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionNonces
}

type sessionNonces struct {
	seen  map[string]struct{}
	order []string // FIFO eviction order
}

func newNonceStore() *nonceStore {
	return &nonceStore{sessions: make(map[string]*sessionNonces)}
}

// checkAndRecord returns false if the nonce was already seen for the
// session; otherwise it records the nonce and returns true.
func (s *nonceStore) checkAndRecord(sessionID, nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sn, ok := s.sessions[sessionID]
	if !ok {
		sn = &sessionNonces{seen: make(map[string]struct{})}
		s.sessions[sessionID] = sn
	}

	if _, replayed := sn.seen[nonce]; replayed {
		return false
	}

	if len(sn.order) >= maxNoncesPerSession {
		oldest := sn.order[0]
		sn.order = sn.order[1:]
		delete(sn.seen, oldest)
	}
	sn.seen[nonce] = struct{}{}
	sn.order = append(sn.order, nonce)
	return true
}

// drop forgets a session's nonce history (e.g. on session close).
func (s *nonceStore) drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
