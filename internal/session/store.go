package session

import "sync"

// Store holds the session state for one client session. It is injected into
// whatever drives it (a Flow, a test); nothing in this package is global.
// Writes come from a single Flow; reads may come from any goroutine.
type Store struct {
	mu    sync.RWMutex
	state State
}

func NewStore() *Store {
	return &Store{}
}

// Current returns a snapshot of the session state.
func (s *Store) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) setAccount(acc *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Account = acc
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = loading
}
