package grid

import (
	"sync"
	"time"
)

// BuildState is the latest build outcome held by a ResultStore.
type BuildState struct {
	Result  *Result
	Err     error
	BuiltAt time.Time
}

// ResultStore holds the latest build for the HTTP and MQTT surfaces.
type ResultStore struct {
	mu       sync.RWMutex
	state    BuildState
	building bool
}

// NewResultStore creates an empty store
func NewResultStore() *ResultStore {
	return &ResultStore{}
}

// Update records a finished build. A failed build without a result keeps
// the previous network but records the error.
func (s *ResultStore) Update(res *Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res != nil {
		s.state.Result = res
	}
	s.state.Err = err
	s.state.BuiltAt = time.Now()
}

// Latest returns a copy of the current state
func (s *ResultStore) Latest() BuildState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// HasResult reports whether any network has been built yet
func (s *ResultStore) HasResult() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Result != nil
}

// TryBeginBuild marks a build as running. It returns false when one already is.
func (s *ResultStore) TryBeginBuild() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.building {
		return false
	}
	s.building = true
	return true
}

// EndBuild clears the running mark set by TryBeginBuild
func (s *ResultStore) EndBuild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.building = false
}
