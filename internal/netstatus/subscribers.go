package netstatus

import (
	"sync"

	"github.com/mmcdole/brewsync/internal/domain"
)

// subscribers is the listener registry shared by the monitors.
type subscribers struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(domain.NetworkState)
}

func (s *subscribers) add(fn func(domain.NetworkState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(domain.NetworkState))
	}
	id := s.nextID
	s.nextID++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) publish(state domain.NetworkState) {
	s.mu.Lock()
	fns := make([]func(domain.NetworkState), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// Static is a monitor whose state only changes through Set.
// Used for forced offline mode and in tests.
type Static struct {
	mu    sync.RWMutex
	state domain.NetworkState
	subs  subscribers
}

// NewStatic returns a monitor reporting state.
func NewStatic(state domain.NetworkState) *Static {
	return &Static{state: state}
}

// Online returns a connected, reachable state.
func Online() domain.NetworkState {
	return domain.NetworkState{IsConnected: true, ConnectionType: domain.ConnectionUnknown, IsInternetReachable: true}
}

// Offline returns a disconnected state.
func Offline() domain.NetworkState {
	return domain.NetworkState{ConnectionType: domain.ConnectionNone}
}

func (s *Static) CurrentState() domain.NetworkState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Static) Subscribe(fn func(domain.NetworkState)) func() {
	return s.subs.add(fn)
}

// Set replaces the state and notifies subscribers when it changed.
func (s *Static) Set(state domain.NetworkState) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed {
		s.subs.publish(state)
	}
}
