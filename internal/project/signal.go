// Package project carries the active project identifier owned by the caller
// (router, UI, API client) to everything that scopes its state by project.
package project

import (
	"strings"
	"sync"
)

// Signal holds the live active project id. The empty string means no
// project is selected.
type Signal struct {
	mu      sync.Mutex
	current string
	nextID  int
	subs    map[int]func(string)
}

func NewSignal(initial string) *Signal {
	return &Signal{current: strings.TrimSpace(initial), subs: make(map[int]func(string))}
}

func (s *Signal) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set publishes a new active project. Subscribers are only notified when
// the value actually changes; it reports whether it did.
func (s *Signal) Set(projectID string) bool {
	projectID = strings.TrimSpace(projectID)

	s.mu.Lock()
	if projectID == s.current {
		s.mu.Unlock()
		return false
	}
	s.current = projectID
	subs := make([]func(string), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(projectID)
	}
	return true
}

// Subscribe registers fn for future changes and returns its cancel func.
func (s *Signal) Subscribe(fn func(string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
