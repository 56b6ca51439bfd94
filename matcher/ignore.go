// Copyright (c) 2025 Dmitry Vats

package matcher

import "sync"

// IgnoreSet is the in-memory set of counter-offer ids skipped after a failed
// settlement attempt, typically insufficient counterparty funds.
//
// The set is process-wide rather than scoped to one trading pair, matching
// the behavior the bot always had: an id ignored while settling one pair is
// invisible to every other pair. It is owned by the supervisor and passed
// down explicitly; all methods are safe for concurrent use.
type IgnoreSet struct {
	mu  sync.Mutex
	ids map[int64]bool
}

func NewIgnoreSet() *IgnoreSet {
	return &IgnoreSet{ids: make(map[int64]bool)}
}

func (s *IgnoreSet) Add(id int64) {
	s.mu.Lock()
	s.ids[id] = true
	s.mu.Unlock()
}

func (s *IgnoreSet) Has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[id]
}

func (s *IgnoreSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
