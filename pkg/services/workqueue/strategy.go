package workqueue

import "sync"

// ConcurrencyStrategy controls how tasks are allowed to start concurrently.
// The strategy is responsible for tracking running tasks and determining
// if a new task can start based on the current state.
type ConcurrencyStrategy interface {
	// CanStartBulk returns true if a bulk walk can start given current state
	CanStartBulk() bool
	// CanStartLight returns true if a light task can start given current state
	CanStartLight() bool
	// OnStartBulk is called when a bulk walk starts
	OnStartBulk()
	// OnStartLight is called when a light task starts
	OnStartLight()
	// OnCompleteBulk is called when a bulk walk completes
	OnCompleteBulk()
	// OnCompleteLight is called when a light task completes
	OnCompleteLight()
}

// SerializedStrategy serializes both task classes: one bulk walk and one
// light task at a time, allowed to run in parallel with each other. This is
// the default; it keeps a burst of tag edits from stacking walks on the
// database.
type SerializedStrategy struct {
	mu           sync.Mutex
	bulkRunning  bool
	lightRunning bool
}

// NewSerializedStrategy creates a strategy that serializes bulk walks
// (only one at a time) and serializes light tasks (only one at a time).
func NewSerializedStrategy() *SerializedStrategy {
	return &SerializedStrategy{}
}

func (s *SerializedStrategy) CanStartBulk() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.bulkRunning
}

func (s *SerializedStrategy) CanStartLight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lightRunning
}

func (s *SerializedStrategy) OnStartBulk() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkRunning = true
}

func (s *SerializedStrategy) OnStartLight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lightRunning = true
}

func (s *SerializedStrategy) OnCompleteBulk() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkRunning = false
}

func (s *SerializedStrategy) OnCompleteLight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lightRunning = false
}

// ThrottledBulkStrategy allows up to maxBulk concurrent bulk walks.
// Light tasks are still serialized (only one at a time).
type ThrottledBulkStrategy struct {
	mu           sync.Mutex
	maxBulk      int
	bulkRunning  int
	lightRunning bool
}

// NewThrottledBulkStrategy creates a strategy allowing up to maxBulk
// concurrent bulk walks. A maxBulk below 1 is treated as 1.
func NewThrottledBulkStrategy(maxBulk int) *ThrottledBulkStrategy {
	if maxBulk < 1 {
		maxBulk = 1
	}
	return &ThrottledBulkStrategy{maxBulk: maxBulk}
}

func (s *ThrottledBulkStrategy) CanStartBulk() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bulkRunning < s.maxBulk
}

func (s *ThrottledBulkStrategy) CanStartLight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lightRunning
}

func (s *ThrottledBulkStrategy) OnStartBulk() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkRunning++
}

func (s *ThrottledBulkStrategy) OnStartLight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lightRunning = true
}

func (s *ThrottledBulkStrategy) OnCompleteBulk() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bulkRunning > 0 {
		s.bulkRunning--
	}
}

func (s *ThrottledBulkStrategy) OnCompleteLight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lightRunning = false
}
