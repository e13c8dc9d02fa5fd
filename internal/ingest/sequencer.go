package ingest

import (
	"container/heap"
	"sync"
)

type pending[T any] struct {
	index int
	value *T
}

type pendingHeap[T any] []pending[T]

func (h pendingHeap[T]) Len() int           { return len(h) }
func (h pendingHeap[T]) Less(i, j int) bool { return h[i].index < h[j].index }
func (h pendingHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap[T]) Push(x any)        { *h = append(*h, x.(pending[T])) }
func (h *pendingHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Sequencer restores index order for out of order completions. OnPair is
// called for every two adjacent indexes that both carry a value; a nil
// value still moves the cursor.
type Sequencer[T any] struct {
	OnPair func(prev, cur *T)

	mu      sync.Mutex
	next    int
	end     int
	prev    *T
	pending pendingHeap[T]
}

func NewSequencer[T any](onPair func(prev, cur *T)) *Sequencer[T] {
	return &Sequencer[T]{OnPair: onPair}
}

// Deliver buffers value at index and drains every contiguous item.
func (s *Sequencer[T]) Deliver(index int, value *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < s.next {
		return
	}
	if index >= s.end {
		s.end = index + 1
	}
	heap.Push(&s.pending, pending[T]{index: index, value: value})

	for s.pending.Len() > 0 && s.pending[0].index == s.next {
		item := heap.Pop(&s.pending).(pending[T])
		if s.prev != nil && item.value != nil && s.OnPair != nil {
			s.OnPair(s.prev, item.value)
		}
		s.prev = item.value
		s.next++
	}
}

// Append delivers value after the highest index seen so far.
func (s *Sequencer[T]) Append(value *T) {
	s.mu.Lock()
	index := s.end
	s.mu.Unlock()
	s.Deliver(index, value)
}

// Reset forgets the cursor and everything buffered.
func (s *Sequencer[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
	s.end = 0
	s.prev = nil
	s.pending = nil
}

// Pending is the number of buffered out of order items.
func (s *Sequencer[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}
