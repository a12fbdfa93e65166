package ratelimit

import (
	"container/heap"

	"github.com/hochfrequenz/agent-conductor/internal/domain"
)

// waiter is one caller blocked in Acquire
type waiter struct {
	priority domain.CallPriority
	seq      uint64
	index    int
}

// waiterHeap orders waiters by priority, then arrival order
type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }

func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

// head returns the next waiter to be served, nil if none
func (h waiterHeap) head() *waiter {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// remove deletes a waiter from the heap, tolerating one already popped
func (h *waiterHeap) remove(w *waiter) {
	if w.index >= 0 && w.index < len(*h) && (*h)[w.index] == w {
		heap.Remove(h, w.index)
	}
}
