// Package pqueue implements the outbound priority queue: a priority queue
// of messages with priority ordering (0 = lowest) and FIFO tie-break among
// equal priorities, built on container/heap with an explicit sequence
// counter for stable ordering.
package pqueue

import "container/heap"

// Item is anything that can be ordered by priority in the outbound queue.
type Item interface {
	// SendPriority returns the message's priority; 0 is lowest.
	SendPriority() uint32
}

type entry[T Item] struct {
	value T
	seq   uint64
}

type heapSlice[T Item] []entry[T]

func (h heapSlice[T]) Len() int { return len(h) }

func (h heapSlice[T]) Less(i, j int) bool {
	pi, pj := h[i].value.SendPriority(), h[j].value.SendPriority()
	if pi != pj {
		return pi > pj
	}
	return h[i].seq < h[j].seq
}

func (h heapSlice[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *heapSlice[T]) Push(x any) { *h = append(*h, x.(entry[T])) }

func (h *heapSlice[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is a priority queue of outbound messages ordered by descending
// SendPriority with FIFO tie-break among equal priorities.
type Queue[T Item] struct {
	h       heapSlice[T]
	nextSeq uint64
}

// New returns an empty Queue.
func New[T Item]() *Queue[T] {
	return &Queue[T]{}
}

// Push enqueues value.
func (q *Queue[T]) Push(value T) {
	heap.Push(&q.h, entry[T]{value: value, seq: q.nextSeq})
	q.nextSeq++
}

// Pop removes and returns the highest-priority (oldest among ties) value. It
// reports false if the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	if len(q.h) == 0 {
		var zero T
		return zero, false
	}
	e := heap.Pop(&q.h).(entry[T])
	return e.value, true
}

// Peek returns the next value Pop would return, without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	if len(q.h) == 0 {
		var zero T
		return zero, false
	}
	return q.h[0].value, true
}

// Len returns the number of queued messages.
func (q *Queue[T]) Len() int { return len(q.h) }
