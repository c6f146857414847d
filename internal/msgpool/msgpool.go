// Package msgpool implements a generic message-descriptor pool: message
// descriptors are created by the producer, move through the outbound queue
// and ack-tracks, and are returned here on ack so the allocator can reuse
// them, following the usual sync.Pool receive-buffer idiom.
package msgpool

import "sync"

// Resettable is implemented by pooled message types so Pool can clear them
// back to a reusable state before handing them out again.
type Resettable interface {
	ResetForPool()
}

// Pool is a sync.Pool of T, used to avoid per-message allocation on the hot
// send/receive path. T must be a pointer type implementing Resettable.
type Pool[T Resettable] struct {
	pool sync.Pool
}

// New returns an empty Pool. newItem must return a freshly allocated, zeroed
// T; it is invoked by the underlying sync.Pool only when no recycled item is
// available.
func New[T Resettable](newItem func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any { return newItem() },
		},
	}
}

// Get returns a zeroed T, either freshly allocated or recycled.
func (p *Pool[T]) Get() T {
	v := p.pool.Get().(T)
	v.ResetForPool()
	return v
}

// Put returns v to the pool for reuse. Callers must not use v after calling
// Put.
func (p *Pool[T]) Put(v T) {
	p.pool.Put(v)
}
