// Package pool provides typed object pooling on top of sync.Pool with usage
// statistics.
//
// Example usage:
//
//	buffers := pool.New(
//	    func() *bytes.Buffer { return new(bytes.Buffer) },
//	    func(b *bytes.Buffer) { b.Reset() },
//	)
//	buf := buffers.Get()
//	defer buffers.Put(buf)
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a type-safe object pool. It is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a pool. newFn creates an object when the pool is empty; reset,
// when not nil, cleans an object before it is pooled again.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, creating one when it is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	atomic.AddInt64(&p.stats.gets, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Discard records that an object taken with Get will not be returned.
func (p *Pool[T]) Discard() {
	atomic.AddInt64(&p.stats.inUse, -1)
}

// Stats describes pool usage.
type Stats struct {
	Allocated int64 // Objects created by the pool
	InUse     int64 // Objects currently checked out
	Hits      int64 // Gets served by a pooled object
	Misses    int64 // Gets that had to allocate
}

// Stats returns current pool statistics.
func (p *Pool[T]) Stats() Stats {
	allocated := atomic.LoadInt64(&p.stats.allocated)
	gets := atomic.LoadInt64(&p.stats.gets)
	return Stats{
		Allocated: allocated,
		InUse:     atomic.LoadInt64(&p.stats.inUse),
		Hits:      max(gets-allocated, 0),
		Misses:    allocated,
	}
}
