// Package pool provides a single-owner free list for records that churn at
// message rate. Unlike sync.Pool it never drops records, so reuse is
// deterministic and visible in Stats.
//
// The pool does not validate what it is given: the owner must release a
// record exactly once and never touch it afterwards.
package pool

// Stats describes pool usage since construction.
type Stats struct {
	Fresh    uint64 // records created because the free list was empty
	Reused   uint64 // records handed out from the free list
	Released uint64
	Free     int // records currently on the free list
}

// Pool is a typed free list. It is not safe for concurrent use.
type Pool[T any] struct {
	free  []*T
	newFn func() *T
	reset func(*T)
	stats Stats
}

// New builds a pool and preallocates n records. reset, if not nil, runs on
// every released record before it goes back on the free list.
func New[T any](newFn func() *T, reset func(*T), n int) *Pool[T] {
	if n < 0 {
		n = 0
	}
	p := &Pool[T]{
		free:  make([]*T, 0, n),
		newFn: newFn,
		reset: reset,
	}
	for range n {
		p.free = append(p.free, newFn())
	}
	p.stats.Free = n
	return p
}

// Get returns a free record, creating one if the free list is empty.
func (p *Pool[T]) Get() *T {
	n := len(p.free)
	if n == 0 {
		p.stats.Fresh++
		return p.newFn()
	}
	v := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	p.stats.Reused++
	p.stats.Free--
	return v
}

// Put returns a record to the pool.
func (p *Pool[T]) Put(v *T) {
	if v == nil {
		return
	}
	if p.reset != nil {
		p.reset(v)
	}
	p.free = append(p.free, v)
	p.stats.Released++
	p.stats.Free++
}

// Stats returns a copy of the usage counters.
func (p *Pool[T]) Stats() Stats {
	return p.stats
}
