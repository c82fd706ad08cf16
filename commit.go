package csp

import (
	"sync"
	"sync/atomic"
)

var commitSeq atomic.Uint64

// A commit is the point at which one pending operation, or a group of them
// racing in a select, is decided.
//
// A commit is decided at most once. Whoever flips done from false to true,
// under mu, owns the outcome; every other operation sharing the commit is
// then stale and must not fire.
//
// Lock order: a channel's mutex before any commit's mutex; two commits in
// ascending id order.
type commit struct {
	mu     sync.Mutex
	id     uint64
	done   bool
	inline bool // deliver on the completing goroutine instead of dispatching
}

func newCommit(inline bool) *commit {
	return &commit{id: commitSeq.Add(1), inline: inline}
}

// claim decides h. It reports whether h was still undecided.
// h.mu must not be held.
func (h *commit) claim() bool {
	h.mu.Lock()
	ok := !h.done
	h.done = true
	h.mu.Unlock()
	return ok
}

func lockPair(a, b *commit) {
	if a.id < b.id {
		a.mu.Lock()
		b.mu.Lock()
	} else {
		b.mu.Lock()
		a.mu.Lock()
	}
}

func unlockPair(a, b *commit) {
	a.mu.Unlock()
	b.mu.Unlock()
}

// deliver runs f, the continuation of an operation decided by h.
// Must be called without holding any channel mutex.
func (h *commit) deliver(f func()) {
	if h.inline {
		f()
		return
	}
	dispatch(f)
}

// A waiter is an operation queued on a channel.
type waiter[T any] struct {
	h    *commit
	v    T                  // put only
	put  func(ok bool)      // put only, may be nil
	take func(v T, ok bool) // take only
	q    *waitq[T]
	prev *waiter[T]
	next *waiter[T]
}

// waitq is an intrusive FIFO of waiters, with O(1) removal so that losing
// select candidates can be unlinked directly.
type waitq[T any] struct {
	first *waiter[T]
	last  *waiter[T]
	n     int
}

func (q *waitq[T]) enqueue(w *waiter[T]) {
	w.q = q
	w.next = nil
	w.prev = q.last
	if q.last == nil {
		q.first = w
	} else {
		q.last.next = w
	}
	q.last = w
	q.n++
}

func (q *waitq[T]) dequeue() *waiter[T] {
	w := q.first
	if w != nil {
		q.remove(w)
	}
	return w
}

func (q *waitq[T]) remove(w *waiter[T]) {
	if w.q != q {
		return
	}
	if w.prev == nil {
		q.first = w.next
	} else {
		w.prev.next = w.next
	}
	if w.next == nil {
		q.last = w.prev
	} else {
		w.next.prev = w.prev
	}
	w.q, w.prev, w.next = nil, nil, nil
	q.n--
}
