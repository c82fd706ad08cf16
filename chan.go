package csp

import (
	"context"
	"reflect"
	"sync"

	"github.com/eapache/queue"
)

// A Chan is a conduit for handing values of type T between concurrent
// parties, with an optional buffer.
//
// A Chan created with a buffer size of zero is a rendezvous channel: a put
// and a take must meet, no value is ever stored in between.
//
// Every operation comes in up to four flavors:
//   - blocking: [Chan.Put], [Chan.Take] (and their Context variants), which
//     occupy the calling goroutine until the operation completes;
//   - callback: [Chan.PutAsync], [Chan.TakeAsync], which never block and
//     report completion through the [Dispatcher];
//   - non-queuing: [Chan.Offer], [Chan.Poll], which only succeed if they can
//     complete right away;
//   - parking: [AwaitPut], [AwaitTake], which suspend a [Coroutine] instead
//     of a goroutine.
//
// Waiting putters and waiting takers are served in arrival order.
//
// A nil value (nil pointer, map, slice, func, chan or interface) is reserved
// to mean "no value" and can never be put; trying to do so panics.
//
// A Chan is safe for concurrent use.
type Chan[T any] struct {
	mu     sync.Mutex
	buf    *queue.Queue
	front  []T // handed back by canceled takes, taken before buf; top is last
	size   int
	takes  waitq[T]
	puts   waitq[T]
	closed bool
	nilk   nilKind
}

type nilKind int8

const (
	nilNever nilKind = iota
	nilIface
	nilReflect
)

// NewChan creates a new [Chan] with a buffer of size n.
// NewChan panics if n is negative.
func NewChan[T any](n int) *Chan[T] {
	if n < 0 {
		panic("csp: negative buffer size")
	}
	c := &Chan[T]{size: n, nilk: nilKindOf[T]()}
	if n > 0 {
		c.buf = queue.New()
	}
	return c
}

func nilKindOf[T any]() nilKind {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Interface:
		return nilIface
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
		return nilReflect
	}
	return nilNever
}

func (c *Chan[T]) isNil(v T) bool {
	switch c.nilk {
	case nilIface:
		return any(v) == nil
	case nilReflect:
		return reflect.ValueOf(v).IsNil()
	}
	return false
}

func (c *Chan[T]) checkValue(v T) {
	if c.isNil(v) {
		panic("csp: nil value")
	}
}

// put attempts to put v on c on behalf of h.
// If the put cannot complete right away and block is true, a waiter is
// queued and returned.
// done reports whether h was decided by this call, in which case ok is the
// outcome and f is not retained.
func (c *Chan[T]) put(v T, h *commit, f func(ok bool), block bool) (w *waiter[T], ok, done bool) {
	c.mu.Lock()

	if c.closed {
		h.mu.Lock()
		done = !h.done
		h.done = true
		h.mu.Unlock()
		c.mu.Unlock()
		return nil, false, done
	}

	for t := c.takes.first; t != nil; {
		next := t.next
		if t.h == h {
			t = next
			continue
		}
		lockPair(h, t.h)
		if h.done {
			unlockPair(h, t.h)
			c.mu.Unlock()
			return nil, false, false
		}
		if t.h.done {
			unlockPair(h, t.h)
			c.takes.remove(t)
			t = next
			continue
		}
		h.done, t.h.done = true, true
		unlockPair(h, t.h)
		c.takes.remove(t)
		c.mu.Unlock()
		t.h.deliver(func() { t.take(v, true) })
		return nil, true, true
	}

	if c.buf != nil && c.buf.Length() < c.size {
		h.mu.Lock()
		if h.done {
			h.mu.Unlock()
			c.mu.Unlock()
			return nil, false, false
		}
		h.done = true
		h.mu.Unlock()
		c.buf.Add(v)
		c.mu.Unlock()
		return nil, true, true
	}

	if block {
		h.mu.Lock()
		if !h.done {
			w = &waiter[T]{h: h, v: v, put: f}
			c.puts.enqueue(w)
		}
		h.mu.Unlock()
	}

	c.mu.Unlock()
	return w, false, false
}

// take is the counterpart of put.
func (c *Chan[T]) take(h *commit, f func(v T, ok bool), block bool) (w *waiter[T], v T, ok, done bool) {
	c.mu.Lock()

	if n := len(c.front); n != 0 {
		h.mu.Lock()
		if h.done {
			h.mu.Unlock()
			c.mu.Unlock()
			return
		}
		h.done = true
		h.mu.Unlock()

		v = c.front[n-1]
		var zero T
		c.front[n-1] = zero
		c.front = c.front[:n-1]
		c.mu.Unlock()

		return nil, v, true, true
	}

	if c.buf != nil && c.buf.Length() != 0 {
		h.mu.Lock()
		if h.done {
			h.mu.Unlock()
			c.mu.Unlock()
			return
		}
		h.done = true
		h.mu.Unlock()

		v = c.buf.Remove().(T)

		// A slot is free now; admit the longest-waiting putter.
		var p *waiter[T]
		for p = c.puts.dequeue(); p != nil; p = c.puts.dequeue() {
			if p.h.claim() {
				c.buf.Add(p.v)
				break
			}
		}

		c.mu.Unlock()

		if p != nil && p.put != nil {
			p.h.deliver(func() { p.put(true) })
		}

		return nil, v, true, true
	}

	for p := c.puts.first; p != nil; {
		next := p.next
		if p.h == h {
			p = next
			continue
		}
		lockPair(h, p.h)
		if h.done {
			unlockPair(h, p.h)
			c.mu.Unlock()
			return
		}
		if p.h.done {
			unlockPair(h, p.h)
			c.puts.remove(p)
			p = next
			continue
		}
		h.done, p.h.done = true, true
		unlockPair(h, p.h)
		c.puts.remove(p)
		c.mu.Unlock()
		if p.put != nil {
			p.h.deliver(func() { p.put(true) })
		}
		return nil, p.v, true, true
	}

	if c.closed {
		h.mu.Lock()
		done = !h.done
		h.done = true
		h.mu.Unlock()
		c.mu.Unlock()
		return nil, v, false, done
	}

	if block {
		h.mu.Lock()
		if !h.done {
			w = &waiter[T]{h: h, take: f}
			c.takes.enqueue(w)
		}
		h.mu.Unlock()
	}

	c.mu.Unlock()
	return w, v, false, false
}

// unlink removes w from whichever queue of c it is still in.
func (c *Chan[T]) unlink(w *waiter[T]) {
	if w == nil {
		return
	}
	c.mu.Lock()
	if q := w.q; q != nil {
		q.remove(w)
	}
	c.mu.Unlock()
}

// restore hands v, taken from c by an operation nobody is left to use the
// outcome of, back to c: to the first taker still waiting, or else to the
// head of c, ahead of anything buffered. Neither the buffer size nor Close
// keeps v out.
func (c *Chan[T]) restore(v T) {
	c.mu.Lock()
	for t := c.takes.dequeue(); t != nil; t = c.takes.dequeue() {
		if t.h.claim() {
			c.mu.Unlock()
			t.h.deliver(func() { t.take(v, true) })
			return
		}
	}
	c.front = append(c.front, v)
	c.mu.Unlock()
}

// Close closes c.
//
// Only the first call has an effect. Takers waiting on c are woken with
// no value; putters waiting on c fail. Values already in the buffer remain
// available to takers. After the buffer is drained, every take reports no
// value without blocking. Every put after Close fails without blocking.
func (c *Chan[T]) Close() {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return
	}

	c.closed = true

	var wake []func()

	for t := c.takes.dequeue(); t != nil; t = c.takes.dequeue() {
		if t.h.claim() {
			wake = append(wake, func() {
				var zero T
				t.h.deliver(func() { t.take(zero, false) })
			})
		}
	}

	for p := c.puts.dequeue(); p != nil; p = c.puts.dequeue() {
		if p.h.claim() && p.put != nil {
			wake = append(wake, func() {
				p.h.deliver(func() { p.put(false) })
			})
		}
	}

	c.mu.Unlock()

	if len(wake) != 0 {
		getLogger().Debug().
			Int(`woken`, len(wake)).
			Log(`csp: channel closed with pending operations`)
	}

	for _, f := range wake {
		f()
	}
}

// Closed reports whether c has been closed.
func (c *Chan[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Len returns the number of values in the buffer of c, counting values
// handed back by canceled takes.
func (c *Chan[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.front)
	if c.buf != nil {
		n += c.buf.Length()
	}
	return n
}

// Cap returns the buffer size of c.
func (c *Chan[T]) Cap() int {
	return c.size
}

// Put puts v on c, blocking until v is either handed to a taker or stored
// in the buffer.
// Put reports false if c is closed, in which case v is discarded.
func (c *Chan[T]) Put(v T) bool {
	c.checkValue(v)
	h := newCommit(true)
	result := make(chan bool, 1)
	_, ok, done := c.put(v, h, func(ok bool) { result <- ok }, true)
	if done {
		return ok
	}
	return <-result
}

// PutContext is like [Chan.Put] but gives up when ctx is done.
//
// If ctx is done before the put completes, the pending put is withdrawn and
// ctx.Err() is returned. A put that has already completed is never undone:
// its outcome is returned with a nil error.
func (c *Chan[T]) PutContext(ctx context.Context, v T) (bool, error) {
	if ctx == nil {
		panic("csp: nil Context")
	}
	c.checkValue(v)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	h := newCommit(true)
	result := make(chan bool, 1)
	w, ok, done := c.put(v, h, func(ok bool) { result <- ok }, true)
	if done {
		return ok, nil
	}
	select {
	case ok := <-result:
		return ok, nil
	case <-ctx.Done():
		if h.claim() {
			c.unlink(w)
			return false, ctx.Err()
		}
		return <-result, nil
	}
}

// Take takes a value from c, blocking until one is available or c is
// closed and drained, in which case ok is false.
func (c *Chan[T]) Take() (v T, ok bool) {
	type taken struct {
		v  T
		ok bool
	}
	h := newCommit(true)
	result := make(chan taken, 1)
	_, v, ok, done := c.take(h, func(v T, ok bool) { result <- taken{v, ok} }, true)
	if done {
		return v, ok
	}
	r := <-result
	return r.v, r.ok
}

// TakeContext is like [Chan.Take] but gives up when ctx is done.
//
// If ctx is done before the take completes, the pending take is withdrawn
// and ctx.Err() is returned. A value that has already been taken is always
// returned, with a nil error.
func (c *Chan[T]) TakeContext(ctx context.Context) (v T, ok bool, err error) {
	if ctx == nil {
		panic("csp: nil Context")
	}
	if err := ctx.Err(); err != nil {
		return v, false, err
	}
	type taken struct {
		v  T
		ok bool
	}
	h := newCommit(true)
	result := make(chan taken, 1)
	w, v, ok, done := c.take(h, func(v T, ok bool) { result <- taken{v, ok} }, true)
	if done {
		return v, ok, nil
	}
	select {
	case r := <-result:
		return r.v, r.ok, nil
	case <-ctx.Done():
		if h.claim() {
			c.unlink(w)
			return v, false, ctx.Err()
		}
		r := <-result
		return r.v, r.ok, nil
	}
}

// PutAsync puts v on c without blocking.
//
// If the put completes right away, done is true and ok is its outcome.
// Otherwise the put is queued and done is false.
// Either way, f, if not nil, is called exactly once with the outcome, by the
// [Dispatcher], never before PutAsync returns.
func (c *Chan[T]) PutAsync(v T, f func(ok bool)) (ok, done bool) {
	c.checkValue(v)
	h := newCommit(false)
	_, ok, done = c.put(v, h, f, true)
	if done && f != nil {
		dispatch(func() { f(ok) })
	}
	return ok, done
}

// TakeAsync takes a value from c without blocking.
// f is called exactly once with the value taken, or with ok set to false if
// c is closed and drained, by the [Dispatcher], never before TakeAsync
// returns.
func (c *Chan[T]) TakeAsync(f func(v T, ok bool)) {
	if f == nil {
		panic("csp: nil callback")
	}
	h := newCommit(false)
	_, v, ok, done := c.take(h, f, true)
	if done {
		dispatch(func() { f(v, ok) })
	}
}

// Offer puts v on c only if that can be done right away, without queuing.
// Offer reports whether v was put.
func (c *Chan[T]) Offer(v T) bool {
	c.checkValue(v)
	_, ok, done := c.put(v, newCommit(true), nil, false)
	return done && ok
}

// Poll takes a value from c only if one is available right away, without
// queuing.
// ok is false if nothing could be taken, including when c is closed and
// drained; use [Chan.Closed] to tell these apart.
func (c *Chan[T]) Poll() (v T, ok bool) {
	_, v, ok, done := c.take(newCommit(true), nil, false)
	if !done {
		var zero T
		return zero, false
	}
	return v, ok
}
