package csp

import "sync/atomic"

// Pipe takes values from from and puts them on to, one at a time, until
// from is closed and drained, or until a put on to fails.
// If closeTo is true, to is closed once from is drained.
//
// Pipe returns immediately; the transfer runs on [Dispatcher] callbacks and
// never holds a goroutine while waiting.
func Pipe[T any](from, to *Chan[T], closeTo bool) {
	if from == nil || to == nil {
		panic("csp: nil Chan")
	}
	pipe(from, to, func() {
		if closeTo {
			to.Close()
		}
	})
}

// pipe moves values from from to to and calls done when from is drained.
func pipe[T any](from, to *Chan[T], done func()) {
	var step func()
	step = func() {
		from.TakeAsync(func(v T, ok bool) {
			if !ok {
				done()
				return
			}
			to.PutAsync(v, func(ok bool) {
				if ok {
					step()
				}
			})
		})
	}
	step()
}

// Merge returns a channel with a buffer of size n that receives every value
// taken from chs, and that is closed once every channel in chs is closed and
// drained.
//
// Values from the same channel keep their order; values from different
// channels interleave in no particular order.
func Merge[T any](chs []*Chan[T], n int) *Chan[T] {
	out := NewChan[T](n)
	if len(chs) == 0 {
		out.Close()
		return out
	}
	var remaining atomic.Int64
	remaining.Store(int64(len(chs)))
	for _, c := range chs {
		if c == nil {
			panic("csp: nil Chan")
		}
		pipe(c, out, func() {
			if remaining.Add(-1) == 0 {
				out.Close()
			}
		})
	}
	return out
}

// Pipeline spawns n coroutines on e, each taking values from from, applying
// xf and putting the result on to, until from is closed and drained or a put
// on to fails.
// If closeTo is true, to is closed after every coroutine has finished.
//
// xf runs on e, so it must not block. Results may be put on to in a
// different order than their inputs were taken when n is greater than one.
func Pipeline[T, U any](e *Executor, n int, to *Chan[U], xf func(v T) U, from *Chan[T], closeTo bool) {
	switch {
	case e == nil:
		panic("csp: nil Executor")
	case n <= 0:
		panic("csp: non-positive parallelism")
	case to == nil || from == nil:
		panic("csp: nil Chan")
	case xf == nil:
		panic("csp: nil func")
	}

	var stopped bool

	worker := Range(from, func(v T) Task {
		return AwaitPut(to, xf(v), func(ok bool) { stopped = !ok }).Then(func(co *Coroutine) Result {
			if stopped {
				return co.Break()
			}
			return co.End()
		})
	})

	// Workers only ever run on e, so the count needs no lock.
	running := n
	for range n {
		e.Spawn(func(co *Coroutine) Result {
			co.Defer(Do(func() {
				if running--; running == 0 && closeTo {
					to.Close()
				}
			}))
			return co.Transition(worker)
		})
	}
}

// OntoChan puts the values of vs on c, in order, and returns a channel that
// is closed once every value has been put, or once a put fails.
// If closeC is true, c is closed afterwards.
//
// OntoChan never blocks.
func OntoChan[T any](c *Chan[T], vs []T, closeC bool) *Chan[struct{}] {
	if c == nil {
		panic("csp: nil Chan")
	}
	for _, v := range vs {
		c.checkValue(v)
	}
	done := NewChan[struct{}](0)
	finish := func() {
		if closeC {
			c.Close()
		}
		done.Close()
	}
	var step func(i int)
	step = func(i int) {
		if i == len(vs) {
			finish()
			return
		}
		c.PutAsync(vs[i], func(ok bool) {
			if !ok {
				finish()
				return
			}
			step(i + 1)
		})
	}
	step(0)
	return done
}

// ToChan returns a closed channel whose buffer holds the values of vs.
func ToChan[T any](vs []T) *Chan[T] {
	c := NewChan[T](max(len(vs), 1))
	for _, v := range vs {
		c.checkValue(v)
		c.Offer(v)
	}
	c.Close()
	return c
}

// Collect takes every value from c until c is closed and drained, blocking
// the calling goroutine, and returns them in order.
func Collect[T any](c *Chan[T]) []T {
	var vs []T
	for {
		v, ok := c.Take()
		if !ok {
			return vs
		}
		vs = append(vs, v)
	}
}
