package csp

// A parking is the event a coroutine waits on while one of its channel
// operations is pending.
//
// The channel completes the operation on whatever goroutine the Dispatcher
// picks; arrive then carries the outcome over to the coroutine's executor,
// so that every field here is only touched there.
type parking struct {
	co       *Coroutine
	h        *commit
	withdraw func() // dequeues the pending operation
	giveBack func() // undoes an outcome no one will use
	arrived  bool
	orphaned bool
}

func (p *parking) addListener(co *Coroutine) {
	p.co = co
}

func (p *parking) removeListener(co *Coroutine) {
	p.co = nil
	if !co.Canceled() {
		return
	}
	switch {
	case p.arrived:
		p.giveBack()
	case p.h.claim():
		p.withdraw()
	default:
		p.orphaned = true // The outcome is on its way; arrive undoes it.
	}
}

// arrive posts an outcome to e: store records it for the coroutine and
// giveBack undoes it, should the coroutine be gone by then.
// It is called by channel callbacks, on any goroutine.
func (p *parking) arrive(e *Executor, store, giveBack func()) {
	e.post(func() {
		if p.orphaned {
			giveBack()
			return
		}
		store()
		p.giveBack = giveBack
		p.arrived = true
		if p.co != nil {
			p.co.resume()
		}
	})
}

func nop() {}

// AwaitTake returns a [Task] that takes a value from c, and then ends.
//
// If no value can be taken right away, the coroutine parks: it yields
// without holding a goroutine and resumes once a value arrives or c is
// closed. f, if not nil, is called with the outcome before the task ends.
//
// A canceled coroutine withdraws its take. If the take has already
// completed, the value is handed back to c, ahead of anything buffered.
func AwaitTake[T any](c *Chan[T], f func(v T, ok bool)) Task {
	if c == nil {
		panic("csp: nil Chan")
	}
	return func(co *Coroutine) Result {
		var (
			v  T
			ok bool
		)
		p := &parking{h: newCommit(false)}
		w, v1, ok1, done := c.take(p.h, func(v2 T, ok2 bool) {
			p.arrive(co.executor, func() { v, ok = v2, ok2 }, func() {
				if ok2 {
					c.restore(v2)
				}
			})
		}, true)
		if done {
			if f != nil {
				f(v1, ok1)
			}
			return co.End()
		}
		p.withdraw = func() { c.unlink(w) }
		return co.await(p, func(co *Coroutine) Result {
			if f != nil {
				f(v, ok)
			}
			return co.End()
		})
	}
}

// AwaitPut returns a [Task] that puts v on c, and then ends.
//
// If v cannot be put right away, the coroutine parks until a taker or
// a buffer slot accepts it, or until c is closed. f, if not nil, is called
// with the outcome before the task ends.
//
// A canceled coroutine withdraws its put. A put that has already
// completed stays put, and f is not called.
func AwaitPut[T any](c *Chan[T], v T, f func(ok bool)) Task {
	if c == nil {
		panic("csp: nil Chan")
	}
	c.checkValue(v)
	return func(co *Coroutine) Result {
		var ok bool
		p := &parking{h: newCommit(false)}
		w, ok1, done := c.put(v, p.h, func(ok2 bool) {
			p.arrive(co.executor, func() { ok = ok2 }, nop)
		}, true)
		if done {
			if f != nil {
				f(ok1)
			}
			return co.End()
		}
		p.withdraw = func() { c.unlink(w) }
		return co.await(p, func(co *Coroutine) Result {
			if f != nil {
				f(ok)
			}
			return co.End()
		})
	}
}

// AwaitSelect returns a [Task] that completes exactly one of ops, and then
// ends. It is the parking counterpart of [Select] and takes the same
// options.
//
// f, if not nil, is called with the outcome before the task ends.
// A canceled coroutine withdraws every pending operation; an operation that
// has already completed is undone as [AwaitTake] and [AwaitPut] describe.
func AwaitSelect(ops []Op, f func(s Selected), opts ...SelectOption) Task {
	return func(co *Coroutine) Result {
		var s Selected
		p := &parking{h: newCommit(false)}
		s1, done, r := selectOps(ops, opts, p.h, func(s2 Selected) {
			p.arrive(co.executor, func() { s = s2 }, func() {
				if s2.Index >= 0 {
					ops[s2.Index].giveBack(s2)
				}
			})
		})
		if done {
			if f != nil {
				f(s1)
			}
			return co.End()
		}
		p.withdraw = r.decide
		return co.await(p, func(co *Coroutine) Result {
			if f != nil {
				f(s)
			}
			return co.End()
		})
	}
}

// Go spawns a root coroutine on e to work on the task f returns, and returns
// a channel that delivers its result.
//
// When the coroutine ends, the value f's task has stored in *result is put
// on the returned channel, which is then closed. If the coroutine exits or
// panics, or the result is nil, the channel is closed without a value.
//
// The returned channel has a buffer of one, so the coroutine never waits
// for its result to be taken.
func Go[T any](e *Executor, f func(result *T) Task) *Chan[T] {
	if e == nil {
		panic("csp: nil Executor")
	}
	if f == nil {
		panic("csp: nil func")
	}
	c := NewChan[T](1)
	var result T
	t := must(f(&result))
	e.Spawn(func(co *Coroutine) Result {
		co.Defer(Do(func() {
			if !co.Exiting() && !co.Panicking() && !c.isNil(result) {
				c.Offer(result)
			}
			c.Close()
		}))
		return co.Transition(t)
	})
	return c
}

// Range returns a [Task] that takes values from c and runs f for each of
// them, one at a time, until c is closed and drained, and then ends.
//
// The task f returns may [Break] the loop early or [Continue] it.
func Range[T any](c *Chan[T], f func(v T) Task) Task {
	if c == nil {
		panic("csp: nil Chan")
	}
	if f == nil {
		panic("csp: nil func")
	}
	return func(co *Coroutine) Result {
		var (
			v  T
			ok bool
		)
		next := func(co *Coroutine) Result {
			if !ok {
				return co.Break()
			}
			return co.Transition(f(v))
		}
		return co.Transition(Loop(AwaitTake(c, func(v1 T, ok1 bool) { v, ok = v1, ok1 }).Then(next)))
	}
}
