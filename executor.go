package csp

import (
	"sync"

	"github.com/eapache/queue"
)

// An Executor runs coroutines, one at a time.
//
// Spawned and resumed coroutines are added to an internal queue, which the
// Run method drains on the calling goroutine. If one coroutine blocks, no
// other coroutine can run. Do not block: park on a channel instead, with
// [AwaitTake], [AwaitPut] or [AwaitSelect].
//
// The queue is sorted by level: a child coroutine comes after its parent.
// Coroutines of the same level run in arrival order.
//
// Channel operations complete on whichever goroutine the [Dispatcher] picks.
// Their outcomes are posted to the Executor and picked up by Run, so an
// Executor whose coroutines park on channels needs an autorun function (see
// the Autorun method) to get going again.
// The Executor never calls the autorun function twice at the same time.
type Executor struct {
	mu      sync.Mutex
	rq      levelqueue[*Coroutine]
	inbox   *queue.Queue
	running bool
	autorun func()
	ps      panicstack
}

// Autorun sets up an autorun function that calls the Run method whenever
// a coroutine is spawned or a parked one has something to pick up.
//
// One must pass a function that calls the Run method.
// Passing e.Run runs coroutines on the goroutine that spawns or wakes them;
// passing func() { go e.Run() } runs them on a new goroutine instead.
//
// If f blocks, the Spawn method may block too.
func (e *Executor) Autorun(f func()) {
	e.mu.Lock()
	e.autorun = f
	e.mu.Unlock()
}

// Run runs posted channel outcomes and queued coroutines until there are
// none left.
//
// If any root coroutine panicked, Run panics with a value that reports every
// panic and its stack trace, once there is nothing left to run.
//
// Run must not be called twice at the same time.
func (e *Executor) Run() {
	e.mu.Lock()
	e.running = true

	for {
		if e.inbox != nil && e.inbox.Length() != 0 {
			f := e.inbox.Remove().(func())
			e.mu.Unlock()
			f()
			e.mu.Lock()
			continue
		}
		if e.rq.Empty() {
			break
		}
		e.runCoroutine(e.rq.Pop())
	}

	e.running = false
	ps := e.ps
	e.ps = nil
	e.mu.Unlock()

	ps.Repanic()
}

// Spawn creates a root coroutine to work on t.
//
// The coroutine is added in a queue. To run it, either call the Run method,
// or call the Autorun method to set up an autorun function beforehand.
//
// Spawn is safe for concurrent use.
func (e *Executor) Spawn(t Task) {
	co := newCoroutine(e, nil, t)
	co.flag |= flagEnqueued

	e.mu.Lock()
	e.rq.Push(co)
	autorun := e.kick()
	e.mu.Unlock()

	if autorun != nil {
		autorun()
	}
}

// post queues f to run on e. It is how channel callbacks, which run on any
// goroutine, reach parked coroutines.
func (e *Executor) post(f func()) {
	e.mu.Lock()
	if e.inbox == nil {
		e.inbox = queue.New()
	}
	e.inbox.Add(f)
	autorun := e.kick()
	e.mu.Unlock()

	if autorun != nil {
		autorun()
	}
}

// kick returns the autorun function if e needs starting. e.mu must be held.
func (e *Executor) kick() func() {
	if e.running || e.autorun == nil {
		return nil
	}
	e.running = true
	return e.autorun
}

func (e *Executor) resumeCoroutine(co *Coroutine) {
	switch flag := co.flag; {
	case flag&flagEnqueued != 0:
		co.flag = flag | flagResumed
	default:
		co.flag = flag | flagResumed | flagEnqueued
		e.mu.Lock()
		e.rq.Push(co)
		e.mu.Unlock()
	}
}

func (e *Executor) runCoroutine(co *Coroutine) {
	flag := co.flag
	flag &^= flagEnqueued
	co.flag = flag
	if flag&(flagEnded|flagResumed) == flagResumed {
		e.mu.Unlock()
		co.run()
		e.mu.Lock()
	}
}
