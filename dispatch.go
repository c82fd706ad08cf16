package csp

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// A Dispatcher runs callbacks on behalf of the channel runtime: completions
// of [Chan.PutAsync], [Chan.TakeAsync] and [SelectAsync], and the wakeups
// of parked coroutines.
//
// Dispatch must not block and must not run f before returning.
type Dispatcher interface {
	Dispatch(f func())
}

// DispatcherFunc is a func(func()) that implements [Dispatcher].
type DispatcherFunc func(f func())

// Dispatch implements [Dispatcher].
func (d DispatcherFunc) Dispatch(f func()) { d(f) }

type dispatcherHolder struct{ d Dispatcher }

var (
	defaultPool = NewPool(runtime.GOMAXPROCS(0) * 2)

	currentDispatcher atomic.Pointer[dispatcherHolder]
)

func init() {
	currentDispatcher.Store(&dispatcherHolder{defaultPool})
}

// SetDispatcher replaces the [Dispatcher] used by the channel runtime.
// Passing nil restores the default [Pool], whose size is twice GOMAXPROCS
// at program start.
func SetDispatcher(d Dispatcher) {
	if d == nil {
		d = defaultPool
	}
	currentDispatcher.Store(&dispatcherHolder{d})
}

func dispatch(f func()) {
	currentDispatcher.Load().d.Dispatch(f)
}

// A Pool is a [Dispatcher] that runs callbacks on at most a fixed number of
// goroutines.
//
// Goroutines are started on demand and exit when there is nothing left to
// run. Callbacks waiting for a goroutine are run in FIFO order.
//
// A callback that panics is recovered and reported to the [PanicHandler], if
// any, and logged; the goroutine carries on with the next callback.
type Pool struct {
	mu      sync.Mutex
	backlog *queue.Queue
	size    int
	workers int

	// PanicHandler, if not nil, is called with the recovered value whenever
	// a callback panics. Set it before the Pool is first used.
	PanicHandler func(v any)
}

// NewPool creates a new [Pool] running at most size goroutines.
// NewPool panics if size is not positive.
func NewPool(size int) *Pool {
	if size <= 0 {
		panic("csp(Pool): non-positive size")
	}
	return &Pool{backlog: queue.New(), size: size}
}

// Dispatch implements [Dispatcher].
func (p *Pool) Dispatch(f func()) {
	if f == nil {
		panic("csp(Pool): nil func")
	}

	p.mu.Lock()
	p.backlog.Add(f)
	spawn := p.workers < p.size
	if spawn {
		p.workers++
	}
	p.mu.Unlock()

	if spawn {
		go p.work()
	}
}

// Workers returns the number of goroutines currently running in p.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Size returns the maximum number of goroutines p runs.
func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) work() {
	for {
		p.mu.Lock()
		if p.backlog.Length() == 0 {
			p.workers--
			p.mu.Unlock()
			return
		}
		f := p.backlog.Remove().(func())
		p.mu.Unlock()

		p.run(f)
	}
}

func (p *Pool) run(f func()) {
	defer func() {
		if v := recover(); v != nil {
			getLogger().Err().
				Str(`panic`, fmt.Sprint(v)).
				Str(`stack`, string(debug.Stack())).
				Log(`csp(Pool): callback panicked`)
			if h := p.PanicHandler; h != nil {
				h(v)
			}
		}
	}()
	f()
}
